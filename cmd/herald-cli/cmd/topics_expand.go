package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nfrund/herald/cmd/herald-cli/internal/display"
	"github.com/nfrund/herald/internal/uritemplate"
)

var topicsExpandCmd = &cobra.Command{
	Use:   "expand <topic-name|template> [key=value]...",
	Short: "Expand a catalog topic or a raw URI template",
	Long: `Expand a URI template with the given variables. The first argument is a
catalog topic name or, when no such topic exists, a template.

Catalog topics require every variable. Raw templates follow RFC 6570 and
drop undefined variables. Repeating a key makes a list.

Examples:
  herald-cli topics expand book id=7
  herald-cli topics expand '/books{?id*}' id=1 id=2`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vars, err := display.ParseVars(args[1:])
		if err != nil {
			return err
		}

		registry, err := loadCatalog(cmd)
		if err != nil {
			return err
		}

		var expanded string
		if topic, ok := registry.Get(args[0]); ok {
			expanded, err = topic.Format(vars)
			if err != nil {
				return err
			}
		} else {
			tpl, err := uritemplate.Compile(args[0])
			if err != nil {
				return err
			}
			expanded = tpl.Expand(vars)
		}

		_, err = fmt.Fprintln(cmd.OutOrStdout(), expanded)
		return err
	},
}

func init() {
	topicsCmd.AddCommand(topicsExpandCmd)
}
