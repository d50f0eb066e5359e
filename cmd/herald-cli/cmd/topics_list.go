package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nfrund/herald/cmd/herald-cli/internal/display"
)

var listOutputFormat string

// topicsListCmd represents the topics list command
var topicsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the catalog's topics",
	Long: `List every topic of the catalog in table or JSON format.

Output formats:
  table - Human-readable table format (default)
  json  - Machine-readable JSON format with template variables`,
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := loadCatalog(cmd)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		switch listOutputFormat {
		case "json":
			return display.TopicsJSON(out, registry.List())
		case "table":
			return display.TopicsTable(out, registry.List())
		default:
			return fmt.Errorf("invalid format %q, expected table or json", listOutputFormat)
		}
	},
}

func init() {
	topicsCmd.AddCommand(topicsListCmd)
	topicsListCmd.Flags().StringVarP(&listOutputFormat, "format", "f", "table", "Output format (table, json)")
}
