package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nfrund/herald/cmd/herald-cli/internal/display"
)

var matchOutputFormat string

var topicsMatchCmd = &cobra.Command{
	Use:   "match <topic>",
	Short: "Find the catalog topics a concrete topic belongs to",
	Long: `List the catalog topics whose pattern matches the given concrete topic.
Exits with an error when none does.

Example:
  herald-cli topics match https://example.com/books/7`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := loadCatalog(cmd)
		if err != nil {
			return err
		}

		matches := registry.Match(args[0])
		if len(matches) == 0 {
			return fmt.Errorf("no catalog topic matches %q", args[0])
		}
		if matchOutputFormat == "json" {
			return display.TopicsJSON(cmd.OutOrStdout(), matches)
		}
		return display.TopicsTable(cmd.OutOrStdout(), matches)
	},
}

func init() {
	topicsCmd.AddCommand(topicsMatchCmd)
	topicsMatchCmd.Flags().StringVarP(&matchOutputFormat, "format", "f", "table", "Output format (table, json)")
}
