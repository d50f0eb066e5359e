package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nfrund/herald/internal/app"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of herald-cli",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "herald-cli v%s\n", app.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
