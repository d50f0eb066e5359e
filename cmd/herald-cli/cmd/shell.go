package cmd

import (
	"github.com/spf13/cobra"

	"github.com/nfrund/herald/cmd/herald-cli/internal/shell"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive session for managing a subscription",
	Long: `Start an interactive shell bound to the configured hub. Topics from the
configuration are pre-subscribed but nothing is opened until 'connect'.

Type 'help' inside the shell for the list of commands.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		deps, err := newDependencies(ctx, cmd)
		if err != nil {
			return err
		}
		defer deps.Close()

		return shell.New(deps.Client, deps, cmd.OutOrStdout()).Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(shellCmd)
}
