package cmd

import (
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/nfrund/herald/internal/app"
	"github.com/nfrund/herald/internal/topics"
)

// topicsCmd represents the topics command
var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "Explore the topic catalog and URI templates",
	Long: `The topics command works with the topic catalog, a YAML file naming the
URI templates an application publishes on.

Available subcommands:
  list    List the catalog's topics
  expand  Expand a catalog topic or a raw URI template
  match   Find the catalog topics a concrete topic belongs to

Examples:
  herald-cli topics list --catalog topics.yaml
  herald-cli topics expand book id=7
  herald-cli topics expand '/search{?q,lang}' q=go lang=en
  herald-cli topics match https://example.com/books/7

Use "herald-cli topics [command] --help" for more information about a specific command.`,
}

// loadCatalog reads the configured catalog. No catalog yields an empty one.
func loadCatalog(cmd *cobra.Command) (*topics.Registry, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return app.LoadCatalog(afero.NewOsFs(), cfg.Catalog)
}

func init() {
	rootCmd.AddCommand(topicsCmd)
}
