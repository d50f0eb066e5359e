package cmd

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/nfrund/herald/internal/hydra"
	"github.com/nfrund/herald/internal/mercure"
)

var watchDeletions bool

var watchCmd = &cobra.Command{
	Use:   "watch <iri>...",
	Short: "Keep JSON-LD resources in sync and print them as they change",
	Long: `Subscribe to each resource IRI and print the merged document whenever the
hub publishes an update for it. With --deletions, payloads carrying only
JSON-LD metadata are reported as deletions.

Examples:
  herald-cli watch https://example.com/books/1
  herald-cli watch --deletions https://example.com/books/1 https://example.com/books/2`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		deps, err := newDependencies(ctx, cmd)
		if err != nil {
			return err
		}
		defer deps.Close()

		strategy := hydra.StrategyDefault
		if watchDeletions {
			strategy = hydra.StrategyDeletionAware
		}
		syncer := hydra.New(deps.Client, hydra.Options{
			Strategy: strategy,
			Open:     deps.OpenOptions(),
		})
		defer syncer.Close()

		out := cmd.OutOrStdout()
		var mu sync.Mutex
		for _, iri := range args {
			doc := hydra.Document{"@id": iri}
			if err := syncer.Sync(ctx, doc, ""); err != nil {
				return err
			}
			syncer.OnUpdate(doc, hydra.NewListener(func(_ hydra.Document, _ mercure.Event) error {
				mu.Lock()
				defer mu.Unlock()
				return json.NewEncoder(out).Encode(doc)
			}))
			syncer.OnDelete(doc, hydra.NewListener(func(_ hydra.Document, e mercure.Event) error {
				mu.Lock()
				defer mu.Unlock()
				_, err := fmt.Fprintf(out, "deleted %s (event %s)\n", iri, e.ID)
				return err
			}))
		}

		go func() {
			if err := deps.WatchToken(ctx); err != nil {
				deps.Logger.Error("Token watcher stopped", "error", err)
			}
		}()

		<-ctx.Done()
		return nil
	},
}

func init() {
	watchCmd.Flags().BoolVar(&watchDeletions, "deletions", false, "Report metadata-only payloads as deletions")
	rootCmd.AddCommand(watchCmd)
}
