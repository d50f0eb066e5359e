package cmd

import (
	"context"
	"log/slog"
	"sync"

	"github.com/spf13/cobra"

	"github.com/nfrund/herald/cmd/herald-cli/internal/display"
	"github.com/nfrund/herald/internal/mercure"
	"github.com/nfrund/herald/internal/pubsub"
)

var listenEventTypes []string

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Subscribe to topics and print events as JSON lines",
	Long: `Subscribe to the configured topics and print every event as one JSON line
on stdout. Events travel through the in-process event bus, so tracing applies
when enabled.

Examples:
  herald-cli listen --hub https://example.com/.well-known/mercure --topic '/books/{id}'
  herald-cli listen --topic '*' --event-type message --event-type delete
  herald-cli listen --auth query --token-file /run/secrets/hub`,
	RunE: runListen,
}

func runListen(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	deps, err := newDependencies(ctx, cmd)
	if err != nil {
		return err
	}
	defer deps.Close()

	out := cmd.OutOrStdout()
	var mu sync.Mutex
	printEvent := func(_ context.Context, msg pubsub.Message) error {
		mu.Lock()
		defer mu.Unlock()
		return display.Event(out, mercure.Event{
			ID:   pubsub.LastEventID(msg),
			Type: pubsub.EventType(msg),
			Data: string(msg.Payload),
		})
	}
	for _, t := range listenEventTypes {
		if err := deps.Bus.Subscribe(ctx, pubsub.TopicFor(t), printEvent); err != nil {
			return err
		}
	}

	stop := pubsub.Forward(ctx, deps.Client, deps.Bus, listenEventTypes...)
	defer stop()

	if _, err := deps.Connect(ctx); err != nil {
		return err
	}
	slog.Info("Listening", "topics", deps.Client.AppliedTopics().String())

	go func() {
		if err := deps.WatchToken(ctx); err != nil {
			slog.Error("Token watcher stopped", "error", err)
		}
	}()

	<-ctx.Done()
	return nil
}

func init() {
	listenCmd.Flags().StringSliceVarP(&listenEventTypes, "event-type", "e", []string{mercure.DefaultEventType}, "Event types to print (repeatable)")
	rootCmd.AddCommand(listenCmd)
}
