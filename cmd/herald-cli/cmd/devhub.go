package cmd

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/nfrund/herald/internal/devhub"
)

var (
	devhubAddr           string
	devhubPublishToken   string
	devhubSubscribeToken string
	devhubPublishRate    float64
)

var devhubCmd = &cobra.Command{
	Use:   "devhub",
	Short: "Run a local development hub",
	Long: `Run an in-process hub speaking the Mercure publish and subscribe protocol
at /.well-known/mercure. It keeps a bounded history for replays and accepts a
shared token per direction instead of JWTs.

Examples:
  herald-cli devhub --addr :3000
  curl -d topic=/books/1 -d 'data={"@id":"/books/1"}' http://localhost:3000/.well-known/mercure`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("addr") {
			cfg.DevHub.Addr = devhubAddr
		}

		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		hub := devhub.New(devhub.Options{
			History:        cfg.DevHub.History,
			PublishToken:   devhubPublishToken,
			SubscribeToken: devhubSubscribeToken,
			PublishRate:    devhubPublishRate,
			Heartbeat:      15 * time.Second,
			Logger:         slog.Default(),
		})
		return hub.Start(ctx, cfg.DevHub.Addr)
	},
}

func init() {
	f := devhubCmd.Flags()
	f.StringVar(&devhubAddr, "addr", "", "Listen address (default from config, :3000)")
	f.StringVar(&devhubPublishToken, "publish-token", "", "Token required to publish")
	f.StringVar(&devhubSubscribeToken, "subscribe-token", "", "Token required to subscribe")
	f.Float64Var(&devhubPublishRate, "publish-rate", 0, "Publishes per second per client, 0 for unlimited")
	rootCmd.AddCommand(devhubCmd)
}
