package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/nfrund/herald/internal/app"
	"github.com/nfrund/herald/internal/config"
	"github.com/nfrund/herald/internal/logging"
)

var (
	configPath  string
	hubURL      string
	topicFlags  []string
	authMode    string
	token       string
	tokenFile   string
	lastEventID string
	catalogPath string
	logFormat   string
	logLevel    string
)

var rootCmd = &cobra.Command{
	Use:   "herald-cli",
	Short: "Mercure hub subscription client",
	Long: `herald-cli subscribes to a Mercure hub over server-sent events.

Available commands:
  listen    Subscribe to topics and print events as JSON lines
  shell     Interactive session for managing a subscription
  topics    Explore the topic catalog and URI templates
  devhub    Run a local development hub
  version   Print the version

Settings come from flags, HERALD_* environment variables, a .env file and
herald.yaml, in that order of precedence.

Use "herald-cli [command] --help" for more information about a specific command.`,
	SilenceUsage: true,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVarP(&configPath, "config", "c", "", "Config file (default herald.yaml)")
	f.StringVar(&hubURL, "hub", "", "Hub URL, e.g. https://example.com/.well-known/mercure")
	f.StringSliceVarP(&topicFlags, "topic", "t", nil, "Topic or URI template to subscribe to (repeatable)")
	f.StringVar(&authMode, "auth", "", "Authorization mode (none, bearer, cookie, query)")
	f.StringVar(&token, "token", "", "Hub token")
	f.StringVar(&tokenFile, "token-file", "", "File holding the hub token, reloaded when it changes")
	f.StringVar(&lastEventID, "last-event-id", "", "Resume after this event id")
	f.StringVar(&catalogPath, "catalog", "", "Topic catalog file (YAML)")
	f.StringVar(&logFormat, "log-format", "", "Log format (text, json)")
	f.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
}

// loadConfig reads the configuration and applies flags that were set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	override := func(name string, dst *string, value string) {
		if flags.Changed(name) {
			*dst = value
		}
	}
	override("hub", &cfg.HubURL, hubURL)
	override("auth", &cfg.Auth, authMode)
	override("token", &cfg.Token, token)
	override("token-file", &cfg.TokenFile, tokenFile)
	override("last-event-id", &cfg.LastEventID, lastEventID)
	override("catalog", &cfg.Catalog, catalogPath)
	override("log-format", &cfg.Log.Format, logFormat)
	override("log-level", &cfg.Log.Level, logLevel)
	if flags.Changed("topic") {
		cfg.Topics = topicFlags
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logging.New(os.Stderr, cfg.Log.Format, cfg.Log.Level)
	return cfg, nil
}

// newDependencies loads the configuration and wires the hub client.
func newDependencies(ctx context.Context, cmd *cobra.Command) (*app.Dependencies, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, afero.NewOsFs(), nil)
}

// signalContext is cancelled on interrupt or terminate.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
