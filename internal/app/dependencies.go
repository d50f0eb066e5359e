// Package app wires configuration into the services the commands use.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"

	"github.com/spf13/afero"

	"github.com/nfrund/herald/internal/config"
	"github.com/nfrund/herald/internal/credentials"
	"github.com/nfrund/herald/internal/mercure"
	"github.com/nfrund/herald/internal/middleware"
	"github.com/nfrund/herald/internal/pubsub"
	"github.com/nfrund/herald/internal/sse"
	"github.com/nfrund/herald/internal/topics"
	"github.com/nfrund/herald/internal/transport"
)

// Version is reported by the CLI and in traces. Set with -ldflags.
var Version = "0.1.0"

// Dependencies holds the core services built from a Config.
// It is assembled once by the CLI entrypoint and shared between commands.
type Dependencies struct {
	Config  *config.Config
	Logger  *slog.Logger
	Fs      afero.Fs
	Opener  transport.Opener
	Client  *mercure.Client
	Catalog *topics.Registry
	Bus     *pubsub.WatermillBridge

	// ctx bounds reconnects triggered from stream callbacks.
	ctx context.Context

	mu      sync.RWMutex
	token   string
	jar     http.CookieJar
	query   *sse.QueryTokenOpener
	cleanup []func()
}

// New builds the hub client and its supporting services. The config must
// name a hub.
func New(ctx context.Context, cfg *config.Config, fs afero.Fs, logger *slog.Logger) (*Dependencies, error) {
	if err := cfg.RequireHub(); err != nil {
		return nil, err
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dependencies{Config: cfg, Logger: logger, Fs: fs, ctx: ctx}

	token, err := d.initialToken()
	if err != nil {
		return nil, err
	}
	d.token = token

	d.Opener, err = d.newOpener()
	if err != nil {
		return nil, err
	}

	d.Client, err = mercure.New(cfg.HubURL, mercure.Options{
		Opener:      d.Opener,
		LastEventID: cfg.LastEventID,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	if len(cfg.Topics) > 0 {
		d.Client.Subscribe(cfg.Topics)
	}

	d.Catalog, err = LoadCatalog(fs, cfg.Catalog)
	if err != nil {
		return nil, err
	}

	tracer, shutdown, err := pubsub.SetupOTel(ctx, pubsub.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		ZipkinURL:   cfg.Tracing.ZipkinURL,
		Version:     Version,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up tracing: %w", err)
	}
	d.cleanup = append(d.cleanup, shutdown)

	bridgeOpts := []pubsub.BridgeOption{pubsub.WithLogger(logger)}
	if cfg.Tracing.Enabled {
		bridgeOpts = append(bridgeOpts, pubsub.WithTracer(tracer))
	}
	d.Bus = pubsub.NewWatermillBridge(bridgeOpts...)
	d.cleanup = append(d.cleanup, func() {
		if err := d.Bus.Close(); err != nil {
			logger.Error("Failed to close event bus", "error", err)
		}
	})

	return d, nil
}

// LoadCatalog reads the topic catalog at path. An empty path yields an empty
// registry.
func LoadCatalog(fs afero.Fs, path string) (*topics.Registry, error) {
	if path == "" {
		return topics.NewRegistry(), nil
	}
	return topics.LoadCatalog(fs, path)
}

func (d *Dependencies) initialToken() (string, error) {
	if d.Config.TokenFile != "" {
		return d.tokenFile().Load()
	}
	return d.Config.Token, nil
}

func (d *Dependencies) tokenFile() credentials.TokenFile {
	return credentials.TokenFile{Fs: d.Fs, Path: d.Config.TokenFile, Logger: d.Logger}
}

func (d *Dependencies) newOpener() (transport.Opener, error) {
	dialer := sse.Dialer{
		Logger: d.Logger,
		OnError: func(_ string, err error) {
			d.Logger.Error("Hub stream failed", "error", err)
			d.resume()
		},
	}

	switch d.Config.Auth {
	case config.AuthCookie:
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		d.jar = jar
		if err := d.setCookie(d.token); err != nil {
			return nil, err
		}
		return sse.NewCookieOpener(dialer, jar), nil
	case config.AuthQuery:
		d.query = sse.NewQueryTokenOpener(dialer, d.token)
		return d.query, nil
	default:
		return sse.NewDefaultOpener(dialer), nil
	}
}

func (d *Dependencies) setCookie(token string) error {
	if d.jar == nil || token == "" {
		return nil
	}
	u, err := url.Parse(d.Config.HubURL)
	if err != nil {
		return err
	}
	d.jar.SetCookies(u, []*http.Cookie{{Name: middleware.AuthCookieName, Value: token, Path: "/"}})
	return nil
}

// Token returns the current hub token.
func (d *Dependencies) Token() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.token
}

// SetToken replaces the token used by later connections. The open
// connection keeps its old credentials until Reconnect.
func (d *Dependencies) SetToken(token string) error {
	d.mu.Lock()
	d.token = token
	d.mu.Unlock()

	switch {
	case d.query != nil:
		d.query.SetToken(token)
	case d.jar != nil:
		return d.setCookie(token)
	}
	return nil
}

// OpenOptions returns the per-connection options for the configured auth
// mode. Only bearer auth passes the token here.
func (d *Dependencies) OpenOptions() transport.OpenOptions {
	if d.Config.Auth != config.AuthBearer {
		return transport.OpenOptions{}
	}
	return transport.OpenOptions{Token: d.Token()}
}

// Connect applies the desired topics with the current credentials.
func (d *Dependencies) Connect(ctx context.Context) (transport.Conn, error) {
	return d.Client.Connect(ctx, d.OpenOptions())
}

// Reconnect reopens the connection with the current credentials.
func (d *Dependencies) Reconnect(ctx context.Context) (transport.Conn, error) {
	return d.Client.Reconnect(ctx, d.OpenOptions())
}

// resume reopens a connection whose stream gave up, continuing from the
// client's cursor. Nothing happens once the context is done or when the
// client was disconnected meanwhile.
func (d *Dependencies) resume() {
	if d.ctx.Err() != nil || d.Client == nil || !d.Client.Connected() {
		return
	}
	if _, err := d.Reconnect(d.ctx); err != nil {
		d.Logger.Error("Failed to reconnect after stream failure", "error", err)
		return
	}
	d.Logger.Info("Reconnected after stream failure", "last_event_id", d.Client.LastEventID())
}

// WatchToken follows the configured token file, reconnecting with each new
// token. It blocks until ctx is done and returns nil at once when no token
// file is configured.
func (d *Dependencies) WatchToken(ctx context.Context) error {
	if d.Config.TokenFile == "" {
		return nil
	}
	return d.tokenFile().Watch(ctx, func(token string) {
		d.rotate(ctx, token)
	})
}

func (d *Dependencies) rotate(ctx context.Context, token string) {
	if err := d.SetToken(token); err != nil {
		d.Logger.Error("Failed to apply rotated token", "error", err)
		return
	}
	if !d.Client.Connected() {
		d.Logger.Info("Token rotated")
		return
	}
	if _, err := d.Reconnect(ctx); err != nil {
		d.Logger.Error("Failed to reconnect after token rotation", "error", err)
		return
	}
	d.Logger.Info("Reconnected with rotated token")
}

// Close disconnects from the hub and releases the supporting services.
func (d *Dependencies) Close() {
	if err := d.Client.Disconnect(); err != nil {
		d.Logger.Error("Failed to disconnect from hub", "error", err)
	}
	for i := len(d.cleanup) - 1; i >= 0; i-- {
		d.cleanup[i]()
	}
}
