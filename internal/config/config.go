package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// Auth modes for hub connections.
const (
	AuthNone   = "none"
	AuthBearer = "bearer"
	AuthCookie = "cookie"
	AuthQuery  = "query"
)

// Config holds all configuration for herald.
type Config struct {
	HubURL      string   `mapstructure:"hub_url" validate:"omitempty,url"`
	Topics      []string `mapstructure:"topics"`
	Auth        string   `mapstructure:"auth" validate:"oneof=none bearer cookie query"`
	Token       string   `mapstructure:"token"`
	TokenFile   string   `mapstructure:"token_file"`
	LastEventID string   `mapstructure:"last_event_id"`
	Catalog     string   `mapstructure:"catalog"`

	Log struct {
		Format string `mapstructure:"format" validate:"oneof=text json"`
		Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	} `mapstructure:"log"`

	Tracing struct {
		Enabled     bool   `mapstructure:"enabled"`
		ServiceName string `mapstructure:"service_name" validate:"required_if=Enabled true"`
		ZipkinURL   string `mapstructure:"zipkin_url" validate:"omitempty,url"`
	} `mapstructure:"tracing"`

	DevHub struct {
		Addr    string `mapstructure:"addr" validate:"required"`
		History int    `mapstructure:"history" validate:"gte=0"`
	} `mapstructure:"devhub"`
}

// ErrNoHub is returned by RequireHub when no hub URL is configured.
var ErrNoHub = errors.New("hub url is not configured (set HERALD_HUB_URL or hub_url)")

// RequireHub checks the settings needed to subscribe.
func (c *Config) RequireHub() error {
	if c.HubURL == "" {
		return ErrNoHub
	}
	if c.Auth != AuthNone && c.Auth != AuthCookie && c.Token == "" && c.TokenFile == "" {
		return fmt.Errorf("auth %q needs a token or token_file", c.Auth)
	}
	return nil
}

// Validate checks field constraints. Callers that change a loaded Config,
// e.g. from command-line flags, validate again.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("hub_url", "")
	v.SetDefault("topics", []string{})
	v.SetDefault("auth", AuthNone)
	v.SetDefault("token", "")
	v.SetDefault("token_file", "")
	v.SetDefault("last_event_id", "")
	v.SetDefault("catalog", "")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.level", "info")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "herald")
	v.SetDefault("tracing.zipkin_url", "http://localhost:9411/api/v2/spans")
	v.SetDefault("devhub.addr", ":3000")
	v.SetDefault("devhub.history", 100)
}

// Load reads configuration from a .env file, the environment (HERALD_*) and
// an optional config file. An empty path looks for herald.yaml in the
// working directory and ~/.config/herald.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, relying on environment variables")
	}
	return LoadFrom(afero.NewOsFs(), path)
}

// LoadFrom is Load without the .env step, reading config files from fs.
func LoadFrom(fs afero.Fs, path string) (*Config, error) {
	v := viper.New()
	v.SetFs(fs)
	setDefaults(v)

	v.SetEnvPrefix("HERALD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The unprefixed names are shared with other tools.
	_ = v.BindEnv("log.format", "HERALD_LOG_FORMAT", "LOG_FORMAT")
	_ = v.BindEnv("log.level", "HERALD_LOG_LEVEL", "LOG_LEVEL")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("herald")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/herald")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
