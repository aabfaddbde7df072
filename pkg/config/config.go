// Package config loads adapter settings from a YAML file and the
// environment. Environment variables override file values using the
// VENUE_ prefix with underscores for nesting, e.g.
// VENUE_VENUES_BTCEX_API_KEY.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/veiloq/venue-adapters/pkg/exchanges/interfaces"
)

// VenueCredentials is the per-venue credential block of the config
// file.
type VenueCredentials struct {
	APIKey string `mapstructure:"api_key"`
	Secret string `mapstructure:"secret"`
	UID    string `mapstructure:"uid"`
}

// Config is the top-level adapter configuration.
type Config struct {
	LogLevel             string        `mapstructure:"log_level"`
	HTTPTimeout          time.Duration `mapstructure:"http_timeout"`
	MaxRequestsPerSecond int           `mapstructure:"max_requests_per_second"`
	AccountContextTTL    time.Duration `mapstructure:"account_context_ttl"`
	MarketsTTL           time.Duration `mapstructure:"markets_ttl"`

	Venues map[string]VenueCredentials `mapstructure:"venues"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("http_timeout", 15*time.Second)
	v.SetDefault("max_requests_per_second", 10)
	v.SetDefault("account_context_ttl", 30*time.Second)
	v.SetDefault("markets_ttl", time.Hour)
}

// Load reads configuration from the given file path. An empty path
// searches the working directory and $HOME/.venue-adapters for a
// config.yaml; a missing file is not an error, the environment and
// defaults still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	defaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.venue-adapters")
	}

	v.SetEnvPrefix("VENUE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "reading config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshaling config")
	}
	return &cfg, nil
}

// Options builds the adapter options for one venue, merging the global
// settings with that venue's credentials. Unknown venues get options
// without credentials, enough for public endpoints.
func (c *Config) Options(venue string) *interfaces.Options {
	options := interfaces.NewOptions()
	options.LogLevel = c.LogLevel
	if c.HTTPTimeout > 0 {
		options.HTTPTimeout = c.HTTPTimeout
	}
	if c.MaxRequestsPerSecond > 0 {
		options.MaxRequestsPerSecond = c.MaxRequestsPerSecond
	}
	if c.AccountContextTTL > 0 {
		options.AccountContextTTL = c.AccountContextTTL
	}
	if c.MarketsTTL > 0 {
		options.MarketsTTL = c.MarketsTTL
	}

	if creds, ok := c.Venues[strings.ToLower(venue)]; ok {
		options.Credentials = interfaces.Credentials{
			APIKey: creds.APIKey,
			Secret: creds.Secret,
			UID:    creds.UID,
		}
	}
	return options
}
