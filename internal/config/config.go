// Package config loads host settings from flags, environment and an optional config file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. PIECES_STORE_DSN.
const EnvPrefix = "PIECES"

// EnvKeyReplacer maps nested keys such as store.dsn onto STORE_DSN.
var EnvKeyReplacer = strings.NewReplacer(".", "_")

type Config struct {
	InstancesDir string          `mapstructure:"instances_dir"`
	SecretsFile  string          `mapstructure:"secrets_file"`
	PluginsDir   string          `mapstructure:"plugins_dir"`
	Store        StoreConfig     `mapstructure:"store"`
	Server       ServerConfig    `mapstructure:"server"`
	Poll         PollConfig      `mapstructure:"poll"`
	Log          LogConfig       `mapstructure:"log"`
	Telemetry    TelemetryConfig `mapstructure:"telemetry"`
}

type StoreConfig struct {
	// DSN selects the backend: memory:, sqlite:<file>, postgres://..., redis://...
	DSN string `mapstructure:"dsn"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
	// PublicURL is the externally reachable base URL vendors deliver webhooks to.
	PublicURL string `mapstructure:"public_url"`
}

type PollConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TelemetryConfig struct {
	Stdout bool `mapstructure:"stdout"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("instances_dir", "./instances")
	v.SetDefault("plugins_dir", "./plugins")
	v.SetDefault("store.dsn", "sqlite:pieces.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("poll.interval", "5m")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("telemetry.stdout", false)
}

// Load unmarshals the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom unmarshals v into a Config and checks the values that have no sane fallback.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if cfg.Poll.Interval <= 0 {
		return nil, fmt.Errorf("poll.interval must be positive, got %s", cfg.Poll.Interval)
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("server.port out of range: %d", cfg.Server.Port)
	}
	return &cfg, nil
}
