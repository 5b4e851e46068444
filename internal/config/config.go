// Package config loads calculator-console settings with viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, so
// remote.base_url is read from CALCULATOR_REMOTE_BASE_URL.
const EnvPrefix = "CALCULATOR"

// Config is the complete calculator-console configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Remote    RemoteConfig    `mapstructure:"remote"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Display   DisplayConfig   `mapstructure:"display"`
	Output    OutputConfig    `mapstructure:"output"`
}

// ServerConfig holds the web front-end listener settings.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// RemoteConfig points at the calculator service. A zero Timeout means
// requests wait as long as their context allows.
type RemoteConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// TelemetryConfig toggles the OTLP exporters.
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	ExportLogs  bool   `mapstructure:"export_logs"`
}

// DisplayConfig controls how history timestamps are shown. An empty
// Timezone means the local zone of the process.
type DisplayConfig struct {
	Timezone string `mapstructure:"timezone"`
}

// OutputConfig holds CLI output settings.
type OutputConfig struct {
	Colors bool `mapstructure:"colors"`
}

// Load reads configuration from defaults, an optional calculator.yaml
// (or cfgFile when set) and CALCULATOR_* environment variables, then
// applies overrides such as values taken from command-line flags.
// Empty override values are ignored.
func Load(cfgFile string, overrides map[string]any) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("calculator")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/calculator-console")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	for key, value := range overrides {
		if s, ok := value.(string); ok && s == "" {
			continue
		}
		v.Set(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Remote.BaseURL = strings.TrimRight(cfg.Remote.BaseURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetDefault("remote.base_url", "http://localhost:8089")
	v.SetDefault("remote.timeout", time.Duration(0))

	v.SetDefault("logging.level", "info")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "")
	v.SetDefault("telemetry.export_logs", false)

	v.SetDefault("display.timezone", "")

	v.SetDefault("output.colors", true)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	u, err := url.Parse(c.Remote.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid remote base URL: %q", c.Remote.BaseURL)
	}

	if c.Remote.Timeout < 0 {
		return fmt.Errorf("remote timeout must not be negative: %s", c.Remote.Timeout)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server shutdown timeout must be positive: %s", c.Server.ShutdownTimeout)
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	return nil
}

// Location resolves Display.Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Display.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Display.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid display timezone %q: %w", c.Display.Timezone, err)
	}
	return loc, nil
}
