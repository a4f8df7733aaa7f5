// Package config handles configuration file loading and parsing.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
)

// Default client configuration values.
const (
	DefaultServerURL = "http://localhost:8070"
	DefaultOutput    = "plain"
	DefaultTimeout   = 5 * time.Second
)

// Output formats supported by the CLI.
var OutputFormats = []string{"plain", "json", "yaml"}

// Config represents the pidisplay client configuration.
type Config struct {
	Server ClientServerConfig `toml:"server" envPrefix:"CLIENT_"`
	Output OutputConfig       `toml:"output" envPrefix:"OUTPUT_"`
	Watch  WatchConfig        `toml:"watch" envPrefix:"WATCH_"`
}

// ClientServerConfig locates the daemon.
type ClientServerConfig struct {
	URL     string   `toml:"url" env:"URL"`
	Timeout Duration `toml:"timeout" env:"TIMEOUT"`
}

// OutputConfig holds default output options.
type OutputConfig struct {
	Format string `toml:"format" env:"FORMAT"` // plain, json, yaml
}

// WatchConfig holds settings for the live viewer.
type WatchConfig struct {
	ShowHelp   bool `toml:"show_help" env:"SHOW_HELP"`
	ShowLayers bool `toml:"show_layers" env:"SHOW_LAYERS"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ClientServerConfig{
			URL:     DefaultServerURL,
			Timeout: Duration(DefaultTimeout),
		},
		Output: OutputConfig{
			Format: DefaultOutput,
		},
		Watch: WatchConfig{
			ShowHelp:   true,
			ShowLayers: true,
		},
	}
}

func configHome() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return configHome
}

// ConfigPath returns the path to the client config file.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config.
func ConfigPath() string {
	return filepath.Join(configHome(), "pidisplay", "config.toml")
}

// DataPath returns the path to the data directory.
// Uses XDG_DATA_HOME if set, otherwise ~/.local/share.
func DataPath() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "pidisplay")
}

// LoadConfig loads configuration from the specified path.
// If path is empty, uses the default config path.
// Returns default config if file doesn't exist.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := ValidateOutput(cfg.Output.Format); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to the specified path.
// Creates parent directories if needed.
func (c *Config) Save(path string) error {
	if path == "" {
		path = ConfigPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// ValidateOutput checks an output format name.
func ValidateOutput(format string) error {
	for _, f := range OutputFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid output format %q, must be one of: %v", format, OutputFormats)
}
