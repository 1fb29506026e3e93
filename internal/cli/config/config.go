// Package config provides configuration management for the certwatch CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix for CLI environment overrides.
const EnvPrefix = "CERTWATCH_CLI_"

// Config represents the CLI configuration
type Config struct {
	Server ServerConfig `koanf:"server"`
	Output OutputConfig `koanf:"output"`
}

// ServerConfig holds server connection settings
type ServerConfig struct {
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
}

// OutputConfig holds output formatting settings
type OutputConfig struct {
	Format string `koanf:"format"` // table, json
	Color  bool   `koanf:"color"`
}

// LoadOptions configures how configuration is loaded
type LoadOptions struct {
	ConfigPath string
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			URL: "http://localhost:8125",
			// A manual run sends mail synchronously, so allow more than a
			// typical API call.
			Timeout: 2 * time.Minute,
		},
		Output: OutputConfig{
			Format: "table",
			Color:  true,
		},
	}
}

// Load loads configuration from file and environment
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap{Default()}, nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = filepath.Join(configDir(), "config.toml")
	}

	if _, err := os.Stat(configPath); err == nil {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// CERTWATCH_CLI_SERVER_URL -> server.url
	if err := k.Load(env.Provider(EnvPrefix, ".", envToKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Save saves configuration to file
func (c *Config) Save() error {
	configPath := filepath.Join(configDir(), "config.toml")

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	k := koanf.New(".")
	if err := k.Load(confmap{c}, nil); err != nil {
		return err
	}

	data, err := k.Marshal(toml.Parser())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Set updates a single key by its dotted name.
func (c *Config) Set(key, value string) error {
	switch key {
	case "server.url":
		c.Server.URL = value
	case "server.timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		c.Server.Timeout = d
	case "output.format":
		if value != "table" && value != "json" {
			return fmt.Errorf("output.format must be table or json")
		}
		c.Output.Format = value
	case "output.color":
		c.Output.Color = value == "true"
	default:
		return fmt.Errorf("unknown config key: %s\nValid keys: server.url, server.timeout, output.format, output.color", key)
	}
	return nil
}

// configDir returns the configuration directory
func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "certwatch")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ".certwatch"
	}
	return filepath.Join(home, ".config", "certwatch")
}

// ConfigDir returns the configuration directory (exported)
func ConfigDir() string {
	return configDir()
}

// envToKey converts an environment variable to a config key,
// e.g. CERTWATCH_CLI_SERVER_URL -> server.url
func envToKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "_", ".")
}

// confmap implements koanf.Provider for Config struct
type confmap struct {
	cfg *Config
}

func (c confmap) ReadBytes() ([]byte, error) { return nil, nil }
func (c confmap) Read() (map[string]any, error) {
	return map[string]any{
		"server": map[string]any{
			"url":     c.cfg.Server.URL,
			"timeout": c.cfg.Server.Timeout.String(),
		},
		"output": map[string]any{
			"format": c.cfg.Output.Format,
			"color":  c.cfg.Output.Color,
		},
	}, nil
}
