// Package config loads the certwatch server configuration.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix for environment overrides. Nested keys are
// separated by a double underscore: CERTWATCH_SMTP__HOST -> smtp.host.
const EnvPrefix = "CERTWATCH_"

// Config is the complete server configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	SQLite        SQLiteConfig        `koanf:"sqlite"`
	Logging       LoggingConfig       `koanf:"logging"`
	Notifications NotificationsConfig `koanf:"notifications"`
	SMTP          SMTPConfig          `koanf:"smtp"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Address           string        `koanf:"address"`
	HTTPServerTimeout time.Duration `koanf:"http_server_timeout"`
	FrontendURL       string        `koanf:"frontend_url"`
}

// SQLiteConfig points at the database file.
type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// LoggingConfig controls log verbosity.
type LoggingConfig struct {
	Level string `koanf:"level"`
}

// NotificationsConfig drives the expiry notification scheduler.
type NotificationsConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Interval   time.Duration `koanf:"interval"`
	RunOnStart bool          `koanf:"run_on_start"`
	// LookaheadDays bounds which items are considered expiring.
	LookaheadDays int           `koanf:"lookahead_days"`
	SendTimeout   time.Duration `koanf:"send_timeout"`
	// Thresholds are the exact days-remaining values that trigger a notification.
	Thresholds       []int       `koanf:"thresholds"`
	UrgentWithinDays int         `koanf:"urgent_within_days"`
	Tiers            TierConfig  `koanf:"tiers"`
	Lease            LeaseConfig `koanf:"lease"`
}

// TierConfig holds the contact tier breakpoints. They are independent of the
// notification thresholds.
type TierConfig struct {
	Alert3MinDays int `koanf:"alert3_min_days"`
	Alert2MinDays int `koanf:"alert2_min_days"`
	Alert1MinDays int `koanf:"alert1_min_days"`
}

// LeaseConfig enables coordination between several scheduler instances
// sharing one database.
type LeaseConfig struct {
	Enabled    bool          `koanf:"enabled"`
	TTL        time.Duration `koanf:"ttl"`
	InstanceID string        `koanf:"instance_id"`
}

// SMTPConfig configures the outbound mail transport.
type SMTPConfig struct {
	Host                  string        `koanf:"host"`
	Port                  int           `koanf:"port"`
	Security              string        `koanf:"security"` // none, starttls, tls
	Username              string        `koanf:"username"`
	Password              string        `koanf:"password"`
	From                  string        `koanf:"from"`
	ReplyTo               string        `koanf:"reply_to"`
	Timeout               time.Duration `koanf:"timeout"`
	TLSInsecureSkipVerify bool          `koanf:"tls_insecure_skip_verify"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:           ":8125",
			HTTPServerTimeout: 30 * time.Second,
		},
		SQLite:  SQLiteConfig{Path: "certwatch.db"},
		Logging: LoggingConfig{Level: "info"},
		Notifications: NotificationsConfig{
			Enabled:          true,
			Interval:         24 * time.Hour,
			LookaheadDays:    90,
			SendTimeout:      30 * time.Second,
			Thresholds:       []int{90, 60, 30, 15, 7, 1},
			UrgentWithinDays: 30,
			Tiers: TierConfig{
				Alert3MinDays: 60,
				Alert2MinDays: 30,
				Alert1MinDays: 10,
			},
			Lease: LeaseConfig{TTL: 36 * time.Hour},
		},
		SMTP: SMTPConfig{
			Port:     587,
			Security: "starttls",
			Timeout:  10 * time.Second,
		},
	}
}

// Load reads defaults, then the TOML file at path (if it exists), then
// CERTWATCH_* environment variables. Later sources win.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap{Default()}, nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envToKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks invariants the scheduler relies on.
func (c *Config) Validate() error {
	n := c.Notifications
	if n.Interval <= 0 {
		return fmt.Errorf("notifications.interval must be positive")
	}
	if n.LookaheadDays <= 0 {
		return fmt.Errorf("notifications.lookahead_days must be positive")
	}
	if len(n.Thresholds) == 0 {
		return fmt.Errorf("notifications.thresholds must not be empty")
	}
	for _, d := range n.Thresholds {
		if d <= 0 || d > n.LookaheadDays {
			return fmt.Errorf("notifications.thresholds: %d is outside 1..%d", d, n.LookaheadDays)
		}
	}
	t := n.Tiers
	if !(t.Alert3MinDays > t.Alert2MinDays && t.Alert2MinDays > t.Alert1MinDays && t.Alert1MinDays >= 0) {
		return fmt.Errorf("notifications.tiers must be strictly descending: alert3 > alert2 > alert1 >= 0")
	}
	switch strings.ToLower(c.SMTP.Security) {
	case "", "none", "starttls", "tls":
	default:
		return fmt.Errorf("smtp.security must be one of none, starttls, tls")
	}
	return nil
}

// SortedThresholds returns the thresholds in descending order.
func (n NotificationsConfig) SortedThresholds() []int {
	out := append([]int(nil), n.Thresholds...)
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}

// envToKey maps CERTWATCH_SMTP__HOST to smtp.host.
func envToKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// confmap exposes a Config as a koanf provider so defaults can be layered
// underneath the file and the environment.
type confmap struct {
	cfg *Config
}

func (c confmap) ReadBytes() ([]byte, error) { return nil, nil }

func (c confmap) Read() (map[string]any, error) {
	n := c.cfg.Notifications
	return map[string]any{
		"server": map[string]any{
			"address":             c.cfg.Server.Address,
			"http_server_timeout": c.cfg.Server.HTTPServerTimeout.String(),
			"frontend_url":        c.cfg.Server.FrontendURL,
		},
		"sqlite": map[string]any{
			"path": c.cfg.SQLite.Path,
		},
		"logging": map[string]any{
			"level": c.cfg.Logging.Level,
		},
		"notifications": map[string]any{
			"enabled":            n.Enabled,
			"interval":           n.Interval.String(),
			"run_on_start":       n.RunOnStart,
			"lookahead_days":     n.LookaheadDays,
			"send_timeout":       n.SendTimeout.String(),
			"thresholds":         n.Thresholds,
			"urgent_within_days": n.UrgentWithinDays,
			"tiers": map[string]any{
				"alert3_min_days": n.Tiers.Alert3MinDays,
				"alert2_min_days": n.Tiers.Alert2MinDays,
				"alert1_min_days": n.Tiers.Alert1MinDays,
			},
			"lease": map[string]any{
				"enabled":     n.Lease.Enabled,
				"ttl":         n.Lease.TTL.String(),
				"instance_id": n.Lease.InstanceID,
			},
		},
		"smtp": map[string]any{
			"host":                     c.cfg.SMTP.Host,
			"port":                     c.cfg.SMTP.Port,
			"security":                 c.cfg.SMTP.Security,
			"username":                 c.cfg.SMTP.Username,
			"password":                 c.cfg.SMTP.Password,
			"from":                     c.cfg.SMTP.From,
			"reply_to":                 c.cfg.SMTP.ReplyTo,
			"timeout":                  c.cfg.SMTP.Timeout.String(),
			"tls_insecure_skip_verify": c.cfg.SMTP.TLSInsecureSkipVerify,
		},
	}, nil
}
