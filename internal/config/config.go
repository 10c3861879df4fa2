// Package config loads user-facing TOML configuration for the terminal
// core: connection tuning, logging, history and classifier rule overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/devpocket/termcore/internal/logging"
)

var log = logging.ForComponent(logging.CompConfig)

// FileName is the TOML config file name inside the config directory.
const FileName = "config.toml"

// Config is the user-facing configuration in TOML format.
type Config struct {
	Connection ConnectionConfig `toml:"connection"`
	Classifier ClassifierConfig `toml:"classifier"`
	History    HistoryConfig    `toml:"history"`
	Logging    LoggingConfig    `toml:"logging"`
}

// ConnectionConfig tunes transport behavior.
type ConnectionConfig struct {
	// ConnectTimeoutSecs bounds a connection attempt (default: 20)
	ConnectTimeoutSecs int `toml:"connect_timeout_secs"`

	// SettleQuiescenceMs is the SSH banner quiet period (default: 1000)
	SettleQuiescenceMs int `toml:"settle_quiescence_ms"`

	// SettleMaxMs caps the SSH banner settling window (default: 2000)
	SettleMaxMs int `toml:"settle_max_ms"`

	// SendRatePerSec / SendBurst bound input message throughput per
	// session (defaults: 100 / 200)
	SendRatePerSec int `toml:"send_rate_per_sec"`
	SendBurst      int `toml:"send_burst"`
}

// ClassifierConfig extends the built-in command classification tables.
type ClassifierConfig struct {
	// ExtraInteractive lists additional commands treated as interactive
	// (routed keystrokes, PTY focus), e.g. custom REPLs.
	ExtraInteractive []string `toml:"extra_interactive"`

	// ExtraContinuous lists additional commands treated as long-running
	// streamers.
	ExtraContinuous []string `toml:"extra_continuous"`
}

// HistoryConfig controls command-history persistence.
type HistoryConfig struct {
	// Enabled turns history recording on (default: true)
	Enabled bool `toml:"enabled"`

	// Path overrides the database location (default: <config dir>/history.db)
	Path string `toml:"path"`
}

// LoggingConfig mirrors logging.Config in TOML form.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Debug  bool   `toml:"debug"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Connection: ConnectionConfig{
			ConnectTimeoutSecs: 20,
			SettleQuiescenceMs: 1000,
			SettleMaxMs:        2000,
			SendRatePerSec:     100,
			SendBurst:          200,
		},
		History: HistoryConfig{Enabled: true},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// Dir returns the config directory (~/.termcore), creating it if needed.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: home dir: %w", err)
	}
	dir := filepath.Join(home, ".termcore")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("config: mkdir: %w", err)
	}
	return dir, nil
}

// Load reads the config file at path, filling unset fields from defaults.
// A missing file is not an error; defaults are returned.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("config: read: %w", err)
	}

	if _, err := toml.Decode(string(data), &cfg); err != nil {
		log.Warn("config_parse_failed", "path", path, "error", err)
		return Default(), fmt.Errorf("config: parse: %w", err)
	}

	cfg.normalize()
	return cfg, nil
}

// normalize clamps nonsense values back to defaults.
func (c *Config) normalize() {
	def := Default()
	if c.Connection.ConnectTimeoutSecs <= 0 {
		c.Connection.ConnectTimeoutSecs = def.Connection.ConnectTimeoutSecs
	}
	if c.Connection.SettleQuiescenceMs <= 0 {
		c.Connection.SettleQuiescenceMs = def.Connection.SettleQuiescenceMs
	}
	if c.Connection.SettleMaxMs < c.Connection.SettleQuiescenceMs {
		c.Connection.SettleMaxMs = def.Connection.SettleMaxMs
	}
	if c.Connection.SendRatePerSec <= 0 {
		c.Connection.SendRatePerSec = def.Connection.SendRatePerSec
	}
	if c.Connection.SendBurst <= 0 {
		c.Connection.SendBurst = def.Connection.SendBurst
	}
}

// ConnectTimeout returns the connection timeout as a duration.
func (c ConnectionConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSecs) * time.Second
}

// SettleQuiescence returns the banner quiet period as a duration.
func (c ConnectionConfig) SettleQuiescence() time.Duration {
	return time.Duration(c.SettleQuiescenceMs) * time.Millisecond
}

// SettleMax returns the banner window cap as a duration.
func (c ConnectionConfig) SettleMax() time.Duration {
	return time.Duration(c.SettleMaxMs) * time.Millisecond
}

// HistoryPath resolves the history database path relative to dir when not
// explicitly configured.
func (c HistoryConfig) HistoryPath(dir string) string {
	if c.Path != "" {
		return c.Path
	}
	return filepath.Join(dir, "history.db")
}
