// Package config loads the user-facing TOML configuration from
// ~/.tabdeck/config.toml. A missing file yields defaults; a broken file
// yields defaults plus an error the CLI can surface as a warning.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	// DirName is the tabdeck base directory under $HOME.
	DirName = ".tabdeck"

	// FileName is the TOML config file inside the base directory.
	FileName = "config.toml"

	// SessionFileName holds the persisted session record.
	SessionFileName = "session.json"

	// HistoryFileName holds the SQLite operation journal.
	HistoryFileName = "history.db"
)

// Config represents user preferences in TOML format.
type Config struct {
	// Terminal controls how new tab windows are launched and tagged.
	Terminal TerminalSettings `toml:"terminal"`

	// Discovery bounds the poll that waits for a launched window to appear.
	Discovery DiscoverySettings `toml:"discovery"`

	// Logs configures the rotated debug log.
	Logs LogSettings `toml:"logs"`

	// History configures the operation journal.
	History HistorySettings `toml:"history"`
}

// TerminalSettings selects the terminal emulator and the WM class used to
// tag and rediscover tabdeck windows.
type TerminalSettings struct {
	Program string `toml:"program"`
	WMClass string `toml:"wm_class"`
}

// DiscoverySettings parameterize the bounded window-discovery poll.
type DiscoverySettings struct {
	Attempts   int `toml:"attempts"`
	IntervalMS int `toml:"interval_ms"`
}

// Interval returns the poll spacing as a duration.
func (d DiscoverySettings) Interval() time.Duration {
	return time.Duration(d.IntervalMS) * time.Millisecond
}

// LogSettings configure debug log rotation.
type LogSettings struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// HistorySettings toggle the operation journal.
type HistorySettings struct {
	Enabled *bool `toml:"enabled"`
}

// GetEnabled returns whether the journal is on (default true).
func (h HistorySettings) GetEnabled() bool {
	if h.Enabled == nil {
		return true
	}
	return *h.Enabled
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Terminal: TerminalSettings{
			Program: "alacritty",
			WMClass: "tabdeck_tab",
		},
		Discovery: DiscoverySettings{
			Attempts:   50,
			IntervalMS: 100,
		},
		Logs: LogSettings{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 14,
			Compress:   true,
		},
	}
}

// BaseDir returns the tabdeck base directory (~/.tabdeck).
func BaseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, DirName), nil
}

// Path returns the config file location.
func Path() (string, error) {
	dir, err := BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// SessionPath returns the session record location.
func SessionPath() (string, error) {
	dir, err := BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, SessionFileName), nil
}

// HistoryPath returns the journal database location.
func HistoryPath() (string, error) {
	dir, err := BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, HistoryFileName), nil
}

var (
	cacheMu sync.RWMutex
	cache   *Config
)

// Load returns the cached user config, reading it on first use. A missing
// file returns defaults with no error; a file that fails to parse returns
// defaults plus the parse error so the caller can warn once.
func Load() (*Config, error) {
	cacheMu.RLock()
	if cache != nil {
		defer cacheMu.RUnlock()
		return cache, nil
	}
	cacheMu.RUnlock()

	cacheMu.Lock()
	defer cacheMu.Unlock()

	if cache != nil {
		return cache, nil
	}

	path, err := Path()
	if err != nil {
		def := Default()
		cache = &def
		return cache, nil
	}

	cfg, err := LoadFile(path)
	cache = cfg
	return cache, err
}

// LoadFile reads a config file from an explicit path, applying defaults
// for any unset field. Used directly by tests.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &cfg, nil
	}

	var loaded Config
	if _, err := toml.DecodeFile(path, &loaded); err != nil {
		return &cfg, fmt.Errorf("config.toml parse error: %w", err)
	}

	applyDefaults(&loaded)
	return &loaded, nil
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Terminal.Program == "" {
		cfg.Terminal.Program = def.Terminal.Program
	}
	if cfg.Terminal.WMClass == "" {
		cfg.Terminal.WMClass = def.Terminal.WMClass
	}
	if cfg.Discovery.Attempts <= 0 {
		cfg.Discovery.Attempts = def.Discovery.Attempts
	}
	if cfg.Discovery.IntervalMS <= 0 {
		cfg.Discovery.IntervalMS = def.Discovery.IntervalMS
	}
	if cfg.Logs.Level == "" {
		cfg.Logs.Level = def.Logs.Level
	}
	if cfg.Logs.Format == "" {
		cfg.Logs.Format = def.Logs.Format
	}
	if cfg.Logs.MaxSizeMB <= 0 {
		cfg.Logs.MaxSizeMB = def.Logs.MaxSizeMB
	}
	if cfg.Logs.MaxBackups <= 0 {
		cfg.Logs.MaxBackups = def.Logs.MaxBackups
	}
	if cfg.Logs.MaxAgeDays <= 0 {
		cfg.Logs.MaxAgeDays = def.Logs.MaxAgeDays
	}
}
