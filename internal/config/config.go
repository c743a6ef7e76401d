package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all kas configuration.
type Config struct {
	Remote     RemoteConfig     `toml:"remote"`
	Ledger     LedgerConfig     `toml:"ledger"`
	Cache      CacheConfig      `toml:"cache"`
	Server     ServerConfig     `toml:"server"`
	Store      StoreConfig      `toml:"store"`
	Appearance AppearanceConfig `toml:"appearance"`
}

// RemoteConfig points at the REST store holding the source of truth.
type RemoteConfig struct {
	BaseURL    string `toml:"base_url"`
	TimeoutSec int    `toml:"timeout_sec"`
}

// LedgerConfig tunes the reconciliation engine.
type LedgerConfig struct {
	DebounceMS int `toml:"debounce_ms"`
}

// CacheConfig controls the offline snapshot.
type CacheConfig struct {
	Path     string `toml:"path,omitempty"`
	Disabled bool   `toml:"disabled"`
}

// ServerConfig holds the aggregation gateway settings.
type ServerConfig struct {
	Addr         string `toml:"addr"`
	EventsBuffer int    `toml:"events_buffer"`
}

// StoreConfig holds the reference REST store settings.
type StoreConfig struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn,omitempty"`
	Addr   string `toml:"addr"`
}

// AppearanceConfig holds theme settings.
type AppearanceConfig struct {
	Theme string `toml:"theme"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Remote: RemoteConfig{
			BaseURL:    "http://localhost:4000",
			TimeoutSec: 10,
		},
		Ledger: LedgerConfig{
			DebounceMS: 500,
		},
		Server: ServerConfig{
			Addr:         "127.0.0.1:3000",
			EventsBuffer: 200,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			Addr:   "127.0.0.1:4000",
		},
		Appearance: AppearanceConfig{
			Theme: "flexoki-dark",
		},
	}
}

// Dir returns the XDG-compliant config directory.
func Dir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "kas")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "kas")
}

// Path returns the full path to the config file.
func Path() string {
	return filepath.Join(Dir(), "config.toml")
}

// Load reads the config file, returning defaults if it doesn't exist.
func Load() (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(Path())
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// Save writes the config to disk.
func Save(cfg Config) error {
	dir := Dir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	f, err := os.OpenFile(Path(), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	return enc.Encode(cfg)
}

// Exists returns true if a config file exists on disk.
func Exists() bool {
	_, err := os.Stat(Path())
	return err == nil
}

// GetAPIURL returns the remote store URL from env var or config, in that order.
func GetAPIURL(cfg Config) string {
	if u := os.Getenv("KAS_API_URL"); u != "" {
		return u
	}
	return cfg.Remote.BaseURL
}

// GetStoreDSN returns the reference store DSN from env var or config, in that order.
func GetStoreDSN(cfg Config) string {
	if dsn := os.Getenv("KAS_STORE_DSN"); dsn != "" {
		return dsn
	}
	return cfg.Store.DSN
}

// Timeout is the per-request remote timeout, falling back to 10s.
func (c RemoteConfig) Timeout() time.Duration {
	if c.TimeoutSec <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.TimeoutSec) * time.Second
}

// Debounce is the quiet period for direct field edits, falling back to 500ms.
func (c LedgerConfig) Debounce() time.Duration {
	if c.DebounceMS <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(c.DebounceMS) * time.Millisecond
}
