package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Remote.BaseURL != "http://localhost:4000" {
		t.Errorf("BaseURL = %q", cfg.Remote.BaseURL)
	}
	if cfg.Ledger.Debounce() != 500*time.Millisecond {
		t.Errorf("Debounce = %v, want 500ms", cfg.Ledger.Debounce())
	}
	if Exists() {
		t.Error("Exists() = true before Save")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg := DefaultConfig()
	cfg.Remote.BaseURL = "http://ledger.lan:4000"
	cfg.Cache.Disabled = true
	cfg.Store.Driver = "postgres"
	cfg.Appearance.Theme = "tokyo-night"

	if err := Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !Exists() {
		t.Fatal("Exists() = false after Save")
	}

	got, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != cfg {
		t.Errorf("Load() = %+v, want %+v", got, cfg)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	if err := os.MkdirAll(filepath.Join(dir, "kas"), 0o755); err != nil {
		t.Fatal(err)
	}
	body := "[ledger]\ndebounce_ms = 50\n"
	if err := os.WriteFile(filepath.Join(dir, "kas", "config.toml"), []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Ledger.Debounce() != 50*time.Millisecond {
		t.Errorf("Debounce = %v, want 50ms", cfg.Ledger.Debounce())
	}
	if cfg.Server.Addr != "127.0.0.1:3000" {
		t.Errorf("Server.Addr = %q, want default", cfg.Server.Addr)
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	_ = os.MkdirAll(filepath.Join(dir, "kas"), 0o755)
	_ = os.WriteFile(filepath.Join(dir, "kas", "config.toml"), []byte("[remote\n"), 0o600)

	if _, err := Load(); err == nil {
		t.Fatal("Load accepted malformed TOML")
	}
}

func TestEnvOverrides(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.DSN = "file.db"

	t.Setenv("KAS_API_URL", "")
	t.Setenv("KAS_STORE_DSN", "")
	if got := GetAPIURL(cfg); got != cfg.Remote.BaseURL {
		t.Errorf("GetAPIURL without env = %q", got)
	}
	if got := GetStoreDSN(cfg); got != "file.db" {
		t.Errorf("GetStoreDSN without env = %q", got)
	}

	t.Setenv("KAS_API_URL", "http://env:1")
	t.Setenv("KAS_STORE_DSN", "postgres://env")
	if got := GetAPIURL(cfg); got != "http://env:1" {
		t.Errorf("GetAPIURL = %q, want env value", got)
	}
	if got := GetStoreDSN(cfg); got != "postgres://env" {
		t.Errorf("GetStoreDSN = %q, want env value", got)
	}
}
