package pipeline

import (
	"os"
	"path/filepath"
)

// CacheDir returns the platform-appropriate cache directory.
func CacheDir() string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "kas")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".cache", "kas")
}

// CachePath returns the full path to the local cache database.
func CachePath() string {
	return filepath.Join(CacheDir(), "state.db")
}

// DataDir returns the directory holding the reference store's database.
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "kas")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "kas")
}

// StorePath returns the default SQLite file for `kas store`.
func StorePath() string {
	return filepath.Join(DataDir(), "store.db")
}
