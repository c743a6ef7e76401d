// Package store provides the SQLite-backed offline snapshot of ledger state.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/theirongolddev/kas/internal/model"

	_ "modernc.org/sqlite" // register sqlite driver
)

// Key is the fixed slot the snapshot lives under. Bumping the version makes
// older snapshots invisible; they are overwritten on the next save.
const (
	KeyPrefix = "kas-bareng-tracker"
	Version   = 1
)

// Key returns the versioned slot name, e.g. "kas-bareng-tracker:v1".
func Key() string {
	return fmt.Sprintf("%s:v%d", KeyPrefix, Version)
}

// Cache is a best-effort key/value slot holding one serialized AppState.
type Cache struct {
	db     *sql.DB
	key    string
	logger *slog.Logger
}

// Open opens or creates the cache database at the given path.
func Open(dbPath string) (*Cache, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=synchronous(normal)")
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Cache{db: db, key: Key(), logger: slog.Default()}, nil
}

// Close closes the cache database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Load returns the cached snapshot. Missing rows, rows written by another
// version and undecodable bodies are all reported as a miss.
func (c *Cache) Load() (*model.AppState, bool) {
	var version int
	var body string
	err := c.db.QueryRow("SELECT version, body FROM snapshots WHERE key = ?", c.key).Scan(&version, &body)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			c.logger.Warn("cache read failed", "key", c.key, "error", err)
		}
		return nil, false
	}
	if version != Version {
		c.logger.Info("ignoring cached snapshot from another version", "key", c.key, "version", version)
		return nil, false
	}

	var st model.AppState
	if err := json.Unmarshal([]byte(body), &st); err != nil {
		c.logger.Warn("discarding corrupt cached snapshot", "key", c.key, "error", err)
		return nil, false
	}
	if st.Members == nil {
		st.Members = []model.Member{}
	}
	if st.Transactions == nil {
		st.Transactions = []model.Tx{}
	}
	return &st, true
}

// Save overwrites the snapshot. Failures are logged and swallowed.
func (c *Cache) Save(st model.AppState) {
	if err := c.save(st); err != nil {
		c.logger.Warn("cache write failed", "key", c.key, "error", err)
	}
}

func (c *Cache) save(st model.AppState) error {
	body, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	_, err = c.db.Exec(`INSERT OR REPLACE INTO snapshots (key, version, body, saved_at)
		VALUES (?, ?, ?, ?)`,
		c.key, Version, string(body), time.Now().UTC().Format(time.RFC3339))
	return err
}

// SavedAt reports when the snapshot was last written.
func (c *Cache) SavedAt() (time.Time, bool) {
	var raw string
	if err := c.db.QueryRow("SELECT saved_at FROM snapshots WHERE key = ?", c.key).Scan(&raw); err != nil {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Clear removes the snapshot.
func (c *Cache) Clear() error {
	_, err := c.db.Exec("DELETE FROM snapshots WHERE key = ?", c.key)
	return err
}
