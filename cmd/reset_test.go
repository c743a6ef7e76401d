package cmd

import (
	"path/filepath"
	"testing"

	"github.com/theirongolddev/kas/internal/model"
	"github.com/theirongolddev/kas/internal/store"
)

func openTestCache(t *testing.T) *store.Cache {
	t.Helper()
	c, err := store.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestResetCacheWritesDefaults(t *testing.T) {
	c := openTestCache(t)
	c.Save(model.AppState{Pool: 5, Members: []model.Member{}, Transactions: []model.Tx{}})

	if err := resetCache(c, false); err != nil {
		t.Fatalf("resetCache: %v", err)
	}
	st, ok := c.Load()
	if !ok {
		t.Fatal("cache empty after reset")
	}
	if st.Pool != model.DefaultState().Pool || len(st.Members) != 3 {
		t.Errorf("cached state = %+v, want defaults", st)
	}
}

func TestResetCacheClearDeletesSnapshot(t *testing.T) {
	c := openTestCache(t)
	c.Save(model.DefaultState())

	if err := resetCache(c, true); err != nil {
		t.Fatalf("resetCache: %v", err)
	}
	if st, ok := c.Load(); ok {
		t.Errorf("Load after clear = %+v, want miss", st)
	}
	if _, ok := c.SavedAt(); ok {
		t.Error("SavedAt reports a snapshot after clear")
	}
}
