package ledger

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/theirongolddev/kas/internal/docstore"
	"github.com/theirongolddev/kas/internal/model"
	"github.com/theirongolddev/kas/internal/remote"
	"github.com/theirongolddev/kas/internal/store"
)

// TestEngineAgainstStore runs the engine against the real client, store and
// cache to check that local and remote state stay in agreement.
func TestEngineAgainstStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	ds, err := docstore.Open("sqlite", filepath.Join(dir, "store.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = ds.Close() }()
	srv := httptest.NewServer(ds.Handler(slog.New(slog.NewTextHandler(io.Discard, nil))))
	defer srv.Close()

	cache, err := store.Open(filepath.Join(dir, "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = cache.Close() }()
	mirror := store.NewMirror(cache, 4)
	mirror.Start()

	client := remote.NewClient(srv.URL)
	e := New(client, WithLogger(quietLogger()), WithDebounce(10*time.Millisecond))
	e.Subscribe(mirror.Push)

	origin, err := e.Hydrate(ctx, client, cache)
	if err != nil || origin != OriginRemote {
		t.Fatalf("Hydrate = %q, %v", origin, err)
	}
	alvin := e.State().Members[2]

	p, err := e.ApplyTransaction(ctx, Intent{Type: model.Expense, Source: model.PoolSource(), Amount: 100_000, Date: "2025-06-01"})
	if err != nil {
		t.Fatal(err)
	}
	mustWait(t, p)
	if err := e.SetMemberBalance(alvin.ID, 900_000); err != nil {
		t.Fatal(err)
	}
	if err := e.Flush(ctx); err != nil {
		t.Fatal(err)
	}

	remoteState, err := client.FetchAggregateState(ctx)
	if err != nil {
		t.Fatal(err)
	}
	local := e.State()
	if remoteState.Pool != local.Pool || !reflect.DeepEqual(remoteState.Members, local.Members) {
		t.Errorf("local and remote diverged:\n local %+v\nremote %+v", local, remoteState)
	}
	if len(local.Transactions) != 1 || local.Transactions[0].ID != remoteState.Transactions[0].ID {
		t.Errorf("transaction id not reconciled: local %+v remote %+v", local.Transactions, remoteState.Transactions)
	}

	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	mirror.Shutdown()
	cached, ok := cache.Load()
	if !ok || cached.Pool != local.Pool {
		t.Errorf("cache = %+v, %v; want pool %d", cached, ok, local.Pool)
	}

	// With the store gone, the next start falls back to the cache.
	srv.Close()
	e2 := New(remote.NewClient(srv.URL, remote.WithTimeout(200*time.Millisecond)), WithLogger(quietLogger()))
	origin, err = e2.Hydrate(ctx, remote.NewClient(srv.URL, remote.WithTimeout(200*time.Millisecond)), cache)
	if err != nil || origin != OriginCache {
		t.Fatalf("offline Hydrate = %q, %v; want cache", origin, err)
	}
	if e2.State().Pool != local.Pool {
		t.Errorf("offline pool = %d, want %d", e2.State().Pool, local.Pool)
	}
}
