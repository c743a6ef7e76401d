package store

import (
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/theirongolddev/kas/internal/model"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "nested", "state.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func sampleState() model.AppState {
	return model.AppState{
		Pool: 1_500_000,
		Members: []model.Member{
			{ID: "m1", Name: "Leo", Balance: 0},
			{ID: "m2", Name: "Alvin", Balance: 850_000},
		},
		Transactions: []model.Tx{
			{
				ID: "t1", Type: model.Expense, Source: model.PoolSource(),
				Amount: 100_000, Desc: "makan", Date: "2025-06-01",
				CreatedAt: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
			},
			{
				ID: "t2", Type: model.Income, Source: model.PersonalSource("m2"),
				Amount: 50_000, Date: "2025-06-02",
			},
		},
	}
}

func TestKey(t *testing.T) {
	if Key() != "kas-bareng-tracker:v1" {
		t.Fatalf("Key() = %q", Key())
	}
}

func TestLoad_Empty(t *testing.T) {
	c := openTestCache(t)
	if st, ok := c.Load(); ok || st != nil {
		t.Fatalf("Load on empty cache = %+v, %v", st, ok)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	c := openTestCache(t)
	want := sampleState()

	c.Save(want)
	got, ok := c.Load()
	if !ok {
		t.Fatal("Load missed after Save")
	}
	if !reflect.DeepEqual(*got, want) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", *got, want)
	}
	if _, ok := c.SavedAt(); !ok {
		t.Error("SavedAt missing after Save")
	}
}

func TestLoad_EmptyCollectionsNotNil(t *testing.T) {
	c := openTestCache(t)
	c.Save(model.AppState{Pool: 5})

	got, ok := c.Load()
	if !ok {
		t.Fatal("Load missed")
	}
	if got.Members == nil || got.Transactions == nil {
		t.Errorf("collections should be empty, not nil: %+v", got)
	}
}

func TestLoad_CorruptBodyIsMiss(t *testing.T) {
	c := openTestCache(t)
	if _, err := c.db.Exec(`INSERT INTO snapshots (key, version, body, saved_at) VALUES (?, ?, ?, ?)`,
		Key(), Version, "{not json", "2025-01-01T00:00:00Z"); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Load(); ok {
		t.Fatal("Load returned corrupt snapshot")
	}

	// A later save overwrites the bad row.
	c.Save(sampleState())
	if _, ok := c.Load(); !ok {
		t.Fatal("Load missed after overwriting corrupt row")
	}
}

func TestLoad_OtherVersionIsMiss(t *testing.T) {
	c := openTestCache(t)
	if _, err := c.db.Exec(`INSERT INTO snapshots (key, version, body, saved_at) VALUES (?, ?, ?, ?)`,
		Key(), Version+1, `{"pool":1}`, "2025-01-01T00:00:00Z"); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Load(); ok {
		t.Fatal("Load accepted a snapshot from another version")
	}
}

func TestClear(t *testing.T) {
	c := openTestCache(t)
	c.Save(sampleState())
	if err := c.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok := c.Load(); ok {
		t.Fatal("Load hit after Clear")
	}
}

type recordingSaver struct {
	mu    sync.Mutex
	saved []model.AppState
	gate  chan struct{}
}

func (r *recordingSaver) Save(st model.AppState) {
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	r.saved = append(r.saved, st)
	r.mu.Unlock()
}

func (r *recordingSaver) last() (model.AppState, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.saved) == 0 {
		return model.AppState{}, 0
	}
	return r.saved[len(r.saved)-1], len(r.saved)
}

func TestMirror_LatestSnapshotWins(t *testing.T) {
	rec := &recordingSaver{gate: make(chan struct{})}
	m := NewMirror(rec, 2)
	m.Start()

	// The worker blocks on the first save while we overfill the queue.
	for i := int64(1); i <= 10; i++ {
		m.Push(model.AppState{Pool: i})
	}
	close(rec.gate)
	m.Shutdown()

	last, n := rec.last()
	if n == 0 {
		t.Fatal("mirror saved nothing")
	}
	if last.Pool != 10 {
		t.Errorf("last saved pool = %d, want 10", last.Pool)
	}
	if n > 4 {
		t.Errorf("saved %d snapshots, queue should have shed older ones", n)
	}
}

func TestMirror_PushAfterShutdownIsIgnored(t *testing.T) {
	rec := &recordingSaver{}
	m := NewMirror(rec, 1)
	m.Start()
	m.Shutdown()
	m.Shutdown()

	m.Push(model.AppState{Pool: 1})
	if _, n := rec.last(); n != 0 {
		t.Errorf("saved %d snapshots after shutdown", n)
	}
}

func TestMirror_WritesThroughToCache(t *testing.T) {
	c := openTestCache(t)
	m := NewMirror(c, 4)
	m.Start()
	m.Push(sampleState())
	m.Shutdown()

	got, ok := c.Load()
	if !ok || got.Pool != 1_500_000 {
		t.Fatalf("Load after mirror = %+v, %v", got, ok)
	}
}
