package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/theirongolddev/kas/internal/model"
)

type fetchFunc func(ctx context.Context) (model.AppState, error)

func (f fetchFunc) FetchAggregateState(ctx context.Context) (model.AppState, error) { return f(ctx) }

type snapshot struct{ st *model.AppState }

func (s snapshot) Load() (*model.AppState, bool) { return s.st, s.st != nil }

func TestHydrate_PrefersRemote(t *testing.T) {
	e := newTestEngine(t, newFakeRemote())
	remote := model.AppState{Pool: 7, Members: []model.Member{{ID: "x", Name: "X"}}}
	cached := model.AppState{Pool: 8}

	origin, err := e.Hydrate(context.Background(),
		fetchFunc(func(context.Context) (model.AppState, error) { return remote, nil }),
		snapshot{&cached})
	if err != nil {
		t.Fatalf("Hydrate: %v", err)
	}
	if origin != OriginRemote {
		t.Errorf("origin = %q, want remote", origin)
	}
	st := e.State()
	if st.Pool != 7 || st.Transactions == nil {
		t.Errorf("state = %+v", st)
	}
}

func TestHydrate_FallsBackToCacheThenDefault(t *testing.T) {
	failing := fetchFunc(func(context.Context) (model.AppState, error) {
		return model.AppState{}, errors.New("offline")
	})

	e := newTestEngine(t, newFakeRemote())
	cached := model.AppState{Pool: 8, Members: []model.Member{}, Transactions: []model.Tx{}}
	origin, err := e.Hydrate(context.Background(), failing, snapshot{&cached})
	if err != nil || origin != OriginCache {
		t.Fatalf("Hydrate = %q, %v; want cache", origin, err)
	}
	if e.State().Pool != 8 {
		t.Errorf("pool = %d, want cached 8", e.State().Pool)
	}

	origin, err = e.Hydrate(context.Background(), failing, snapshot{})
	if err != nil || origin != OriginDefault {
		t.Fatalf("Hydrate = %q, %v; want default", origin, err)
	}
	if e.State().Pool != 1_600_000 {
		t.Errorf("pool = %d, want default", e.State().Pool)
	}

	origin, _ = e.Hydrate(context.Background(), nil, nil)
	if origin != OriginDefault {
		t.Errorf("Hydrate(nil, nil) = %q, want default", origin)
	}
}

func TestHydrate_CancelledFetchIsDiscarded(t *testing.T) {
	e := newTestEngine(t, newFakeRemote())
	before := e.State()

	release := make(chan struct{})
	slow := fetchFunc(func(context.Context) (model.AppState, error) {
		<-release
		return model.AppState{Pool: 1}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	origin, err := e.Hydrate(ctx, slow, snapshot{&model.AppState{Pool: 2}})
	close(release)

	if !errors.Is(err, context.Canceled) || origin != "" {
		t.Fatalf("Hydrate = %q, %v; want cancellation", origin, err)
	}
	time.Sleep(10 * time.Millisecond)
	if e.State().Pool != before.Pool {
		t.Errorf("cancelled hydration changed state: pool = %d", e.State().Pool)
	}
}
