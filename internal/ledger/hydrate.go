package ledger

import (
	"context"

	"github.com/theirongolddev/kas/internal/model"
)

// Origin says where hydrated state came from.
type Origin string

const (
	OriginRemote  Origin = "remote"
	OriginCache   Origin = "cache"
	OriginDefault Origin = "default"
)

// Fetcher reads the aggregate state from the store.
type Fetcher interface {
	FetchAggregateState(ctx context.Context) (model.AppState, error)
}

// Snapshotter reads the offline snapshot.
type Snapshotter interface {
	Load() (*model.AppState, bool)
}

// Hydrate loads initial state: the store first, then the cache, then the
// default state. Either source may be nil. If ctx ends before the store
// answers, the result is discarded, state is untouched and ctx.Err() is
// returned.
func (e *Engine) Hydrate(ctx context.Context, fetcher Fetcher, cache Snapshotter) (Origin, error) {
	if fetcher != nil {
		type result struct {
			st  model.AppState
			err error
		}
		ch := make(chan result, 1)
		go func() {
			st, err := fetcher.FetchAggregateState(ctx)
			ch <- result{st, err}
		}()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case r := <-ch:
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if r.err == nil {
				e.replace(r.st)
				return OriginRemote, nil
			}
			e.logger.Warn("remote state unavailable, falling back", "error", r.err)
		}
	}

	if cache != nil {
		if st, ok := cache.Load(); ok {
			e.replace(*st)
			return OriginCache, nil
		}
	}

	e.replace(model.DefaultState())
	return OriginDefault, nil
}
