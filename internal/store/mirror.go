package store

import (
	"context"
	"log/slog"
	"sync"

	"github.com/theirongolddev/kas/internal/model"
)

// Saver is the write side of the cache.
type Saver interface {
	Save(model.AppState)
}

// Mirror copies state snapshots into the cache off the caller's goroutine.
// Only the newest snapshot matters, so a full queue sheds its oldest entry.
type Mirror struct {
	stateCh chan model.AppState
	saver   Saver
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	once    sync.Once
}

// NewMirror creates a mirror with the given queue size (minimum 1).
func NewMirror(saver Saver, bufferSize int) *Mirror {
	if bufferSize < 1 {
		bufferSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Mirror{
		stateCh: make(chan model.AppState, bufferSize),
		saver:   saver,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the worker goroutine.
func (m *Mirror) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case <-m.ctx.Done():
				slog.Debug("draining snapshots before shutdown", "remaining", len(m.stateCh))
				var last *model.AppState
				for len(m.stateCh) > 0 {
					st := <-m.stateCh
					last = &st
				}
				if last != nil {
					m.saver.Save(*last)
				}
				return
			case st := <-m.stateCh:
				m.saver.Save(st)
			}
		}
	}()
}

// Push queues a snapshot. It never blocks.
func (m *Mirror) Push(st model.AppState) {
	if m.ctx.Err() != nil {
		return
	}
	for {
		select {
		case m.stateCh <- st:
			return
		default:
		}
		select {
		case <-m.stateCh:
			slog.Debug("mirror queue full, dropping older snapshot")
		default:
		}
	}
}

// Shutdown stops the worker after writing the newest queued snapshot.
func (m *Mirror) Shutdown() {
	m.once.Do(func() {
		m.cancel()
		m.wg.Wait()
	})
}
