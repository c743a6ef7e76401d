package ledger

import (
	"context"
	"sync"
	"time"
)

// debouncer coalesces writes per key: each schedule cancels the key's
// pending write and restarts its quiet period. Different keys run
// independently.
type debouncer struct {
	delay time.Duration

	mu       sync.Mutex
	idle     *sync.Cond
	pending  map[string]*debounced
	inflight int
}

type debounced struct {
	timer *time.Timer
	run   func()
}

func newDebouncer(delay time.Duration) *debouncer {
	d := &debouncer{delay: delay, pending: make(map[string]*debounced)}
	d.idle = sync.NewCond(&d.mu)
	return d
}

func (d *debouncer) schedule(key string, run func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if prev, ok := d.pending[key]; ok {
		prev.timer.Stop()
	}
	entry := &debounced{run: run}
	entry.timer = time.AfterFunc(d.delay, func() { d.fire(key, entry) })
	d.pending[key] = entry
}

func (d *debouncer) fire(key string, entry *debounced) {
	d.mu.Lock()
	// A timer that lost the race with Stop must not run a superseded write.
	if d.pending[key] != entry {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	d.inflight++
	d.mu.Unlock()

	d.exec(entry)
}

func (d *debouncer) exec(entry *debounced) {
	defer func() {
		d.mu.Lock()
		d.inflight--
		if d.inflight == 0 {
			d.idle.Broadcast()
		}
		d.mu.Unlock()
	}()
	entry.run()
}

// pendingKeys reports the keys waiting for their quiet period to end.
func (d *debouncer) pendingKeys() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	keys := make([]string, 0, len(d.pending))
	for k := range d.pending {
		keys = append(keys, k)
	}
	return keys
}

// flush runs every pending write now and waits for them, along with any
// write already running, to finish.
func (d *debouncer) flush(ctx context.Context) error {
	d.mu.Lock()
	entries := make([]*debounced, 0, len(d.pending))
	for key, e := range d.pending {
		e.timer.Stop()
		delete(d.pending, key)
		entries = append(entries, e)
	}
	d.inflight += len(entries)
	d.mu.Unlock()

	for _, e := range entries {
		go d.exec(e)
	}

	done := make(chan struct{})
	go func() {
		d.mu.Lock()
		for d.inflight > 0 {
			d.idle.Wait()
		}
		d.mu.Unlock()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
