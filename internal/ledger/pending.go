package ledger

import (
	"context"
	"sync"
)

// Pending tracks the remote confirmation of a transaction operation.
type Pending struct {
	done chan struct{}

	mu   sync.Mutex
	txID string
	err  error
}

func newPending(txID string) *Pending {
	return &Pending{done: make(chan struct{}), txID: txID}
}

// TxID is the temporary id until the store confirms, then the store's id.
func (p *Pending) TxID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.txID
}

// Done is closed once the outcome is known.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Err returns the outcome, or nil while still in flight.
func (p *Pending) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Wait blocks until the store answers or ctx ends. It returns nil on
// success, a *PersistenceError after a rollback, or ctx.Err().
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pending) resolve(txID string, err error) {
	p.mu.Lock()
	if txID != "" {
		p.txID = txID
	}
	p.err = err
	p.mu.Unlock()
	close(p.done)
}
