// Package ledger owns the in-memory ledger state and reconciles it with the
// remote store: transactions are applied optimistically and rolled back if
// the store rejects them, direct balance edits are debounced per target.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/theirongolddev/kas/internal/model"
)

const (
	defaultDebounce = 500 * time.Millisecond
	defaultTimeout  = 10 * time.Second
	dateLayout      = "2006-01-02"
)

// Remote is the write side of the store.
type Remote interface {
	CreateTransaction(ctx context.Context, draft model.TxDraft) (model.Tx, error)
	DeleteTransaction(ctx context.Context, id string) error
	SetPool(ctx context.Context, pool int64) (int64, error)
	UpdateMember(ctx context.Context, id string, patch model.MemberPatch) (model.Member, error)
}

// Intent describes a transaction the user wants to record.
type Intent struct {
	Type   model.TxType
	Source model.Source
	Amount int64
	Desc   string
	Date   string // YYYY-MM-DD; empty means today
}

// Engine is the single owner of AppState. All mutation goes through its
// methods; readers get copies.
type Engine struct {
	remote   Remote
	debounce *debouncer
	logger   *slog.Logger
	alert    func(error)
	now      func() time.Time
	newID    func() string
	timeout  time.Duration

	mu    sync.Mutex
	state model.AppState
	hooks []func(model.AppState)
	seq   uint64
	// Temporary ids whose create has not been answered yet.
	unconfirmed map[string]struct{}

	// Hooks run outside mu, one commit at a time, in commit order.
	notifyMu   sync.Mutex
	notifyCond *sync.Cond
	delivered  uint64

	patchMu sync.Mutex
	patches map[string]model.MemberPatch

	inflight sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithState seeds the engine instead of the default state.
func WithState(st model.AppState) Option {
	return func(e *Engine) { e.state = normalized(st.Clone()) }
}

// WithDebounce sets the quiet period for direct edits.
func WithDebounce(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.debounce = newDebouncer(d)
		}
	}
}

// WithAlert receives user-visible failures (rolled-back transactions).
func WithAlert(fn func(error)) Option {
	return func(e *Engine) { e.alert = fn }
}

// WithLogger sets the logger for failures that are only logged.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock overrides time.Now for timestamps and the default date.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides how temporary transaction ids are made.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// WithTimeout bounds each remote write.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// New creates an engine writing through remote.
func New(remote Remote, opts ...Option) *Engine {
	e := &Engine{
		remote:   remote,
		debounce: newDebouncer(defaultDebounce),
		logger:   slog.Default(),
		alert:    func(error) {},
		now:      time.Now,
		newID:    func() string { return "local-" + model.NewID() },
		timeout:  defaultTimeout,
		state:    model.DefaultState(),
		patches:  make(map[string]model.MemberPatch),

		unconfirmed: make(map[string]struct{}),
	}
	e.notifyCond = sync.NewCond(&e.notifyMu)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns a copy of the current state.
func (e *Engine) State() model.AppState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

// Subscribe registers fn to receive a copy of the state after every
// committed change, in commit order. fn must not mutate the engine.
func (e *Engine) Subscribe(fn func(model.AppState)) {
	e.mu.Lock()
	e.hooks = append(e.hooks, fn)
	e.mu.Unlock()
}

// update runs fn against a copy of the state and commits the copy unless fn
// fails. Hooks see the committed state.
func (e *Engine) update(fn func(st *model.AppState) error) error {
	e.mu.Lock()
	next := e.state.Clone()
	if err := fn(&next); err != nil {
		e.mu.Unlock()
		return err
	}
	e.state = next
	e.seq++
	ticket := e.seq
	snap := next.Clone()
	hooks := e.hooks
	e.mu.Unlock()

	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()
	for e.delivered != ticket-1 {
		e.notifyCond.Wait()
	}
	for _, h := range hooks {
		h(snap)
	}
	e.delivered = ticket
	e.notifyCond.Broadcast()
	return nil
}

// replace swaps the whole state, used for rollback, hydration and reset.
func (e *Engine) replace(st model.AppState) {
	_ = e.update(func(cur *model.AppState) error {
		*cur = normalized(st)
		return nil
	})
}

func (e *Engine) today() string {
	return e.now().Format(dateLayout)
}

func (e *Engine) validate(in *Intent) error {
	if in.Amount <= 0 {
		return ErrInvalidAmount
	}
	if !in.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, in.Type)
	}
	if err := in.Source.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownSource, err)
	}
	in.Desc = strings.TrimSpace(in.Desc)
	if in.Date == "" {
		in.Date = e.today()
	} else if _, err := time.Parse(dateLayout, in.Date); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDate, in.Date)
	}
	return nil
}

// ApplyTransaction records in optimistically. On return the new transaction
// and its balance effect are already visible in State(); the store write runs
// in the background and the returned Pending reports its outcome. If the
// write fails the state is restored to exactly what it was before the call.
//
// A *ValidationError means nothing changed and nothing was sent.
func (e *Engine) ApplyTransaction(ctx context.Context, in Intent) (*Pending, error) {
	if err := e.validate(&in); err != nil {
		return nil, &ValidationError{Reason: err}
	}

	tx := model.Tx{
		ID:        e.newID(),
		Type:      in.Type,
		Source:    in.Source,
		Amount:    in.Amount,
		Desc:      in.Desc,
		Date:      in.Date,
		CreatedAt: e.now().UTC(),
	}

	var prev model.AppState
	err := e.update(func(st *model.AppState) error {
		prev = st.Clone()
		if err := applyTx(st, tx); err != nil {
			return err
		}
		st.Transactions = append([]model.Tx{tx}, st.Transactions...)
		e.unconfirmed[tx.ID] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, &ValidationError{Reason: err}
	}

	p := newPending(tx.ID)
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		ctx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		created, err := e.remote.CreateTransaction(ctx, tx.Draft())
		if err != nil {
			_ = e.update(func(st *model.AppState) error {
				delete(e.unconfirmed, tx.ID)
				*st = normalized(prev)
				return nil
			})
			perr := &PersistenceError{Op: "create", TxID: tx.ID, Err: err}
			e.logger.Error("transaction rolled back", "tx_id", tx.ID, "error", err)
			e.alert(perr)
			p.resolve("", perr)
			return
		}
		if created.ID != "" && created.ID != tx.ID {
			_ = e.update(func(st *model.AppState) error {
				delete(e.unconfirmed, tx.ID)
				if i := st.TxIndex(tx.ID); i >= 0 {
					st.Transactions[i].ID = created.ID
				}
				return nil
			})
		} else {
			e.mu.Lock()
			delete(e.unconfirmed, tx.ID)
			e.mu.Unlock()
		}
		p.resolve(created.ID, nil)
	}()
	return p, nil
}

// RemoveTransaction deletes a transaction and reverses its effect
// optimistically. Reversal skips the funds check, so balances may go
// negative. Nothing changes when id is unknown (ErrTxNotFound) or still
// waiting for the store to assign its id (ErrTxUnconfirmed).
func (e *Engine) RemoveTransaction(ctx context.Context, id string) (*Pending, error) {
	var (
		prev    model.AppState
		removed model.Tx
	)
	err := e.update(func(st *model.AppState) error {
		i := st.TxIndex(id)
		if i < 0 {
			return ErrTxNotFound
		}
		if _, ok := e.unconfirmed[id]; ok {
			return ErrTxUnconfirmed
		}
		prev = st.Clone()
		removed = st.Transactions[i]
		if err := reverseTx(st, removed); err != nil {
			// Dangling member refs and unknown kinds have no balance to restore.
			e.logger.Warn("removing transaction without balance effect", "tx_id", id, "error", err)
		}
		st.Transactions = append(st.Transactions[:i:i], st.Transactions[i+1:]...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	p := newPending(id)
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		ctx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		if err := e.remote.DeleteTransaction(ctx, id); err != nil {
			e.replace(prev)
			perr := &PersistenceError{Op: "delete", TxID: id, Err: err}
			e.logger.Error("transaction removal rolled back", "tx_id", id, "error", err)
			e.alert(perr)
			p.resolve("", perr)
			return
		}
		p.resolve("", nil)
	}()
	return p, nil
}

// SetPoolBalance overwrites the pool. Negative values become 0. The store
// write is debounced and a failure is only logged; the local value stays.
func (e *Engine) SetPoolBalance(v int64) {
	v = max(v, 0)
	_ = e.update(func(st *model.AppState) error {
		st.Pool = v
		return nil
	})
	e.debounce.schedule("pool", func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()
		if _, err := e.remote.SetPool(ctx, v); err != nil {
			e.logger.Warn("debounced write failed", "target", "pool", "error", err)
		}
	})
}

// SetMemberBalance overwrites a member's balance. Negative values become 0.
func (e *Engine) SetMemberBalance(id string, v int64) error {
	v = max(v, 0)
	return e.editMember(id, model.MemberPatch{Balance: &v}, func(m *model.Member) {
		m.Balance = v
	})
}

// SetMemberName renames a member. Names are free text.
func (e *Engine) SetMemberName(id, name string) error {
	return e.editMember(id, model.MemberPatch{Name: &name}, func(m *model.Member) {
		m.Name = name
	})
}

// editMember applies fn locally and schedules one write per member that
// carries every field changed during the quiet period.
func (e *Engine) editMember(id string, patch model.MemberPatch, fn func(*model.Member)) error {
	err := e.update(func(st *model.AppState) error {
		i := st.MemberIndex(id)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrMemberNotFound, id)
		}
		fn(&st.Members[i])
		return nil
	})
	if err != nil {
		return err
	}

	e.patchMu.Lock()
	e.patches[id] = e.patches[id].Merge(patch)
	e.patchMu.Unlock()

	key := "member:" + id
	e.debounce.schedule(key, func() {
		e.patchMu.Lock()
		p := e.patches[id]
		delete(e.patches, id)
		e.patchMu.Unlock()
		if p.IsEmpty() {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()
		if _, err := e.remote.UpdateMember(ctx, id, p); err != nil {
			e.logger.Warn("debounced write failed", "target", key, "error", err)
		}
	})
	return nil
}

// PendingEdits lists debounce targets still inside their quiet period.
func (e *Engine) PendingEdits() []string {
	return e.debounce.pendingKeys()
}

// Flush sends every debounced edit now and waits for all in-flight writes,
// including transaction confirmations.
func (e *Engine) Flush(ctx context.Context) error {
	if err := e.debounce.flush(ctx); err != nil {
		return err
	}
	done := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes outstanding writes, giving up after the engine timeout.
func (e *Engine) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	if err := e.Flush(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("flushing ledger: %w", err)
	}
	return nil
}

// Reset replaces the in-memory state with the default state. Nothing is
// sent to the store.
func (e *Engine) Reset() {
	e.replace(model.DefaultState())
}

func normalized(st model.AppState) model.AppState {
	if st.Members == nil {
		st.Members = []model.Member{}
	}
	if st.Transactions == nil {
		st.Transactions = []model.Tx{}
	}
	return st
}
