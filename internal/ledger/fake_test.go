package ledger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/theirongolddev/kas/internal/model"
)

// fakeRemote records writes. A non-nil gate holds every write until closed.
type fakeRemote struct {
	mu        sync.Mutex
	gate      chan struct{}
	createErr error
	deleteErr error
	poolErr   error
	memberErr error

	creates []model.TxDraft
	deletes []string
	pools   []int64
	patches map[string][]model.MemberPatch
	nextID  int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{patches: make(map[string][]model.MemberPatch)}
}

func (f *fakeRemote) wait(ctx context.Context) error {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeRemote) CreateTransaction(ctx context.Context, d model.TxDraft) (model.Tx, error) {
	if err := f.wait(ctx); err != nil {
		return model.Tx{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, d)
	if f.createErr != nil {
		return model.Tx{}, f.createErr
	}
	f.nextID++
	return model.Tx{
		ID: fmt.Sprintf("srv-%d", f.nextID), Type: d.Type, Source: d.Source,
		Amount: d.Amount, Desc: d.Desc, Date: d.Date,
	}, nil
}

func (f *fakeRemote) DeleteTransaction(ctx context.Context, id string) error {
	if err := f.wait(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, id)
	return f.deleteErr
}

func (f *fakeRemote) SetPool(ctx context.Context, v int64) (int64, error) {
	if err := f.wait(ctx); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pools = append(f.pools, v)
	return v, f.poolErr
}

func (f *fakeRemote) UpdateMember(ctx context.Context, id string, p model.MemberPatch) (model.Member, error) {
	if err := f.wait(ctx); err != nil {
		return model.Member{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patches[id] = append(f.patches[id], p)
	return model.Member{ID: id}, f.memberErr
}

func (f *fakeRemote) counts() (creates, deletes, pools int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.creates), len(f.deletes), len(f.pools)
}

func (f *fakeRemote) memberPatches(id string) []model.MemberPatch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.MemberPatch(nil), f.patches[id]...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// seedState is the group's starting position: pool 1,600,000 and
// Leo 0, wowo 0, Alvin 800,000.
func seedState() model.AppState {
	return model.AppState{
		Pool: 1_600_000,
		Members: []model.Member{
			{ID: "leo", Name: "Leo", Balance: 0},
			{ID: "wowo", Name: "wowo", Balance: 0},
			{ID: "alvin", Name: "Alvin", Balance: 800_000},
		},
		Transactions: []model.Tx{},
	}
}

func newTestEngine(t *testing.T, r Remote, opts ...Option) *Engine {
	t.Helper()
	n := 0
	base := []Option{
		WithState(seedState()),
		WithLogger(quietLogger()),
		WithDebounce(20 * time.Millisecond),
		WithClock(func() time.Time { return time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC) }),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("tmp-%d", n) }),
	}
	e := New(r, append(base, opts...)...)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func mustWait(t *testing.T, p *Pending) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.Wait(ctx); err != nil {
		t.Fatalf("Pending.Wait: %v", err)
	}
}
