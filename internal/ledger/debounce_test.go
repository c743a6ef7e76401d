package ledger

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSetMemberBalance_CoalescesRapidEdits(t *testing.T) {
	r := newFakeRemote()
	e := newTestEngine(t, r)

	for v := int64(1); v <= 10; v++ {
		if err := e.SetMemberBalance("leo", v*1000); err != nil {
			t.Fatalf("SetMemberBalance: %v", err)
		}
	}
	if got := memberBalance(t, e.State(), "leo"); got != 10_000 {
		t.Fatalf("local balance = %d, want 10000 immediately", got)
	}

	waitFor(t, "debounced member write", func() bool { return len(r.memberPatches("leo")) > 0 })
	time.Sleep(50 * time.Millisecond)

	patches := r.memberPatches("leo")
	if len(patches) != 1 {
		t.Fatalf("remote writes = %d, want exactly 1", len(patches))
	}
	if patches[0].Balance == nil || *patches[0].Balance != 10_000 || patches[0].Name != nil {
		t.Errorf("patch = %+v, want balance 10000 only", patches[0])
	}
}

func TestMemberEdits_MergeFieldsWithinWindow(t *testing.T) {
	r := newFakeRemote()
	e := newTestEngine(t, r)

	if err := e.SetMemberName("wowo", "Wowo"); err != nil {
		t.Fatal(err)
	}
	if err := e.SetMemberBalance("wowo", 25_000); err != nil {
		t.Fatal(err)
	}
	if err := e.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	patches := r.memberPatches("wowo")
	if len(patches) != 1 {
		t.Fatalf("remote writes = %d, want 1", len(patches))
	}
	p := patches[0]
	if p.Name == nil || *p.Name != "Wowo" || p.Balance == nil || *p.Balance != 25_000 {
		t.Errorf("patch = name %v balance %v", p.Name, p.Balance)
	}
}

func TestSetPoolBalance_DebouncedAndClamped(t *testing.T) {
	r := newFakeRemote()
	e := newTestEngine(t, r)

	e.SetPoolBalance(10)
	e.SetPoolBalance(-50)
	if got := e.State().Pool; got != 0 {
		t.Fatalf("pool = %d, want 0 (negative clamps)", got)
	}
	if keys := e.PendingEdits(); len(keys) != 1 || keys[0] != "pool" {
		t.Errorf("PendingEdits = %v, want [pool]", keys)
	}
	if err := e.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pools) != 1 || r.pools[0] != 0 {
		t.Errorf("pool writes = %v, want [0]", r.pools)
	}
}

func TestDebounce_IndependentTargets(t *testing.T) {
	r := newFakeRemote()
	e := newTestEngine(t, r)

	e.SetPoolBalance(5)
	_ = e.SetMemberBalance("leo", 1)
	_ = e.SetMemberBalance("alvin", 2)
	if err := e.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}

	if _, _, pools := r.counts(); pools != 1 {
		t.Errorf("pool writes = %d, want 1", pools)
	}
	if len(r.memberPatches("leo")) != 1 || len(r.memberPatches("alvin")) != 1 {
		t.Error("each member should get its own write")
	}
}

func TestDebounce_FailureKeepsLocalEdit(t *testing.T) {
	r := newFakeRemote()
	r.poolErr = errors.New("store offline")
	var alerts atomic.Int32
	e := newTestEngine(t, r, WithAlert(func(error) { alerts.Add(1) }))

	e.SetPoolBalance(42)
	if err := e.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := e.State().Pool; got != 42 {
		t.Errorf("pool = %d, want 42 (no rollback for direct edits)", got)
	}
	if alerts.Load() != 0 {
		t.Error("debounced failure raised a user alert")
	}
}

func TestSetMember_Unknown(t *testing.T) {
	e := newTestEngine(t, newFakeRemote())
	if err := e.SetMemberName("ghost", "x"); !errors.Is(err, ErrMemberNotFound) {
		t.Errorf("SetMemberName = %v, want ErrMemberNotFound", err)
	}
	if err := e.SetMemberBalance("ghost", 1); !errors.Is(err, ErrMemberNotFound) {
		t.Errorf("SetMemberBalance = %v, want ErrMemberNotFound", err)
	}
	if keys := e.PendingEdits(); len(keys) != 0 {
		t.Errorf("PendingEdits = %v, want none", keys)
	}
}

func TestDebouncer_RescheduleCancelsEarlier(t *testing.T) {
	d := newDebouncer(30 * time.Millisecond)
	var runs, last atomic.Int32
	for i := int32(1); i <= 5; i++ {
		v := i
		d.schedule("k", func() {
			runs.Add(1)
			last.Store(v)
		})
		time.Sleep(5 * time.Millisecond)
	}
	waitFor(t, "debounced run", func() bool { return runs.Load() > 0 })
	time.Sleep(60 * time.Millisecond)

	if runs.Load() != 1 || last.Load() != 5 {
		t.Errorf("runs = %d, last = %d; want 1 run of the final write", runs.Load(), last.Load())
	}
}

func TestDebouncer_FlushRespectsContext(t *testing.T) {
	d := newDebouncer(time.Hour)
	block := make(chan struct{})
	defer close(block)
	d.schedule("k", func() { <-block })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := d.flush(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("flush = %v, want deadline exceeded", err)
	}
}
