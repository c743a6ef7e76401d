package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/theirongolddev/kas/internal/model"
)

type stubFetcher struct {
	mu  sync.Mutex
	st  model.AppState
	err error
}

func (f *stubFetcher) FetchAggregateState(context.Context) (model.AppState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.st.Clone(), f.err
}

func (f *stubFetcher) set(st model.AppState, err error) {
	f.mu.Lock()
	f.st, f.err = st, err
	f.mu.Unlock()
}

func newTestService(t *testing.T, f Fetcher, buffer int) (*Service, *httptest.Server) {
	t.Helper()
	s := New(Config{EventsBuffer: buffer}, f)
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return s, srv
}

func sample() model.AppState {
	return model.AppState{
		Pool:         1_600_000,
		Members:      []model.Member{{ID: "a", Name: "Alvin", Balance: 800_000}},
		Transactions: []model.Tx{},
	}
}

func TestGetState(t *testing.T) {
	_, srv := newTestService(t, &stubFetcher{st: sample()}, 10)

	resp, err := http.Get(srv.URL + "/state")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var got map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"pool", "members", "transactions"} {
		if _, ok := got[key]; !ok {
			t.Errorf("response missing %q", key)
		}
	}
	if string(got["transactions"]) != "[]" {
		t.Errorf("transactions = %s, want []", got["transactions"])
	}
}

func TestGetState_UpstreamFailureIs500(t *testing.T) {
	_, srv := newTestService(t, &stubFetcher{err: errors.New("members: status 502")}, 10)

	resp, err := http.Get(srv.URL + "/state")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	var body errorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(body.Error, "status 502") {
		t.Errorf("error = %q", body.Error)
	}
}

func TestPostState_Rejected(t *testing.T) {
	_, srv := newTestService(t, &stubFetcher{st: sample()}, 10)

	resp, err := http.Post(srv.URL+"/state", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
	var body errorBody
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body.Error != postStateMessage {
		t.Errorf("error = %q", body.Error)
	}
}

func TestStatusCountsFetches(t *testing.T) {
	f := &stubFetcher{st: sample()}
	s, srv := newTestService(t, f, 10)

	for i := 0; i < 2; i++ {
		resp, err := http.Get(srv.URL + "/state")
		if err != nil {
			t.Fatal(err)
		}
		_ = resp.Body.Close()
	}
	f.set(model.AppState{}, errors.New("down"))
	resp, err := http.Get(srv.URL + "/state")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()

	st := s.snapshotStatus()
	if st.Requests != 3 || st.Failures != 1 || st.LastError != "down" {
		t.Errorf("status = %+v", st)
	}
	if st.Last.Pool != 1_600_000 {
		t.Errorf("last good snapshot lost: %+v", st.Last)
	}
}

func TestEvents_SnapshotDeltaAndError(t *testing.T) {
	f := &stubFetcher{st: sample()}
	s, _ := newTestService(t, f, 10)

	s.record(sample(), nil)
	s.record(sample(), nil) // unchanged, no event
	changed := sample()
	changed.Pool = 1_500_000
	changed.Transactions = []model.Tx{{ID: "t"}}
	s.record(changed, nil)
	s.record(model.AppState{}, errors.New("boom"))

	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.events) != 3 {
		t.Fatalf("events = %d, want 3", len(s.events))
	}
	types := []string{s.events[0].Type, s.events[1].Type, s.events[2].Type}
	want := []string{"snapshot", "state_delta", "fetch_error"}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event[%d].Type = %q, want %q", i, types[i], want[i])
		}
	}
	d := s.events[1].Delta
	if d.Pool != -100_000 || d.Transactions != 1 || d.GrandTotal != -100_000 {
		t.Errorf("delta = %+v", d)
	}
}

func TestPublishEventRingBuffer(t *testing.T) {
	s := New(Config{EventsBuffer: 2}, &stubFetcher{})

	s.publishEvent(Event{ID: 1})
	s.publishEvent(Event{ID: 2})
	s.publishEvent(Event{ID: 3})

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.events) != 2 {
		t.Fatalf("events len = %d, want 2", len(s.events))
	}
	if s.events[0].ID != 2 || s.events[1].ID != 3 {
		t.Fatalf("events ring contains IDs [%d, %d], want [2, 3]", s.events[0].ID, s.events[1].ID)
	}
}

func TestHealthz(t *testing.T) {
	_, srv := newTestService(t, &stubFetcher{}, 10)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(b) != "ok\n" {
		t.Errorf("healthz = %d %q", resp.StatusCode, b)
	}
}

func TestStream_SendsCurrentThenEvents(t *testing.T) {
	f := &stubFetcher{st: sample()}
	s, srv := newTestService(t, f, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	sc := bufio.NewScanner(resp.Body)
	readEvent := func() string {
		t.Helper()
		var name string
		for sc.Scan() {
			line := sc.Text()
			if strings.HasPrefix(line, "event: ") {
				name = strings.TrimPrefix(line, "event: ")
			}
			if line == "" && name != "" {
				return name
			}
		}
		t.Fatalf("stream ended: %v", sc.Err())
		return ""
	}

	if got := readEvent(); got != "snapshot" {
		t.Fatalf("first event = %q, want snapshot", got)
	}

	// Wait until the handler has registered before publishing.
	deadline := time.Now().Add(time.Second)
	for s.snapshotStatus().SubscriberCount == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.record(model.AppState{}, errors.New("boom"))
	if got := readEvent(); got != "fetch_error" {
		t.Fatalf("second event = %q, want fetch_error", got)
	}
}
