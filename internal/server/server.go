// Package server is the aggregation gateway: it assembles the ledger state
// from the store's three resources and serves it as one document.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/theirongolddev/kas/internal/model"
)

// postStateMessage tells clients where writes go instead.
const postStateMessage = "use the resource endpoints (/members, /transactions, /pool)"

// Fetcher assembles the aggregate state from the store.
type Fetcher interface {
	FetchAggregateState(ctx context.Context) (model.AppState, error)
}

// Config controls the gateway.
type Config struct {
	Addr         string
	EventsBuffer int
	Upstream     string // shown in /v1/status only
}

// Snapshot is a compact view of one aggregate fetch.
type Snapshot struct {
	At           time.Time `json:"at"`
	Pool         int64     `json:"pool"`
	Members      int       `json:"members"`
	Transactions int       `json:"transactions"`
	GrandTotal   int64     `json:"grand_total"`
}

// Delta captures the change between consecutive successful fetches.
type Delta struct {
	Pool         int64 `json:"pool"`
	Transactions int   `json:"transactions"`
	GrandTotal   int64 `json:"grand_total"`
}

func (d Delta) isZero() bool {
	return d.Pool == 0 && d.Transactions == 0 && d.GrandTotal == 0
}

// Event is published after each fetch: the first success, any success that
// changed the totals, and every failure.
type Event struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"` // "snapshot", "state_delta" or "fetch_error"
	Timestamp time.Time `json:"timestamp"`
	Snapshot  Snapshot  `json:"snapshot"`
	Delta     Delta     `json:"delta"`
	Error     string    `json:"error,omitempty"`
}

// Status is served at /v1/status.
type Status struct {
	StartedAt       time.Time `json:"started_at"`
	Upstream        string    `json:"upstream,omitempty"`
	LastFetchAt     time.Time `json:"last_fetch_at"`
	Requests        int64     `json:"requests"`
	Failures        int64     `json:"failures"`
	Last            Snapshot  `json:"last"`
	LastError       string    `json:"last_error,omitempty"`
	EventCount      int       `json:"event_count"`
	SubscriberCount int       `json:"subscriber_count"`
}

// Service serves the gateway endpoints.
type Service struct {
	cfg     Config
	fetcher Fetcher
	logger  *slog.Logger

	mu          sync.RWMutex
	startedAt   time.Time
	lastFetchAt time.Time
	requests    int64
	failures    int64
	lastError   string
	hasSnapshot bool
	snapshot    Snapshot
	nextEventID int64
	events      []Event

	nextSubID int
	subs      map[int]chan Event
}

// New returns a gateway reading through fetcher.
func New(cfg Config, fetcher Fetcher) *Service {
	if cfg.EventsBuffer < 1 {
		cfg.EventsBuffer = 200
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:3000"
	}

	return &Service{
		cfg:       cfg,
		fetcher:   fetcher,
		logger:    slog.Default(),
		startedAt: time.Now(),
		subs:      make(map[int]chan Event),
	}
}

// Handler returns the router.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/state", s.handleGetState)
	r.Post("/state", s.handlePostState)
	r.Get("/healthz", s.handleHealth)
	r.Get("/v1/status", s.handleStatus)
	r.Get("/v1/events", s.handleEvents)
	r.Get("/v1/stream", s.handleStream)
	return r
}

// Run serves until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	s.logger.Info("gateway listening", "addr", s.cfg.Addr, "upstream", s.cfg.Upstream)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("gateway http server: %w", err)
	}
}

func (s *Service) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func (s *Service) handleGetState(w http.ResponseWriter, r *http.Request) {
	st, err := s.fetcher.FetchAggregateState(r.Context())
	s.record(st, err)
	if err != nil {
		s.logger.Error("aggregate fetch failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Service) handlePostState(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Allow", http.MethodGet)
	writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: postStateMessage})
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// record updates counters and publishes an event for one fetch.
func (s *Service) record(st model.AppState, fetchErr error) {
	now := time.Now()

	var (
		ev      Event
		publish bool
	)

	s.mu.Lock()
	s.requests++
	s.lastFetchAt = now
	if fetchErr != nil {
		s.failures++
		s.lastError = fetchErr.Error()
		s.nextEventID++
		ev = Event{ID: s.nextEventID, Type: "fetch_error", Timestamp: now, Snapshot: s.snapshot, Error: s.lastError}
		publish = true
	} else {
		snap := snapshotOf(st, now)
		prev, prevExists := s.snapshot, s.hasSnapshot
		s.hasSnapshot = true
		s.snapshot = snap
		s.lastError = ""

		if !prevExists {
			s.nextEventID++
			ev = Event{ID: s.nextEventID, Type: "snapshot", Timestamp: now, Snapshot: snap}
			publish = true
		} else if delta := diffSnapshots(prev, snap); !delta.isZero() {
			s.nextEventID++
			ev = Event{ID: s.nextEventID, Type: "state_delta", Timestamp: now, Snapshot: snap, Delta: delta}
			publish = true
		}
	}
	s.mu.Unlock()

	if publish {
		s.publishEvent(ev)
	}
}

func snapshotOf(st model.AppState, at time.Time) Snapshot {
	return Snapshot{
		At:           at,
		Pool:         st.Pool,
		Members:      len(st.Members),
		Transactions: len(st.Transactions),
		GrandTotal:   st.GrandTotal(),
	}
}

func diffSnapshots(prev, curr Snapshot) Delta {
	return Delta{
		Pool:         curr.Pool - prev.Pool,
		Transactions: curr.Transactions - prev.Transactions,
		GrandTotal:   curr.GrandTotal - prev.GrandTotal,
	}
}

func (s *Service) publishEvent(ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	if len(s.events) > s.cfg.EventsBuffer {
		s.events = s.events[len(s.events)-s.cfg.EventsBuffer:]
	}

	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	s.mu.Unlock()
}

func (s *Service) snapshotStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Status{
		StartedAt:       s.startedAt,
		Upstream:        s.cfg.Upstream,
		LastFetchAt:     s.lastFetchAt,
		Requests:        s.requests,
		Failures:        s.failures,
		Last:            s.snapshot,
		LastError:       s.lastError,
		EventCount:      len(s.events),
		SubscriberCount: len(s.subs),
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Service) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshotStatus())
}

func (s *Service) handleEvents(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	events := make([]Event, len(s.events))
	copy(events, s.events)
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, events)
}

func (s *Service) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan Event, 16)
	id := s.addSubscriber(ch)
	defer s.removeSubscriber(id)

	current := Event{
		Type:      "snapshot",
		Timestamp: time.Now(),
		Snapshot:  s.snapshotStatus().Last,
	}
	writeSSE(w, current)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			writeSSE(w, ev)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\n", ev.Type)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
}

func (s *Service) addSubscriber(ch chan Event) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.subs[id] = ch
	return id
}

func (s *Service) removeSubscriber(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}
