package docstore

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/theirongolddev/kas/internal/model"
)

const maxBodySize = 1 << 20 // 1 MB

// memberDoc and txDoc are the wire shapes. Records carry "_id" like the
// document stores the client was written against.
type memberDoc struct {
	ID      string `json:"_id"`
	Name    string `json:"name"`
	Balance int64  `json:"balance"`
}

type txDoc struct {
	ID        string       `json:"_id"`
	Type      model.TxType `json:"type"`
	Source    model.Source `json:"source"`
	Amount    int64        `json:"amount"`
	Desc      string       `json:"desc"`
	Date      string       `json:"date"`
	CreatedAt time.Time    `json:"createdAt,omitzero"`
}

func toMemberDoc(m model.Member) memberDoc {
	return memberDoc{ID: m.ID, Name: m.Name, Balance: m.Balance}
}

func toTxDoc(t model.Tx) txDoc {
	return txDoc{
		ID: t.ID, Type: t.Type, Source: t.Source, Amount: t.Amount,
		Desc: t.Desc, Date: t.Date, CreatedAt: t.CreatedAt,
	}
}

// Handler returns the REST routes:
//
//	GET/PATCH  /pool
//	GET/POST   /members
//	PATCH      /members/{id}
//	GET/POST   /transactions
//	DELETE     /transactions/{id}
func (s *Store) Handler(logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{store: s, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Route("/pool", func(r chi.Router) {
		r.Get("/", h.getPool)
		r.Patch("/", h.patchPool)
	})
	r.Route("/members", func(r chi.Router) {
		r.Get("/", h.listMembers)
		r.Post("/", h.createMember)
		r.Patch("/{id}", h.patchMember)
	})
	r.Route("/transactions", func(r chi.Router) {
		r.Get("/", h.listTransactions)
		r.Post("/", h.createTransaction)
		r.Delete("/{id}", h.deleteTransaction)
	})
	return r
}

type handler struct {
	store  *Store
	logger *slog.Logger
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start))
	})
}

func (h *handler) getPool(w http.ResponseWriter, r *http.Request) {
	v, err := h.store.Pool(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"pool": v})
}

func (h *handler) patchPool(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Pool *int64 `json:"pool"`
	}
	if err := decode(r, &in); err != nil || in.Pool == nil {
		writeError(w, http.StatusBadRequest, "body must be {\"pool\": number}")
		return
	}
	v, err := h.store.SetPool(r.Context(), *in.Pool)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"pool": v})
}

func (h *handler) listMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.store.Members(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	out := make([]memberDoc, 0, len(members))
	for _, m := range members {
		out = append(out, toMemberDoc(m))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) createMember(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name    string `json:"name"`
		Balance int64  `json:"balance"`
	}
	if err := decode(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	m, err := h.store.CreateMember(r.Context(), in.Name, in.Balance)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMemberDoc(m))
}

func (h *handler) patchMember(w http.ResponseWriter, r *http.Request) {
	var p model.MemberPatch
	if err := decode(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	m, err := h.store.UpdateMember(r.Context(), chi.URLParam(r, "id"), p)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDoc(m))
}

func (h *handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	txs, err := h.store.Transactions(r.Context(), TxFilter{
		Type:   model.TxType(q.Get("type")),
		Source: q.Get("source"),
		From:   q.Get("from"),
		To:     q.Get("to"),
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	out := make([]txDoc, 0, len(txs))
	for _, t := range txs {
		out = append(out, toTxDoc(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) createTransaction(w http.ResponseWriter, r *http.Request) {
	var d model.TxDraft
	if err := decode(r, &d); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	t, err := h.store.CreateTransaction(r.Context(), d)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTxDoc(t))
}

func (h *handler) deleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.DeleteTransaction(r.Context(), id); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"_id": id, "deleted": true})
}

// fail maps store errors to status codes.
func (h *handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInsufficientFunds):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrInvalid):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Error("store request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func decode(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
