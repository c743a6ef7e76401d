package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/theirongolddev/kas/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("sqlite", filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func memberByName(t *testing.T, s *Store, name string) model.Member {
	t.Helper()
	members, err := s.Members(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range members {
		if m.Name == name {
			return m
		}
	}
	t.Fatalf("member %q not found in %+v", name, members)
	return model.Member{}
}

func TestOpen_SeedsDefaults(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	pool, err := s.Pool(ctx)
	if err != nil || pool != 1_600_000 {
		t.Fatalf("Pool = %d, %v", pool, err)
	}
	members, _ := s.Members(ctx)
	if len(members) != 3 || members[0].Name != "Leo" || members[2].Balance != 800_000 {
		t.Errorf("members = %+v", members)
	}
}

func TestOpen_SeedsOnlyOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	s, err := Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.SetPool(context.Background(), 5); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	s, err = Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = s.Close() }()
	if pool, _ := s.Pool(context.Background()); pool != 5 {
		t.Errorf("pool after reopen = %d, want 5", pool)
	}
	if members, _ := s.Members(context.Background()); len(members) != 3 {
		t.Errorf("reseeded members: %d", len(members))
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open("mysql", "x"); err == nil {
		t.Fatal("Open accepted an unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	pg := &Store{driver: "postgres"}
	if got := pg.rebind("UPDATE m SET a = ?, b = ? WHERE id = ?"); got != "UPDATE m SET a = $1, b = $2 WHERE id = $3" {
		t.Errorf("postgres rebind = %q", got)
	}
	lite := &Store{driver: "sqlite"}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Errorf("sqlite rebind = %q", got)
	}
}

func TestCreateTransaction_AppliesEffect(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	alvin := memberByName(t, s, "Alvin")

	if _, err := s.CreateTransaction(ctx, model.TxDraft{Type: model.Expense, Source: model.PoolSource(), Amount: 100_000, Date: "2025-06-01"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateTransaction(ctx, model.TxDraft{Type: model.Income, Source: model.PersonalSource(alvin.ID), Amount: 50_000, Date: "2025-06-02"}); err != nil {
		t.Fatal(err)
	}

	if pool, _ := s.Pool(ctx); pool != 1_500_000 {
		t.Errorf("pool = %d, want 1500000", pool)
	}
	if got := memberByName(t, s, "Alvin").Balance; got != 850_000 {
		t.Errorf("Alvin = %d, want 850000", got)
	}
}

func TestCreateTransaction_Rejections(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	leo := memberByName(t, s, "Leo")

	tests := []struct {
		name  string
		draft model.TxDraft
		want  error
	}{
		{"overdraw pool", model.TxDraft{Type: model.Expense, Source: model.PoolSource(), Amount: 2_000_000, Date: "2025-06-01"}, ErrInsufficientFunds},
		{"overdraw member", model.TxDraft{Type: model.Expense, Source: model.PersonalSource(leo.ID), Amount: 1, Date: "2025-06-01"}, ErrInsufficientFunds},
		{"zero amount", model.TxDraft{Type: model.Income, Source: model.PoolSource(), Amount: 0, Date: "2025-06-01"}, ErrInvalid},
		{"bad type", model.TxDraft{Type: "gift", Source: model.PoolSource(), Amount: 1, Date: "2025-06-01"}, ErrInvalid},
		{"bad date", model.TxDraft{Type: model.Income, Source: model.PoolSource(), Amount: 1, Date: "June"}, ErrInvalid},
		{"unknown member", model.TxDraft{Type: model.Income, Source: model.PersonalSource("ghost"), Amount: 1, Date: "2025-06-01"}, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.CreateTransaction(ctx, tt.draft); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	if pool, _ := s.Pool(ctx); pool != 1_600_000 {
		t.Errorf("rejected drafts changed pool: %d", pool)
	}
	if txs, _ := s.Transactions(ctx, TxFilter{}); len(txs) != 0 {
		t.Errorf("rejected drafts were stored: %+v", txs)
	}
}

func TestDeleteTransaction_ReversesWithoutFundsCheck(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tx, err := s.CreateTransaction(ctx, model.TxDraft{Type: model.Income, Source: model.PoolSource(), Amount: 100, Date: "2025-06-01"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.SetPool(ctx, 0); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteTransaction(ctx, tx.ID); err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}
	if pool, _ := s.Pool(ctx); pool != -100 {
		t.Errorf("pool = %d, want -100", pool)
	}
	if err := s.DeleteTransaction(ctx, tx.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete = %v, want ErrNotFound", err)
	}
}

func TestDeleteTransaction_DanglingMember(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if _, err := s.db.Exec(`INSERT INTO transactions (id, type, source_kind, member_id, amount, descr, date, created_at)
		VALUES ('old', 'expense', 'personal', 'gone', 5, '', '2025-01-01', '2025-01-01T00:00:00Z')`); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteTransaction(ctx, "old"); err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}
}

func TestTransactions_Filters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	alvin := memberByName(t, s, "Alvin")

	drafts := []model.TxDraft{
		{Type: model.Expense, Source: model.PoolSource(), Amount: 1, Date: "2025-06-01"},
		{Type: model.Income, Source: model.PoolSource(), Amount: 2, Date: "2025-06-03"},
		{Type: model.Expense, Source: model.PersonalSource(alvin.ID), Amount: 3, Date: "2025-06-02"},
	}
	for _, d := range drafts {
		if _, err := s.CreateTransaction(ctx, d); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name string
		f    TxFilter
		want []int64
	}{
		{"all newest first", TxFilter{}, []int64{2, 3, 1}},
		{"pool", TxFilter{Source: "pool"}, []int64{2, 1}},
		{"member", TxFilter{Source: alvin.ID}, []int64{3}},
		{"type", TxFilter{Type: model.Expense}, []int64{3, 1}},
		{"range", TxFilter{From: "2025-06-02", To: "2025-06-02"}, []int64{3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txs, err := s.Transactions(ctx, tt.f)
			if err != nil {
				t.Fatal(err)
			}
			var got []int64
			for _, tx := range txs {
				got = append(got, tx.Amount)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("amounts = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("amounts = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestTransactions_SameDayOrderedByCreation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	stamps := []time.Time{
		time.Date(2025, 6, 1, 10, 0, 5, 0, time.UTC),
		time.Date(2025, 6, 1, 10, 0, 5, 500_000_000, time.UTC),
		time.Date(2025, 6, 1, 10, 0, 6, 0, time.UTC),
	}
	for i, ts := range stamps {
		s.now = func() time.Time { return ts }
		d := model.TxDraft{Type: model.Income, Source: model.PoolSource(), Amount: int64(i + 1), Date: "2025-06-01"}
		if _, err := s.CreateTransaction(ctx, d); err != nil {
			t.Fatal(err)
		}
	}

	txs, err := s.Transactions(ctx, TxFilter{})
	if err != nil {
		t.Fatal(err)
	}
	var got []int64
	for _, tx := range txs {
		got = append(got, tx.Amount)
	}
	if len(got) != 3 || got[0] != 3 || got[1] != 2 || got[2] != 1 {
		t.Fatalf("amounts = %v, want [3 2 1] (newest created first)", got)
	}
	if !txs[1].CreatedAt.Equal(stamps[1]) {
		t.Errorf("CreatedAt = %v, want %v", txs[1].CreatedAt, stamps[1])
	}
}

func TestMembers_CreateAndPatch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	m, err := s.CreateMember(ctx, "  Rani ", 10)
	if err != nil {
		t.Fatal(err)
	}
	members, _ := s.Members(ctx)
	if members[len(members)-1].ID != m.ID || m.Name != "Rani" {
		t.Errorf("new member not appended: %+v", members)
	}
	if _, err := s.CreateMember(ctx, " ", 0); !errors.Is(err, ErrInvalid) {
		t.Errorf("blank name = %v, want ErrInvalid", err)
	}

	name := "Rani K"
	got, err := s.UpdateMember(ctx, m.ID, model.MemberPatch{Name: &name})
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Rani K" || got.Balance != 10 {
		t.Errorf("after name patch = %+v", got)
	}
	if _, err := s.UpdateMember(ctx, "ghost", model.MemberPatch{Name: &name}); !errors.Is(err, ErrNotFound) {
		t.Errorf("patch ghost = %v, want ErrNotFound", err)
	}
}

func newTestHandler(t *testing.T) (*Store, *httptest.Server) {
	t.Helper()
	s := openTestStore(t)
	srv := httptest.NewServer(s.Handler(slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(srv.Close)
	return s, srv
}

func do(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, _ := http.NewRequest(method, url, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestHandler_Routes(t *testing.T) {
	_, srv := newTestHandler(t)

	resp, out := do(t, http.MethodGet, srv.URL+"/pool", "")
	if resp.StatusCode != http.StatusOK || out["pool"] != float64(1_600_000) {
		t.Fatalf("GET /pool = %d %v", resp.StatusCode, out)
	}

	resp, out = do(t, http.MethodPost, srv.URL+"/transactions",
		`{"type":"expense","source":{"kind":"pool"},"amount":100000,"desc":"makan","date":"2025-06-01"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST /transactions = %d %v", resp.StatusCode, out)
	}
	id, _ := out["_id"].(string)
	if id == "" {
		t.Fatalf("created record has no _id: %v", out)
	}

	resp, out = do(t, http.MethodPost, srv.URL+"/transactions",
		`{"type":"expense","source":{"kind":"pool"},"amount":99000000,"desc":"","date":"2025-06-01"}`)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("overdraw = %d %v, want 422", resp.StatusCode, out)
	}

	resp, _ = do(t, http.MethodPost, srv.URL+"/transactions", `{not json`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad JSON = %d, want 400", resp.StatusCode)
	}

	resp, out = do(t, http.MethodDelete, srv.URL+"/transactions/"+id, "")
	if resp.StatusCode != http.StatusOK || out["deleted"] != true {
		t.Errorf("DELETE = %d %v", resp.StatusCode, out)
	}
	resp, _ = do(t, http.MethodDelete, srv.URL+"/transactions/"+id, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second DELETE = %d, want 404", resp.StatusCode)
	}

	resp, out = do(t, http.MethodPatch, srv.URL+"/pool", `{"pool": 42}`)
	if resp.StatusCode != http.StatusOK || out["pool"] != float64(42) {
		t.Errorf("PATCH /pool = %d %v", resp.StatusCode, out)
	}
	resp, _ = do(t, http.MethodPatch, srv.URL+"/pool", `{}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("PATCH /pool without value = %d, want 400", resp.StatusCode)
	}

	resp, out = do(t, http.MethodPost, srv.URL+"/members", `{"name":"Rani","balance":5}`)
	if resp.StatusCode != http.StatusCreated || out["name"] != "Rani" {
		t.Fatalf("POST /members = %d %v", resp.StatusCode, out)
	}
	mid := out["_id"].(string)
	resp, out = do(t, http.MethodPatch, srv.URL+"/members/"+mid, `{"balance": 9}`)
	if resp.StatusCode != http.StatusOK || out["balance"] != float64(9) || out["name"] != "Rani" {
		t.Errorf("PATCH /members/{id} = %d %v", resp.StatusCode, out)
	}
	resp, _ = do(t, http.MethodPatch, srv.URL+"/members/ghost", `{"balance": 9}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("PATCH ghost = %d, want 404", resp.StatusCode)
	}
}
