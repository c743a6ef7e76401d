// Package docstore is a small REST document store for the ledger's pool,
// members and transactions. Balance effects of transactions are applied
// inside the same database transaction as the insert or delete, so the
// stored balances always agree with the stored history.
package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"  // register postgres driver
	_ "modernc.org/sqlite" // register sqlite driver

	"github.com/theirongolddev/kas/internal/model"
)

var (
	// ErrNotFound means the addressed record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalid means the request body failed validation.
	ErrInvalid = errors.New("invalid request")
	// ErrInsufficientFunds means an expense exceeds its source balance.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// createdAtLayout is fixed width so created_at sorts correctly as text.
const createdAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store persists ledger documents in SQL.
type Store struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

// Open connects to the database and creates the schema. driver is
// "sqlite" (dsn is a file path or ":memory:") or "postgres".
func Open(driver, dsn string) (*Store, error) {
	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case "sqlite", "":
		driver = "sqlite"
		if dsn != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o750); err != nil {
				return nil, fmt.Errorf("creating store dir: %w", err)
			}
		}
		db, err = sql.Open("sqlite", dsn+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
		if err == nil {
			// One writer at a time; also keeps ":memory:" on a single database.
			db.SetMaxOpenConns(1)
		}
	case "postgres":
		db, err = sql.Open("postgres", dsn)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("opening store db: %w", err)
	}

	s := &Store{db: db, driver: driver, now: time.Now}
	if err := s.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) init(ctx context.Context) error {
	for _, stmt := range schemaSQL {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	return s.seed(ctx)
}

// seed writes the default pool and members into an empty database.
func (s *Store) seed(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var n int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM pool").Scan(&n); err != nil {
		return fmt.Errorf("checking seed: %w", err)
	}
	if n > 0 {
		return nil
	}

	def := model.DefaultState()
	if _, err := tx.ExecContext(ctx, s.rebind("INSERT INTO pool (id, amount) VALUES (1, ?)"), def.Pool); err != nil {
		return fmt.Errorf("seeding pool: %w", err)
	}
	for i, m := range def.Members {
		if _, err := tx.ExecContext(ctx,
			s.rebind("INSERT INTO members (id, name, balance, position) VALUES (?, ?, ?, ?)"),
			m.ID, m.Name, m.Balance, i); err != nil {
			return fmt.Errorf("seeding members: %w", err)
		}
	}
	return tx.Commit()
}

// rebind rewrites "?" placeholders to "$1..$n" for postgres.
func (s *Store) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Pool returns the pool balance.
func (s *Store) Pool(ctx context.Context) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx, "SELECT amount FROM pool WHERE id = 1").Scan(&v)
	return v, err
}

// SetPool overwrites the pool balance. Negative values become 0.
func (s *Store) SetPool(ctx context.Context, v int64) (int64, error) {
	v = max(v, 0)
	_, err := s.db.ExecContext(ctx, s.rebind("UPDATE pool SET amount = ? WHERE id = 1"), v)
	return v, err
}

// Members returns members in insertion order.
func (s *Store) Members(ctx context.Context) ([]model.Member, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, balance FROM members ORDER BY position")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []model.Member{}
	for rows.Next() {
		var m model.Member
		if err := rows.Scan(&m.ID, &m.Name, &m.Balance); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) member(ctx context.Context, q querier, id string) (model.Member, error) {
	var m model.Member
	err := q.QueryRowContext(ctx, s.rebind("SELECT id, name, balance FROM members WHERE id = ?"), id).
		Scan(&m.ID, &m.Name, &m.Balance)
	if errors.Is(err, sql.ErrNoRows) {
		return m, fmt.Errorf("member %s: %w", id, ErrNotFound)
	}
	return m, err
}

// CreateMember appends a member.
func (s *Store) CreateMember(ctx context.Context, name string, balance int64) (model.Member, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Member{}, fmt.Errorf("%w: name is required", ErrInvalid)
	}
	m := model.Member{ID: uuid.NewString(), Name: name, Balance: max(balance, 0)}
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO members (id, name, balance, position)
		VALUES (?, ?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM members))`),
		m.ID, m.Name, m.Balance)
	if err != nil {
		return model.Member{}, err
	}
	return m, nil
}

// UpdateMember applies the fields set in p.
func (s *Store) UpdateMember(ctx context.Context, id string, p model.MemberPatch) (model.Member, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Member{}, err
	}
	defer func() { _ = tx.Rollback() }()

	m, err := s.member(ctx, tx, id)
	if err != nil {
		return model.Member{}, err
	}
	if p.Name != nil {
		m.Name = *p.Name
	}
	if p.Balance != nil {
		m.Balance = max(*p.Balance, 0)
	}
	if _, err := tx.ExecContext(ctx, s.rebind("UPDATE members SET name = ?, balance = ? WHERE id = ?"),
		m.Name, m.Balance, id); err != nil {
		return model.Member{}, err
	}
	return m, tx.Commit()
}

// TxFilter selects transactions. Empty fields match everything.
type TxFilter struct {
	Type   model.TxType
	Source string // "pool" or a member id
	From   string
	To     string
}

// Transactions returns matching transactions, newest first.
func (s *Store) Transactions(ctx context.Context, f TxFilter) ([]model.Tx, error) {
	var (
		where []string
		args  []any
	)
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(f.Type))
	}
	switch f.Source {
	case "":
	case string(model.SourcePool):
		where = append(where, "source_kind = ?")
		args = append(args, string(model.SourcePool))
	default:
		where = append(where, "source_kind = ? AND member_id = ?")
		args = append(args, string(model.SourcePersonal), f.Source)
	}
	if f.From != "" {
		where = append(where, "date >= ?")
		args = append(args, f.From)
	}
	if f.To != "" {
		where = append(where, "date <= ?")
		args = append(args, f.To)
	}

	q := "SELECT id, type, source_kind, member_id, amount, descr, date, created_at FROM transactions"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY date DESC, created_at DESC"

	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []model.Tx{}
	for rows.Next() {
		t, err := scanTx(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTx(row scanner) (model.Tx, error) {
	var (
		t                   model.Tx
		typ, kind, memberID string
		createdAt           string
	)
	if err := row.Scan(&t.ID, &typ, &kind, &memberID, &t.Amount, &t.Desc, &t.Date, &createdAt); err != nil {
		return t, err
	}
	t.Type = model.TxType(typ)
	t.Source = model.Source{Kind: model.SourceKind(kind), MemberID: memberID}
	if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		t.CreatedAt = ts
	}
	return t, nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// CreateTransaction validates d, applies its balance effect with the funds
// check and stores it.
func (s *Store) CreateTransaction(ctx context.Context, d model.TxDraft) (model.Tx, error) {
	if err := validateDraft(d); err != nil {
		return model.Tx{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Tx{}, err
	}
	defer func() { _ = tx.Rollback() }()

	delta := d.Amount
	if d.Type == model.Expense {
		delta = -d.Amount
	}
	if err := s.adjust(ctx, tx, d.Source, delta, true); err != nil {
		return model.Tx{}, err
	}

	t := model.Tx{
		ID:        uuid.NewString(),
		Type:      d.Type,
		Source:    d.Source,
		Amount:    d.Amount,
		Desc:      strings.TrimSpace(d.Desc),
		Date:      d.Date,
		CreatedAt: s.now().UTC(),
	}
	if t.Source.Kind == model.SourcePool {
		t.Source.MemberID = ""
	}
	_, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO transactions
		(id, type, source_kind, member_id, amount, descr, date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		t.ID, string(t.Type), string(t.Source.Kind), t.Source.MemberID, t.Amount, t.Desc, t.Date,
		t.CreatedAt.Format(createdAtLayout))
	if err != nil {
		return model.Tx{}, err
	}
	return t, tx.Commit()
}

// DeleteTransaction removes a transaction and reverses its balance effect
// without a funds check. A member that no longer exists is skipped.
func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, s.rebind(
		"SELECT id, type, source_kind, member_id, amount, descr, date, created_at FROM transactions WHERE id = ?"), id)
	t, err := scanTx(row)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return err
	}

	delta := -t.Amount
	if t.Type == model.Expense {
		delta = t.Amount
	}
	if err := s.adjust(ctx, tx, t.Source, delta, false); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if _, err := tx.ExecContext(ctx, s.rebind("DELETE FROM transactions WHERE id = ?"), id); err != nil {
		return err
	}
	return tx.Commit()
}

// adjust adds delta to the balance behind src.
func (s *Store) adjust(ctx context.Context, q querier, src model.Source, delta int64, checkFunds bool) error {
	switch src.Kind {
	case model.SourcePool:
		var bal int64
		if err := q.QueryRowContext(ctx, "SELECT amount FROM pool WHERE id = 1").Scan(&bal); err != nil {
			return err
		}
		if checkFunds && delta < 0 && bal < -delta {
			return fmt.Errorf("%w: pool has %d, need %d", ErrInsufficientFunds, bal, -delta)
		}
		_, err := q.ExecContext(ctx, s.rebind("UPDATE pool SET amount = amount + ? WHERE id = 1"), delta)
		return err
	case model.SourcePersonal:
		m, err := s.member(ctx, q, src.MemberID)
		if err != nil {
			return err
		}
		if checkFunds && delta < 0 && m.Balance < -delta {
			return fmt.Errorf("%w: %s has %d, need %d", ErrInsufficientFunds, m.Name, m.Balance, -delta)
		}
		_, err = q.ExecContext(ctx, s.rebind("UPDATE members SET balance = balance + ? WHERE id = ?"), delta, src.MemberID)
		return err
	default:
		return fmt.Errorf("%w: unknown source kind %q", ErrInvalid, src.Kind)
	}
}

func validateDraft(d model.TxDraft) error {
	if !d.Type.Valid() {
		return fmt.Errorf("%w: type must be income or expense", ErrInvalid)
	}
	if err := d.Source.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if d.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalid)
	}
	if _, err := time.Parse("2006-01-02", d.Date); err != nil {
		return fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalid)
	}
	return nil
}
