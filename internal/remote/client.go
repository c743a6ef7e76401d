// Package remote is the client for the REST store that holds the shared
// ledger's source of truth.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/theirongolddev/kas/internal/model"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodySize    = 4 << 20 // 4 MB
	maxErrBody     = 512
)

var (
	// ErrUpstream indicates the store answered with a non-2xx status.
	ErrUpstream = errors.New("remote: upstream error")
	// ErrNotFound indicates the store has no such resource.
	ErrNotFound = errors.New("remote: not found")
)

// FetchError reports a failed request against the store.
type FetchError struct {
	Resource string // e.g. "pool", "members", "transactions/abc"
	Status   int    // 0 when no response was received
	Err      error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("remote: %s: status %d: %v", e.Resource, e.Status, e.Err)
	}
	return fmt.Sprintf("remote: %s: %v", e.Resource, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Client talks to the store's /pool, /members and /transactions resources.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewClient creates a client for the store at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{},
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the store address the client was built with.
func (c *Client) BaseURL() string { return c.baseURL }

// TxQuery filters GET /transactions. Empty fields are omitted.
type TxQuery struct {
	Type   model.TxType
	Source string // "pool" or a member id
	From   string // YYYY-MM-DD
	To     string // YYYY-MM-DD
}

// Encode renders the query string without the leading "?".
func (q TxQuery) Encode() string {
	v := url.Values{}
	if q.Type != "" {
		v.Set("type", string(q.Type))
	}
	if q.Source != "" {
		v.Set("source", q.Source)
	}
	if q.From != "" {
		v.Set("from", q.From)
	}
	if q.To != "" {
		v.Set("to", q.To)
	}
	return v.Encode()
}

// FetchPool returns the shared pool balance.
func (c *Client) FetchPool(ctx context.Context) (int64, error) {
	body, err := c.do(ctx, http.MethodGet, "pool", "/pool", nil)
	if err != nil {
		return 0, err
	}
	return normalizePool(body), nil
}

// FetchMembers returns every member in store order.
func (c *Client) FetchMembers(ctx context.Context) ([]model.Member, error) {
	body, err := c.do(ctx, http.MethodGet, "members", "/members", nil)
	if err != nil {
		return nil, err
	}
	members, err := normalizeMembers(body)
	if err != nil {
		return nil, &FetchError{Resource: "members", Err: fmt.Errorf("parsing: %w", err)}
	}
	return members, nil
}

// FetchTransactions returns the transactions matching q.
func (c *Client) FetchTransactions(ctx context.Context, q TxQuery) ([]model.Tx, error) {
	path := "/transactions"
	if qs := q.Encode(); qs != "" {
		path += "?" + qs
	}
	body, err := c.do(ctx, http.MethodGet, "transactions", path, nil)
	if err != nil {
		return nil, err
	}
	txs, err := normalizeTransactions(body)
	if err != nil {
		return nil, &FetchError{Resource: "transactions", Err: fmt.Errorf("parsing: %w", err)}
	}
	return txs, nil
}

// FetchAggregateState fetches pool, members and transactions concurrently.
// If any of the three fails the whole fetch fails with the first error
// observed and the others are cancelled; no partial state is returned.
func (c *Client) FetchAggregateState(ctx context.Context) (model.AppState, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
		st       model.AppState
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	wg.Add(3)
	go func() {
		defer wg.Done()
		pool, err := c.FetchPool(ctx)
		if err != nil {
			fail(err)
			return
		}
		st.Pool = pool
	}()
	go func() {
		defer wg.Done()
		members, err := c.FetchMembers(ctx)
		if err != nil {
			fail(err)
			return
		}
		st.Members = members
	}()
	go func() {
		defer wg.Done()
		txs, err := c.FetchTransactions(ctx, TxQuery{})
		if err != nil {
			fail(err)
			return
		}
		st.Transactions = txs
	}()
	wg.Wait()

	if firstErr != nil {
		return model.AppState{}, firstErr
	}
	return st, nil
}

// CreateTransaction stores draft and returns the stored record, including
// the store-assigned id.
func (c *Client) CreateTransaction(ctx context.Context, draft model.TxDraft) (model.Tx, error) {
	body, err := c.do(ctx, http.MethodPost, "transactions", "/transactions", draft)
	if err != nil {
		return model.Tx{}, err
	}
	var r record
	if err := json.Unmarshal(body, &r); err != nil {
		return model.Tx{}, &FetchError{Resource: "transactions", Err: fmt.Errorf("parsing created record: %w", err)}
	}
	return toTx(r), nil
}

// DeleteTransaction removes a transaction. The store reverses its balance
// effect.
func (c *Client) DeleteTransaction(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "transactions/"+id, "/transactions/"+url.PathEscape(id), nil)
	return err
}

// SetPool overwrites the pool balance and returns the stored value.
func (c *Client) SetPool(ctx context.Context, pool int64) (int64, error) {
	body, err := c.do(ctx, http.MethodPatch, "pool", "/pool", map[string]int64{"pool": pool})
	if err != nil {
		return 0, err
	}
	return normalizePool(body), nil
}

// UpdateMember applies a partial update; only fields set in patch are sent.
func (c *Client) UpdateMember(ctx context.Context, id string, patch model.MemberPatch) (model.Member, error) {
	body, err := c.do(ctx, http.MethodPatch, "members/"+id, "/members/"+url.PathEscape(id), patch)
	if err != nil {
		return model.Member{}, err
	}
	var r record
	if err := json.Unmarshal(body, &r); err != nil {
		return model.Member{}, &FetchError{Resource: "members/" + id, Err: fmt.Errorf("parsing: %w", err)}
	}
	return toMember(r), nil
}

// CreateMember adds a member with an opening balance.
func (c *Client) CreateMember(ctx context.Context, name string, balance int64) (model.Member, error) {
	in := struct {
		Name    string `json:"name"`
		Balance int64  `json:"balance"`
	}{name, balance}
	body, err := c.do(ctx, http.MethodPost, "members", "/members", in)
	if err != nil {
		return model.Member{}, err
	}
	var r record
	if err := json.Unmarshal(body, &r); err != nil {
		return model.Member{}, &FetchError{Resource: "members", Err: fmt.Errorf("parsing: %w", err)}
	}
	return toMember(r), nil
}

// do performs a request and returns the response body on 2xx.
func (c *Client) do(ctx context.Context, method, resource, path string, in any) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reqBody io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, &FetchError{Resource: resource, Err: fmt.Errorf("encoding body: %w", err)}
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, &FetchError{Resource: resource, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", "github.com/theirongolddev/kas/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &FetchError{Resource: resource, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
		kind := ErrUpstream
		if resp.StatusCode == http.StatusNotFound {
			kind = ErrNotFound
		}
		err := kind
		if msg := strings.TrimSpace(string(snippet)); msg != "" {
			err = fmt.Errorf("%w: %s", kind, msg)
		}
		return nil, &FetchError{Resource: resource, Status: resp.StatusCode, Err: err}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &FetchError{Resource: resource, Status: resp.StatusCode, Err: fmt.Errorf("reading response: %w", err)}
	}
	return body, nil
}
