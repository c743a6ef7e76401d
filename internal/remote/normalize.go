package remote

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/theirongolddev/kas/internal/model"
)

// record is one upstream document. Fields are decoded individually so a
// single malformed field degrades to its zero value instead of failing the
// whole response.
type record map[string]json.RawMessage

// id prefers the store-internal "_id" over "id". Either may be a string or
// a number.
func (r record) id() string {
	if s := scalarString(r["_id"]); s != "" {
		return s
	}
	return scalarString(r["id"])
}

func (r record) str(key string) string {
	var s string
	if err := json.Unmarshal(r[key], &s); err != nil {
		return ""
	}
	return s
}

func (r record) amount(key string) int64 {
	return parseAmount(r[key])
}

// parseAmount accepts a JSON number or a numeric string and floors it.
// Anything else, including null and non-finite text, yields 0.
func parseAmount(raw json.RawMessage) int64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0
	}
	var text string
	switch raw[0] {
	case '"':
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0
		}
		text = strings.TrimSpace(text)
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		text = string(raw)
	default:
		return 0
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return 0
	}
	return d.Floor().IntPart()
}

func scalarString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// decodeRecords splits a collection body into records. Elements that are not
// objects are skipped, so one bad element never costs the rest.
func decodeRecords(body []byte) ([]record, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(body, &elems); err != nil {
		return nil, err
	}
	recs := make([]record, 0, len(elems))
	for i, raw := range elems {
		var r record
		if err := json.Unmarshal(raw, &r); err != nil || r == nil {
			slog.Warn("skipping malformed upstream record", "index", i, "body", truncate(string(raw), 64))
			continue
		}
		recs = append(recs, r)
	}
	return recs, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func toMember(r record) model.Member {
	return model.Member{
		ID:      r.id(),
		Name:    r.str("name"),
		Balance: r.amount("balance"),
	}
}

func toTx(r record) model.Tx {
	t := model.Tx{
		ID:     r.id(),
		Type:   model.TxType(r.str("type")),
		Amount: r.amount("amount"),
		Desc:   r.str("desc"),
		Date:   r.str("date"),
	}
	if raw, ok := r["source"]; ok {
		_ = json.Unmarshal(raw, &t.Source)
	}
	if ts, err := time.Parse(time.RFC3339, r.str("createdAt")); err == nil {
		t.CreatedAt = ts
	}
	return t
}

// normalizeMembers maps raw records to members; a null body is empty.
func normalizeMembers(body []byte) ([]model.Member, error) {
	recs, err := decodeRecords(body)
	if err != nil {
		return nil, err
	}
	out := make([]model.Member, 0, len(recs))
	for _, r := range recs {
		out = append(out, toMember(r))
	}
	return out, nil
}

// normalizeTransactions maps raw records to transactions; a null body is empty.
func normalizeTransactions(body []byte) ([]model.Tx, error) {
	recs, err := decodeRecords(body)
	if err != nil {
		return nil, err
	}
	out := make([]model.Tx, 0, len(recs))
	for _, r := range recs {
		out = append(out, toTx(r))
	}
	return out, nil
}

// normalizePool accepts {"pool": n} or a bare n.
func normalizePool(body []byte) int64 {
	var obj record
	if err := json.Unmarshal(body, &obj); err == nil && obj != nil {
		return obj.amount("pool")
	}
	return parseAmount(body)
}
