package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TxType is the direction of a transaction.
type TxType string

const (
	Income  TxType = "income"
	Expense TxType = "expense"
)

// Valid reports whether t is a known transaction type.
func (t TxType) Valid() bool {
	return t == Income || t == Expense
}

// SourceKind tags the Source union.
type SourceKind string

const (
	SourcePool     SourceKind = "pool"
	SourcePersonal SourceKind = "personal"
)

// SourceKinds lists every kind. Code that switches on SourceKind is tested
// against this list, so a new kind must be handled everywhere before tests pass.
var SourceKinds = []SourceKind{SourcePool, SourcePersonal}

// Source is the tagged union {kind: pool} | {kind: personal, memberId}.
// MemberID is a weak reference into AppState.Members.
type Source struct {
	Kind     SourceKind `json:"kind"`
	MemberID string     `json:"memberId,omitempty"`
}

// PoolSource targets the shared pool.
func PoolSource() Source { return Source{Kind: SourcePool} }

// PersonalSource targets a member's balance.
func PersonalSource(memberID string) Source {
	return Source{Kind: SourcePersonal, MemberID: memberID}
}

// Validate checks the union is well formed.
func (s Source) Validate() error {
	switch s.Kind {
	case SourcePool:
		return nil
	case SourcePersonal:
		if s.MemberID == "" {
			return fmt.Errorf("personal source requires a member id")
		}
		return nil
	default:
		return fmt.Errorf("unknown source kind %q", s.Kind)
	}
}

// MarshalJSON drops memberId for pool sources even if it was set.
func (s Source) MarshalJSON() ([]byte, error) {
	type wire Source
	if s.Kind == SourcePool {
		return json.Marshal(wire{Kind: SourcePool})
	}
	return json.Marshal(wire(s))
}

// Tx is a recorded income or expense against exactly one source.
type Tx struct {
	ID        string    `json:"id"`
	Type      TxType    `json:"type"`
	Source    Source    `json:"source"`
	Amount    int64     `json:"amount"` // positive, minor units
	Desc      string    `json:"desc"`
	Date      string    `json:"date"` // YYYY-MM-DD
	CreatedAt time.Time `json:"createdAt,omitzero"`
}

// Draft strips the identity, producing the body sent to the remote store.
func (t Tx) Draft() TxDraft {
	return TxDraft{
		Type:   t.Type,
		Source: t.Source,
		Amount: t.Amount,
		Desc:   t.Desc,
		Date:   t.Date,
	}
}

// TxDraft is a transaction before the store has assigned it an id.
type TxDraft struct {
	Type   TxType `json:"type"`
	Source Source `json:"source"`
	Amount int64  `json:"amount"`
	Desc   string `json:"desc"`
	Date   string `json:"date"`
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
