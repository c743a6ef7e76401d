// Package model defines the domain types shared by the ledger, its stores and views.
package model

import (
	"fmt"

	"github.com/google/uuid"
)

// Member is a participant with an individually tracked balance.
type Member struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Balance int64  `json:"balance"` // minor units
}

// MemberPatch carries only the fields that changed.
type MemberPatch struct {
	Name    *string `json:"name,omitempty"`
	Balance *int64  `json:"balance,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p MemberPatch) IsEmpty() bool {
	return p.Name == nil && p.Balance == nil
}

// Merge overlays q onto p; fields set in q win.
func (p MemberPatch) Merge(q MemberPatch) MemberPatch {
	if q.Name != nil {
		p.Name = q.Name
	}
	if q.Balance != nil {
		p.Balance = q.Balance
	}
	return p
}

// AppState is the root aggregate. Members keep insertion order; transaction
// order carries no meaning, display order is derived.
type AppState struct {
	Pool         int64    `json:"pool"`
	Members      []Member `json:"members"`
	Transactions []Tx     `json:"transactions"`
}

// Clone returns a deep copy safe to mutate independently.
func (s AppState) Clone() AppState {
	out := AppState{Pool: s.Pool}
	if s.Members != nil {
		out.Members = make([]Member, len(s.Members))
		copy(out.Members, s.Members)
	}
	if s.Transactions != nil {
		out.Transactions = make([]Tx, len(s.Transactions))
		copy(out.Transactions, s.Transactions)
	}
	return out
}

// MemberIndex returns the position of the member with id, or -1.
func (s AppState) MemberIndex(id string) int {
	for i, m := range s.Members {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// Member looks up a member by id.
func (s AppState) Member(id string) (Member, bool) {
	if i := s.MemberIndex(id); i >= 0 {
		return s.Members[i], true
	}
	return Member{}, false
}

// TxIndex returns the position of the transaction with id, or -1.
func (s AppState) TxIndex(id string) int {
	for i, t := range s.Transactions {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// TotalPersonal sums every member balance.
func (s AppState) TotalPersonal() int64 {
	var total int64
	for _, m := range s.Members {
		total += m.Balance
	}
	return total
}

// GrandTotal is the pool plus every member balance.
func (s AppState) GrandTotal() int64 {
	return s.Pool + s.TotalPersonal()
}

// SourceBalance returns the current balance behind src. Dangling member
// references report zero.
func (s AppState) SourceBalance(src Source) int64 {
	if src.Kind == SourcePersonal {
		m, _ := s.Member(src.MemberID)
		return m.Balance
	}
	return s.Pool
}

// SourceLabel is the display name for src: "Pool", the member's name, or
// "unknown" for a dangling reference.
func (s AppState) SourceLabel(src Source) string {
	switch src.Kind {
	case SourcePool:
		return "Pool"
	case SourcePersonal:
		if m, ok := s.Member(src.MemberID); ok {
			return m.Name
		}
		return "unknown"
	default:
		return fmt.Sprintf("unknown (%s)", src.Kind)
	}
}

// ResolveMember finds a member by exact id first, then by case-insensitive name.
func (s AppState) ResolveMember(ref string) (Member, bool) {
	if m, ok := s.Member(ref); ok {
		return m, true
	}
	for _, m := range s.Members {
		if equalFold(m.Name, ref) {
			return m, true
		}
	}
	return Member{}, false
}

// NewID returns an opaque identifier for locally created records.
func NewID() string {
	return uuid.NewString()
}

// DefaultState is the hardcoded fallback used when neither the remote store
// nor the local cache can provide state.
func DefaultState() AppState {
	return AppState{
		Pool: 1_600_000,
		Members: []Member{
			{ID: NewID(), Name: "Leo", Balance: 0},
			{ID: NewID(), Name: "wowo", Balance: 0},
			{ID: NewID(), Name: "Alvin", Balance: 800_000}, // already took 800k
		},
		Transactions: []Tx{},
	}
}
