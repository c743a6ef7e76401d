package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAmount rejects non-positive or non-numeric amounts.
	ErrInvalidAmount = errors.New("amount must be a positive whole number")
	// ErrInvalidType rejects anything other than income or expense.
	ErrInvalidType = errors.New("type must be income or expense")
	// ErrInvalidDate rejects dates that are not YYYY-MM-DD calendar days.
	ErrInvalidDate = errors.New("date must be YYYY-MM-DD")
	// ErrInsufficientFunds rejects an expense larger than its source balance.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrUnknownSource rejects a source kind the engine has no effect for.
	ErrUnknownSource = errors.New("unknown source kind")
	// ErrMemberNotFound is returned when a member id does not resolve.
	ErrMemberNotFound = errors.New("member not found")
	// ErrTxNotFound is returned when a transaction id does not resolve.
	ErrTxNotFound = errors.New("transaction not found")
	// ErrTxUnconfirmed is returned when removing a transaction the store has
	// not acknowledged yet.
	ErrTxUnconfirmed = errors.New("transaction is still being saved")
)

// ValidationError means the request was rejected before any state changed.
// Nothing was sent to the remote store.
type ValidationError struct {
	Reason error
}

func (e *ValidationError) Error() string {
	return "rejected: " + e.Reason.Error()
}

func (e *ValidationError) Unwrap() error { return e.Reason }

// PersistenceError means the remote write failed and the optimistic change
// was rolled back.
type PersistenceError struct {
	Op   string // "create" or "delete"
	TxID string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("could not %s transaction %s, change rolled back: %v", e.Op, e.TxID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
