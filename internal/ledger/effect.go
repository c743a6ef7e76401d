package ledger

import (
	"fmt"

	"github.com/theirongolddev/kas/internal/model"
)

// signedAmount is the balance change a transaction of type t makes to its
// source: income credits, expense debits.
func signedAmount(t model.TxType, amount int64) (int64, error) {
	switch t {
	case model.Income:
		return amount, nil
	case model.Expense:
		return -amount, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidType, t)
	}
}

// effect adds delta to the balance behind src. With checkFunds, a debit that
// would take the balance below zero fails and st is left untouched. Apply
// and reverse both go through here, so every SourceKind is handled in one
// place.
func effect(st *model.AppState, src model.Source, delta int64, checkFunds bool) error {
	switch src.Kind {
	case model.SourcePool:
		if checkFunds && delta < 0 && st.Pool < -delta {
			return fmt.Errorf("%w: pool has %d, need %d", ErrInsufficientFunds, st.Pool, -delta)
		}
		st.Pool += delta
		return nil
	case model.SourcePersonal:
		i := st.MemberIndex(src.MemberID)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrMemberNotFound, src.MemberID)
		}
		m := &st.Members[i]
		if checkFunds && delta < 0 && m.Balance < -delta {
			return fmt.Errorf("%w: %s has %d, need %d", ErrInsufficientFunds, m.Name, m.Balance, -delta)
		}
		m.Balance += delta
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSource, src.Kind)
	}
}

// applyTx applies t's effect with the funds check.
func applyTx(st *model.AppState, t model.Tx) error {
	d, err := signedAmount(t.Type, t.Amount)
	if err != nil {
		return err
	}
	return effect(st, t.Source, d, true)
}

// reverseTx undoes t's effect. Reversal never checks funds.
func reverseTx(st *model.AppState, t model.Tx) error {
	d, err := signedAmount(t.Type, t.Amount)
	if err != nil {
		return err
	}
	return effect(st, t.Source, -d, false)
}
