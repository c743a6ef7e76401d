// Package pipeline derives read-side views (sorted, filtered, summarized)
// from ledger state. Everything here is pure recomputation.
package pipeline

import (
	"sort"
	"strings"
	"time"

	"github.com/theirongolddev/kas/internal/model"
)

const dateLayout = "2006-01-02"

// Tab values understood by Filter besides a member id.
const (
	TabAll  = "all"
	TabPool = "pool"
)

// Filter selects transactions for the history view.
type Filter struct {
	Tab   string       // "all", "pool" or a member id
	Type  model.TxType // empty matches both
	Query string       // case-insensitive substring of desc or source label
	From  string       // inclusive YYYY-MM-DD, empty for open
	To    string       // inclusive YYYY-MM-DD, empty for open
}

// SortTransactions returns a copy ordered by date descending, ties broken by
// creation instant descending. Transactions without createdAt sort last
// within their day.
func SortTransactions(txs []model.Tx) []model.Tx {
	out := make([]model.Tx, len(txs))
	copy(out, txs)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// FilterTransactions applies f to txs, keeping their order.
func FilterTransactions(state model.AppState, txs []model.Tx, f Filter) []model.Tx {
	var result []model.Tx
	for _, t := range txs {
		if !matchesTab(t, f.Tab) {
			continue
		}
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		if f.From != "" && t.Date < f.From {
			continue
		}
		if f.To != "" && t.Date > f.To {
			continue
		}
		if f.Query != "" &&
			!containsIgnoreCase(t.Desc, f.Query) &&
			!containsIgnoreCase(state.SourceLabel(t.Source), f.Query) {
			continue
		}
		result = append(result, t)
	}
	return result
}

// History is the sorted-then-filtered view used by every presentation surface.
func History(state model.AppState, f Filter) []model.Tx {
	return FilterTransactions(state, SortTransactions(state.Transactions), f)
}

func matchesTab(t model.Tx, tab string) bool {
	switch tab {
	case "", TabAll:
		return true
	case TabPool:
		return t.Source.Kind == model.SourcePool
	default:
		return t.Source.Kind == model.SourcePersonal && t.Source.MemberID == tab
	}
}

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// SourceSummary totals the flows against one source.
type SourceSummary struct {
	Label    string
	Source   model.Source
	Balance  int64
	Income   int64
	Expense  int64
	TxCount  int
	Dangling bool
}

// Summary is the overview of a state snapshot.
type Summary struct {
	Pool          int64
	TotalPersonal int64
	GrandTotal    int64
	TotalIncome   int64
	TotalExpense  int64
	TxCount       int
	Sources       []SourceSummary // pool first, then members in display order, then dangling refs
}

// Summarize computes balances and flow totals per source.
func Summarize(state model.AppState) Summary {
	s := Summary{
		Pool:          state.Pool,
		TotalPersonal: state.TotalPersonal(),
		GrandTotal:    state.GrandTotal(),
		TxCount:       len(state.Transactions),
	}

	idx := make(map[string]int)
	s.Sources = append(s.Sources, SourceSummary{
		Label:   "Pool",
		Source:  model.PoolSource(),
		Balance: state.Pool,
	})
	idx[sourceKey(model.PoolSource())] = 0
	for _, m := range state.Members {
		src := model.PersonalSource(m.ID)
		idx[sourceKey(src)] = len(s.Sources)
		s.Sources = append(s.Sources, SourceSummary{
			Label:   m.Name,
			Source:  src,
			Balance: m.Balance,
		})
	}

	for _, t := range state.Transactions {
		key := sourceKey(t.Source)
		i, ok := idx[key]
		if !ok {
			i = len(s.Sources)
			idx[key] = i
			s.Sources = append(s.Sources, SourceSummary{
				Label:    state.SourceLabel(t.Source),
				Source:   t.Source,
				Dangling: true,
			})
		}
		ss := &s.Sources[i]
		ss.TxCount++
		switch t.Type {
		case model.Income:
			ss.Income += t.Amount
			s.TotalIncome += t.Amount
		case model.Expense:
			ss.Expense += t.Amount
			s.TotalExpense += t.Amount
		}
	}
	return s
}

func sourceKey(src model.Source) string {
	if src.Kind == model.SourcePool {
		return string(model.SourcePool)
	}
	return string(src.Kind) + ":" + src.MemberID
}

// DayFlow is the money moved on one calendar day.
type DayFlow struct {
	Date    string
	Income  int64
	Expense int64
}

// DailyFlows returns one entry per day for the n days ending at today
// (YYYY-MM-DD), oldest first. Days without transactions are zero.
func DailyFlows(state model.AppState, today string, n int) []DayFlow {
	end, err := time.Parse(dateLayout, today)
	if err != nil || n <= 0 {
		return nil
	}
	out := make([]DayFlow, n)
	idx := make(map[string]int, n)
	for i := range out {
		day := end.AddDate(0, 0, i-n+1).Format(dateLayout)
		out[i].Date = day
		idx[day] = i
	}
	for _, t := range state.Transactions {
		i, ok := idx[t.Date]
		if !ok {
			continue
		}
		switch t.Type {
		case model.Income:
			out[i].Income += t.Amount
		case model.Expense:
			out[i].Expense += t.Amount
		}
	}
	return out
}
