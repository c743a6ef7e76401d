// Package cli provides formatting and rendering utilities for terminal output.
package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/theirongolddev/kas/internal/model"
)

// DateLayout is the calendar-day layout used for transaction dates.
const DateLayout = "2006-01-02"

// idrFormatter prints whole rupiah with "." grouping: Rp 1.600.000.
// Amounts are stored in whole rupiah, so the currency's fraction is dropped.
var idrFormatter = func() *money.Formatter {
	cur := money.GetCurrency(money.IDR)
	return money.NewFormatter(0, cur.Decimal, cur.Thousand, cur.Grapheme, "$ 1")
}()

// FormatIDR formats an integer rupiah amount.
// e.g., 1600000 -> "Rp 1.600.000", -5000 -> "-Rp 5.000"
func FormatIDR(n int64) string {
	return idrFormatter.Format(n)
}

// FormatSigned prefixes an amount with the direction of its transaction type.
// e.g., expense 100000 -> "- Rp 100.000", income 50000 -> "+ Rp 50.000"
func FormatSigned(t model.TxType, n int64) string {
	if t == model.Expense {
		return "- " + FormatIDR(n)
	}
	return "+ " + FormatIDR(n)
}

// Today returns the local calendar day as YYYY-MM-DD.
func Today() string {
	return time.Now().Format(DateLayout)
}

// ParseDate validates s as a calendar day and returns it normalized.
func ParseDate(s string) (string, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return d.Format(DateLayout), nil
}

// ParseAmount coerces user or upstream input to a non-negative whole amount.
// Grouping separators and an "Rp" prefix are ignored, fractions are floored,
// and anything non-numeric yields 0.
// e.g., "Rp 1.600.000" -> 1600000, "150.000" -> 150000, "2500.9" -> 2500, "abc" -> 0
func ParseAmount(s string) int64 {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "Rp"), "rp")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	// Indonesian grouping uses "." and a trailing ",dd" fraction.
	if strings.Count(s, ".") > 1 || (strings.Contains(s, ".") && strings.Contains(s, ",")) || thousandsDot(s) {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	} else {
		s = strings.ReplaceAll(s, ",", "")
		s = strings.ReplaceAll(s, "_", "")
	}

	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return 0
	}
	return d.Floor().IntPart()
}

// thousandsDot reports whether s has a single "." followed by exactly three
// digits, as in "150.000".
func thousandsDot(s string) bool {
	i := strings.IndexByte(s, '.')
	if i <= 0 || strings.Count(s, ".") != 1 {
		return false
	}
	frac := s[i+1:]
	return len(frac) == 3 && strings.Trim(frac, "0123456789") == ""
}

// FormatNumber adds comma separators to an integer.
// e.g., 1234567 -> "1,234,567"
func FormatNumber(n int64) string {
	if n < 0 {
		return "-" + FormatNumber(-n)
	}

	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}

	var result strings.Builder
	remainder := len(s) % 3
	if remainder > 0 {
		result.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if result.Len() > 0 {
			result.WriteByte(',')
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}

// FormatCount pluralizes a count: 1 transaction, 3 transactions.
func FormatCount(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return FormatNumber(int64(n)) + " " + noun + "s"
}
