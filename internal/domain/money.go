package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmountOrZero converts an operator-entered rupee amount into paise.
// Blank, unparsable, or negative input yields 0: an operator may leave a
// payment method empty without being blocked. This is a named policy, not
// implicit coercion, so callers and tests can rely on it deliberately.
func ParseAmountOrZero(raw string) int64 {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || d.IsNegative() {
		return 0
	}
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// ParseLitersOrZero converts an operator-entered liter quantity into a
// decimal, following the same blank/garbage/negative-to-zero policy.
func ParseLitersOrZero(raw string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// LitersCost derives a paise amount from a liter quantity and a paise-per-liter
// rate, rounded to the nearest paisa. Used for the derived credit amount and
// the testing-fuel cost.
func LitersCost(liters decimal.Decimal, ratePaise int64) int64 {
	return liters.Mul(decimal.NewFromInt(ratePaise)).Round(0).IntPart()
}
