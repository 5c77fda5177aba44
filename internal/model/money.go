package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money values are fixed-point decimals with two fractional digits,
// stored as TEXT in sqlite and re-parsed on scan.

// ParseMoney parses a stored decimal string into a two-digit amount.
func ParseMoney(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid money value %q: %w", s, err)
	}
	return d.Round(2), nil
}

// RoundMoney rounds to two fractional digits, half up.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// MoneyString formats an amount the way it is persisted.
func MoneyString(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// SumMoney adds a list of amounts.
func SumMoney(amounts []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
