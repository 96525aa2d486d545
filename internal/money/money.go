package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Round2 rounds half away from zero to two places.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Parse reads a decimal amount and rejects more than two fractional digits.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if !d.Equal(Round2(d)) {
		return decimal.Zero, fmt.Errorf("invalid amount %q: more than two decimal places", s)
	}
	return d, nil
}

// Paise converts a rupee amount to the smallest currency unit.
func Paise(d decimal.Decimal) int64 {
	return Round2(d).Shift(2).IntPart()
}

func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}
