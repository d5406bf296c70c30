// Package money holds the two-decimal rounding rules shared by billing code.
package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Places is the number of fractional digits kept for every stored amount.
const Places = 2

var ErrInvalidAmount = errors.New("invalid_amount")

// Round2 rounds half away from zero to two places.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// Parse reads a decimal string and rounds it.
func Parse(raw string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return Round2(value), nil
}

// Sum adds amounts, rounding after each step the same way stored totals are accumulated.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = Round2(total.Add(a))
	}
	return total
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// LineTotal is quantity × unit price at two places.
func LineTotal(quantity int64, unit decimal.Decimal) decimal.Decimal {
	return Round2(unit.Mul(decimal.NewFromInt(quantity)))
}
