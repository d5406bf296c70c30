package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/crateflow/pkg/money"
)

// SplitInput is a payment request before validation.
type SplitInput struct {
	Amount     decimal.Decimal
	Method     Method
	Cash       *decimal.Decimal
	Electronic *decimal.Decimal
	Account    string
}

// Split is a validated payment whose components sum to Amount.
type Split struct {
	Method     Method
	Amount     decimal.Decimal
	Cash       decimal.Decimal
	Electronic decimal.Decimal
	Account    *string
}

// ResolveSplit applies the per-method rules to in. With allowZero a MIXED
// split may carry a zero component; allocation slices rely on that.
func ResolveSplit(in SplitInput, allowZero bool) (Split, error) {
	amount := money.Round2(in.Amount)
	if !amount.IsPositive() {
		return Split{}, fmt.Errorf("%w: %s", ErrInvalidAmount, amount.StringFixed(2))
	}

	var account *string
	if trimmed := strings.TrimSpace(in.Account); trimmed != "" {
		account = &trimmed
	}

	out := Split{Method: in.Method, Amount: amount, Cash: decimal.Zero, Electronic: decimal.Zero}
	switch in.Method {
	case MethodCash:
		out.Cash = amount
	case MethodElectronic:
		if account == nil {
			return Split{}, ErrAccountRequired
		}
		out.Electronic = amount
		out.Account = account
	case MethodMixed:
		cash := money.Round2(valueOrZero(in.Cash))
		electronic := money.Round2(valueOrZero(in.Electronic))
		if cash.IsNegative() || electronic.IsNegative() {
			return Split{}, fmt.Errorf("%w: negative component", ErrInvalidAmount)
		}
		if !allowZero && (!cash.IsPositive() || !electronic.IsPositive()) {
			return Split{}, fmt.Errorf("%w: both cash and electronic amounts are required", ErrSplitMismatch)
		}
		if !money.Round2(cash.Add(electronic)).Equal(amount) {
			return Split{}, fmt.Errorf("%w: %s + %s != %s", ErrSplitMismatch,
				cash.StringFixed(2), electronic.StringFixed(2), amount.StringFixed(2))
		}
		if account == nil {
			return Split{}, ErrAccountRequired
		}
		out.Cash = cash
		out.Electronic = electronic
		out.Account = account
	default:
		return Split{}, fmt.Errorf("%w: %q", ErrInvalidMethod, in.Method)
	}
	return out, nil
}

func valueOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}
