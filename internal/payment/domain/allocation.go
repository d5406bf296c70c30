package domain

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/crateflow/pkg/money"
)

// OpenBalance is one invoice's outstanding amount, in allocation order.
type OpenBalance struct {
	InvoiceID snowflake.ID
	Remaining decimal.Decimal
}

// Slice is the part of a split applied to one invoice.
type Slice struct {
	InvoiceID  snowflake.ID
	Applied    decimal.Decimal
	Cash       decimal.Decimal
	Electronic decimal.Decimal
}

// PlanAllocation walks balances oldest first and distributes split across them.
// The slices always sum to split.Amount, split.Cash and split.Electronic exactly.
func PlanAllocation(balances []OpenBalance, split Split) ([]Slice, error) {
	unallocated := split.Amount
	cashLeft := split.Cash
	electronicLeft := split.Electronic

	slices := make([]Slice, 0, len(balances))
	for _, balance := range balances {
		if !unallocated.IsPositive() {
			break
		}
		remaining := money.Round2(balance.Remaining)
		if !remaining.IsPositive() {
			continue
		}
		applied := money.Min(remaining, unallocated)

		var cash, electronic decimal.Decimal
		switch split.Method {
		case MethodCash:
			cash, electronic = applied, decimal.Zero
		case MethodElectronic:
			cash, electronic = decimal.Zero, applied
		default:
			// The last invoice touched is the one that takes everything still unallocated.
			cash, electronic = proportional(applied, unallocated, cashLeft, electronicLeft, applied.Equal(unallocated))
		}

		slices = append(slices, Slice{
			InvoiceID:  balance.InvoiceID,
			Applied:    applied,
			Cash:       cash,
			Electronic: electronic,
		})
		unallocated = money.Round2(unallocated.Sub(applied))
		cashLeft = money.Round2(cashLeft.Sub(cash))
		electronicLeft = money.Round2(electronicLeft.Sub(electronic))
	}

	if unallocated.IsPositive() {
		return nil, fmt.Errorf("%w: %s left unallocated", ErrAllocationFailed, unallocated.StringFixed(2))
	}
	return slices, nil
}

// proportional splits applied by the remaining cash:electronic ratio. On the
// final slice it absorbs both budgets so no cent is left over.
func proportional(applied, unallocated, cashLeft, electronicLeft decimal.Decimal, final bool) (decimal.Decimal, decimal.Decimal) {
	if final {
		return cashLeft, electronicLeft
	}

	cash := money.Round2(applied.Mul(cashLeft).Div(unallocated))
	electronic := applied.Sub(cash)

	// Rounding can push one component past its budget; the other always has room
	// because applied never exceeds cashLeft + electronicLeft.
	if cash.GreaterThan(cashLeft) {
		cash = cashLeft
		electronic = applied.Sub(cash)
	}
	if electronic.GreaterThan(electronicLeft) {
		electronic = electronicLeft
		cash = applied.Sub(electronic)
	}
	return cash, electronic
}
