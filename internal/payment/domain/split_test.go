package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func decPtr(v string) *decimal.Decimal {
	d := dec(v)
	return &d
}

func TestParseMethod(t *testing.T) {
	cases := map[string]Method{
		"":           MethodCash,
		"cash":       MethodCash,
		" upi ":      MethodElectronic,
		"ELECTRONIC": MethodElectronic,
		"cash_upi":   MethodMixed,
		"Mixed":      MethodMixed,
	}
	for raw, want := range cases {
		got, err := ParseMethod(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := ParseMethod("cheque")
	assert.ErrorIs(t, err, ErrInvalidMethod)
}

func TestResolveSplit(t *testing.T) {
	cases := []struct {
		name      string
		in        SplitInput
		allowZero bool
		err       error
		cash      string
		elec      string
	}{
		{name: "cash", in: SplitInput{Amount: dec("100.004"), Method: MethodCash}, cash: "100.00", elec: "0.00"},
		{name: "electronic", in: SplitInput{Amount: dec("80"), Method: MethodElectronic, Account: "acct-1"}, cash: "0.00", elec: "80.00"},
		{name: "electronic_without_account", in: SplitInput{Amount: dec("80"), Method: MethodElectronic, Account: "  "}, err: ErrAccountRequired},
		{name: "zero_amount", in: SplitInput{Amount: dec("0.004"), Method: MethodCash}, err: ErrInvalidAmount},
		{name: "negative_amount", in: SplitInput{Amount: dec("-5"), Method: MethodCash}, err: ErrInvalidAmount},
		{
			name: "mixed",
			in:   SplitInput{Amount: dec("100"), Method: MethodMixed, Cash: decPtr("60.001"), Electronic: decPtr("39.999"), Account: "acct-1"},
			cash: "60.00", elec: "40.00",
		},
		{
			name: "mixed_mismatch",
			in:   SplitInput{Amount: dec("100"), Method: MethodMixed, Cash: decPtr("60"), Electronic: decPtr("30"), Account: "acct-1"},
			err:  ErrSplitMismatch,
		},
		{
			name: "mixed_zero_component",
			in:   SplitInput{Amount: dec("100"), Method: MethodMixed, Cash: decPtr("100"), Electronic: decPtr("0"), Account: "acct-1"},
			err:  ErrSplitMismatch,
		},
		{
			name:      "mixed_zero_component_allowed",
			in:        SplitInput{Amount: dec("100"), Method: MethodMixed, Cash: decPtr("100"), Account: "acct-1"},
			allowZero: true,
			cash:      "100.00",
			elec:      "0.00",
		},
		{
			name: "mixed_without_account",
			in:   SplitInput{Amount: dec("100"), Method: MethodMixed, Cash: decPtr("50"), Electronic: decPtr("50")},
			err:  ErrAccountRequired,
		},
		{
			name:      "mixed_negative_component",
			in:        SplitInput{Amount: dec("100"), Method: MethodMixed, Cash: decPtr("150"), Electronic: decPtr("-50"), Account: "acct-1"},
			allowZero: true,
			err:       ErrInvalidAmount,
		},
		{name: "unknown_method", in: SplitInput{Amount: dec("1"), Method: Method("BARTER")}, err: ErrInvalidMethod},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			split, err := ResolveSplit(tc.in, tc.allowZero)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.cash, split.Cash.StringFixed(2))
			assert.Equal(t, tc.elec, split.Electronic.StringFixed(2))
			assert.True(t, split.Cash.Add(split.Electronic).Equal(split.Amount))
		})
	}
}
