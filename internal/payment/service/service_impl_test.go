package service_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/crateflow/internal/audit/domain"
	"github.com/smallbiznis/crateflow/internal/billingtest"
	invoicedomain "github.com/smallbiznis/crateflow/internal/invoice/domain"
	invoicerepo "github.com/smallbiznis/crateflow/internal/invoice/repository"
	masterdatadomain "github.com/smallbiznis/crateflow/internal/masterdata/domain"
	paymentdomain "github.com/smallbiznis/crateflow/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/crateflow/internal/payment/repository"
	paymentservice "github.com/smallbiznis/crateflow/internal/payment/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newPaymentService(env *billingtest.Env) paymentdomain.Service {
	return paymentservice.NewService(paymentservice.Params{
		DB:       env.DB,
		Log:      zap.NewNop(),
		GenID:    env.Node,
		Clock:    env.Clock,
		Locker:   env.Locker,
		Repo:     paymentrepo.Provide(),
		Invoices: invoicerepo.Provide(),
		AuditSvc: env.Audit,
	})
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func decPtr(v string) *decimal.Decimal {
	d := dec(v)
	return &d
}

func paymentCount(t *testing.T, env *billingtest.Env) int64 {
	t.Helper()
	var n int64
	require.NoError(t, env.DB.Model(&paymentdomain.Payment{}).Count(&n).Error)
	return n
}

func setup(t *testing.T) (*billingtest.Env, paymentdomain.Service, masterdatadomain.Client) {
	t.Helper()
	env := billingtest.NewEnv(t)
	return env, newPaymentService(env), env.Client(t, "Acme")
}

func TestRecordSettlesInvoice(t *testing.T) {
	ctx := context.Background()
	env, svc, client := setup(t)
	inv := env.Invoice(t, client.ID, invoicedomain.StatusPending, "100", billingtest.Epoch)

	first, err := svc.Record(ctx, inv.ID.String(), paymentdomain.RecordPaymentRequest{Amount: dec("40")})
	require.NoError(t, err)
	assert.Equal(t, string(invoicedomain.StatusPartial), first.NewStatus)
	assert.Equal(t, "60.00", first.Remaining.StringFixed(2))
	assert.Equal(t, paymentdomain.MethodCash, first.Payment.Method)
	assert.Equal(t, "40.00", first.Payment.CashAmount.StringFixed(2))
	assert.True(t, strings.HasPrefix(first.Payment.ReceiptNumber, "RCPT-"))

	_, err = svc.Record(ctx, inv.ID.String(), paymentdomain.RecordPaymentRequest{Amount: dec("60.01")})
	assert.ErrorIs(t, err, paymentdomain.ErrExceedsBalance)

	second, err := svc.Record(ctx, inv.ID.String(), paymentdomain.RecordPaymentRequest{
		Amount:            dec("60"),
		Method:            "upi",
		ElectronicAccount: "acme@bank",
	})
	require.NoError(t, err)
	assert.Equal(t, string(invoicedomain.StatusPaid), second.NewStatus)
	assert.True(t, second.Remaining.IsZero())
	assert.Equal(t, paymentdomain.MethodElectronic, second.Payment.Method)
	require.NotNil(t, second.Payment.ElectronicAccount)
	assert.Equal(t, "acme@bank", *second.Payment.ElectronicAccount)
	assert.NotEqual(t, first.Payment.ReceiptNumber, second.Payment.ReceiptNumber)

	stored := env.LoadInvoice(t, inv.ID)
	assert.Equal(t, invoicedomain.StatusPaid, stored.Status)
	assert.Equal(t, "100.00", stored.AmountPaid.StringFixed(2))

	_, err = svc.Record(ctx, inv.ID.String(), paymentdomain.RecordPaymentRequest{Amount: dec("1")})
	assert.ErrorIs(t, err, paymentdomain.ErrAlreadySettled)

	payments, err := svc.ListByInvoice(ctx, inv.ID.String())
	require.NoError(t, err)
	assert.Len(t, payments, 2)

	assert.Equal(t, []string{auditdomain.ActionAddPayment, auditdomain.ActionAddPayment}, env.Audit.Actions())
	assert.Equal(t, "partial", env.Audit.Entries[1].Metadata["previous_status"])
}

func TestRecordRejects(t *testing.T) {
	ctx := context.Background()
	env, svc, client := setup(t)
	pending := env.Invoice(t, client.ID, invoicedomain.StatusPending, "100", billingtest.Epoch)
	draft := env.Invoice(t, client.ID, invoicedomain.StatusDraft, "100", billingtest.Epoch)
	cancelled := env.Invoice(t, client.ID, invoicedomain.StatusCancelled, "100", billingtest.Epoch)

	cases := []struct {
		name      string
		invoiceID string
		req       paymentdomain.RecordPaymentRequest
		err       error
	}{
		{name: "bad_id", invoiceID: "nope", req: paymentdomain.RecordPaymentRequest{Amount: dec("1")}, err: paymentdomain.ErrInvalidInvoice},
		{name: "unknown", invoiceID: env.Node.Generate().String(), req: paymentdomain.RecordPaymentRequest{Amount: dec("1")}, err: paymentdomain.ErrInvoiceNotFound},
		{name: "draft", invoiceID: draft.ID.String(), req: paymentdomain.RecordPaymentRequest{Amount: dec("1")}, err: paymentdomain.ErrNotConfirmed},
		{name: "cancelled", invoiceID: cancelled.ID.String(), req: paymentdomain.RecordPaymentRequest{Amount: dec("1")}, err: paymentdomain.ErrInvalidState},
		{name: "zero", invoiceID: pending.ID.String(), req: paymentdomain.RecordPaymentRequest{Amount: dec("0.001")}, err: paymentdomain.ErrInvalidAmount},
		{name: "method", invoiceID: pending.ID.String(), req: paymentdomain.RecordPaymentRequest{Amount: dec("1"), Method: "cheque"}, err: paymentdomain.ErrInvalidMethod},
		{name: "account", invoiceID: pending.ID.String(), req: paymentdomain.RecordPaymentRequest{Amount: dec("1"), Method: "ELECTRONIC"}, err: paymentdomain.ErrAccountRequired},
		{
			name:      "split_mismatch",
			invoiceID: pending.ID.String(),
			req: paymentdomain.RecordPaymentRequest{
				Amount:            dec("50"),
				Method:            "MIXED",
				CashAmount:        decPtr("30"),
				ElectronicAmount:  decPtr("10"),
				ElectronicAccount: "acme@bank",
			},
			err: paymentdomain.ErrSplitMismatch,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Record(ctx, tc.invoiceID, tc.req)
			assert.ErrorIs(t, err, tc.err)
		})
	}

	stored := env.LoadInvoice(t, pending.ID)
	assert.Equal(t, invoicedomain.StatusPending, stored.Status)
	assert.True(t, stored.AmountPaid.IsZero())
	assert.Equal(t, int64(1), stored.Version)
	assert.Zero(t, paymentCount(t, env))
	assert.Empty(t, env.Audit.Entries)
}

func TestRecordAcceptsOverdueInvoice(t *testing.T) {
	ctx := context.Background()
	env, svc, client := setup(t)
	inv := env.Invoice(t, client.ID, invoicedomain.StatusPending, "100", billingtest.Epoch)
	env.Clock.Advance(30 * 24 * time.Hour)

	resp, err := svc.Record(ctx, inv.ID.String(), paymentdomain.RecordPaymentRequest{
		Amount:            dec("100"),
		Method:            "cash_upi",
		CashAmount:        decPtr("70"),
		ElectronicAmount:  decPtr("30"),
		ElectronicAccount: "acme@bank",
	})
	require.NoError(t, err)
	assert.Equal(t, string(invoicedomain.StatusPaid), resp.NewStatus)
	assert.Equal(t, paymentdomain.MethodMixed, resp.Payment.Method)
	assert.Equal(t, "70.00", resp.Payment.CashAmount.StringFixed(2))
	assert.Equal(t, "30.00", resp.Payment.ElectronicAmount.StringFixed(2))
}

func TestPayMonthMixed(t *testing.T) {
	ctx := context.Background()
	env, svc, client := setup(t)
	march := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)

	older := env.Invoice(t, client.ID, invoicedomain.StatusPending, "300", march.AddDate(0, 0, 1))
	newer := env.Invoice(t, client.ID, invoicedomain.StatusPending, "150", march.AddDate(0, 0, 9))
	february := env.Invoice(t, client.ID, invoicedomain.StatusPending, "500", march.Add(-time.Second))
	env.Invoice(t, client.ID, invoicedomain.StatusDraft, "70", march.AddDate(0, 0, 3))
	env.Invoice(t, client.ID, invoicedomain.StatusPaid, "80", march.AddDate(0, 0, 4))
	env.Invoice(t, env.Client(t, "Other").ID, invoicedomain.StatusPending, "90", march.AddDate(0, 0, 2))

	resp, err := svc.PayMonth(ctx, paymentdomain.MonthlyPaymentRequest{
		ClientID:          client.ID.String(),
		Year:              2024,
		Month:             3,
		Amount:            dec("400"),
		Method:            "MIXED",
		CashAmount:        decPtr("250"),
		ElectronicAmount:  decPtr("150"),
		ElectronicAccount: "acme@bank",
	})
	require.NoError(t, err)

	assert.NotZero(t, resp.AllocationID)
	assert.Equal(t, "450.00", resp.OutstandingBefore.StringFixed(2))
	assert.Equal(t, "50.00", resp.OutstandingRemaining.StringFixed(2))
	require.Len(t, resp.Allocations, 2)

	first := resp.Allocations[0]
	assert.Equal(t, older.ID, first.InvoiceID)
	assert.Equal(t, "300.00", first.Applied.StringFixed(2))
	assert.Equal(t, "187.50", first.Cash.StringFixed(2))
	assert.Equal(t, "112.50", first.Electronic.StringFixed(2))
	assert.Equal(t, string(invoicedomain.StatusPaid), first.NewStatus)

	second := resp.Allocations[1]
	assert.Equal(t, newer.ID, second.InvoiceID)
	assert.Equal(t, "100.00", second.Applied.StringFixed(2))
	assert.Equal(t, "62.50", second.Cash.StringFixed(2))
	assert.Equal(t, "37.50", second.Electronic.StringFixed(2))
	assert.Equal(t, string(invoicedomain.StatusPartial), second.NewStatus)
	assert.Equal(t, "50.00", second.Remaining.StringFixed(2))

	assert.Equal(t, invoicedomain.StatusPaid, env.LoadInvoice(t, older.ID).Status)
	assert.Equal(t, "100.00", env.LoadInvoice(t, newer.ID).AmountPaid.StringFixed(2))
	assert.True(t, env.LoadInvoice(t, february.ID).AmountPaid.IsZero())

	var payments []paymentdomain.Payment
	require.NoError(t, env.DB.Where("allocation_id = ?", resp.AllocationID).Find(&payments).Error)
	require.Len(t, payments, 2)
	cash, electronic := decimal.Zero, decimal.Zero
	for _, p := range payments {
		cash = cash.Add(p.CashAmount)
		electronic = electronic.Add(p.ElectronicAmount)
		assert.Equal(t, paymentdomain.MethodMixed, p.Method)
	}
	assert.Equal(t, "250.00", cash.StringFixed(2))
	assert.Equal(t, "150.00", electronic.StringFixed(2))

	assert.Equal(t, []string{auditdomain.ActionMonthlyPayment}, env.Audit.Actions())
	assert.Equal(t, "2024-03", env.Audit.Entries[0].Metadata["period"])
}

func TestPayMonthIncludesOverdue(t *testing.T) {
	ctx := context.Background()
	env, svc, client := setup(t)
	inv := env.Invoice(t, client.ID, invoicedomain.StatusPending, "120", billingtest.Epoch)
	env.Clock.Set(billingtest.Epoch.AddDate(0, 2, 0))

	resp, err := svc.PayMonth(ctx, paymentdomain.MonthlyPaymentRequest{
		ClientID: client.ID.String(),
		Year:     2024,
		Month:    3,
		Amount:   dec("120"),
	})
	require.NoError(t, err)
	require.Len(t, resp.Allocations, 1)
	assert.Equal(t, inv.ID, resp.Allocations[0].InvoiceID)
	assert.True(t, resp.OutstandingRemaining.IsZero())
}

func TestPayMonthRejects(t *testing.T) {
	ctx := context.Background()
	env, svc, client := setup(t)
	march := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	a := env.Invoice(t, client.ID, invoicedomain.StatusPending, "300", march.AddDate(0, 0, 1))
	env.Invoice(t, client.ID, invoicedomain.StatusPending, "150", march.AddDate(0, 0, 9))
	env.Invoice(t, client.ID, invoicedomain.StatusPending, "0", time.Date(2024, time.May, 2, 0, 0, 0, 0, time.UTC))

	base := paymentdomain.MonthlyPaymentRequest{ClientID: client.ID.String(), Year: 2024, Month: 3, Amount: dec("100")}
	cases := []struct {
		name   string
		mutate func(*paymentdomain.MonthlyPaymentRequest)
		err    error
	}{
		{name: "bad_client", mutate: func(r *paymentdomain.MonthlyPaymentRequest) { r.ClientID = "x" }, err: paymentdomain.ErrInvalidClient},
		{name: "month_13", mutate: func(r *paymentdomain.MonthlyPaymentRequest) { r.Month = 13 }, err: paymentdomain.ErrInvalidPeriod},
		{name: "month_0", mutate: func(r *paymentdomain.MonthlyPaymentRequest) { r.Month = 0 }, err: paymentdomain.ErrInvalidPeriod},
		{name: "no_open", mutate: func(r *paymentdomain.MonthlyPaymentRequest) { r.Month = 4 }, err: paymentdomain.ErrNoOpenInvoices},
		{name: "nothing_outstanding", mutate: func(r *paymentdomain.MonthlyPaymentRequest) { r.Month = 5 }, err: paymentdomain.ErrNothingOutstanding},
		{name: "exceeds", mutate: func(r *paymentdomain.MonthlyPaymentRequest) { r.Amount = dec("450.01") }, err: paymentdomain.ErrExceedsBalance},
		{name: "zero", mutate: func(r *paymentdomain.MonthlyPaymentRequest) { r.Amount = decimal.Zero }, err: paymentdomain.ErrInvalidAmount},
		{name: "method", mutate: func(r *paymentdomain.MonthlyPaymentRequest) { r.Method = "gold" }, err: paymentdomain.ErrInvalidMethod},
		{
			name: "split_mismatch",
			mutate: func(r *paymentdomain.MonthlyPaymentRequest) {
				r.Method = "MIXED"
				r.CashAmount = decPtr("60")
				r.ElectronicAmount = decPtr("30")
				r.ElectronicAccount = "acme@bank"
			},
			err: paymentdomain.ErrSplitMismatch,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := base
			tc.mutate(&req)
			_, err := svc.PayMonth(ctx, req)
			assert.ErrorIs(t, err, tc.err)
		})
	}

	assert.Zero(t, paymentCount(t, env))
	assert.True(t, env.LoadInvoice(t, a.ID).AmountPaid.IsZero())
	assert.Empty(t, env.Audit.Entries)
}

func TestPayMonthAuditFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	env, svc, client := setup(t)
	env.Audit.Err = assert.AnError
	inv := env.Invoice(t, client.ID, invoicedomain.StatusPending, "75", billingtest.Epoch)

	_, err := svc.PayMonth(ctx, paymentdomain.MonthlyPaymentRequest{
		ClientID: client.ID.String(),
		Year:     2024,
		Month:    3,
		Amount:   dec("75"),
	})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusPaid, env.LoadInvoice(t, inv.ID).Status)
}
