package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/crateflow/internal/audit/domain"
	invoicedomain "github.com/smallbiznis/crateflow/internal/invoice/domain"
	"github.com/smallbiznis/crateflow/internal/lock"
	obsmetrics "github.com/smallbiznis/crateflow/internal/observability/metrics"
	"github.com/smallbiznis/crateflow/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/crateflow/internal/payment/domain"
	"github.com/smallbiznis/crateflow/pkg/money"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxLockAttempts = 3

// errLockSetChanged means an invoice joined or left the month between the
// unlocked read and the locked one.
var errLockSetChanged = errors.New("lock_set_changed")

// PayMonth spreads one client payment over the open invoices created in a
// calendar month, oldest first, in a single transaction.
func (s *Service) PayMonth(ctx context.Context, req paymentdomain.MonthlyPaymentRequest) (resp paymentdomain.MonthlyPaymentResponse, err error) {
	ctx, span := tracing.Tracer("payment").Start(ctx, "payment.PayMonth")
	defer func() {
		s.metrics.IncOperationError(obsmetrics.OperationPayMonth, err)
		tracing.EndSpan(span, err)
	}()

	clientID, err := parseID(req.ClientID)
	if err != nil {
		return paymentdomain.MonthlyPaymentResponse{}, paymentdomain.ErrInvalidClient
	}
	if req.Month < 1 || req.Month > 12 || req.Year < 1 || req.Year > 9999 {
		return paymentdomain.MonthlyPaymentResponse{}, fmt.Errorf("%w: %04d-%02d", paymentdomain.ErrInvalidPeriod, req.Year, req.Month)
	}
	method, err := paymentdomain.ParseMethod(req.Method)
	if err != nil {
		return paymentdomain.MonthlyPaymentResponse{}, err
	}

	from := time.Date(req.Year, time.Month(req.Month), 1, 0, 0, 0, 0, time.UTC)
	period := invoicedomain.PeriodFilter{ClientID: clientID, From: from, To: from.AddDate(0, 1, 0)}
	input := paymentdomain.SplitInput{
		Amount:     req.Amount,
		Method:     method,
		Cash:       req.CashAmount,
		Electronic: req.ElectronicAmount,
		Account:    req.ElectronicAccount,
	}

	var results []applied
	for attempt := 1; ; attempt++ {
		resp, results, err = s.payMonthOnce(ctx, period, input)
		if !errors.Is(err, errLockSetChanged) {
			break
		}
		if attempt == maxLockAttempts {
			return paymentdomain.MonthlyPaymentResponse{}, fmt.Errorf("%w: open invoices of client %s kept changing",
				invoicedomain.ErrConcurrentModification, clientID)
		}
		s.log.Debug("monthly lock set changed, retrying", zap.Int("attempt", attempt))
	}
	if err != nil {
		return paymentdomain.MonthlyPaymentResponse{}, err
	}
	resp.Year = req.Year
	resp.Month = req.Month

	for _, r := range results {
		s.observe(r)
	}
	s.metrics.ObserveAllocation(len(results))
	s.log.Info("monthly payment allocated",
		zap.String("client_id", clientID.String()),
		zap.String("allocation_id", resp.AllocationID.String()),
		zap.String("amount", resp.Amount.StringFixed(2)),
		zap.Int("invoices", len(results)),
		zap.String("outstanding_remaining", resp.OutstandingRemaining.StringFixed(2)),
	)
	_ = s.auditSvc.Record(ctx, auditdomain.Entry{
		Action:     auditdomain.ActionMonthlyPayment,
		EntityType: auditdomain.EntityClient,
		EntityID:   clientID.String(),
		Details: fmt.Sprintf("Monthly payment %s for %04d-%02d allocated to %d invoice(s) | Method: %s",
			resp.Amount.StringFixed(2), req.Year, req.Month, len(results), method),
		Metadata: monthlyMetadata(resp, req.ElectronicAccount),
	})
	return resp, nil
}

func (s *Service) payMonthOnce(ctx context.Context, period invoicedomain.PeriodFilter, input paymentdomain.SplitInput) (paymentdomain.MonthlyPaymentResponse, []applied, error) {
	ids, err := s.invoices.ListOpenIDs(ctx, s.db, period)
	if err != nil {
		return paymentdomain.MonthlyPaymentResponse{}, nil, err
	}
	if len(ids) == 0 {
		return paymentdomain.MonthlyPaymentResponse{}, nil, fmt.Errorf("%w: client %s %s",
			paymentdomain.ErrNoOpenInvoices, period.ClientID, period.From.Format("2006-01"))
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, lock.InvoiceKey(id))
	}
	release, err := lock.AcquireAll(ctx, s.locker, keys)
	if err != nil {
		return paymentdomain.MonthlyPaymentResponse{}, nil, err
	}
	defer release()

	var (
		resp    paymentdomain.MonthlyPaymentResponse
		results []applied
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoices, err := s.invoices.ListOpenForUpdate(ctx, tx, period)
		if err != nil {
			return err
		}
		if !sameIDs(ids, invoices) {
			return errLockSetChanged
		}

		byID := make(map[snowflake.ID]*invoicedomain.Invoice, len(invoices))
		balances := make([]paymentdomain.OpenBalance, 0, len(invoices))
		outstanding := decimal.Zero
		for i := range invoices {
			inv := &invoices[i]
			byID[inv.ID] = inv
			remaining := inv.Remaining()
			balances = append(balances, paymentdomain.OpenBalance{InvoiceID: inv.ID, Remaining: remaining})
			outstanding = money.Round2(outstanding.Add(remaining))
		}
		if !outstanding.IsPositive() {
			return paymentdomain.ErrNothingOutstanding
		}

		amount := money.Round2(input.Amount)
		if amount.GreaterThan(outstanding) {
			return fmt.Errorf("%w: %s over outstanding %s", paymentdomain.ErrExceedsBalance,
				amount.StringFixed(2), outstanding.StringFixed(2))
		}
		split, err := paymentdomain.ResolveSplit(input, false)
		if err != nil {
			return err
		}
		slices, err := paymentdomain.PlanAllocation(balances, split)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		allocationID := s.genID.Generate()
		lines := make([]paymentdomain.AllocationLine, 0, len(slices))
		for _, slice := range slices {
			inv := byID[slice.InvoiceID]
			if err := checkPayable(inv); err != nil {
				return err
			}
			if err := checkAmount(inv, slice.Applied); err != nil {
				return err
			}
			sliceSplit, err := paymentdomain.ResolveSplit(paymentdomain.SplitInput{
				Amount:     slice.Applied,
				Method:     split.Method,
				Cash:       &slice.Cash,
				Electronic: &slice.Electronic,
				Account:    input.Account,
			}, true)
			if err != nil {
				return fmt.Errorf("%w: invoice %s: %v", paymentdomain.ErrAllocationFailed, inv.ID, err)
			}

			result, err := s.apply(ctx, tx, inv, sliceSplit, &allocationID, now)
			if err != nil {
				return err
			}
			results = append(results, result)
			lines = append(lines, paymentdomain.AllocationLine{
				InvoiceID:  inv.ID,
				PaymentID:  result.payment.ID,
				Applied:    result.payment.Amount,
				Cash:       result.payment.CashAmount,
				Electronic: result.payment.ElectronicAmount,
				NewStatus:  string(result.invoice.Status),
				Remaining:  result.invoice.Remaining(),
			})
		}

		resp = paymentdomain.MonthlyPaymentResponse{
			AllocationID:         allocationID,
			ClientID:             period.ClientID,
			Amount:               split.Amount,
			Method:               split.Method,
			Allocations:          lines,
			OutstandingBefore:    outstanding,
			OutstandingRemaining: money.Round2(outstanding.Sub(split.Amount)),
		}
		return nil
	})
	if err != nil {
		return paymentdomain.MonthlyPaymentResponse{}, nil, err
	}
	return resp, results, nil
}

func sameIDs(ids []snowflake.ID, invoices []invoicedomain.Invoice) bool {
	if len(ids) != len(invoices) {
		return false
	}
	for i := range ids {
		if ids[i] != invoices[i].ID {
			return false
		}
	}
	return true
}

func monthlyMetadata(resp paymentdomain.MonthlyPaymentResponse, account string) map[string]any {
	allocations := make([]any, 0, len(resp.Allocations))
	for _, line := range resp.Allocations {
		allocations = append(allocations, map[string]any{
			"invoice_id": line.InvoiceID.String(),
			"applied":    line.Applied.StringFixed(2),
			"cash":       line.Cash.StringFixed(2),
			"electronic": line.Electronic.StringFixed(2),
			"new_status": line.NewStatus,
		})
	}
	metadata := map[string]any{
		"allocation_id":         resp.AllocationID.String(),
		"period":                fmt.Sprintf("%04d-%02d", resp.Year, resp.Month),
		"amount":                resp.Amount.StringFixed(2),
		"method":                string(resp.Method),
		"outstanding_before":    resp.OutstandingBefore.StringFixed(2),
		"outstanding_remaining": resp.OutstandingRemaining.StringFixed(2),
		"allocations":           allocations,
	}
	if account != "" {
		metadata["electronic_account"] = account
	}
	return metadata
}
