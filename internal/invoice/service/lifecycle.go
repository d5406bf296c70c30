package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	auditdomain "github.com/smallbiznis/crateflow/internal/audit/domain"
	invoicedomain "github.com/smallbiznis/crateflow/internal/invoice/domain"
	"github.com/smallbiznis/crateflow/internal/invoice/format"
	"github.com/smallbiznis/crateflow/internal/lock"
	obsmetrics "github.com/smallbiznis/crateflow/internal/observability/metrics"
	"github.com/smallbiznis/crateflow/internal/observability/tracing"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Confirm issues a draft: it becomes pending, gets its invoice number and a due date.
func (s *Service) Confirm(ctx context.Context, invoiceID string) (result invoicedomain.Invoice, err error) {
	ctx, span := tracing.Tracer("invoice").Start(ctx, "invoice.Confirm")
	defer func() {
		s.metrics.IncOperationError(obsmetrics.OperationConfirm, err)
		tracing.EndSpan(span, err)
	}()

	id, err := parseID(invoiceID)
	if err != nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidID
	}

	release, err := lock.AcquireAll(ctx, s.locker, []string{lock.InvoiceKey(id), lock.InvoiceSequenceKey})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	defer release()

	billing := s.policy.Billing()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.loadForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if invoice.Status != invoicedomain.StatusDraft {
			return fmt.Errorf("%w: invoice %s is %s", invoicedomain.ErrAlreadyProcessed, id, invoice.Status)
		}

		now := s.clock.Now()
		seq, err := s.repo.NextSequence(ctx, tx)
		if err != nil {
			return err
		}
		number, err := format.FormatInvoiceNumber(billing.InvoiceNumberTemplate, now, seq)
		if err != nil {
			return err
		}
		due := now.Add(billing.DueAfter())

		invoice.Status = invoicedomain.StatusPending
		invoice.InvoiceSeq = &seq
		invoice.InvoiceNumber = &number
		invoice.ConfirmedAt = &now
		invoice.DueDate = &due
		invoice.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, invoice, invoice.Version); err != nil {
			return err
		}
		result = *invoice
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	s.metrics.IncTransition(string(invoicedomain.StatusDraft), string(invoicedomain.StatusPending))
	s.log.Info("invoice confirmed",
		zap.String("invoice_id", result.ID.String()),
		zap.String("invoice_number", *result.InvoiceNumber),
		zap.Time("due_date", *result.DueDate),
	)
	s.recordAudit(ctx, auditdomain.ActionConfirmInvoice, result,
		fmt.Sprintf("invoice %s confirmed, due %s", *result.InvoiceNumber, result.DueDate.Format("2006-01-02")),
		map[string]any{
			"previous_status": string(invoicedomain.StatusDraft),
			"due_date":        result.DueDate.Format(time.RFC3339),
		},
	)
	return result, nil
}

// Cancel moves a draft or pending invoice without payments to cancelled.
func (s *Service) Cancel(ctx context.Context, invoiceID string, req invoicedomain.CancelRequest) (result invoicedomain.Invoice, err error) {
	ctx, span := tracing.Tracer("invoice").Start(ctx, "invoice.Cancel")
	defer func() {
		s.metrics.IncOperationError(obsmetrics.OperationCancel, err)
		tracing.EndSpan(span, err)
	}()

	id, err := parseID(invoiceID)
	if err != nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidID
	}
	reason, err := normalizeReason(req.Reason)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	release, err := s.locker.Acquire(ctx, lock.InvoiceKey(id))
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	defer release()

	var previous invoicedomain.Status
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.loadForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := checkCancellable(invoice); err != nil {
			return err
		}

		now := s.clock.Now()
		previous = invoice.Status
		invoice.Status = invoicedomain.StatusCancelled
		invoice.CancelledAt = &now
		invoice.CancelReason = &reason
		invoice.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, invoice, invoice.Version); err != nil {
			return err
		}
		result = *invoice
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	s.metrics.IncTransition(string(previous), string(invoicedomain.StatusCancelled))
	s.recordAudit(ctx, auditdomain.ActionCancelInvoice, result,
		fmt.Sprintf("invoice cancelled. reason: %s", reason),
		map[string]any{
			"previous_status": string(previous),
			"reason":          reason,
		},
	)
	return result, nil
}

// checkCancellable holds the preconditions shared by cancel and void.
func checkCancellable(invoice *invoicedomain.Invoice) error {
	if !invoice.Status.Cancellable() {
		return fmt.Errorf("%w: invoice %s is %s", invoicedomain.ErrInvalidState, invoice.ID, invoice.Status)
	}
	if invoice.AmountPaid.IsPositive() {
		return fmt.Errorf("%w: %s already paid", invoicedomain.ErrHasPayments, invoice.AmountPaid.StringFixed(2))
	}
	return nil
}

func normalizeReason(raw string) (string, error) {
	reason := strings.TrimSpace(raw)
	n := utf8.RuneCountInString(reason)
	if n < invoicedomain.MinReasonLength || n > invoicedomain.MaxReasonLength {
		return "", fmt.Errorf("%w: must be %d to %d characters", invoicedomain.ErrInvalidReason,
			invoicedomain.MinReasonLength, invoicedomain.MaxReasonLength)
	}
	return reason, nil
}
