package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/crateflow/internal/audit/domain"
	invoicedomain "github.com/smallbiznis/crateflow/internal/invoice/domain"
	"github.com/smallbiznis/crateflow/internal/lock"
	obsmetrics "github.com/smallbiznis/crateflow/internal/observability/metrics"
	"github.com/smallbiznis/crateflow/internal/observability/tracing"
	pricingdomain "github.com/smallbiznis/crateflow/internal/pricing/domain"
	"github.com/smallbiznis/crateflow/pkg/money"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// VoidAndReissue cancels an invoice and creates a draft replacement priced at
// today's rates. Quantities and delivery links move to the replacement unchanged.
func (s *Service) VoidAndReissue(ctx context.Context, invoiceID string, req invoicedomain.VoidReissueRequest) (resp invoicedomain.VoidReissueResponse, err error) {
	ctx, span := tracing.Tracer("invoice").Start(ctx, "invoice.VoidAndReissue")
	defer func() {
		s.metrics.IncOperationError(obsmetrics.OperationVoidReissue, err)
		tracing.EndSpan(span, err)
	}()

	id, err := parseID(invoiceID)
	if err != nil {
		return invoicedomain.VoidReissueResponse{}, invoicedomain.ErrInvalidID
	}
	reason, err := normalizeReason(req.Reason)
	if err != nil {
		return invoicedomain.VoidReissueResponse{}, err
	}

	release, err := s.locker.Acquire(ctx, lock.InvoiceKey(id))
	if err != nil {
		return invoicedomain.VoidReissueResponse{}, err
	}
	defer release()

	var previous invoicedomain.Status
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		old, err := s.loadForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := checkCancellable(old); err != nil {
			return err
		}
		oldItems, err := s.repo.ListItems(ctx, tx, old.ID)
		if err != nil {
			return err
		}
		if len(oldItems) == 0 {
			return fmt.Errorf("%w: invoice %s", invoicedomain.ErrNoLineItems, old.ID)
		}

		book, err := pricingdomain.LoadPriceBook(ctx, tx, s.prices, old.ClientID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		reissued := invoicedomain.Invoice{
			ID:                s.genID.Generate(),
			ClientID:          old.ClientID,
			Status:            invoicedomain.StatusDraft,
			TotalAmount:       decimal.Zero,
			AmountPaid:        decimal.Zero,
			Version:           1,
			ReplacesInvoiceID: &old.ID,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := s.repo.Insert(ctx, tx, &reissued); err != nil {
			return err
		}

		items := make([]invoicedomain.InvoiceItem, 0, len(oldItems))
		total := decimal.Zero
		for _, item := range oldItems {
			price, err := repriceItem(book, old, item, now)
			if err != nil {
				return err
			}
			line := money.LineTotal(item.Quantity, price)
			items = append(items, invoicedomain.InvoiceItem{
				ID:            s.genID.Generate(),
				InvoiceID:     reissued.ID,
				ContainerID:   item.ContainerID,
				Quantity:      item.Quantity,
				PriceSnapshot: price,
				Total:         line,
				CreatedAt:     now,
			})
			total = money.Round2(total.Add(line))
		}
		if err := s.repo.InsertItems(ctx, tx, items); err != nil {
			return err
		}

		relinked, err := s.deliveries.Relink(ctx, tx, old.ID, reissued.ID)
		if err != nil {
			return err
		}

		previous = old.Status
		old.Status = invoicedomain.StatusCancelled
		old.CancelledAt = &now
		old.CancelReason = &reason
		old.ReplacedByInvoiceID = &reissued.ID
		old.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, old, old.Version); err != nil {
			return err
		}

		reissued.TotalAmount = total
		if err := s.repo.Update(ctx, tx, &reissued, reissued.Version); err != nil {
			return err
		}

		resp = invoicedomain.VoidReissueResponse{
			Voided:   *old,
			Reissued: reissued,
			Items:    items,
			Relinked: relinked,
		}
		return nil
	})
	if err != nil {
		return invoicedomain.VoidReissueResponse{}, err
	}

	s.metrics.IncTransition(string(previous), string(invoicedomain.StatusCancelled))
	s.log.Info("invoice voided and reissued",
		zap.String("voided_id", resp.Voided.ID.String()),
		zap.String("reissued_id", resp.Reissued.ID.String()),
		zap.String("old_total", resp.Voided.TotalAmount.StringFixed(2)),
		zap.String("new_total", resp.Reissued.TotalAmount.StringFixed(2)),
	)
	s.recordAudit(ctx, auditdomain.ActionVoidReissueInvoice, resp.Voided,
		fmt.Sprintf("invoice %s voided and reissued as %s. reason: %s", resp.Voided.ID, resp.Reissued.ID, reason),
		map[string]any{
			"previous_status":     string(previous),
			"reissued_invoice_id": resp.Reissued.ID.String(),
			"new_total_amount":    resp.Reissued.TotalAmount.StringFixed(2),
			"relinked_deliveries": resp.Relinked,
			"reason":              reason,
		},
	)
	return resp, nil
}

// repriceItem resolves the current price of an old line. The old snapshot is
// used only when the pair has never been priced.
func repriceItem(book pricingdomain.PriceBook, old *invoicedomain.Invoice, item invoicedomain.InvoiceItem, at time.Time) (decimal.Decimal, error) {
	entry, err := book.Resolve(old.ClientID, item.ContainerID, at)
	if err == nil {
		return money.Round2(entry.Price), nil
	}
	if errors.Is(err, pricingdomain.ErrPriceNotSet) && !book.HasHistory(old.ClientID, item.ContainerID) {
		return money.Round2(item.PriceSnapshot), nil
	}
	return decimal.Zero, err
}
