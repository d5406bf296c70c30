package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/crateflow/internal/invoice/domain"
)

const maxListLimit = 500

// List returns invoices newest first with their status as of now. Filtering by
// overdue selects pending invoices past their due date; pending excludes them.
func (s *Service) List(ctx context.Context, req invoicedomain.ListInvoiceRequest) ([]invoicedomain.View, error) {
	now := s.clock.Now()

	filter := invoicedomain.ListFilter{Limit: req.Limit}
	if filter.Limit <= 0 || filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if strings.TrimSpace(req.ClientID) != "" {
		id, err := parseID(req.ClientID)
		if err != nil {
			return nil, invoicedomain.ErrInvalidClient
		}
		filter.ClientID = &id
	}

	if raw := strings.TrimSpace(req.Status); raw != "" {
		status, ok := invoicedomain.ParseStatus(strings.ToLower(raw))
		if !ok {
			return nil, fmt.Errorf("%w: %q", invoicedomain.ErrInvalidStatus, raw)
		}
		switch status {
		case invoicedomain.StatusOverdue:
			filter.Statuses = []invoicedomain.Status{invoicedomain.StatusPending}
			filter.DueBefore = &now
		case invoicedomain.StatusPending:
			filter.Statuses = []invoicedomain.Status{invoicedomain.StatusPending}
			filter.NotDueBefore = &now
		default:
			filter.Statuses = []invoicedomain.Status{status}
		}
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}

	views := make([]invoicedomain.View, 0, len(items))
	for _, item := range items {
		views = append(views, invoicedomain.NewView(item, now))
	}
	return views, nil
}

// Get returns one invoice with its line items and payments, newest payment first.
func (s *Service) Get(ctx context.Context, invoiceID string) (invoicedomain.Detail, error) {
	id, err := parseID(invoiceID)
	if err != nil {
		return invoicedomain.Detail{}, invoicedomain.ErrInvalidID
	}
	return s.detail(ctx, id)
}

func (s *Service) detail(ctx context.Context, id snowflake.ID) (invoicedomain.Detail, error) {
	invoice, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return invoicedomain.Detail{}, err
	}
	if invoice == nil {
		return invoicedomain.Detail{}, fmt.Errorf("%w: %s", invoicedomain.ErrNotFound, id)
	}
	items, err := s.repo.ListItems(ctx, s.db, id)
	if err != nil {
		return invoicedomain.Detail{}, err
	}
	payments, err := s.payments.ListByInvoice(ctx, s.db, id)
	if err != nil {
		return invoicedomain.Detail{}, err
	}

	return invoicedomain.Detail{
		View:     invoicedomain.NewView(*invoice, s.clock.Now()),
		Items:    items,
		Payments: payments,
	}, nil
}
