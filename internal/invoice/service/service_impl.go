package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/crateflow/internal/audit/domain"
	"github.com/smallbiznis/crateflow/internal/clock"
	"github.com/smallbiznis/crateflow/internal/config"
	deliverydomain "github.com/smallbiznis/crateflow/internal/delivery/domain"
	invoicedomain "github.com/smallbiznis/crateflow/internal/invoice/domain"
	"github.com/smallbiznis/crateflow/internal/lock"
	masterdatadomain "github.com/smallbiznis/crateflow/internal/masterdata/domain"
	obsmetrics "github.com/smallbiznis/crateflow/internal/observability/metrics"
	"github.com/smallbiznis/crateflow/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/crateflow/internal/payment/domain"
	pricingdomain "github.com/smallbiznis/crateflow/internal/pricing/domain"
	"github.com/smallbiznis/crateflow/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Locker     lock.Locker
	Policy     *config.PolicyHolder
	Repo       invoicedomain.Repository
	Deliveries deliverydomain.Repository
	Prices     pricingdomain.Repository
	Payments   paymentdomain.Repository
	MasterData masterdatadomain.Repository
	AuditSvc   auditdomain.Service
	Metrics    *obsmetrics.BillingMetrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	locker     lock.Locker
	policy     *config.PolicyHolder
	repo       invoicedomain.Repository
	deliveries deliverydomain.Repository
	prices     pricingdomain.Repository
	payments   paymentdomain.Repository
	masterData masterdatadomain.Repository
	auditSvc   auditdomain.Service
	metrics    *obsmetrics.BillingMetrics
}

func NewService(p Params) invoicedomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("invoice.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		locker:     p.Locker,
		policy:     p.Policy,
		repo:       p.Repo,
		deliveries: p.Deliveries,
		prices:     p.Prices,
		payments:   p.Payments,
		masterData: p.MasterData,
		auditSvc:   p.AuditSvc,
		metrics:    p.Metrics,
	}
}

// GenerateDraft bills every unlinked delivery of a client into one draft invoice.
// Pricing happens before anything is written, so a missing price leaves no trace.
func (s *Service) GenerateDraft(ctx context.Context, clientID string) (resp invoicedomain.GenerateResponse, err error) {
	ctx, span := tracing.Tracer("invoice").Start(ctx, "invoice.GenerateDraft")
	defer func() {
		s.metrics.IncOperationError(obsmetrics.OperationGenerateDraft, err)
		tracing.EndSpan(span, err)
	}()

	id, err := parseID(clientID)
	if err != nil {
		return invoicedomain.GenerateResponse{}, invoicedomain.ErrInvalidClient
	}
	return s.generateForClient(ctx, id)
}

func (s *Service) generateForClient(ctx context.Context, clientID snowflake.ID) (invoicedomain.GenerateResponse, error) {
	release, err := s.locker.Acquire(ctx, lock.ClientBillingKey(clientID))
	if err != nil {
		return invoicedomain.GenerateResponse{}, err
	}
	defer release()

	billing := s.policy.Billing()
	var resp invoicedomain.GenerateResponse
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		snapshot := s.clock.Now()

		client, err := s.masterData.FindClient(ctx, tx, clientID)
		if err != nil {
			return err
		}
		if client == nil {
			return masterdatadomain.ErrClientNotFound
		}
		if !client.IsActive {
			return masterdatadomain.ErrClientInactive
		}

		filter := deliverydomain.UnbilledFilter{ClientID: clientID}
		if billing.LateDeliveryPolicy == config.LateDeliveryDefer {
			filter.CreatedBefore = &snapshot
		}

		quantities, err := s.deliveries.AggregateUnbilled(ctx, tx, filter)
		if err != nil {
			return err
		}
		billable := make([]deliverydomain.ContainerQuantity, 0, len(quantities))
		for _, q := range quantities {
			if q.Quantity > 0 {
				billable = append(billable, q)
			}
		}
		if len(billable) == 0 {
			return fmt.Errorf("%w: client %s", invoicedomain.ErrNoBillableDeliveries, clientID)
		}

		book, err := pricingdomain.LoadPriceBook(ctx, tx, s.prices, clientID)
		if err != nil {
			return err
		}
		prices := make([]decimal.Decimal, len(billable))
		for i, q := range billable {
			entry, err := book.Resolve(clientID, q.ContainerID, snapshot)
			if err != nil {
				return err
			}
			prices[i] = entry.Price
		}

		invoice := invoicedomain.Invoice{
			ID:          s.genID.Generate(),
			ClientID:    clientID,
			Status:      invoicedomain.StatusDraft,
			TotalAmount: decimal.Zero,
			AmountPaid:  decimal.Zero,
			Version:     1,
			CreatedAt:   snapshot,
			UpdatedAt:   snapshot,
		}
		if err := s.repo.Insert(ctx, tx, &invoice); err != nil {
			return err
		}

		items := make([]invoicedomain.InvoiceItem, 0, len(billable))
		total := decimal.Zero
		for i, q := range billable {
			line := money.LineTotal(q.Quantity, prices[i])
			items = append(items, invoicedomain.InvoiceItem{
				ID:            s.genID.Generate(),
				InvoiceID:     invoice.ID,
				ContainerID:   q.ContainerID,
				Quantity:      q.Quantity,
				PriceSnapshot: money.Round2(prices[i]),
				Total:         line,
				CreatedAt:     snapshot,
			})
			total = money.Round2(total.Add(line))
		}
		if err := s.repo.InsertItems(ctx, tx, items); err != nil {
			return err
		}

		invoice.TotalAmount = total
		if err := s.repo.Update(ctx, tx, &invoice, invoice.Version); err != nil {
			return err
		}

		linked, err := s.deliveries.LinkUnbilled(ctx, tx, filter, invoice.ID)
		if err != nil {
			return err
		}

		resp = invoicedomain.GenerateResponse{Invoice: invoice, Items: items, Linked: linked}
		return nil
	})
	if err != nil {
		return invoicedomain.GenerateResponse{}, err
	}

	s.metrics.IncInvoiceGenerated()
	s.log.Info("draft invoice generated",
		zap.String("invoice_id", resp.Invoice.ID.String()),
		zap.String("client_id", clientID.String()),
		zap.String("total", resp.Invoice.TotalAmount.StringFixed(2)),
		zap.Int64("linked_deliveries", resp.Linked),
	)
	s.recordAudit(ctx, auditdomain.ActionGenerateDraftInvoice, resp.Invoice,
		fmt.Sprintf("draft invoice generated for client %s with total %s", clientID, resp.Invoice.TotalAmount.StringFixed(2)),
		map[string]any{
			"line_items":           len(resp.Items),
			"linked_deliveries":    resp.Linked,
			"late_delivery_policy": billing.LateDeliveryPolicy,
		},
	)
	return resp, nil
}

// GenerateAll drafts an invoice for every active client. A failing client is
// reported as skipped and never stops the batch.
func (s *Service) GenerateAll(ctx context.Context) (invoicedomain.GenerateAllResponse, error) {
	ctx, span := tracing.Tracer("invoice").Start(ctx, "invoice.GenerateAll")
	defer span.End()

	clients, err := s.masterData.ListActiveClients(ctx, s.db)
	if err != nil {
		return invoicedomain.GenerateAllResponse{}, err
	}

	resp := invoicedomain.GenerateAllResponse{
		Generated: []invoicedomain.Invoice{},
		Skipped:   []invoicedomain.SkippedClient{},
	}
	for _, client := range clients {
		if err := ctx.Err(); err != nil {
			return resp, err
		}
		generated, err := s.generateForClient(ctx, client.ID)
		if err != nil {
			label := skipLabel(err)
			s.metrics.IncGenerationSkipped(label)
			if label == "error" {
				s.log.Warn("draft generation failed",
					zap.String("client_id", client.ID.String()),
					zap.Error(err),
				)
			}
			resp.Skipped = append(resp.Skipped, invoicedomain.SkippedClient{
				ClientID: client.ID,
				Reason:   err.Error(),
			})
			continue
		}
		resp.Generated = append(resp.Generated, generated.Invoice)
	}

	s.log.Info("batch generation finished",
		zap.Int("generated", len(resp.Generated)),
		zap.Int("skipped", len(resp.Skipped)),
	)
	return resp, nil
}

func skipLabel(err error) string {
	switch {
	case errors.Is(err, invoicedomain.ErrNoBillableDeliveries):
		return "no_billable_deliveries"
	case errors.Is(err, pricingdomain.ErrPriceNotSet):
		return "price_not_set"
	case errors.Is(err, lock.ErrLockTimeout):
		return "lock_timeout"
	default:
		return "error"
	}
}

func (s *Service) recordAudit(ctx context.Context, action string, invoice invoicedomain.Invoice, details string, extra map[string]any) {
	metadata := map[string]any{
		"client_id":    invoice.ClientID.String(),
		"status":       string(invoice.Status),
		"total_amount": invoice.TotalAmount.StringFixed(2),
		"amount_paid":  invoice.AmountPaid.StringFixed(2),
	}
	if invoice.InvoiceNumber != nil {
		metadata["invoice_number"] = *invoice.InvoiceNumber
	}
	for key, value := range extra {
		if key == "" {
			continue
		}
		metadata[key] = value
	}

	_ = s.auditSvc.Record(ctx, auditdomain.Entry{
		Action:     action,
		EntityType: auditdomain.EntityInvoice,
		EntityID:   invoice.ID.String(),
		Details:    details,
		Metadata:   metadata,
	})
}

func (s *Service) loadForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*invoicedomain.Invoice, error) {
	invoice, err := s.repo.FindByIDForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, fmt.Errorf("%w: %s", invoicedomain.ErrNotFound, id)
	}
	return invoice, nil
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, errors.New("zero id")
	}
	return id, nil
}
