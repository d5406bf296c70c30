package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/crateflow/internal/audit/domain"
	"github.com/smallbiznis/crateflow/internal/clock"
	invoicedomain "github.com/smallbiznis/crateflow/internal/invoice/domain"
	"github.com/smallbiznis/crateflow/internal/lock"
	obsmetrics "github.com/smallbiznis/crateflow/internal/observability/metrics"
	"github.com/smallbiznis/crateflow/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/crateflow/internal/payment/domain"
	"github.com/smallbiznis/crateflow/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const receiptPrefix = "RCPT-"

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Locker   lock.Locker
	Repo     paymentdomain.Repository
	Invoices invoicedomain.Repository
	AuditSvc auditdomain.Service
	Metrics  *obsmetrics.BillingMetrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	locker   lock.Locker
	repo     paymentdomain.Repository
	invoices invoicedomain.Repository
	auditSvc auditdomain.Service
	metrics  *obsmetrics.BillingMetrics
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("payment.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		locker:   p.Locker,
		repo:     p.Repo,
		invoices: p.Invoices,
		auditSvc: p.AuditSvc,
		metrics:  p.Metrics,
	}
}

// applied is the outcome of one payment row written against one invoice.
type applied struct {
	payment  paymentdomain.Payment
	invoice  invoicedomain.Invoice
	previous invoicedomain.Status
}

// Record applies a payment to a single confirmed invoice.
func (s *Service) Record(ctx context.Context, invoiceID string, req paymentdomain.RecordPaymentRequest) (resp paymentdomain.RecordPaymentResponse, err error) {
	ctx, span := tracing.Tracer("payment").Start(ctx, "payment.Record")
	defer func() {
		s.metrics.IncOperationError(obsmetrics.OperationRecordPayment, err)
		tracing.EndSpan(span, err)
	}()

	id, err := parseID(invoiceID)
	if err != nil {
		return paymentdomain.RecordPaymentResponse{}, paymentdomain.ErrInvalidInvoice
	}
	method, err := paymentdomain.ParseMethod(req.Method)
	if err != nil {
		return paymentdomain.RecordPaymentResponse{}, err
	}
	input := paymentdomain.SplitInput{
		Amount:     req.Amount,
		Method:     method,
		Cash:       req.CashAmount,
		Electronic: req.ElectronicAmount,
		Account:    req.ElectronicAccount,
	}

	release, err := s.locker.Acquire(ctx, lock.InvoiceKey(id))
	if err != nil {
		return paymentdomain.RecordPaymentResponse{}, err
	}
	defer release()

	var result applied
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.invoices.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if invoice == nil {
			return fmt.Errorf("%w: %s", paymentdomain.ErrInvoiceNotFound, id)
		}
		if err := checkPayable(invoice); err != nil {
			return err
		}
		if err := checkAmount(invoice, money.Round2(req.Amount)); err != nil {
			return err
		}
		split, err := paymentdomain.ResolveSplit(input, false)
		if err != nil {
			return err
		}

		result, err = s.apply(ctx, tx, invoice, split, nil, s.clock.Now())
		return err
	})
	if err != nil {
		return paymentdomain.RecordPaymentResponse{}, err
	}

	s.observe(result)
	s.log.Info("payment recorded",
		zap.String("invoice_id", result.invoice.ID.String()),
		zap.String("receipt_number", result.payment.ReceiptNumber),
		zap.String("amount", result.payment.Amount.StringFixed(2)),
		zap.String("method", string(result.payment.Method)),
		zap.String("status", string(result.invoice.Status)),
	)
	_ = s.auditSvc.Record(ctx, auditdomain.Entry{
		Action:     auditdomain.ActionAddPayment,
		EntityType: auditdomain.EntityInvoice,
		EntityID:   result.invoice.ID.String(),
		Details:    paymentDetails(result.payment),
		Metadata:   paymentMetadata(result),
	})

	return paymentdomain.RecordPaymentResponse{
		Payment:   result.payment,
		NewStatus: string(result.invoice.Status),
		Remaining: result.invoice.Remaining(),
	}, nil
}

func (s *Service) ListByInvoice(ctx context.Context, invoiceID string) ([]paymentdomain.Payment, error) {
	id, err := parseID(invoiceID)
	if err != nil {
		return nil, paymentdomain.ErrInvalidInvoice
	}
	return s.repo.ListByInvoice(ctx, s.db, id)
}

// apply writes one payment row and settles the invoice. The caller holds the
// invoice row lock and has validated state and amount.
func (s *Service) apply(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice, split paymentdomain.Split, allocationID *snowflake.ID, now time.Time) (applied, error) {
	previous := invoice.Status
	paid := money.Round2(invoice.AmountPaid.Add(split.Amount))
	if paid.GreaterThan(invoice.TotalAmount) {
		return applied{}, fmt.Errorf("%w: %s over total %s", paymentdomain.ErrExceedsBalance,
			paid.StringFixed(2), invoice.TotalAmount.StringFixed(2))
	}
	next := invoicedomain.SettlementStatus(invoice.TotalAmount, paid)
	if !invoicedomain.CanTransition(previous, next) {
		return applied{}, fmt.Errorf("%w: %s to %s", paymentdomain.ErrInvalidState, previous, next)
	}

	payment := paymentdomain.Payment{
		ID:                s.genID.Generate(),
		InvoiceID:         invoice.ID,
		ClientID:          invoice.ClientID,
		ReceiptNumber:     newReceiptNumber(now),
		Amount:            split.Amount,
		Method:            split.Method,
		CashAmount:        split.Cash,
		ElectronicAmount:  split.Electronic,
		ElectronicAccount: split.Account,
		AllocationID:      allocationID,
		CreatedAt:         now,
	}
	if err := s.repo.Insert(ctx, tx, &payment); err != nil {
		return applied{}, err
	}

	invoice.AmountPaid = paid
	invoice.Status = next
	invoice.UpdatedAt = now
	if err := s.invoices.Update(ctx, tx, invoice, invoice.Version); err != nil {
		return applied{}, err
	}

	return applied{payment: payment, invoice: *invoice, previous: previous}, nil
}

func (s *Service) observe(result applied) {
	s.metrics.RecordPayment(string(result.payment.Method), result.payment.CashAmount, result.payment.ElectronicAmount)
	s.metrics.IncTransition(string(result.previous), string(result.invoice.Status))
}

// checkPayable maps the invoice state to the payment error taxonomy.
func checkPayable(invoice *invoicedomain.Invoice) error {
	switch invoice.Status {
	case invoicedomain.StatusDraft:
		return fmt.Errorf("%w: invoice %s", paymentdomain.ErrNotConfirmed, invoice.ID)
	case invoicedomain.StatusPaid:
		return fmt.Errorf("%w: invoice %s", paymentdomain.ErrAlreadySettled, invoice.ID)
	case invoicedomain.StatusCancelled:
		return fmt.Errorf("%w: invoice %s is cancelled", paymentdomain.ErrInvalidState, invoice.ID)
	}
	if !invoice.Status.AcceptsPayment() {
		return fmt.Errorf("%w: invoice %s is %s", paymentdomain.ErrInvalidState, invoice.ID, invoice.Status)
	}
	return nil
}

func checkAmount(invoice *invoicedomain.Invoice, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s", paymentdomain.ErrInvalidAmount, amount.StringFixed(2))
	}
	remaining := invoice.Remaining()
	if amount.GreaterThan(remaining) {
		return fmt.Errorf("%w: %s over remaining %s", paymentdomain.ErrExceedsBalance,
			amount.StringFixed(2), remaining.StringFixed(2))
	}
	return nil
}

func newReceiptNumber(at time.Time) string {
	return receiptPrefix + ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String()
}

func paymentDetails(p paymentdomain.Payment) string {
	account := "N/A"
	if p.ElectronicAccount != nil {
		account = *p.ElectronicAccount
	}
	return fmt.Sprintf("Payment added: %s | Method: %s | Cash: %s | Electronic: %s | Account: %s",
		p.Amount.StringFixed(2),
		p.Method,
		p.CashAmount.StringFixed(2),
		p.ElectronicAmount.StringFixed(2),
		account,
	)
}

func paymentMetadata(result applied) map[string]any {
	metadata := map[string]any{
		"payment_id":        result.payment.ID.String(),
		"receipt_number":    result.payment.ReceiptNumber,
		"amount":            result.payment.Amount.StringFixed(2),
		"method":            string(result.payment.Method),
		"cash_amount":       result.payment.CashAmount.StringFixed(2),
		"electronic_amount": result.payment.ElectronicAmount.StringFixed(2),
		"previous_status":   string(result.previous),
		"new_status":        string(result.invoice.Status),
	}
	if result.payment.ElectronicAccount != nil {
		metadata["electronic_account"] = *result.payment.ElectronicAccount
	}
	return metadata
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
