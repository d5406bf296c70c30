package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Config labels every billing series.
type Config struct {
	ServiceName string
	Environment string
}

const (
	ReasonDeadlineExceeded     = "deadline_exceeded"
	ReasonCanceled             = "canceled"
	ReasonDBLockTimeout        = "db_lock_timeout"
	ReasonSerializationFailure = "serialization_failure"
	ReasonUniqueViolation      = "unique_violation"
	ReasonRejected             = "rejected"
)

const (
	OperationGenerateDraft = "generate_draft"
	OperationConfirm       = "confirm"
	OperationCancel        = "cancel"
	OperationVoidReissue   = "void_reissue"
	OperationRecordPayment = "record_payment"
	OperationPayMonth      = "pay_month"
	OperationInsertPrice   = "insert_price"
)

const (
	LockResourceInvoice = "invoice"
	LockResourceClient  = "client"
	LockResourcePrice   = "price"
)

// BillingMetrics captures billing engine health signals.
type BillingMetrics struct {
	invoicesGenerated  prometheus.Counter
	generateSkipped    *prometheus.CounterVec
	invoiceTransitions *prometheus.CounterVec
	paymentsRecorded   *prometheus.CounterVec
	paymentAmount      *prometheus.CounterVec
	allocationSpread   prometheus.Histogram
	operationErrors    *prometheus.CounterVec
	lockWait           *prometheus.HistogramVec
	auditFailures      prometheus.Counter
}

var (
	billingMetricsOnce sync.Once
	billingMetrics     *BillingMetrics
)

// Billing returns the process-wide billing metrics registered on the default registry.
func Billing(cfg Config) *BillingMetrics {
	billingMetricsOnce.Do(func() {
		billingMetrics = NewBillingMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return billingMetrics
}

// NewBillingMetrics registers a fresh set of billing collectors on registerer.
func NewBillingMetrics(registerer prometheus.Registerer, cfg Config) *BillingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "crateflow"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &BillingMetrics{
		invoicesGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "crateflow_invoices_generated_total",
			Help:        "Draft invoices generated from unbilled deliveries.",
			ConstLabels: constLabels,
		}),
		generateSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "crateflow_invoice_generation_skipped_total",
			Help:        "Clients skipped by batch generation, by reason.",
			ConstLabels: constLabels,
		}, []string{"reason"}),
		invoiceTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "crateflow_invoice_transition_total",
			Help:        "Invoice lifecycle transitions.",
			ConstLabels: constLabels,
		}, []string{"from", "to"}),
		paymentsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "crateflow_payments_recorded_total",
			Help:        "Payments recorded by method.",
			ConstLabels: constLabels,
		}, []string{"method"}),
		paymentAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "crateflow_payment_amount_total",
			Help:        "Collected money by tender component.",
			ConstLabels: constLabels,
		}, []string{"component"}),
		allocationSpread: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "crateflow_monthly_allocation_invoices",
			Help:        "Invoices touched by a single monthly allocation.",
			Buckets:     []float64{1, 2, 3, 5, 8, 13, 21, 34},
			ConstLabels: constLabels,
		}),
		operationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "crateflow_billing_operation_errors_total",
			Help:        "Billing operation failures by low-cardinality reason.",
			ConstLabels: constLabels,
		}, []string{"operation", "reason"}),
		lockWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "crateflow_lock_wait_seconds",
			Help:        "Time spent waiting for billing locks.",
			Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			ConstLabels: constLabels,
		}, []string{"resource"}),
		auditFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "crateflow_audit_failures_total",
			Help:        "Audit records that could not be persisted.",
			ConstLabels: constLabels,
		}),
	}

	registerer.MustRegister(
		m.invoicesGenerated,
		m.generateSkipped,
		m.invoiceTransitions,
		m.paymentsRecorded,
		m.paymentAmount,
		m.allocationSpread,
		m.operationErrors,
		m.lockWait,
		m.auditFailures,
	)
	return m
}

func (m *BillingMetrics) IncInvoiceGenerated() {
	if m == nil {
		return
	}
	m.invoicesGenerated.Inc()
}

func (m *BillingMetrics) IncGenerationSkipped(reason string) {
	if m == nil {
		return
	}
	m.generateSkipped.WithLabelValues(reason).Inc()
}

// IncTransition counts an invoice status change.
func (m *BillingMetrics) IncTransition(from, to string) {
	if m == nil || from == to {
		return
	}
	m.invoiceTransitions.WithLabelValues(from, to).Inc()
}

// RecordPayment counts a payment and adds its cash and electronic components.
func (m *BillingMetrics) RecordPayment(method string, cash, electronic decimal.Decimal) {
	if m == nil {
		return
	}
	m.paymentsRecorded.WithLabelValues(method).Inc()
	if cash.IsPositive() {
		m.paymentAmount.WithLabelValues("cash").Add(cash.InexactFloat64())
	}
	if electronic.IsPositive() {
		m.paymentAmount.WithLabelValues("electronic").Add(electronic.InexactFloat64())
	}
}

func (m *BillingMetrics) ObserveAllocation(invoices int) {
	if m == nil {
		return
	}
	m.allocationSpread.Observe(float64(invoices))
}

// IncOperationError classifies err and counts it against operation.
func (m *BillingMetrics) IncOperationError(operation string, err error) {
	if m == nil || err == nil {
		return
	}
	m.operationErrors.WithLabelValues(operation, ClassifyErrorReason(err)).Inc()
}

func (m *BillingMetrics) ObserveLockWait(resource string, wait time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.WithLabelValues(resource).Observe(wait.Seconds())
}

func (m *BillingMetrics) IncAuditFailure() {
	if m == nil {
		return
	}
	m.auditFailures.Inc()
}

// ClassifyErrorReason maps an error to a bounded label value.
func ClassifyErrorReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonDeadlineExceeded
	case errors.Is(err, context.Canceled):
		return ReasonCanceled
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ReasonUniqueViolation
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03":
			return ReasonDBLockTimeout
		case "40001", "40P01":
			return ReasonSerializationFailure
		case "23505":
			return ReasonUniqueViolation
		}
	}
	return ReasonRejected
}
