package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type RecordPaymentRequest struct {
	Amount            decimal.Decimal  `json:"amount"`
	Method            string           `json:"method"`
	CashAmount        *decimal.Decimal `json:"cash_amount"`
	ElectronicAmount  *decimal.Decimal `json:"electronic_amount"`
	ElectronicAccount string           `json:"electronic_account"`
}

type RecordPaymentResponse struct {
	Payment   Payment         `json:"payment"`
	NewStatus string          `json:"new_status"`
	Remaining decimal.Decimal `json:"remaining"`
}

type MonthlyPaymentRequest struct {
	ClientID          string           `json:"client_id"`
	Year              int              `json:"year"`
	Month             int              `json:"month"`
	Amount            decimal.Decimal  `json:"amount"`
	Method            string           `json:"method"`
	CashAmount        *decimal.Decimal `json:"cash_amount"`
	ElectronicAmount  *decimal.Decimal `json:"electronic_amount"`
	ElectronicAccount string           `json:"electronic_account"`
}

type AllocationLine struct {
	InvoiceID  snowflake.ID    `json:"invoice_id"`
	PaymentID  snowflake.ID    `json:"payment_id"`
	Applied    decimal.Decimal `json:"applied"`
	Cash       decimal.Decimal `json:"cash"`
	Electronic decimal.Decimal `json:"electronic"`
	NewStatus  string          `json:"new_status"`
	Remaining  decimal.Decimal `json:"remaining"`
}

type MonthlyPaymentResponse struct {
	AllocationID         snowflake.ID     `json:"allocation_id"`
	ClientID             snowflake.ID     `json:"client_id"`
	Year                 int              `json:"year"`
	Month                int              `json:"month"`
	Amount               decimal.Decimal  `json:"amount"`
	Method               Method           `json:"method"`
	Allocations          []AllocationLine `json:"allocations"`
	OutstandingBefore    decimal.Decimal  `json:"outstanding_before"`
	OutstandingRemaining decimal.Decimal  `json:"outstanding_remaining"`
}

type Service interface {
	Record(ctx context.Context, invoiceID string, req RecordPaymentRequest) (RecordPaymentResponse, error)
	PayMonth(ctx context.Context, req MonthlyPaymentRequest) (MonthlyPaymentResponse, error)
	ListByInvoice(ctx context.Context, invoiceID string) ([]Payment, error)
}

var (
	ErrInvalidInvoice     = errors.New("invalid_invoice")
	ErrInvalidClient      = errors.New("invalid_client")
	ErrInvoiceNotFound    = errors.New("invoice_not_found")
	ErrNotConfirmed       = errors.New("invoice_not_confirmed")
	ErrAlreadySettled     = errors.New("invoice_already_settled")
	ErrInvalidState       = errors.New("invalid_invoice_state")
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrExceedsBalance     = errors.New("exceeds_balance")
	ErrSplitMismatch      = errors.New("split_mismatch")
	ErrAccountRequired    = errors.New("electronic_account_required")
	ErrInvalidMethod      = errors.New("invalid_payment_method")
	ErrInvalidPeriod      = errors.New("invalid_period")
	ErrNoOpenInvoices     = errors.New("no_open_invoices")
	ErrNothingOutstanding = errors.New("nothing_outstanding")
	ErrAllocationFailed   = errors.New("allocation_failed")
)
