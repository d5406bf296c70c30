package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type CancelRequest struct {
	Reason string `json:"reason"`
}

type VoidReissueRequest struct {
	Reason string `json:"reason"`
}

type VoidReissueResponse struct {
	Voided   Invoice       `json:"voided"`
	Reissued Invoice       `json:"reissued"`
	Items    []InvoiceItem `json:"items"`
	Relinked int64         `json:"relinked_deliveries"`
}

type GenerateResponse struct {
	Invoice Invoice       `json:"invoice"`
	Items   []InvoiceItem `json:"items"`
	Linked  int64         `json:"linked_deliveries"`
}

type SkippedClient struct {
	ClientID snowflake.ID `json:"client_id"`
	Reason   string       `json:"reason"`
}

type GenerateAllResponse struct {
	Generated []Invoice       `json:"generated"`
	Skipped   []SkippedClient `json:"skipped"`
}

type ListInvoiceRequest struct {
	ClientID string `form:"client_id"`
	Status   string `form:"status"`
	Limit    int    `form:"limit"`
}

type Service interface {
	GenerateDraft(ctx context.Context, clientID string) (GenerateResponse, error)
	GenerateAll(ctx context.Context) (GenerateAllResponse, error)
	Confirm(ctx context.Context, invoiceID string) (Invoice, error)
	Cancel(ctx context.Context, invoiceID string, req CancelRequest) (Invoice, error)
	VoidAndReissue(ctx context.Context, invoiceID string, req VoidReissueRequest) (VoidReissueResponse, error)
	List(ctx context.Context, req ListInvoiceRequest) ([]View, error)
	Get(ctx context.Context, invoiceID string) (Detail, error)
}

const (
	MinReasonLength = 3
	MaxReasonLength = 300
)

var (
	ErrInvalidID              = errors.New("invalid_invoice_id")
	ErrInvalidClient          = errors.New("invalid_client")
	ErrInvalidStatus          = errors.New("invalid_status")
	ErrNotFound               = errors.New("invoice_not_found")
	ErrInvalidState           = errors.New("invalid_invoice_state")
	ErrAlreadyProcessed       = errors.New("invoice_already_processed")
	ErrHasPayments            = errors.New("invoice_has_payments")
	ErrNoBillableDeliveries   = errors.New("no_billable_deliveries")
	ErrNoLineItems            = errors.New("invoice_has_no_line_items")
	ErrInvalidReason          = errors.New("invalid_reason")
	ErrConcurrentModification = errors.New("concurrent_modification")
)
