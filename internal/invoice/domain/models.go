package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/crateflow/internal/payment/domain"
	"github.com/smallbiznis/crateflow/pkg/money"
)

type Invoice struct {
	ID                  snowflake.ID    `json:"id" gorm:"primaryKey"`
	ClientID            snowflake.ID    `json:"client_id" gorm:"not null;index:idx_invoices_client_created,priority:1"`
	InvoiceSeq          *int64          `json:"-" gorm:"uniqueIndex"`
	InvoiceNumber       *string         `json:"invoice_number,omitempty" gorm:"type:text"`
	Status              Status          `json:"status" gorm:"size:16;not null;index"`
	TotalAmount         decimal.Decimal `json:"total_amount" gorm:"type:decimal(14,2);not null"`
	AmountPaid          decimal.Decimal `json:"amount_paid" gorm:"type:decimal(14,2);not null"`
	Version             int64           `json:"version" gorm:"not null"`
	ConfirmedAt         *time.Time      `json:"confirmed_at,omitempty"`
	DueDate             *time.Time      `json:"due_date,omitempty"`
	CancelledAt         *time.Time      `json:"cancelled_at,omitempty"`
	CancelReason        *string         `json:"cancel_reason,omitempty" gorm:"type:text"`
	ReplacesInvoiceID   *snowflake.ID   `json:"replaces_invoice_id,omitempty"`
	ReplacedByInvoiceID *snowflake.ID   `json:"replaced_by_invoice_id,omitempty"`
	CreatedAt           time.Time       `json:"created_at" gorm:"not null;index:idx_invoices_client_created,priority:2"`
	UpdatedAt           time.Time       `json:"updated_at" gorm:"not null"`
}

func (Invoice) TableName() string { return "invoices" }

// Remaining is what the client still owes.
func (i Invoice) Remaining() decimal.Decimal {
	return money.Round2(i.TotalAmount.Sub(i.AmountPaid))
}

// SettlementStatus derives the status after money has been applied.
func SettlementStatus(total, paid decimal.Decimal) Status {
	switch {
	case paid.GreaterThanOrEqual(total):
		return StatusPaid
	case paid.IsPositive():
		return StatusPartial
	default:
		return StatusPending
	}
}

type InvoiceItem struct {
	ID            snowflake.ID    `json:"id" gorm:"primaryKey"`
	InvoiceID     snowflake.ID    `json:"invoice_id" gorm:"not null;index"`
	ContainerID   snowflake.ID    `json:"container_id" gorm:"not null"`
	Quantity      int64           `json:"quantity" gorm:"not null"`
	PriceSnapshot decimal.Decimal `json:"price_snapshot" gorm:"type:decimal(14,2);not null"`
	Total         decimal.Decimal `json:"total" gorm:"type:decimal(14,2);not null"`
	CreatedAt     time.Time       `json:"created_at" gorm:"not null"`
}

func (InvoiceItem) TableName() string { return "invoice_items" }

// View is an invoice as presented to readers, with its derived status.
type View struct {
	Invoice
	DisplayStatus Status          `json:"display_status"`
	Overdue       bool            `json:"overdue"`
	Remaining     decimal.Decimal `json:"remaining"`
}

func NewView(inv Invoice, now time.Time) View {
	status := inv.StatusAt(now)
	return View{
		Invoice:       inv,
		DisplayStatus: status,
		Overdue:       status == StatusOverdue,
		Remaining:     inv.Remaining(),
	}
}

type Detail struct {
	View
	Items    []InvoiceItem           `json:"items"`
	Payments []paymentdomain.Payment `json:"payments"`
}
