package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Method string

const (
	MethodCash       Method = "CASH"
	MethodElectronic Method = "ELECTRONIC"
	MethodMixed      Method = "MIXED"
)

var methodAliases = map[string]Method{
	"CASH":       MethodCash,
	"ELECTRONIC": MethodElectronic,
	"MIXED":      MethodMixed,
	"UPI":        MethodElectronic,
	"CASH_UPI":   MethodMixed,
}

// ParseMethod normalizes a method name. Empty input means CASH.
func ParseMethod(raw string) (Method, error) {
	key := strings.ToUpper(strings.TrimSpace(raw))
	if key == "" {
		return MethodCash, nil
	}
	method, ok := methodAliases[key]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidMethod, raw)
	}
	return method, nil
}

// Payment is an immutable record of money applied to one invoice.
type Payment struct {
	ID                snowflake.ID    `json:"id" gorm:"primaryKey"`
	InvoiceID         snowflake.ID    `json:"invoice_id" gorm:"not null;index"`
	ClientID          snowflake.ID    `json:"client_id" gorm:"not null;index"`
	ReceiptNumber     string          `json:"receipt_number" gorm:"size:64;not null;uniqueIndex"`
	Amount            decimal.Decimal `json:"amount" gorm:"type:decimal(14,2);not null"`
	Method            Method          `json:"method" gorm:"type:text;not null"`
	CashAmount        decimal.Decimal `json:"cash_amount" gorm:"type:decimal(14,2);not null"`
	ElectronicAmount  decimal.Decimal `json:"electronic_amount" gorm:"type:decimal(14,2);not null"`
	ElectronicAccount *string         `json:"electronic_account,omitempty" gorm:"type:text"`
	AllocationID      *snowflake.ID   `json:"allocation_id,omitempty" gorm:"index"`
	CreatedAt         time.Time       `json:"created_at" gorm:"not null;index"`
}

func (Payment) TableName() string { return "payments" }
