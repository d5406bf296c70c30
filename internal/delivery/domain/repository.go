package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// UnbilledFilter narrows the unbilled set of one client. A nil CreatedBefore means no cutoff.
type UnbilledFilter struct {
	ClientID      snowflake.ID
	CreatedBefore *time.Time
}

type Repository interface {
	InsertBatch(ctx context.Context, db *gorm.DB, deliveries []Delivery) error
	AggregateUnbilled(ctx context.Context, db *gorm.DB, filter UnbilledFilter) ([]ContainerQuantity, error)
	LinkUnbilled(ctx context.Context, db *gorm.DB, filter UnbilledFilter, invoiceID snowflake.ID) (int64, error)
	Relink(ctx context.Context, db *gorm.DB, fromInvoiceID, toInvoiceID snowflake.ID) (int64, error)
	ListByInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]Delivery, error)
	ListUnbilled(ctx context.Context, db *gorm.DB, clientID snowflake.ID) ([]Delivery, error)
	SumByContainer(ctx context.Context, db *gorm.DB, clientID snowflake.ID) ([]ContainerBalance, error)
}
