package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	ClientID *snowflake.ID
	Statuses []Status
	// DueBefore selects pending invoices whose due date has passed.
	DueBefore *time.Time
	// NotDueBefore keeps invoices that are not yet due at that time, or carry no due date.
	NotDueBefore *time.Time
	Limit        int
}

// PeriodFilter selects the open invoices of one client created in [From, To).
type PeriodFilter struct {
	ClientID snowflake.ID
	From     time.Time
	To       time.Time
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	InsertItems(ctx context.Context, db *gorm.DB, items []InvoiceItem) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	ListItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]InvoiceItem, error)
	// Update writes invoice when its stored version still equals expectedVersion
	// and bumps the version. It returns ErrConcurrentModification otherwise.
	Update(ctx context.Context, db *gorm.DB, invoice *Invoice, expectedVersion int64) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Invoice, error)
	ListOpenIDs(ctx context.Context, db *gorm.DB, filter PeriodFilter) ([]snowflake.ID, error)
	ListOpenForUpdate(ctx context.Context, db *gorm.DB, filter PeriodFilter) ([]Invoice, error)
	NextSequence(ctx context.Context, db *gorm.DB) (int64, error)
}
