package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/crateflow/internal/invoice/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

var openStatuses = []domain.Status{domain.StatusPending, domain.StatusPartial}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	return db.WithContext(ctx).Create(invoice).Error
}

func (r *repo) InsertItems(ctx context.Context, db *gorm.DB, items []domain.InvoiceItem) error {
	if len(items) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&items).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	return r.find(db.WithContext(ctx), id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	return r.find(db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *repo) find(db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := db.Where("id = ?", id).Take(&invoice).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *repo) ListItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]domain.InvoiceItem, error) {
	var items []domain.InvoiceItem
	err := db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("container_id ASC, id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, invoice *domain.Invoice, expectedVersion int64) error {
	if !invoice.Status.Persisted() {
		return fmt.Errorf("%w: %s", domain.ErrInvalidStatus, invoice.Status)
	}
	next := expectedVersion + 1
	result := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("id = ? AND version = ?", invoice.ID, expectedVersion).
		Updates(map[string]any{
			"status":                 invoice.Status,
			"total_amount":           invoice.TotalAmount,
			"amount_paid":            invoice.AmountPaid,
			"invoice_seq":            invoice.InvoiceSeq,
			"invoice_number":         invoice.InvoiceNumber,
			"confirmed_at":           invoice.ConfirmedAt,
			"due_date":               invoice.DueDate,
			"cancelled_at":           invoice.CancelledAt,
			"cancel_reason":          invoice.CancelReason,
			"replaced_by_invoice_id": invoice.ReplacedByInvoiceID,
			"version":                next,
			"updated_at":             invoice.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: invoice %s", domain.ErrConcurrentModification, invoice.ID)
	}
	invoice.Version = next
	return nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Invoice, error) {
	stmt := db.WithContext(ctx).Model(&domain.Invoice{})
	if filter.ClientID != nil {
		stmt = stmt.Where("client_id = ?", *filter.ClientID)
	}
	if len(filter.Statuses) > 0 {
		stmt = stmt.Where("status IN ?", filter.Statuses)
	}
	if filter.DueBefore != nil {
		stmt = stmt.Where("due_date < ?", filter.DueBefore.UTC())
	}
	if filter.NotDueBefore != nil {
		stmt = stmt.Where("(due_date IS NULL OR due_date >= ?)", filter.NotDueBefore.UTC())
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}

	var items []domain.Invoice
	if err := stmt.Order("created_at DESC, id DESC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) open(ctx context.Context, db *gorm.DB, filter domain.PeriodFilter) *gorm.DB {
	return db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("client_id = ?", filter.ClientID).
		Where("created_at >= ? AND created_at < ?", filter.From.UTC(), filter.To.UTC()).
		Where("status IN ?", openStatuses).
		Order("created_at ASC, id ASC")
}

func (r *repo) ListOpenIDs(ctx context.Context, db *gorm.DB, filter domain.PeriodFilter) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	if err := r.open(ctx, db, filter).Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) ListOpenForUpdate(ctx context.Context, db *gorm.DB, filter domain.PeriodFilter) ([]domain.Invoice, error) {
	var items []domain.Invoice
	err := r.open(ctx, db, filter).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) NextSequence(ctx context.Context, db *gorm.DB) (int64, error) {
	var seq int64
	err := db.WithContext(ctx).
		Raw("SELECT COALESCE(MAX(invoice_seq), 0) + 1 FROM invoices").
		Scan(&seq).Error
	if err != nil {
		return 0, err
	}
	return seq, nil
}
