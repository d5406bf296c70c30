package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/crateflow/internal/delivery/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertBatch(ctx context.Context, db *gorm.DB, deliveries []domain.Delivery) error {
	if len(deliveries) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&deliveries).Error
}

func (r *repo) unbilled(ctx context.Context, db *gorm.DB, filter domain.UnbilledFilter) *gorm.DB {
	stmt := db.WithContext(ctx).
		Model(&domain.Delivery{}).
		Where("client_id = ? AND invoice_id IS NULL", filter.ClientID)
	if filter.CreatedBefore != nil {
		stmt = stmt.Where("created_at <= ?", filter.CreatedBefore.UTC())
	}
	return stmt
}

func (r *repo) AggregateUnbilled(ctx context.Context, db *gorm.DB, filter domain.UnbilledFilter) ([]domain.ContainerQuantity, error) {
	var rows []domain.ContainerQuantity
	err := r.unbilled(ctx, db, filter).
		Select("container_id, SUM(delivered_qty) AS quantity").
		Group("container_id").
		Order("container_id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) LinkUnbilled(ctx context.Context, db *gorm.DB, filter domain.UnbilledFilter, invoiceID snowflake.ID) (int64, error) {
	result := r.unbilled(ctx, db, filter).Update("invoice_id", invoiceID)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) Relink(ctx context.Context, db *gorm.DB, fromInvoiceID, toInvoiceID snowflake.ID) (int64, error) {
	result := db.WithContext(ctx).
		Model(&domain.Delivery{}).
		Where("invoice_id = ?", fromInvoiceID).
		Update("invoice_id", toInvoiceID)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) ListByInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]domain.Delivery, error) {
	var items []domain.Delivery
	err := db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListUnbilled(ctx context.Context, db *gorm.DB, clientID snowflake.ID) ([]domain.Delivery, error) {
	var items []domain.Delivery
	err := r.unbilled(ctx, db, domain.UnbilledFilter{ClientID: clientID}).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) SumByContainer(ctx context.Context, db *gorm.DB, clientID snowflake.ID) ([]domain.ContainerBalance, error) {
	var rows []domain.ContainerBalance
	err := db.WithContext(ctx).Raw(
		`SELECT d.container_id AS container_id,
		        c.name AS container_name,
		        SUM(d.delivered_qty) AS delivered,
		        SUM(d.returned_qty) AS returned
		 FROM deliveries d
		 JOIN container_types c ON c.id = d.container_id
		 WHERE d.client_id = ? AND c.is_returnable = ?
		 GROUP BY d.container_id, c.name
		 ORDER BY d.container_id ASC`,
		clientID, true,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
