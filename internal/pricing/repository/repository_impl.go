package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/crateflow/internal/pricing/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.PriceEntry) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO client_container_prices (id, client_id, container_id, price, effective_from, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.ClientID,
		entry.ContainerID,
		entry.Price,
		entry.EffectiveFrom,
		entry.CreatedAt,
	).Error
}

func (r *repo) ListForPair(ctx context.Context, db *gorm.DB, clientID, containerID snowflake.ID) ([]domain.PriceEntry, error) {
	var items []domain.PriceEntry
	err := db.WithContext(ctx).
		Where("client_id = ? AND container_id = ?", clientID, containerID).
		Order("effective_from ASC, id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListByClient(ctx context.Context, db *gorm.DB, clientID snowflake.ID) ([]domain.PriceEntry, error) {
	var items []domain.PriceEntry
	err := db.WithContext(ctx).
		Where("client_id = ?", clientID).
		Order("container_id ASC, effective_from ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.PriceEntry, error) {
	var items []domain.PriceEntry
	stmt := db.WithContext(ctx).Model(&domain.PriceEntry{})
	if filter.ClientID != nil {
		stmt = stmt.Where("client_id = ?", *filter.ClientID)
	}
	if filter.ContainerID != nil {
		stmt = stmt.Where("container_id = ?", *filter.ContainerID)
	}
	if err := stmt.Order("client_id ASC, container_id ASC, effective_from DESC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
