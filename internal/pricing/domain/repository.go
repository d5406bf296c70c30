package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	ClientID    *snowflake.ID
	ContainerID *snowflake.ID
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *PriceEntry) error
	ListForPair(ctx context.Context, db *gorm.DB, clientID, containerID snowflake.ID) ([]PriceEntry, error)
	ListByClient(ctx context.Context, db *gorm.DB, clientID snowflake.ID) ([]PriceEntry, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]PriceEntry, error)
}
