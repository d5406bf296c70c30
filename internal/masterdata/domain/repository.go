package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrClientNotFound    = errors.New("client_not_found")
	ErrClientInactive    = errors.New("client_inactive")
	ErrContainerNotFound = errors.New("container_not_found")
)

type Repository interface {
	FindClient(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Client, error)
	ListActiveClients(ctx context.Context, db *gorm.DB) ([]Client, error)
	FindContainer(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ContainerType, error)
}
