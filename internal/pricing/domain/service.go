package domain

import (
	"context"
	"errors"
	"time"
)

type InsertPriceRequest struct {
	ClientID      string     `json:"client_id"`
	ContainerID   string     `json:"container_id"`
	Price         string     `json:"price"`
	EffectiveFrom *time.Time `json:"effective_from"`
}

type ResolvePriceRequest struct {
	ClientID    string
	ContainerID string
	At          *time.Time
}

type ListPriceRequest struct {
	ClientID    string `form:"client_id"`
	ContainerID string `form:"container_id"`
}

type Service interface {
	Insert(ctx context.Context, req InsertPriceRequest) (PriceEntry, error)
	Resolve(ctx context.Context, req ResolvePriceRequest) (PriceEntry, error)
	List(ctx context.Context, req ListPriceRequest) ([]PriceEntry, error)
}

var (
	ErrInvalidClient          = errors.New("invalid_client")
	ErrInvalidContainer       = errors.New("invalid_container")
	ErrInvalidPrice           = errors.New("invalid_price")
	ErrPriceNotSet            = errors.New("price_not_set")
	ErrDuplicateEffectiveDate = errors.New("duplicate_effective_date")
	ErrBackdated              = errors.New("backdated_price")
)
