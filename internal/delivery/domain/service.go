package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type RecordLine struct {
	ContainerID  string `json:"container_id"`
	DeliveredQty int64  `json:"delivered_qty"`
	ReturnedQty  int64  `json:"returned_qty"`
}

// RecordTripRequest ingests one driver trip from the capture system.
type RecordTripRequest struct {
	ClientID    string       `json:"client_id"`
	TripID      string       `json:"trip_id"`
	DriverID    string       `json:"driver_id"`
	DeliveredAt *time.Time   `json:"delivered_at"`
	Lines       []RecordLine `json:"lines"`
}

type RecordTripResponse struct {
	TripID     snowflake.ID `json:"trip_id"`
	Deliveries []Delivery   `json:"deliveries"`
}

type Service interface {
	RecordTrip(ctx context.Context, req RecordTripRequest) (RecordTripResponse, error)
	ListUnbilled(ctx context.Context, clientID string) ([]Delivery, error)
	ListByInvoice(ctx context.Context, invoiceID string) ([]Delivery, error)
	ContainerBalance(ctx context.Context, clientID string) ([]ContainerBalance, error)
}

var (
	ErrInvalidClient    = errors.New("invalid_client")
	ErrInvalidContainer = errors.New("invalid_container")
	ErrInvalidTrip      = errors.New("invalid_trip")
	ErrInvalidQuantity  = errors.New("invalid_quantity")
	ErrEmptyTrip        = errors.New("empty_trip")
	ErrInvalidInvoice   = errors.New("invalid_invoice")
)
