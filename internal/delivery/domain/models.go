package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Delivery is one container line of a driver trip. InvoiceID is nil until the
// line is billed; after that it is locked to exactly one invoice.
type Delivery struct {
	ID           snowflake.ID  `json:"id" gorm:"primaryKey"`
	ClientID     snowflake.ID  `json:"client_id" gorm:"not null;index:idx_deliveries_client_invoice"`
	TripID       snowflake.ID  `json:"trip_id" gorm:"not null;index"`
	DriverID     *snowflake.ID `json:"driver_id,omitempty"`
	ContainerID  snowflake.ID  `json:"container_id" gorm:"not null"`
	DeliveredQty int64         `json:"delivered_qty" gorm:"not null"`
	ReturnedQty  int64         `json:"returned_qty" gorm:"not null"`
	InvoiceID    *snowflake.ID `json:"invoice_id,omitempty" gorm:"index:idx_deliveries_client_invoice"`
	DeliveredAt  time.Time     `json:"delivered_at" gorm:"not null"`
	CreatedAt    time.Time     `json:"created_at" gorm:"not null"`
}

func (Delivery) TableName() string { return "deliveries" }

// Billed reports whether the line is linked to an invoice.
func (d Delivery) Billed() bool {
	return d.InvoiceID != nil && *d.InvoiceID != 0
}

// ContainerQuantity is delivered quantity summed per container.
type ContainerQuantity struct {
	ContainerID snowflake.ID `json:"container_id"`
	Quantity    int64        `json:"quantity"`
}

// ContainerBalance is what a client still holds of a returnable container.
type ContainerBalance struct {
	ContainerID   snowflake.ID `json:"container_id"`
	ContainerName string       `json:"container_name"`
	Delivered     int64        `json:"delivered"`
	Returned      int64        `json:"returned"`
	Outstanding   int64        `json:"outstanding"`
}
