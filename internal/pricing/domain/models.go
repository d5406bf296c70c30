package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// PriceEntry is one point on a (client, container) price timeline. Entries are
// never updated; a new price is a new entry with a later EffectiveFrom.
type PriceEntry struct {
	ID            snowflake.ID    `json:"id" gorm:"primaryKey"`
	ClientID      snowflake.ID    `json:"client_id" gorm:"not null;uniqueIndex:ux_client_container_prices_effective,priority:1"`
	ContainerID   snowflake.ID    `json:"container_id" gorm:"not null;uniqueIndex:ux_client_container_prices_effective,priority:2"`
	Price         decimal.Decimal `json:"price" gorm:"type:decimal(14,2);not null"`
	EffectiveFrom time.Time       `json:"effective_from" gorm:"not null;uniqueIndex:ux_client_container_prices_effective,priority:3"`
	CreatedAt     time.Time       `json:"created_at" gorm:"not null"`
}

func (PriceEntry) TableName() string { return "client_container_prices" }

// Key identifies a price timeline.
type Key struct {
	ClientID    snowflake.ID
	ContainerID snowflake.ID
}

func (e PriceEntry) Key() Key {
	return Key{ClientID: e.ClientID, ContainerID: e.ContainerID}
}

// NormalizeEffectiveFrom maps a timestamp onto the precision every supported database keeps.
func NormalizeEffectiveFrom(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
