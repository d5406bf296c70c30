package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const BillingTypeMonthly = "monthly"

// Client is a billed customer. Maintained outside the billing engine.
type Client struct {
	ID              snowflake.ID `json:"id" gorm:"primaryKey"`
	Name            string       `json:"name" gorm:"type:text;not null"`
	Email           *string      `json:"email,omitempty" gorm:"type:text"`
	Phone           *string      `json:"phone,omitempty" gorm:"type:text"`
	Address         *string      `json:"address,omitempty" gorm:"type:text"`
	BillingType     string       `json:"billing_type" gorm:"type:text;not null"`
	BillingInterval int          `json:"billing_interval" gorm:"not null"`
	IsActive        bool         `json:"is_active" gorm:"not null;index"`
	CreatedAt       time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt       time.Time    `json:"updated_at" gorm:"not null"`
}

func (Client) TableName() string { return "clients" }

// ContainerType is a kind of container delivered to clients.
// Returned quantities are only tracked for returnable types.
type ContainerType struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	Name         string       `json:"name" gorm:"size:191;not null;uniqueIndex"`
	Description  *string      `json:"description,omitempty" gorm:"type:text"`
	IsReturnable bool         `json:"is_returnable" gorm:"not null"`
	IsActive     bool         `json:"is_active" gorm:"not null"`
	CreatedAt    time.Time    `json:"created_at" gorm:"not null"`
}

func (ContainerType) TableName() string { return "container_types" }
