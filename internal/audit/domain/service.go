package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/crateflow/pkg/db/pagination"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ActionSetPrice             = "SET_CLIENT_CONTAINER_PRICE"
	ActionRecordDelivery       = "RECORD_DELIVERY"
	ActionGenerateDraftInvoice = "GENERATE_DRAFT_INVOICE"
	ActionConfirmInvoice       = "CONFIRM_INVOICE"
	ActionCancelInvoice        = "CANCEL_INVOICE"
	ActionVoidReissueInvoice   = "VOID_REISSUE_INVOICE"
	ActionAddPayment           = "ADD_PAYMENT"
	ActionMonthlyPayment       = "MONTHLY_PAYMENT"
)

const (
	EntityInvoice  = "invoice"
	EntityPayment  = "payment"
	EntityPrice    = "client_container_price"
	EntityDelivery = "delivery"
	EntityClient   = "client"
)

type AuditLog struct {
	ID         snowflake.ID      `json:"id" gorm:"primaryKey"`
	ActorType  string            `json:"actor_type" gorm:"type:text;not null"`
	ActorID    *string           `json:"actor_id,omitempty" gorm:"type:text"`
	Action     string            `json:"action" gorm:"size:64;not null;index"`
	EntityType string            `json:"entity_type" gorm:"size:64;not null;index:idx_audit_logs_entity"`
	EntityID   *string           `json:"entity_id,omitempty" gorm:"size:64;index:idx_audit_logs_entity"`
	Details    *string           `json:"details,omitempty" gorm:"type:text"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty"`
	RequestID  *string           `json:"request_id,omitempty" gorm:"type:text"`
	IPAddress  *string           `json:"ip_address,omitempty" gorm:"type:text"`
	CreatedAt  time.Time         `json:"created_at" gorm:"not null;index"`
}

func (AuditLog) TableName() string { return "audit_logs" }

// Entry is what billing code hands to the sink.
type Entry struct {
	Action     string
	EntityType string
	EntityID   string
	Details    string
	Metadata   map[string]any
}

type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	Action     string
	EntityType string
	EntityID   string
	Cursor     *AuditCursor
	Limit      int
}

type ListAuditLogRequest struct {
	pagination.Pagination
	Action     string `form:"action"`
	EntityType string `form:"entity_type"`
	EntityID   string `form:"entity_id"`
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

//go:generate mockgen -destination=../mocks/mock_service.go -package=mocks github.com/smallbiznis/crateflow/internal/audit/domain Service

// Service records audit entries. Callers treat Record as fire-and-forget.
type Service interface {
	Record(ctx context.Context, entry Entry) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditLog, error)
}

var (
	ErrInvalidAction    = errors.New("invalid_action")
	ErrInvalidPageToken = errors.New("invalid_page_token")
)
