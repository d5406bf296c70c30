// Package billingtest provides database fixtures shared by billing tests.
package billingtest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/crateflow/internal/audit/domain"
	"github.com/smallbiznis/crateflow/internal/clock"
	"github.com/smallbiznis/crateflow/internal/config"
	deliverydomain "github.com/smallbiznis/crateflow/internal/delivery/domain"
	invoicedomain "github.com/smallbiznis/crateflow/internal/invoice/domain"
	"github.com/smallbiznis/crateflow/internal/lock"
	masterdatadomain "github.com/smallbiznis/crateflow/internal/masterdata/domain"
	"github.com/smallbiznis/crateflow/internal/migration"
	pricingdomain "github.com/smallbiznis/crateflow/internal/pricing/domain"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// Epoch is the default fake clock start used by billing tests.
var Epoch = time.Date(2024, time.March, 5, 9, 0, 0, 0, time.UTC)

// Env bundles the collaborators most billing services need.
type Env struct {
	DB     *gorm.DB
	Node   *snowflake.Node
	Clock  *clock.FakeClock
	Locker lock.Locker
	Policy *config.PolicyHolder
	Audit  *RecordingAudit
}

// NewEnv opens a private in-memory database with the full schema.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return &Env{
		DB:     NewDB(t),
		Node:   node,
		Clock:  clock.NewFakeClock(Epoch),
		Locker: lock.NewMemoryLocker(2 * time.Second),
		Policy: config.NewStaticPolicyHolder(config.DefaultPolicy()),
		Audit:  &RecordingAudit{},
	}
}

func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:crateflow_%d?mode=memory&cache=shared", dbSeq.Add(1))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migration.Run(conn); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return conn
}

func (e *Env) Client(t *testing.T, name string) masterdatadomain.Client {
	t.Helper()
	now := e.Clock.Now()
	client := masterdatadomain.Client{
		ID:              e.Node.Generate(),
		Name:            name,
		BillingType:     masterdatadomain.BillingTypeMonthly,
		BillingInterval: 1,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := e.DB.Create(&client).Error; err != nil {
		t.Fatalf("create client: %v", err)
	}
	return client
}

func (e *Env) InactiveClient(t *testing.T, name string) masterdatadomain.Client {
	t.Helper()
	client := e.Client(t, name)
	if err := e.DB.Model(&masterdatadomain.Client{}).Where("id = ?", client.ID).Update("is_active", false).Error; err != nil {
		t.Fatalf("deactivate client: %v", err)
	}
	client.IsActive = false
	return client
}

func (e *Env) Container(t *testing.T, name string, returnable bool) masterdatadomain.ContainerType {
	t.Helper()
	container := masterdatadomain.ContainerType{
		ID:           e.Node.Generate(),
		Name:         name,
		IsReturnable: returnable,
		IsActive:     true,
		CreatedAt:    e.Clock.Now(),
	}
	if err := e.DB.Create(&container).Error; err != nil {
		t.Fatalf("create container: %v", err)
	}
	return container
}

// Price stores a price entry directly, bypassing the ledger rules.
func (e *Env) Price(t *testing.T, clientID, containerID snowflake.ID, price string, effectiveFrom time.Time) pricingdomain.PriceEntry {
	t.Helper()
	entry := pricingdomain.PriceEntry{
		ID:            e.Node.Generate(),
		ClientID:      clientID,
		ContainerID:   containerID,
		Price:         decimal.RequireFromString(price),
		EffectiveFrom: pricingdomain.NormalizeEffectiveFrom(effectiveFrom),
		CreatedAt:     e.Clock.Now(),
	}
	if err := e.DB.Create(&entry).Error; err != nil {
		t.Fatalf("create price: %v", err)
	}
	return entry
}

// Deliver records one unbilled delivery line created at the fake clock's now.
func (e *Env) Deliver(t *testing.T, clientID, containerID snowflake.ID, delivered, returned int64) deliverydomain.Delivery {
	t.Helper()
	now := e.Clock.Now()
	delivery := deliverydomain.Delivery{
		ID:           e.Node.Generate(),
		ClientID:     clientID,
		TripID:       e.Node.Generate(),
		ContainerID:  containerID,
		DeliveredQty: delivered,
		ReturnedQty:  returned,
		DeliveredAt:  now,
		CreatedAt:    now,
	}
	if err := e.DB.Create(&delivery).Error; err != nil {
		t.Fatalf("create delivery: %v", err)
	}
	return delivery
}

// Invoice stores an invoice directly with the given status and total, created at createdAt.
// Pending invoices get a due date seven days later.
func (e *Env) Invoice(t *testing.T, clientID snowflake.ID, status invoicedomain.Status, total string, createdAt time.Time) invoicedomain.Invoice {
	t.Helper()
	invoice := invoicedomain.Invoice{
		ID:          e.Node.Generate(),
		ClientID:    clientID,
		Status:      status,
		TotalAmount: decimal.RequireFromString(total),
		AmountPaid:  decimal.Zero,
		Version:     1,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
	if status != invoicedomain.StatusDraft {
		confirmed := createdAt
		due := createdAt.AddDate(0, 0, 7)
		invoice.ConfirmedAt = &confirmed
		invoice.DueDate = &due
	}
	if err := e.DB.Create(&invoice).Error; err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	return invoice
}

// LoadInvoice reads an invoice back from the database.
func (e *Env) LoadInvoice(t *testing.T, id snowflake.ID) invoicedomain.Invoice {
	t.Helper()
	var invoice invoicedomain.Invoice
	if err := e.DB.Where("id = ?", id).Take(&invoice).Error; err != nil {
		t.Fatalf("load invoice %s: %v", id, err)
	}
	return invoice
}

// RecordingAudit keeps entries in memory. Set Err to simulate a failing sink.
type RecordingAudit struct {
	mu      sync.Mutex
	Entries []auditdomain.Entry
	Err     error
}

func (a *RecordingAudit) Record(ctx context.Context, entry auditdomain.Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Err != nil {
		return a.Err
	}
	a.Entries = append(a.Entries, entry)
	return nil
}

func (a *RecordingAudit) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	return auditdomain.ListAuditLogResponse{}, nil
}

// Actions returns the recorded action names in order.
func (a *RecordingAudit) Actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.Entries))
	for _, e := range a.Entries {
		out = append(out, e.Action)
	}
	return out
}
