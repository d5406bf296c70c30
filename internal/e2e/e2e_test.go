package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/crateflow/internal/clock"
	"github.com/smallbiznis/crateflow/internal/config"
	"github.com/smallbiznis/crateflow/internal/lock"
	masterdatadomain "github.com/smallbiznis/crateflow/internal/masterdata/domain"
	"github.com/smallbiznis/crateflow/internal/migration"
	"github.com/smallbiznis/crateflow/internal/observability"
	"github.com/smallbiznis/crateflow/internal/server"
	"github.com/smallbiznis/crateflow/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type testEnv struct {
	app     *fx.App
	db      *gorm.DB
	genID   *snowflake.Node
	baseURL string
	httpSrv *httptest.Server
	tmpDir  string
}

var env *testEnv

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)

	tmpDir, err := os.MkdirTemp("", "crateflow-e2e")
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to create temp dir:", err)
		os.Exit(1)
	}
	setDefaultEnv(tmpDir)

	env, err = startEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to start test environment:", err)
		_ = os.RemoveAll(tmpDir)
		os.Exit(1)
	}
	env.tmpDir = tmpDir

	code := m.Run()
	env.shutdown()
	os.Exit(code)
}

func startEnv() (*testEnv, error) {
	var (
		srv    *server.Server
		dbConn *gorm.DB
		genID  *snowflake.Node
	)

	app := fx.New(
		config.Module,
		observability.Module,
		db.Module,
		clock.Module,
		migration.Module,
		lock.Module,
		server.Module,
		fx.Provide(func() (*snowflake.Node, error) {
			return snowflake.NewNode(1)
		}),
		fx.NopLogger,
		fx.Populate(&srv, &dbConn, &genID),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return nil, err
	}

	httpSrv := httptest.NewServer(srv.Engine())

	return &testEnv{
		app:     app,
		db:      dbConn,
		genID:   genID,
		baseURL: httpSrv.URL,
		httpSrv: httpSrv,
	}, nil
}

func (e *testEnv) shutdown() {
	if e == nil {
		return
	}
	if e.httpSrv != nil {
		e.httpSrv.Close()
	}
	if e.app != nil {
		_ = e.app.Stop(context.Background())
	}
	if e.tmpDir != "" {
		_ = os.RemoveAll(e.tmpDir)
	}
}

func setDefaultEnv(tmpDir string) {
	setEnvIfEmpty("ENVIRONMENT", "test")
	setEnvIfEmpty("LOG_LEVEL", "error")
	setEnvIfEmpty("HTTP_ADDR", "127.0.0.1:0")
	setEnvIfEmpty("DATABASE_TYPE", "sqlite")
	setEnvIfEmpty("SQLITE_PATH", filepath.Join(tmpDir, "crateflow.db"))
	setEnvIfEmpty("OTEL_ENABLED", "false")
}

func setEnvIfEmpty(key, value string) {
	if strings.TrimSpace(os.Getenv(key)) != "" {
		return
	}
	_ = os.Setenv(key, value)
}

func seedClient(t *testing.T, name string) snowflake.ID {
	t.Helper()
	now := time.Now().UTC()
	client := masterdatadomain.Client{
		ID:              env.genID.Generate(),
		Name:            name,
		BillingType:     masterdatadomain.BillingTypeMonthly,
		BillingInterval: 1,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := env.db.Create(&client).Error; err != nil {
		t.Fatalf("seed client: %v", err)
	}
	return client.ID
}

func seedContainer(t *testing.T, name string, returnable bool) snowflake.ID {
	t.Helper()
	container := masterdatadomain.ContainerType{
		ID:           env.genID.Generate(),
		Name:         name,
		IsReturnable: returnable,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}
	if err := env.db.Create(&container).Error; err != nil {
		t.Fatalf("seed container: %v", err)
	}
	return container.ID
}

func doJSON(t *testing.T, method, path string, payload any) (*http.Response, []byte) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("encode json: %v", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, env.baseURL+path, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(server.HeaderActorID, "e2e-clerk")

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp, data
}

// expect issues a request, checks the status and decodes the data envelope into out.
func expect(t *testing.T, status int, method, path string, payload, out any) {
	t.Helper()
	resp, body := doJSON(t, method, path, payload)
	if resp.StatusCode != status {
		t.Fatalf("%s %s: expected status %d, got %d: %s", method, path, status, resp.StatusCode, string(body))
	}
	if out == nil {
		return
	}
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, out))
}

type invoiceJSON struct {
	ID            string          `json:"id"`
	Status        string          `json:"status"`
	InvoiceNumber string          `json:"invoice_number"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
}

func TestE2E_HealthCheck(t *testing.T) {
	resp, _ := doJSON(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestE2E_BillingCycle(t *testing.T) {
	clientID := seedClient(t, "Warung Sejahtera")
	jarID := seedContainer(t, "e2e Jar 19L", true)
	cupID := seedContainer(t, "e2e Cup 240ml", false)

	for container, price := range map[snowflake.ID]string{jarID: "20000", cupID: "1500.5"} {
		expect(t, http.StatusCreated, http.MethodPost, "/api/prices", map[string]any{
			"client_id":      clientID.String(),
			"container_id":   container.String(),
			"price":          price,
			"effective_from": "2024-01-01",
		}, nil)
	}

	expect(t, http.StatusCreated, http.MethodPost, "/api/deliveries", map[string]any{
		"client_id": clientID.String(),
		"lines": []map[string]any{
			{"container_id": jarID.String(), "delivered_qty": 5, "returned_qty": 2},
			{"container_id": cupID.String(), "delivered_qty": 48},
		},
	}, nil)

	var generated struct {
		Invoice invoiceJSON `json:"invoice"`
		Linked  int64       `json:"linked_deliveries"`
	}
	expect(t, http.StatusCreated, http.MethodPost, "/api/billing/generate/"+clientID.String(), nil, &generated)
	assert.Equal(t, "draft", generated.Invoice.Status)
	assert.EqualValues(t, 2, generated.Linked)
	// 5 x 20000 + 48 x 1500.50
	assert.Equal(t, "172024.00", generated.Invoice.TotalAmount.StringFixed(2))

	resp, _ := doJSON(t, http.MethodPost, "/api/billing/generate/"+clientID.String(), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	// a price change lands before the invoice is reissued
	expect(t, http.StatusCreated, http.MethodPost, "/api/prices", map[string]any{
		"client_id":    clientID.String(),
		"container_id": jarID.String(),
		"price":        "22000",
	}, nil)

	var reissued struct {
		Voided   invoiceJSON `json:"voided"`
		Reissued invoiceJSON `json:"reissued"`
	}
	expect(t, http.StatusCreated, http.MethodPost, "/api/billing/invoices/"+generated.Invoice.ID+"/void-reissue",
		map[string]any{"reason": "jar price corrected"}, &reissued)
	assert.Equal(t, "cancelled", reissued.Voided.Status)
	assert.Equal(t, "182024.00", reissued.Reissued.TotalAmount.StringFixed(2))

	var confirmed invoiceJSON
	expect(t, http.StatusOK, http.MethodPost, "/api/billing/invoices/"+reissued.Reissued.ID+"/confirm", nil, &confirmed)
	assert.Equal(t, "pending", confirmed.Status)
	assert.True(t, strings.HasPrefix(confirmed.InvoiceNumber, "INV-"))

	now := time.Now().UTC()
	var monthly struct {
		Allocations []struct {
			InvoiceID string `json:"invoice_id"`
			NewStatus string `json:"new_status"`
		} `json:"allocations"`
		OutstandingRemaining decimal.Decimal `json:"outstanding_remaining"`
	}
	expect(t, http.StatusCreated, http.MethodPost, "/api/payments/monthly", map[string]any{
		"client_id":          clientID.String(),
		"year":               now.Year(),
		"month":              int(now.Month()),
		"amount":             "100000",
		"method":             "mixed",
		"cash_amount":        "60000",
		"electronic_amount":  "40000",
		"electronic_account": "BCA-7781",
	}, &monthly)
	require.Len(t, monthly.Allocations, 1)
	assert.Equal(t, confirmed.ID, monthly.Allocations[0].InvoiceID)
	assert.Equal(t, "partial", monthly.Allocations[0].NewStatus)
	assert.Equal(t, "82024.00", monthly.OutstandingRemaining.StringFixed(2))

	var paid struct {
		NewStatus string `json:"new_status"`
	}
	expect(t, http.StatusCreated, http.MethodPost, "/api/payments/invoices/"+confirmed.ID, map[string]any{
		"amount":             "82024",
		"method":             "electronic",
		"electronic_account": "BCA-7781",
	}, &paid)
	assert.Equal(t, "paid", paid.NewStatus)

	var payments []map[string]any
	expect(t, http.StatusOK, http.MethodGet, "/api/payments/invoices/"+confirmed.ID, nil, &payments)
	assert.Len(t, payments, 2)

	var balances []struct {
		ContainerID string `json:"container_id"`
		Outstanding int64  `json:"outstanding"`
	}
	expect(t, http.StatusOK, http.MethodGet, "/api/clients/"+clientID.String()+"/container-balance", nil, &balances)
	require.Len(t, balances, 1)
	assert.Equal(t, jarID.String(), balances[0].ContainerID)
	assert.EqualValues(t, 3, balances[0].Outstanding)

	resp, body := doJSON(t, http.MethodGet, "/api/audit-logs?entity_id="+confirmed.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), "e2e-clerk")
}

func TestE2E_GenerateAllSkipsClientsWithoutDeliveries(t *testing.T) {
	billed := seedClient(t, "Toko Makmur")
	idle := seedClient(t, "Kantor Sepi")
	bottleID := seedContainer(t, "e2e Bottle 600ml", false)

	expect(t, http.StatusCreated, http.MethodPost, "/api/prices", map[string]any{
		"client_id":      billed.String(),
		"container_id":   bottleID.String(),
		"price":          "3500",
		"effective_from": "2024-01-01",
	}, nil)
	expect(t, http.StatusCreated, http.MethodPost, "/api/deliveries", map[string]any{
		"client_id": billed.String(),
		"lines":     []map[string]any{{"container_id": bottleID.String(), "delivered_qty": 24}},
	}, nil)

	var resp struct {
		Generated []invoiceJSON `json:"generated"`
		Skipped   []struct {
			ClientID string `json:"client_id"`
			Reason   string `json:"reason"`
		} `json:"skipped"`
	}
	expect(t, http.StatusOK, http.MethodPost, "/api/billing/generate-all", nil, &resp)

	var generatedTotal string
	for _, inv := range resp.Generated {
		if inv.TotalAmount.Equal(decimal.RequireFromString("84000")) {
			generatedTotal = inv.TotalAmount.StringFixed(2)
		}
	}
	assert.Equal(t, "84000.00", generatedTotal)

	skipped := map[string]string{}
	for _, s := range resp.Skipped {
		skipped[s.ClientID] = s.Reason
	}
	assert.Contains(t, skipped, idle.String())
	assert.NotContains(t, skipped, billed.String())
}
