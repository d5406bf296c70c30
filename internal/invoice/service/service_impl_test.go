package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/crateflow/internal/audit/domain"
	"github.com/smallbiznis/crateflow/internal/billingtest"
	"github.com/smallbiznis/crateflow/internal/config"
	deliveryrepo "github.com/smallbiznis/crateflow/internal/delivery/repository"
	invoicedomain "github.com/smallbiznis/crateflow/internal/invoice/domain"
	invoicerepo "github.com/smallbiznis/crateflow/internal/invoice/repository"
	invoiceservice "github.com/smallbiznis/crateflow/internal/invoice/service"
	masterdatadomain "github.com/smallbiznis/crateflow/internal/masterdata/domain"
	masterdatarepo "github.com/smallbiznis/crateflow/internal/masterdata/repository"
	paymentrepo "github.com/smallbiznis/crateflow/internal/payment/repository"
	pricingdomain "github.com/smallbiznis/crateflow/internal/pricing/domain"
	pricingrepo "github.com/smallbiznis/crateflow/internal/pricing/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newInvoiceService(env *billingtest.Env) invoicedomain.Service {
	return invoiceservice.NewService(invoiceservice.Params{
		DB:         env.DB,
		Log:        zap.NewNop(),
		GenID:      env.Node,
		Clock:      env.Clock,
		Locker:     env.Locker,
		Policy:     env.Policy,
		Repo:       invoicerepo.Provide(),
		Deliveries: deliveryrepo.Provide(),
		Prices:     pricingrepo.Provide(),
		Payments:   paymentrepo.Provide(),
		MasterData: masterdatarepo.Provide(),
		AuditSvc:   env.Audit,
	})
}

// fixture is a client with a returnable jar priced at 30 and a bottle priced at 12.50.
type fixture struct {
	env    *billingtest.Env
	svc    invoicedomain.Service
	client masterdatadomain.Client
	jar    masterdatadomain.ContainerType
	bottle masterdatadomain.ContainerType
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	env := billingtest.NewEnv(t)
	f := &fixture{env: env, svc: newInvoiceService(env)}
	f.client = env.Client(t, "Acme")
	f.jar = env.Container(t, "20L Jar", true)
	f.bottle = env.Container(t, "1L Bottle", false)
	priced := billingtest.Epoch.AddDate(0, -1, 0)
	env.Price(t, f.client.ID, f.jar.ID, "30", priced)
	env.Price(t, f.client.ID, f.bottle.ID, "12.50", priced)
	return f
}

func itemFor(t *testing.T, items []invoicedomain.InvoiceItem, containerID snowflake.ID) invoicedomain.InvoiceItem {
	t.Helper()
	for _, item := range items {
		if item.ContainerID == containerID {
			return item
		}
	}
	t.Fatalf("no line item for container %s", containerID)
	return invoicedomain.InvoiceItem{}
}

func sumItems(items []invoicedomain.InvoiceItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Total)
	}
	return total
}

func unbilledCount(t *testing.T, env *billingtest.Env, clientID snowflake.ID) int {
	t.Helper()
	items, err := deliveryrepo.Provide().ListUnbilled(context.Background(), env.DB, clientID)
	require.NoError(t, err)
	return len(items)
}

func TestGenerateDraft(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	// a future price must not apply
	f.env.Price(t, f.client.ID, f.jar.ID, "35", billingtest.Epoch.AddDate(0, 0, 1))

	f.env.Deliver(t, f.client.ID, f.jar.ID, 10, 4)
	f.env.Deliver(t, f.client.ID, f.jar.ID, 5, 0)
	f.env.Deliver(t, f.client.ID, f.bottle.ID, 3, 0)

	resp, err := f.svc.GenerateDraft(ctx, f.client.ID.String())
	require.NoError(t, err)

	assert.Equal(t, invoicedomain.StatusDraft, resp.Invoice.Status)
	assert.Nil(t, resp.Invoice.InvoiceNumber)
	assert.Equal(t, int64(3), resp.Linked)
	require.Len(t, resp.Items, 2)

	jar := itemFor(t, resp.Items, f.jar.ID)
	assert.Equal(t, int64(15), jar.Quantity, "returned quantity is not billed")
	assert.Equal(t, "30.00", jar.PriceSnapshot.StringFixed(2))
	assert.Equal(t, "450.00", jar.Total.StringFixed(2))

	bottle := itemFor(t, resp.Items, f.bottle.ID)
	assert.Equal(t, "37.50", bottle.Total.StringFixed(2))

	assert.Equal(t, "487.50", resp.Invoice.TotalAmount.StringFixed(2))
	assert.True(t, sumItems(resp.Items).Equal(resp.Invoice.TotalAmount))

	stored := f.env.LoadInvoice(t, resp.Invoice.ID)
	assert.True(t, stored.TotalAmount.Equal(resp.Invoice.TotalAmount))
	assert.Equal(t, 0, unbilledCount(t, f.env, f.client.ID))

	linked, err := deliveryrepo.Provide().ListByInvoice(ctx, f.env.DB, resp.Invoice.ID)
	require.NoError(t, err)
	assert.Len(t, linked, 3)

	_, err = f.svc.GenerateDraft(ctx, f.client.ID.String())
	assert.ErrorIs(t, err, invoicedomain.ErrNoBillableDeliveries)

	assert.Equal(t, []string{auditdomain.ActionGenerateDraftInvoice}, f.env.Audit.Actions())
}

func TestGenerateDraftRejects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	t.Run("invalid_id", func(t *testing.T) {
		_, err := f.svc.GenerateDraft(ctx, "abc")
		assert.ErrorIs(t, err, invoicedomain.ErrInvalidClient)
	})
	t.Run("unknown_client", func(t *testing.T) {
		_, err := f.svc.GenerateDraft(ctx, f.env.Node.Generate().String())
		assert.ErrorIs(t, err, masterdatadomain.ErrClientNotFound)
	})
	t.Run("inactive_client", func(t *testing.T) {
		dormant := f.env.InactiveClient(t, "Dormant")
		_, err := f.svc.GenerateDraft(ctx, dormant.ID.String())
		assert.ErrorIs(t, err, masterdatadomain.ErrClientInactive)
	})
	t.Run("only_returns", func(t *testing.T) {
		other := f.env.Client(t, "Returns Only")
		f.env.Deliver(t, other.ID, f.jar.ID, 0, 6)
		_, err := f.svc.GenerateDraft(ctx, other.ID.String())
		assert.ErrorIs(t, err, invoicedomain.ErrNoBillableDeliveries)
		assert.Equal(t, 1, unbilledCount(t, f.env, other.ID))
	})
}

func TestGenerateDraftPriceNotSetWritesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	crate := f.env.Container(t, "Crate", true)

	f.env.Deliver(t, f.client.ID, f.jar.ID, 4, 0)
	f.env.Deliver(t, f.client.ID, crate.ID, 2, 0)

	_, err := f.svc.GenerateDraft(ctx, f.client.ID.String())
	assert.ErrorIs(t, err, pricingdomain.ErrPriceNotSet)

	var invoices int64
	require.NoError(t, f.env.DB.Model(&invoicedomain.Invoice{}).Count(&invoices).Error)
	assert.Zero(t, invoices)
	var items int64
	require.NoError(t, f.env.DB.Model(&invoicedomain.InvoiceItem{}).Count(&items).Error)
	assert.Zero(t, items)
	assert.Equal(t, 2, unbilledCount(t, f.env, f.client.ID))
	assert.Empty(t, f.env.Audit.Entries)
}

func TestGenerateDraftDeferPolicy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	policy := config.DefaultPolicy()
	policy.Billing.LateDeliveryPolicy = config.LateDeliveryDefer
	f.env.Policy = config.NewStaticPolicyHolder(policy)
	f.svc = newInvoiceService(f.env)

	f.env.Deliver(t, f.client.ID, f.jar.ID, 4, 0)
	// captured after the generation snapshot
	f.env.Clock.Advance(time.Hour)
	late := f.env.Deliver(t, f.client.ID, f.jar.ID, 9, 0)
	f.env.Clock.Set(billingtest.Epoch)

	resp, err := f.svc.GenerateDraft(ctx, f.client.ID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.Linked)
	assert.Equal(t, int64(4), itemFor(t, resp.Items, f.jar.ID).Quantity)

	unbilled, err := deliveryrepo.Provide().ListUnbilled(ctx, f.env.DB, f.client.ID)
	require.NoError(t, err)
	require.Len(t, unbilled, 1)
	assert.Equal(t, late.ID, unbilled[0].ID)
}

func TestGenerateAll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	idle := f.env.Client(t, "Idle")
	unpriced := f.env.Client(t, "Unpriced")
	dormant := f.env.InactiveClient(t, "Dormant")

	f.env.Deliver(t, f.client.ID, f.jar.ID, 2, 0)
	f.env.Deliver(t, unpriced.ID, f.jar.ID, 2, 0)
	f.env.Deliver(t, dormant.ID, f.jar.ID, 2, 0)

	resp, err := f.svc.GenerateAll(ctx)
	require.NoError(t, err)
	require.Len(t, resp.Generated, 1)
	assert.Equal(t, f.client.ID, resp.Generated[0].ClientID)

	skipped := make(map[snowflake.ID]string, len(resp.Skipped))
	for _, s := range resp.Skipped {
		skipped[s.ClientID] = s.Reason
	}
	assert.Len(t, skipped, 2)
	assert.Contains(t, skipped[idle.ID], invoicedomain.ErrNoBillableDeliveries.Error())
	assert.Contains(t, skipped[unpriced.ID], pricingdomain.ErrPriceNotSet.Error())
	assert.NotContains(t, skipped, dormant.ID)
}

func TestConfirm(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.env.Deliver(t, f.client.ID, f.jar.ID, 2, 0)
	draft, err := f.svc.GenerateDraft(ctx, f.client.ID.String())
	require.NoError(t, err)

	f.env.Clock.Advance(time.Hour)
	confirmed, err := f.svc.Confirm(ctx, draft.Invoice.ID.String())
	require.NoError(t, err)

	now := billingtest.Epoch.Add(time.Hour)
	assert.Equal(t, invoicedomain.StatusPending, confirmed.Status)
	require.NotNil(t, confirmed.InvoiceNumber)
	assert.Equal(t, "INV-202403-000001", *confirmed.InvoiceNumber)
	require.NotNil(t, confirmed.ConfirmedAt)
	assert.True(t, confirmed.ConfirmedAt.Equal(now))
	require.NotNil(t, confirmed.DueDate)
	assert.True(t, confirmed.DueDate.Equal(now.AddDate(0, 0, 7)))

	_, err = f.svc.Confirm(ctx, draft.Invoice.ID.String())
	assert.ErrorIs(t, err, invoicedomain.ErrAlreadyProcessed)

	other := f.env.Client(t, "Beta")
	f.env.Price(t, other.ID, f.jar.ID, "20", billingtest.Epoch)
	f.env.Deliver(t, other.ID, f.jar.ID, 1, 0)
	second, err := f.svc.GenerateDraft(ctx, other.ID.String())
	require.NoError(t, err)
	second.Invoice, err = f.svc.Confirm(ctx, second.Invoice.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "INV-202403-000002", *second.Invoice.InvoiceNumber)

	_, err = f.svc.Confirm(ctx, f.env.Node.Generate().String())
	assert.ErrorIs(t, err, invoicedomain.ErrNotFound)

	assert.Equal(t, []string{
		auditdomain.ActionGenerateDraftInvoice,
		auditdomain.ActionConfirmInvoice,
		auditdomain.ActionGenerateDraftInvoice,
		auditdomain.ActionConfirmInvoice,
	}, f.env.Audit.Actions())
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	draft := f.env.Invoice(t, f.client.ID, invoicedomain.StatusDraft, "100", billingtest.Epoch)
	pending := f.env.Invoice(t, f.client.ID, invoicedomain.StatusPending, "100", billingtest.Epoch)
	partial := f.env.Invoice(t, f.client.ID, invoicedomain.StatusPartial, "100", billingtest.Epoch)
	paid := f.env.Invoice(t, f.client.ID, invoicedomain.StatusPaid, "100", billingtest.Epoch)

	t.Run("reason_too_short", func(t *testing.T) {
		_, err := f.svc.Cancel(ctx, draft.ID.String(), invoicedomain.CancelRequest{Reason: "  no "})
		assert.ErrorIs(t, err, invoicedomain.ErrInvalidReason)
		assert.Equal(t, invoicedomain.StatusDraft, f.env.LoadInvoice(t, draft.ID).Status)
	})

	for _, inv := range []invoicedomain.Invoice{draft, pending} {
		cancelled, err := f.svc.Cancel(ctx, inv.ID.String(), invoicedomain.CancelRequest{Reason: "  wrong client  "})
		require.NoError(t, err)
		assert.Equal(t, invoicedomain.StatusCancelled, cancelled.Status)
		require.NotNil(t, cancelled.CancelReason)
		assert.Equal(t, "wrong client", *cancelled.CancelReason)
		require.NotNil(t, cancelled.CancelledAt)
	}

	for _, inv := range []invoicedomain.Invoice{draft, partial, paid} {
		_, err := f.svc.Cancel(ctx, inv.ID.String(), invoicedomain.CancelRequest{Reason: "duplicate"})
		assert.ErrorIs(t, err, invoicedomain.ErrInvalidState, "status %s", inv.Status)
	}

	t.Run("has_payments", func(t *testing.T) {
		inv := f.env.Invoice(t, f.client.ID, invoicedomain.StatusPending, "100", billingtest.Epoch)
		require.NoError(t, f.env.DB.Model(&invoicedomain.Invoice{}).Where("id = ?", inv.ID).
			Update("amount_paid", decimal.NewFromInt(10)).Error)
		_, err := f.svc.Cancel(ctx, inv.ID.String(), invoicedomain.CancelRequest{Reason: "duplicate"})
		assert.ErrorIs(t, err, invoicedomain.ErrHasPayments)
	})

	assert.Equal(t, []string{auditdomain.ActionCancelInvoice, auditdomain.ActionCancelInvoice}, f.env.Audit.Actions())
}

func TestVoidAndReissue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.env.Deliver(t, f.client.ID, f.jar.ID, 10, 2)
	f.env.Deliver(t, f.client.ID, f.jar.ID, 5, 0)
	f.env.Deliver(t, f.client.ID, f.bottle.ID, 3, 0)
	draft, err := f.svc.GenerateDraft(ctx, f.client.ID.String())
	require.NoError(t, err)
	old, err := f.svc.Confirm(ctx, draft.Invoice.ID.String())
	require.NoError(t, err)

	f.env.Price(t, f.client.ID, f.jar.ID, "40", billingtest.Epoch.Add(time.Hour))
	f.env.Clock.Advance(2 * time.Hour)

	resp, err := f.svc.VoidAndReissue(ctx, old.ID.String(), invoicedomain.VoidReissueRequest{Reason: "price correction"})
	require.NoError(t, err)

	assert.Equal(t, invoicedomain.StatusCancelled, resp.Voided.Status)
	require.NotNil(t, resp.Voided.ReplacedByInvoiceID)
	assert.Equal(t, resp.Reissued.ID, *resp.Voided.ReplacedByInvoiceID)
	require.NotNil(t, resp.Reissued.ReplacesInvoiceID)
	assert.Equal(t, old.ID, *resp.Reissued.ReplacesInvoiceID)
	assert.Equal(t, invoicedomain.StatusDraft, resp.Reissued.Status)
	assert.Nil(t, resp.Reissued.InvoiceNumber)
	assert.Equal(t, int64(3), resp.Relinked)

	// quantities move unchanged, prices follow today's timeline
	require.Len(t, resp.Items, len(draft.Items))
	for _, before := range draft.Items {
		after := itemFor(t, resp.Items, before.ContainerID)
		assert.Equal(t, before.Quantity, after.Quantity)
	}
	assert.Equal(t, "600.00", itemFor(t, resp.Items, f.jar.ID).Total.StringFixed(2))
	assert.Equal(t, "37.50", itemFor(t, resp.Items, f.bottle.ID).Total.StringFixed(2))
	assert.Equal(t, "637.50", resp.Reissued.TotalAmount.StringFixed(2))
	assert.True(t, sumItems(resp.Items).Equal(resp.Reissued.TotalAmount))

	stored := f.env.LoadInvoice(t, old.ID)
	assert.Equal(t, invoicedomain.StatusCancelled, stored.Status)
	onOld, err := deliveryrepo.Provide().ListByInvoice(ctx, f.env.DB, old.ID)
	require.NoError(t, err)
	assert.Empty(t, onOld)
	onNew, err := deliveryrepo.Provide().ListByInvoice(ctx, f.env.DB, resp.Reissued.ID)
	require.NoError(t, err)
	assert.Len(t, onNew, 3)

	_, err = f.svc.VoidAndReissue(ctx, old.ID.String(), invoicedomain.VoidReissueRequest{Reason: "again"})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidState)

	assert.Contains(t, f.env.Audit.Actions(), auditdomain.ActionVoidReissueInvoice)
}

func TestVoidAndReissueRejects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	empty := f.env.Invoice(t, f.client.ID, invoicedomain.StatusPending, "0", billingtest.Epoch)
	_, err := f.svc.VoidAndReissue(ctx, empty.ID.String(), invoicedomain.VoidReissueRequest{Reason: "nothing here"})
	assert.ErrorIs(t, err, invoicedomain.ErrNoLineItems)

	partial := f.env.Invoice(t, f.client.ID, invoicedomain.StatusPartial, "100", billingtest.Epoch)
	_, err = f.svc.VoidAndReissue(ctx, partial.ID.String(), invoicedomain.VoidReissueRequest{Reason: "repricing"})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidState)

	_, err = f.svc.VoidAndReissue(ctx, partial.ID.String(), invoicedomain.VoidReissueRequest{Reason: "x"})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidReason)

	var count int64
	require.NoError(t, f.env.DB.Model(&invoicedomain.Invoice{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
	assert.Empty(t, f.env.Audit.Entries)
}

// confirmedDraft bills the fixture's jar deliveries and confirms the draft.
func confirmedDraft(t *testing.T, f *fixture, delivered int64) invoicedomain.Invoice {
	t.Helper()
	ctx := context.Background()
	f.env.Deliver(t, f.client.ID, f.jar.ID, delivered, 0)
	draft, err := f.svc.GenerateDraft(ctx, f.client.ID.String())
	require.NoError(t, err)
	confirmed, err := f.svc.Confirm(ctx, draft.Invoice.ID.String())
	require.NoError(t, err)
	return confirmed
}

func clearJarPrices(t *testing.T, f *fixture) {
	t.Helper()
	require.NoError(t, f.env.DB.
		Where("client_id = ? AND container_id = ?", f.client.ID, f.jar.ID).
		Delete(&pricingdomain.PriceEntry{}).Error)
}

func TestVoidAndReissueKeepsSnapshotWithoutPriceHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	old := confirmedDraft(t, f, 7)
	clearJarPrices(t, f)
	f.env.Clock.Advance(time.Hour)

	resp, err := f.svc.VoidAndReissue(ctx, old.ID.String(), invoicedomain.VoidReissueRequest{Reason: "wrong client copy"})
	require.NoError(t, err)

	require.Len(t, resp.Items, 1)
	line := resp.Items[0]
	assert.Equal(t, int64(7), line.Quantity)
	assert.Equal(t, "30.00", line.PriceSnapshot.StringFixed(2))
	assert.Equal(t, "210.00", resp.Reissued.TotalAmount.StringFixed(2))
	assert.Equal(t, invoicedomain.StatusCancelled, f.env.LoadInvoice(t, old.ID).Status)
}

func TestVoidAndReissueFuturePriceOnlyRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	old := confirmedDraft(t, f, 7)
	clearJarPrices(t, f)
	f.env.Price(t, f.client.ID, f.jar.ID, "45", billingtest.Epoch.AddDate(0, 1, 0))
	f.env.Clock.Advance(time.Hour)
	audits := len(f.env.Audit.Entries)

	_, err := f.svc.VoidAndReissue(ctx, old.ID.String(), invoicedomain.VoidReissueRequest{Reason: "price correction"})
	require.ErrorIs(t, err, pricingdomain.ErrPriceNotSet)

	var count int64
	require.NoError(t, f.env.DB.Model(&invoicedomain.Invoice{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	stored := f.env.LoadInvoice(t, old.ID)
	assert.Equal(t, invoicedomain.StatusPending, stored.Status)
	assert.Nil(t, stored.ReplacedByInvoiceID)
	onOld, err := deliveryrepo.Provide().ListByInvoice(ctx, f.env.DB, old.ID)
	require.NoError(t, err)
	assert.Len(t, onOld, 1)
	assert.Len(t, f.env.Audit.Entries, audits)
}

func TestListDerivesOverdue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	late := f.env.Invoice(t, f.client.ID, invoicedomain.StatusPending, "100", billingtest.Epoch)
	current := f.env.Invoice(t, f.client.ID, invoicedomain.StatusPending, "50", billingtest.Epoch.AddDate(0, 0, 5))
	f.env.Invoice(t, f.client.ID, invoicedomain.StatusDraft, "10", billingtest.Epoch.AddDate(0, 0, 6))
	f.env.Clock.Set(billingtest.Epoch.AddDate(0, 0, 8))

	all, err := f.svc.List(ctx, invoicedomain.ListInvoiceRequest{ClientID: f.client.ID.String()})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, invoicedomain.StatusDraft, all[0].DisplayStatus, "newest first")
	assert.Equal(t, invoicedomain.StatusOverdue, all[2].DisplayStatus)
	assert.Equal(t, invoicedomain.StatusPending, all[2].Status, "overdue is never stored")

	overdue, err := f.svc.List(ctx, invoicedomain.ListInvoiceRequest{Status: "overdue"})
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, late.ID, overdue[0].ID)
	assert.True(t, overdue[0].Overdue)

	pending, err := f.svc.List(ctx, invoicedomain.ListInvoiceRequest{Status: "PENDING"})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, current.ID, pending[0].ID)

	_, err = f.svc.List(ctx, invoicedomain.ListInvoiceRequest{Status: "refunded"})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidStatus)
}

func TestListPendingLimitSkipsOverdueInQuery(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	current := f.env.Invoice(t, f.client.ID, invoicedomain.StatusPending, "50", billingtest.Epoch.AddDate(0, 0, 5))
	stale := f.env.Invoice(t, f.client.ID, invoicedomain.StatusPending, "75", billingtest.Epoch.AddDate(0, 0, 7))
	require.NoError(t, f.env.DB.Model(&invoicedomain.Invoice{}).
		Where("id = ?", stale.ID).
		Update("due_date", billingtest.Epoch.AddDate(0, 0, 7)).Error)
	f.env.Clock.Set(billingtest.Epoch.AddDate(0, 0, 8))

	pending, err := f.svc.List(ctx, invoicedomain.ListInvoiceRequest{Status: "pending", Limit: 1})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, current.ID, pending[0].ID)

	overdue, err := f.svc.List(ctx, invoicedomain.ListInvoiceRequest{Status: "overdue", Limit: 1})
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, stale.ID, overdue[0].ID)
}

func TestGet(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.env.Deliver(t, f.client.ID, f.jar.ID, 3, 0)
	draft, err := f.svc.GenerateDraft(ctx, f.client.ID.String())
	require.NoError(t, err)

	detail, err := f.svc.Get(ctx, draft.Invoice.ID.String())
	require.NoError(t, err)
	assert.Equal(t, draft.Invoice.ID, detail.ID)
	assert.Len(t, detail.Items, 1)
	assert.Empty(t, detail.Payments)
	assert.Equal(t, "90.00", detail.Remaining.StringFixed(2))

	_, err = f.svc.Confirm(ctx, draft.Invoice.ID.String())
	require.NoError(t, err)
	detail, err = f.svc.Get(ctx, draft.Invoice.ID.String())
	require.NoError(t, err)
	require.NotNil(t, detail.InvoiceNumber)
	assert.Equal(t, "INV-202403-000001", *detail.InvoiceNumber)
	assert.Equal(t, invoicedomain.StatusPending, detail.DisplayStatus)

	_, err = f.svc.Get(ctx, f.env.Node.Generate().String())
	assert.ErrorIs(t, err, invoicedomain.ErrNotFound)
	_, err = f.svc.Get(ctx, "0")
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidID)
}

func TestAuditFailureDoesNotFailOperation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.env.Audit.Err = assert.AnError
	f.env.Deliver(t, f.client.ID, f.jar.ID, 1, 0)

	resp, err := f.svc.GenerateDraft(ctx, f.client.ID.String())
	require.NoError(t, err)
	_, err = f.svc.Confirm(ctx, resp.Invoice.ID.String())
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusPending, f.env.LoadInvoice(t, resp.Invoice.ID).Status)
}
