package postgres

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tanmoy095/logisynapse-fulfillment/internal/billing"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/customer"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/events"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/order"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/wallet"
)

// These run against a real database: set POSTGRES_TEST_URL to enable them.
func testDB(t *testing.T) *sql.DB {
	t.Helper()
	url := os.Getenv("POSTGRES_TEST_URL")
	if url == "" {
		t.Skip("POSTGRES_TEST_URL not set")
	}
	ctx := context.Background()
	db, err := Open(ctx, url)
	require.NoError(t, err)
	require.NoError(t, Migrate(ctx, db))
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// merchant ids are random so runs do not collide
func merchant() string { return "m-" + uuid.NewString() }

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestAdjustBalanceFloor(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	s := NewWalletStore(db)
	m := merchant()

	opening, closing, err := s.AdjustBalance(ctx, m, d("100"), false)
	require.NoError(t, err)
	assert.True(t, opening.IsZero())
	assert.True(t, closing.Equal(d("100")))

	opening, closing, err = s.AdjustBalance(ctx, m, d("-35.50"), true)
	require.NoError(t, err)
	assert.True(t, opening.Equal(d("100")))
	assert.True(t, closing.Equal(d("64.50")))

	_, closing, err = s.AdjustBalance(ctx, m, d("-64.51"), true)
	assert.ErrorIs(t, err, wallet.ErrInsufficientFunds)
	assert.True(t, closing.Equal(d("64.50")))
}

func TestInsertTransactionOncePerOrder(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	s := NewWalletStore(db)
	m := merchant()
	now := time.Now().UTC()

	txn := func(status wallet.Status) *wallet.Transaction {
		return &wallet.Transaction{
			ID: wallet.NewTransactionID(wallet.Debit, wallet.CategoryShipping, now), MerchantID: m,
			Type: wallet.Debit, Category: wallet.CategoryShipping, Amount: d("10"), OrderID: "o1",
			OpeningBalance: d("10"), ClosingBalance: d("0"), Status: status, CreatedAt: now, UpdatedAt: now,
		}
	}
	require.NoError(t, s.InsertTransaction(ctx, txn(wallet.StatusFailed)))
	require.NoError(t, s.InsertTransaction(ctx, txn(wallet.StatusCompleted)))
	assert.ErrorIs(t, s.InsertTransaction(ctx, txn(wallet.StatusCompleted)), wallet.ErrDuplicateEntry)

	got, err := s.FindOrderTransaction(ctx, m, "o1", wallet.CategoryShipping)
	require.NoError(t, err)
	assert.Equal(t, wallet.StatusCompleted, got.Status)
}

func TestOrderUpdateKeepsBilling(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	s := NewOrderStore(db)
	m := merchant()
	now := time.Now().UTC().Truncate(time.Millisecond)

	o := order.New("o1", m, now, "test")
	require.NoError(t, s.Create(ctx, o))
	assert.ErrorIs(t, s.Create(ctx, o), order.ErrDuplicateOrder)

	require.NoError(t, s.LinkPayment(ctx, m, "o1", "DB1", order.BillingPaid))

	o.ProviderStatus = "Manifested"
	o.Billing = order.Billing{}
	require.NoError(t, s.Update(ctx, o, order.StatusNew))
	assert.ErrorIs(t, s.Update(ctx, o, order.StatusReadyToShip), order.ErrStaleOrder)

	got, err := s.Get(ctx, m, "o1")
	require.NoError(t, err)
	assert.Equal(t, "Manifested", got.ProviderStatus)
	assert.Equal(t, "DB1", got.Billing.WalletTxnID)
	assert.Equal(t, order.BillingPaid, got.Billing.PaymentStatus)

	_, err = s.Get(ctx, m, "missing")
	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}

func TestOrderUpdateChecksVersion(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	s := NewOrderStore(db)
	m := merchant()
	require.NoError(t, s.Create(ctx, order.New("o1", m, time.Now().UTC(), "test")))

	first, err := s.Get(ctx, m, "o1")
	require.NoError(t, err)
	second, err := s.Get(ctx, m, "o1")
	require.NoError(t, err)

	first.ProviderStatus = "Manifested"
	require.NoError(t, s.Update(ctx, first, order.StatusNew))
	assert.Equal(t, int64(1), first.Version)

	second.ProviderStatus = "Pending"
	assert.ErrorIs(t, s.Update(ctx, second, order.StatusNew), order.ErrStaleOrder)

	got, err := s.Get(ctx, m, "o1")
	require.NoError(t, err)
	assert.Equal(t, "Manifested", got.ProviderStatus)
	assert.Equal(t, int64(1), got.Version)
}

func TestBillingAddLineIdempotent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	s := NewBillingStore(db)
	m := merchant()
	p := billing.Period{Year: 2026, Month: 3}

	c, err := s.GetOrCreateCycle(ctx, m, p)
	require.NoError(t, err)
	line := billing.Line{
		OrderID: "o1", Direction: billing.DirectionForward, ChargedWeightG: 500,
		Charges: order.Charges{Forward: d("30"), RTO: d("0"), COD: d("5.50"), Total: d("35.50")},
		AddedAt: p.Start().Add(time.Hour),
	}
	added, err := s.AddLine(ctx, c.ID, line)
	require.NoError(t, err)
	assert.True(t, added)
	added, err = s.AddLine(ctx, c.ID, line)
	require.NoError(t, err)
	assert.False(t, added)

	got, err := s.GetCycle(ctx, m, p)
	require.NoError(t, err)
	assert.Len(t, got.Lines, 1)
	assert.True(t, got.Total.Equal(d("35.50")))

	_, err = s.AddLine(ctx, "no-such-cycle", line)
	assert.ErrorIs(t, err, billing.ErrCycleNotFound)
}

func TestOutboxPendingAndMark(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	s := NewOutboxStore(db)
	ev, err := events.New(events.OrderCreated, merchant(), "o1", map[string]string{"k": "v"}, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, ev))

	pending, err := s.Pending(ctx, 0)
	require.NoError(t, err)
	var found bool
	for _, p := range pending {
		found = found || p.ID == ev.ID
	}
	assert.True(t, found)

	require.NoError(t, s.MarkPublished(ctx, []string{ev.ID}))
	pending, err = s.Pending(ctx, 0)
	require.NoError(t, err)
	for _, p := range pending {
		assert.NotEqual(t, ev.ID, p.ID)
	}
}

func TestCustomerUpsert(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	s := NewCustomerStore(db)
	m := merchant()

	for i := 0; i < 2; i++ {
		require.NoError(t, s.Upsert(ctx, m, "9999999999", func(p *customer.Profile) { p.TotalOrders++ }))
	}
	p, err := s.Get(ctx, m, "9999999999")
	require.NoError(t, err)
	assert.Equal(t, 2, p.TotalOrders)
}
