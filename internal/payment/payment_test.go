package payment_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79/webhook"

	domainErr "github.com/Tanmoy095/logisynapse-fulfillment/internal/domain/errors"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/payment"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/store/memory"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/wallet"
)

type fakeGateway struct {
	mu       sync.Mutex
	statuses map[string]string
	sessions int
	queries  int
}

func (g *fakeGateway) CreateOrderSession(ctx context.Context, req payment.SessionRequest) (*payment.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions++
	id := fmt.Sprintf("cs_test_%d", g.sessions)
	return &payment.Session{OrderID: id, SessionID: id, PaymentLink: "https://pay.example/" + id}, nil
}

func (g *fakeGateway) OrderStatus(ctx context.Context, orderID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queries++
	st, ok := g.statuses[orderID]
	if !ok {
		return "open", nil
	}
	return st, nil
}

func (g *fakeGateway) set(id, status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[id] = status
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newService(t *testing.T) (*payment.TopUpService, *wallet.Ledger, *fakeGateway) {
	t.Helper()
	store := memory.NewWalletStore()
	store.Seed("m1", d("100"))
	// pending rows look an hour old to the reconciler
	past := time.Now().Add(-time.Hour)
	ledger := wallet.NewLedger(store, store, nil).WithClock(func() time.Time { return past })
	gw := &fakeGateway{statuses: map[string]string{}}
	return payment.NewTopUpService(ledger, gw), ledger, gw
}

func balance(t *testing.T, l *wallet.Ledger) decimal.Decimal {
	t.Helper()
	b, err := l.Balance(context.Background(), "m1")
	require.NoError(t, err)
	return b
}

func TestMapPaymentStatus(t *testing.T) {
	tests := []struct {
		in   string
		want payment.Status
	}{
		{"paid", payment.StatusSucceeded},
		{"PAID", payment.StatusSucceeded},
		{"complete", payment.StatusSucceeded},
		{"expired", payment.StatusFailed},
		{"canceled", payment.StatusFailed},
		{"open", payment.StatusPending},
		{"processing", payment.StatusPending},
		{"", payment.StatusPending},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, payment.MapPaymentStatus(tt.in), tt.in)
	}
	assert.True(t, payment.IsPaymentSuccessful("paid"))
	assert.False(t, payment.IsPaymentSuccessful("open"))
}

func TestInitiateTopUpLeavesBalance(t *testing.T) {
	svc, ledger, _ := newService(t)
	res, err := svc.InitiateTopUp(context.Background(), payment.Customer{MerchantID: "m1"}, d("250"))
	require.NoError(t, err)

	assert.Equal(t, wallet.StatusPending, res.Transaction.Status)
	assert.Equal(t, res.Session.OrderID, res.Transaction.GatewayOrderID)
	assert.NotEmpty(t, res.Session.PaymentLink)
	assert.True(t, balance(t, ledger).Equal(d("100")))
}

func TestInitiateTopUpValidatesAmount(t *testing.T) {
	svc, _, gw := newService(t)
	for _, amt := range []string{"0", "-5", "500001"} {
		_, err := svc.InitiateTopUp(context.Background(), payment.Customer{MerchantID: "m1"}, d(amt))
		assert.ErrorIs(t, err, domainErr.ErrInvalidInput, amt)
	}
	assert.Equal(t, 0, gw.sessions)
}

func TestConfirmTopUpCreditsOnce(t *testing.T) {
	svc, ledger, gw := newService(t)
	ctx := context.Background()
	res, err := svc.InitiateTopUp(ctx, payment.Customer{MerchantID: "m1"}, d("250"))
	require.NoError(t, err)
	gw.set(res.Session.OrderID, "paid")

	txn, err := svc.ConfirmTopUp(ctx, "m1", res.Session.OrderID)
	require.NoError(t, err)
	assert.Equal(t, wallet.StatusCompleted, txn.Status)
	assert.True(t, txn.ClosingBalance.Equal(d("350")))

	again, err := svc.ConfirmTopUp(ctx, "m1", res.Session.OrderID)
	require.NoError(t, err)
	assert.Equal(t, wallet.StatusCompleted, again.Status)
	assert.Equal(t, 1, gw.queries, "settled top-ups are not re-queried")
	assert.True(t, balance(t, ledger).Equal(d("350")))
}

func TestConfirmTopUpConcurrentCallers(t *testing.T) {
	svc, ledger, gw := newService(t)
	ctx := context.Background()
	res, err := svc.InitiateTopUp(ctx, payment.Customer{MerchantID: "m1"}, d("40"))
	require.NoError(t, err)
	gw.set(res.Session.OrderID, "paid")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.ConfirmTopUp(ctx, "", res.Session.OrderID)
		}()
	}
	wg.Wait()
	assert.True(t, balance(t, ledger).Equal(d("140")))
}

func TestConfirmTopUpFailedAndPending(t *testing.T) {
	svc, ledger, gw := newService(t)
	ctx := context.Background()
	expired, err := svc.InitiateTopUp(ctx, payment.Customer{MerchantID: "m1"}, d("10"))
	require.NoError(t, err)
	open, err := svc.InitiateTopUp(ctx, payment.Customer{MerchantID: "m1"}, d("20"))
	require.NoError(t, err)
	gw.set(expired.Session.OrderID, "expired")

	txn, err := svc.ConfirmTopUp(ctx, "m1", expired.Session.OrderID)
	require.NoError(t, err)
	assert.Equal(t, wallet.StatusFailed, txn.Status)

	txn, err = svc.ConfirmTopUp(ctx, "m1", open.Session.OrderID)
	require.NoError(t, err)
	assert.Equal(t, wallet.StatusPending, txn.Status)
	assert.True(t, balance(t, ledger).Equal(d("100")))
}

func TestConfirmTopUpScopedByMerchant(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	res, err := svc.InitiateTopUp(ctx, payment.Customer{MerchantID: "m1"}, d("10"))
	require.NoError(t, err)

	_, err = svc.ConfirmTopUp(ctx, "m2", res.Session.OrderID)
	assert.ErrorIs(t, err, payment.ErrTopUpNotFound)
	_, err = svc.ConfirmTopUp(ctx, "m1", "cs_unknown")
	assert.ErrorIs(t, err, payment.ErrTopUpNotFound)
}

func TestReconcilerSettlesStuckTopUps(t *testing.T) {
	svc, ledger, gw := newService(t)
	ctx := context.Background()
	paid, err := svc.InitiateTopUp(ctx, payment.Customer{MerchantID: "m1"}, d("30"))
	require.NoError(t, err)
	_, err = svc.InitiateTopUp(ctx, payment.Customer{MerchantID: "m1"}, d("70"))
	require.NoError(t, err)
	gw.set(paid.Session.OrderID, "paid")

	n, err := payment.NewReconciler(svc, ledger).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, balance(t, ledger).Equal(d("130")))
}

const whSecret = "whsec_test"

func signed(t *testing.T, body string) (string, []byte) {
	t.Helper()
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(body),
		Secret:    whSecret,
		Timestamp: time.Now(),
	})
	return sp.Header, sp.Payload
}

func TestStripeWebhook(t *testing.T) {
	p := payment.NewStripeWebhook(whSecret)

	t.Run("completed session", func(t *testing.T) {
		header, body := signed(t, `{"id":"evt_1","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_test_9","object":"checkout.session","payment_status":"paid"}}}`)
		ev, err := p.VerifyAndParse(body, map[string]string{"Stripe-Signature": header})
		require.NoError(t, err)
		require.NotNil(t, ev)
		assert.Equal(t, "cs_test_9", ev.GatewayOrderID)
		assert.Equal(t, payment.StatusSucceeded, ev.Status)
	})

	t.Run("ignored type", func(t *testing.T) {
		header, body := signed(t, `{"id":"evt_2","object":"event","type":"charge.refunded","data":{"object":{"id":"ch_1"}}}`)
		ev, err := p.VerifyAndParse(body, map[string]string{"Stripe-Signature": header})
		require.NoError(t, err)
		assert.Nil(t, ev)
	})

	t.Run("bad signature", func(t *testing.T) {
		_, body := signed(t, `{"id":"evt_3","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_1"}}}`)
		_, err := p.VerifyAndParse(body, map[string]string{"Stripe-Signature": "t=1,v1=deadbeef"})
		assert.Error(t, err)
	})
}

func TestHandleWebhookRechecksProvider(t *testing.T) {
	svc, ledger, gw := newService(t)
	ctx := context.Background()
	res, err := svc.InitiateTopUp(ctx, payment.Customer{MerchantID: "m1"}, d("25"))
	require.NoError(t, err)

	// webhook claims success but the provider still says open
	require.NoError(t, svc.HandleWebhook(ctx, &payment.NormalizedEvent{Provider: "stripe", GatewayOrderID: res.Session.OrderID, Status: payment.StatusSucceeded}))
	assert.True(t, balance(t, ledger).Equal(d("100")))

	gw.set(res.Session.OrderID, "paid")
	require.NoError(t, svc.HandleWebhook(ctx, &payment.NormalizedEvent{Provider: "stripe", GatewayOrderID: res.Session.OrderID, Status: payment.StatusSucceeded}))
	assert.True(t, balance(t, ledger).Equal(d("125")))

	assert.NoError(t, svc.HandleWebhook(ctx, &payment.NormalizedEvent{GatewayOrderID: "cs_other"}))
}
