package fulfillment_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tanmoy095/logisynapse-fulfillment/internal/courier"
	domainErr "github.com/Tanmoy095/logisynapse-fulfillment/internal/domain/errors"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/events"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/fulfillment"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/order"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/serviceability"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/store/memory"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/wallet"
)

// fakeCourier answers from per-test hooks and counts calls.
type fakeCourier struct {
	mu          sync.Mutex
	unservice   map[string]bool
	noCOD       map[string]bool
	create      func(req courier.ShipmentRequest) (courier.CreateResult, error)
	cancel      func(waybill string) (courier.CancelResult, error)
	track       courier.TrackResult
	pickups     []courier.PickupRequest
	creates     int
	cancels     int
	nextWaybill int
}

func newFakeCourier() *fakeCourier {
	return &fakeCourier{unservice: map[string]bool{}, noCOD: map[string]bool{}}
}

func (f *fakeCourier) CheckServiceability(ctx context.Context, pin string) (courier.PincodeInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ok := !f.unservice[pin]
	return courier.PincodeInfo{Pincode: pin, Serviceable: ok, PickupAvailable: ok, CashOnDelivery: ok && !f.noCOD[pin]}, nil
}

func (f *fakeCourier) AllocateWaybills(ctx context.Context, count int) ([]string, error) {
	return nil, errors.New("not supported")
}

func (f *fakeCourier) CreateShipment(ctx context.Context, req courier.ShipmentRequest) (courier.CreateResult, error) {
	f.mu.Lock()
	f.creates++
	f.nextWaybill++
	n := f.nextWaybill
	hook := f.create
	f.mu.Unlock()
	if hook != nil {
		return hook(req)
	}
	return courier.CreateResult{Success: true, Waybill: "WB" + req.OrderID + "-" + string(rune('0'+n%10))}, nil
}

func (f *fakeCourier) CancelShipment(ctx context.Context, waybill string) (courier.CancelResult, error) {
	f.mu.Lock()
	f.cancels++
	hook := f.cancel
	f.mu.Unlock()
	if hook != nil {
		return hook(waybill)
	}
	return courier.CancelResult{Success: true, Remark: "Shipment has been cancelled"}, nil
}

func (f *fakeCourier) TrackShipment(ctx context.Context, waybill, ref string) (courier.TrackResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tr := f.track
	tr.Waybill = waybill
	return tr, nil
}

func (f *fakeCourier) SchedulePickup(ctx context.Context, req courier.PickupRequest) (courier.PickupResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pickups = append(f.pickups, req)
	return courier.PickupResult{Success: true, PickupID: "PK1"}, nil
}

func (f *fakeCourier) RenderLabel(ctx context.Context, waybill string) (courier.Label, error) {
	return courier.Label{Waybill: waybill}, nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingEmitter) Emit(_ context.Context, ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingEmitter) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

type harness struct {
	orch    *fulfillment.Orchestrator
	orders  *memory.OrderStore
	wallet  *memory.WalletStore
	ledger  *wallet.Ledger
	courier *fakeCourier
	events  *recordingEmitter
}

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newHarness(t *testing.T, balance string) *harness {
	t.Helper()
	h := &harness{
		orders:  memory.NewOrderStore(),
		wallet:  memory.NewWalletStore(),
		courier: newFakeCourier(),
		events:  &recordingEmitter{},
	}
	h.wallet.Seed("m1", d(balance))
	h.ledger = wallet.NewLedger(h.wallet, h.wallet, nil).WithClock(func() time.Time { return fixedNow })

	merchants := memory.NewMerchantStore()
	merchants.AddWarehouse("m1", fulfillment.Warehouse{Name: "blr-main", Address: order.Address{
		Name: "Acme Store", Line1: "12 MG Road", City: "Bengaluru", State: "Karnataka", Pincode: "560001", Phone: "9800000001",
	}})

	n := 0
	h.orch = fulfillment.NewOrchestrator(fulfillment.Deps{
		Orders:     h.orders,
		Ledger:     h.ledger,
		Courier:    h.courier,
		Gate:       serviceability.NewGate(h.courier),
		Warehouses: merchants,
		Events:     h.events,
		Clock:      func() time.Time { return fixedNow },
		NewID: func() string {
			n++
			return "ORD" + string(rune('A'+n))
		},
	})
	return h
}

func (h *harness) balance(t *testing.T) decimal.Decimal {
	t.Helper()
	bal, err := h.ledger.Balance(context.Background(), "m1")
	require.NoError(t, err)
	return bal
}

func createCmd(id string, awb bool) fulfillment.CreateOrderCommand {
	return fulfillment.CreateOrderCommand{
		MerchantID:     "m1",
		OrderID:        id,
		PickupLocation: "blr-main",
		Delivery: order.Address{
			Name: "Ravi", Line1: "4 Park Street", City: "Kolkata", State: "West Bengal", Pincode: "700016", Phone: "9811111111",
		},
		Package:        order.Package{WeightKg: 0.5, LengthCm: 10, WidthCm: 10, HeightCm: 10},
		PaymentMode:    order.PaymentPrepaid,
		OrderValue:     d("499"),
		ShippingCharge: decimal.NewNullDecimal(d("35.50")),
		GenerateAWB:    awb,
	}
}

func TestCreateOrderDebitsWallet(t *testing.T) {
	h := newHarness(t, "100")
	res, err := h.orch.CreateOrder(context.Background(), createCmd("o1", true))
	require.NoError(t, err)

	assert.Equal(t, order.StatusReadyToShip, res.Order.Status)
	assert.NotEmpty(t, res.Order.Waybill)
	require.NotNil(t, res.Transaction)
	assert.True(t, res.Transaction.Amount.Equal(d("35.50")))
	assert.True(t, h.balance(t).Equal(d("64.50")), "balance %s", h.balance(t))

	saved, err := h.orders.Get(context.Background(), "m1", "o1")
	require.NoError(t, err)
	assert.Equal(t, res.Transaction.ID, saved.Billing.WalletTxnID)
	assert.Equal(t, order.BillingPaid, saved.Billing.PaymentStatus)
	assert.Equal(t, []events.Type{events.OrderCreated, events.OrderDispatched}, h.events.types())
}

func TestCreateOrderUnserviceableLeavesNothing(t *testing.T) {
	h := newHarness(t, "100")
	h.courier.unservice["700016"] = true

	_, err := h.orch.CreateOrder(context.Background(), createCmd("o1", true))
	var se *domainErr.ServiceabilityError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "delivery", se.Role)
	assert.Equal(t, 0, h.orders.Count())
	assert.Equal(t, 0, h.courier.creates)
	assert.True(t, h.balance(t).Equal(d("100")))
	assert.Empty(t, h.events.types())
}

func TestCreateOrderCODNotAvailable(t *testing.T) {
	h := newHarness(t, "100")
	h.courier.noCOD["700016"] = true
	cmd := createCmd("o1", true)
	cmd.PaymentMode = order.PaymentCOD
	cmd.CODAmount = d("499")

	_, err := h.orch.CreateOrder(context.Background(), cmd)
	assert.Equal(t, "not_serviceable", fulfillment.ErrorCode(err))
	assert.Equal(t, 0, h.orders.Count())
}

func TestCreateOrderInsufficientBalanceBeforeCourier(t *testing.T) {
	h := newHarness(t, "10")
	_, err := h.orch.CreateOrder(context.Background(), createCmd("o1", true))

	var ib *domainErr.InsufficientBalanceError
	require.ErrorAs(t, err, &ib)
	assert.True(t, ib.Shortfall().Equal(d("25.50")))
	assert.Equal(t, 0, h.courier.creates)
	assert.Equal(t, 0, h.orders.Count())
}

func TestCreateOrderWithoutUsableWaybill(t *testing.T) {
	tests := []struct {
		name string
		res  courier.CreateResult
		err  error
	}{
		{name: "success without waybill", res: courier.CreateResult{Success: true}},
		{name: "explicit failure", res: courier.CreateResult{Success: false, Error: "duplicate order id"}},
		{name: "transport error", err: context.DeadlineExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, "100")
			h.courier.create = func(courier.ShipmentRequest) (courier.CreateResult, error) { return tt.res, tt.err }

			_, err := h.orch.CreateOrder(context.Background(), createCmd("o1", true))
			var cpe *domainErr.CourierProviderError
			require.ErrorAs(t, err, &cpe)
			assert.Equal(t, 0, h.orders.Count())
			assert.True(t, h.balance(t).Equal(d("100")))
		})
	}
}

// drainOnCreate spends the wallet from outside the orchestrator while the
// courier call is in flight.
func drainOnCreate(h *harness, amount string) {
	h.courier.create = func(req courier.ShipmentRequest) (courier.CreateResult, error) {
		_, err := h.ledger.Debit(context.Background(), wallet.EntryRequest{
			MerchantID: "m1", Amount: d(amount), Category: wallet.CategoryPenalty, Description: "weight dispute",
		})
		if err != nil {
			return courier.CreateResult{}, err
		}
		return courier.CreateResult{Success: true, Waybill: "WB-" + req.OrderID}, nil
	}
}

func TestCreateOrderDebitLostAfterDispatch(t *testing.T) {
	h := newHarness(t, "100")
	drainOnCreate(h, "90")

	_, err := h.orch.CreateOrder(context.Background(), createCmd("o1", true))
	var ib *domainErr.InsufficientBalanceError
	require.ErrorAs(t, err, &ib)

	assert.Equal(t, 0, h.orders.Count())
	assert.Equal(t, 1, h.courier.creates)
	assert.Equal(t, 1, h.courier.cancels, "shipment is cancelled with the courier")
	assert.True(t, h.balance(t).Equal(d("10")))
	assert.Empty(t, h.events.types())
}

func TestGenerateAWBDebitLostAfterDispatch(t *testing.T) {
	h := newHarness(t, "100")
	ctx := context.Background()
	seedUnpaid(t, h, "a")
	drainOnCreate(h, "90")

	_, err := h.orch.GenerateAWB(ctx, "m1", "a", "")
	assert.Equal(t, "insufficient_balance", fulfillment.ErrorCode(err))
	assert.Equal(t, 1, h.courier.cancels)

	saved, err := h.orders.Get(ctx, "m1", "a")
	require.NoError(t, err)
	assert.Equal(t, order.StatusNew, saved.Status)
	assert.Empty(t, saved.Waybill)
	assert.True(t, h.balance(t).Equal(d("10")))
}

func TestCreateOrderRefundsWhenSaveFails(t *testing.T) {
	h := newHarness(t, "100")
	ctx := context.Background()
	first := createCmd("o1", false)
	first.ReferenceID = "shop-1001"
	_, err := h.orch.CreateOrder(ctx, first)
	require.NoError(t, err)

	clash := createCmd("o2", true)
	clash.ReferenceID = "shop-1001"
	_, err = h.orch.CreateOrder(ctx, clash)
	assert.ErrorIs(t, err, order.ErrDuplicateOrder)
	assert.Equal(t, 1, h.courier.cancels)
	assert.True(t, h.balance(t).Equal(d("64.50")), "balance %s", h.balance(t))

	refund, err := h.ledger.FindOrderTransaction(ctx, "m1", "o2", wallet.CategoryRefund)
	require.NoError(t, err)
	assert.True(t, refund.Amount.Equal(d("35.50")))

	// the refunded id cannot be charged again
	retry := createCmd("o2", false)
	_, err = h.orch.CreateOrder(ctx, retry)
	assert.Equal(t, "conflict", fulfillment.ErrorCode(err))
	assert.True(t, h.balance(t).Equal(d("64.50")))
}

func TestCreateOrderAdHocPickupWithAWB(t *testing.T) {
	h := newHarness(t, "100")
	var sent courier.ShipmentRequest
	h.courier.create = func(req courier.ShipmentRequest) (courier.CreateResult, error) {
		sent = req
		return courier.CreateResult{Success: true, Waybill: "WB-" + req.OrderID}, nil
	}
	cmd := createCmd("o1", true)
	cmd.PickupLocation = ""
	cmd.Pickup = &order.Address{Name: "Popup Stall", Line1: "7 Church Street", City: "Bengaluru", State: "Karnataka", Pincode: "560001", Phone: "9800000002"}

	res, err := h.orch.CreateOrder(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, order.StatusReadyToShip, res.Order.Status)
	assert.Equal(t, "WB-o1", res.Order.Waybill)
	assert.Empty(t, sent.PickupLocation)
	assert.Equal(t, "Popup Stall", sent.Return.Name)
	assert.Equal(t, "560001", sent.Return.Pincode)
}

func TestCreateOrderWithoutAWBStaysNew(t *testing.T) {
	h := newHarness(t, "100")
	res, err := h.orch.CreateOrder(context.Background(), createCmd("o1", false))
	require.NoError(t, err)
	assert.Equal(t, order.StatusNew, res.Order.Status)
	assert.Empty(t, res.Order.Waybill)
	assert.Equal(t, 0, h.courier.creates)
	assert.True(t, h.balance(t).Equal(d("64.50")))
}

func TestCreateOrderDuplicate(t *testing.T) {
	h := newHarness(t, "100")
	_, err := h.orch.CreateOrder(context.Background(), createCmd("o1", false))
	require.NoError(t, err)

	_, err = h.orch.CreateOrder(context.Background(), createCmd("o1", false))
	assert.ErrorIs(t, err, order.ErrDuplicateOrder)
	assert.True(t, h.balance(t).Equal(d("64.50")), "second attempt must not debit")
}

func TestCreateOrderNeedsChargeWithoutPricer(t *testing.T) {
	h := newHarness(t, "100")
	cmd := createCmd("o1", false)
	cmd.ShippingCharge = decimal.NullDecimal{}
	_, err := h.orch.CreateOrder(context.Background(), cmd)
	assert.ErrorIs(t, err, domainErr.ErrInvalidInput)
}

func TestCancelConfirmedRefundsOnce(t *testing.T) {
	h := newHarness(t, "100")
	ctx := context.Background()
	_, err := h.orch.CreateOrder(ctx, createCmd("o1", true))
	require.NoError(t, err)

	res, err := h.orch.Cancel(ctx, fulfillment.CancelCommand{MerchantID: "m1", OrderID: "o1", Reason: "customer request"})
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, res.Order.Status)
	assert.Equal(t, order.StatusTypeUD, res.Order.Cancellation.StatusType)
	require.NotNil(t, res.Refund)
	assert.True(t, res.Refund.Amount.Equal(d("35.50")))
	assert.True(t, h.balance(t).Equal(d("100.00")))

	again, err := h.orch.Cancel(ctx, fulfillment.CancelCommand{MerchantID: "m1", OrderID: "o1"})
	require.NoError(t, err)
	assert.True(t, again.AlreadyCancelled)
	assert.Nil(t, again.Refund)
	assert.Equal(t, 1, h.courier.cancels)
	assert.True(t, h.balance(t).Equal(d("100.00")))
}

func TestCancelWithoutWaybillSkipsCourier(t *testing.T) {
	h := newHarness(t, "100")
	ctx := context.Background()
	_, err := h.orch.CreateOrder(ctx, createCmd("o1", false))
	require.NoError(t, err)

	res, err := h.orch.Cancel(ctx, fulfillment.CancelCommand{MerchantID: "m1", OrderID: "o1"})
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, res.Order.Status)
	assert.Equal(t, order.StatusTypeCN, res.Order.Cancellation.StatusType)
	assert.Equal(t, 0, h.courier.cancels)
	assert.True(t, h.balance(t).Equal(d("100")))
}

func TestCancelCourierTimeoutKeepsStatus(t *testing.T) {
	h := newHarness(t, "100")
	ctx := context.Background()
	_, err := h.orch.CreateOrder(ctx, createCmd("o1", true))
	require.NoError(t, err)
	h.courier.cancel = func(string) (courier.CancelResult, error) { return courier.CancelResult{}, context.DeadlineExceeded }

	_, err = h.orch.Cancel(ctx, fulfillment.CancelCommand{MerchantID: "m1", OrderID: "o1"})
	var cpe *domainErr.CourierProviderError
	require.ErrorAs(t, err, &cpe)
	assert.True(t, cpe.Retryable)

	saved, err := h.orders.Get(ctx, "m1", "o1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusReadyToShip, saved.Status)
	assert.Equal(t, order.CancellationPending, saved.Cancellation.Status)
	assert.True(t, h.balance(t).Equal(d("64.50")), "no refund before confirmation")

	pending, err := h.orch.PendingCancellations(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "o1", pending[0].ID)
}

func TestCancelAmbiguousAnswerIsPending(t *testing.T) {
	tests := []struct {
		name   string
		answer courier.CancelResult
		denied bool
	}{
		{name: "accepted without confirmation", answer: courier.CancelResult{Success: true, Remark: "request received"}},
		{name: "denied", answer: courier.CancelResult{Success: false, Error: "shipment already picked"}, denied: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, "100")
			ctx := context.Background()
			_, err := h.orch.CreateOrder(ctx, createCmd("o1", true))
			require.NoError(t, err)
			h.courier.cancel = func(string) (courier.CancelResult, error) { return tt.answer, nil }

			res, err := h.orch.Cancel(ctx, fulfillment.CancelCommand{MerchantID: "m1", OrderID: "o1"})
			require.NoError(t, err)
			assert.True(t, res.Pending)
			assert.Equal(t, tt.denied, res.Denied)
			assert.Equal(t, order.StatusReadyToShip, res.Order.Status)
			assert.True(t, h.balance(t).Equal(d("64.50")))
		})
	}
}

func TestCancelTerminalOrderRejected(t *testing.T) {
	h := newHarness(t, "100")
	ctx := context.Background()
	o := order.New("o9", "m1", fixedNow, "test")
	o.Waybill = "WB9"
	o.Status = order.StatusDelivered
	require.NoError(t, h.orders.Create(ctx, o))

	_, err := h.orch.Cancel(ctx, fulfillment.CancelCommand{MerchantID: "m1", OrderID: "o9"})
	assert.ErrorIs(t, err, order.ErrNotCancellable)
	assert.ErrorIs(t, err, domainErr.ErrInvalidTransition)
}

func TestMultiPackagePartialFailure(t *testing.T) {
	h := newHarness(t, "100")
	h.courier.create = func(req courier.ShipmentRequest) (courier.CreateResult, error) {
		if strings.HasSuffix(req.OrderID, "-2") {
			return courier.CreateResult{Success: false, Error: "weight mismatch"}, nil
		}
		return courier.CreateResult{Success: true, Waybill: "WB-" + req.OrderID}, nil
	}
	box := order.Package{WeightKg: 0.5, LengthCm: 10, WidthCm: 10, HeightCm: 10}
	cmd := fulfillment.MultiPackageCommand{Base: createCmd("P1", true), Boxes: []order.Package{box, box, box}}
	cmd.Base.ShippingCharge = decimal.NewNullDecimal(d("20"))

	res, err := h.orch.CreateMultiPackage(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, fulfillment.OutcomePartialSuccess, res.Outcome)
	assert.Len(t, res.Orders, 2)
	require.Len(t, res.FailedOrders, 1)
	assert.Equal(t, 2, res.FailedOrders[0].Box)
	assert.Equal(t, "P1-2", res.FailedOrders[0].OrderID)
	assert.Equal(t, "courier_error", res.FailedOrders[0].Code)

	assert.Equal(t, 2, h.orders.Count())
	assert.True(t, h.balance(t).Equal(d("60")))
	saved, err := h.orders.Get(context.Background(), "m1", "P1-3")
	require.NoError(t, err)
	assert.Equal(t, "P1", saved.ParentID)
}

func TestMultiPackageRefusesBoxesTheWalletCannotCover(t *testing.T) {
	h := newHarness(t, "80")
	box := order.Package{WeightKg: 0.5, LengthCm: 10, WidthCm: 10, HeightCm: 10}
	cmd := fulfillment.MultiPackageCommand{Base: createCmd("P1", true), Boxes: []order.Package{box, box, box}}

	res, err := h.orch.CreateMultiPackage(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, fulfillment.OutcomePartialSuccess, res.Outcome)
	assert.Len(t, res.Orders, 2)
	require.Len(t, res.FailedOrders, 1)
	assert.Equal(t, 3, res.FailedOrders[0].Box)
	assert.Equal(t, "insufficient_balance", res.FailedOrders[0].Code)

	assert.Equal(t, 2, h.courier.creates)
	assert.Equal(t, 0, h.courier.cancels)
	assert.Equal(t, 2, h.orders.Count())
	assert.True(t, h.balance(t).Equal(d("9.00")), "balance %s", h.balance(t))
	for _, id := range []string{"P1-1", "P1-2"} {
		saved, err := h.orders.Get(context.Background(), "m1", id)
		require.NoError(t, err)
		assert.Equal(t, order.BillingPaid, saved.Billing.PaymentStatus, id)
	}
}

func TestConcurrentCreatesNeverOverdraw(t *testing.T) {
	h := newHarness(t, "80")
	ctx := context.Background()

	var wg sync.WaitGroup
	codes := make([]string, 3)
	for i, id := range []string{"c1", "c2", "c3"} {
		i, id := i, id
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.orch.CreateOrder(ctx, createCmd(id, true))
			codes[i] = fulfillment.ErrorCode(err)
		}()
	}
	wg.Wait()

	assert.ElementsMatch(t, []string{"", "", "insufficient_balance"}, codes)
	assert.Equal(t, 2, h.courier.creates)
	assert.Equal(t, 2, h.orders.Count())
	assert.True(t, h.balance(t).Equal(d("9.00")))
}

func TestMultiPackageNeedsTwoBoxes(t *testing.T) {
	h := newHarness(t, "100")
	_, err := h.orch.CreateMultiPackage(context.Background(), fulfillment.MultiPackageCommand{
		Base:  createCmd("P1", true),
		Boxes: []order.Package{{WeightKg: 1, LengthCm: 1, WidthCm: 1, HeightCm: 1}},
	})
	assert.ErrorIs(t, err, domainErr.ErrInvalidInput)
}

// seedUnpaid stores an order that was imported without ever being charged.
func seedUnpaid(t *testing.T, h *harness, id string) {
	t.Helper()
	o := order.New(id, "m1", fixedNow, "import")
	o.PickupLocation = "blr-main"
	o.Pickup = order.Address{Name: "Acme", Line1: "12 MG Road", City: "Bengaluru", State: "Karnataka", Pincode: "560001", Phone: "9800000001"}
	o.Delivery = order.Address{Name: "Ravi", Line1: "4 Park Street", City: "Kolkata", State: "West Bengal", Pincode: "700016", Phone: "9811111111"}
	o.Package = order.Package{WeightKg: 1, LengthCm: 10, WidthCm: 10, HeightCm: 10}
	o.PaymentMode = order.PaymentPrepaid
	o.ShippingCharge = d("35.50")
	require.NoError(t, h.orders.Create(context.Background(), o))
}

func TestBulkGenerateAWBStopsWhenWalletRunsDry(t *testing.T) {
	h := newHarness(t, "50")
	for _, id := range []string{"a", "b", "c"} {
		seedUnpaid(t, h, id)
	}

	res, err := h.orch.BulkGenerateAWB(context.Background(), fulfillment.BulkCommand{MerchantID: "m1", OrderIDs: []string{"a", "b", "b", "c"}})
	require.NoError(t, err)
	require.Len(t, res.Items, 3)
	assert.Equal(t, fulfillment.ItemSuccess, res.Items[0].Status)
	assert.Equal(t, fulfillment.ItemFailed, res.Items[1].Status)
	assert.Equal(t, "insufficient_balance", res.Items[1].Code)
	assert.Equal(t, fulfillment.ItemSkipped, res.Items[2].Status)
	assert.Equal(t, 1, res.Success)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, h.courier.creates)
	assert.True(t, h.balance(t).Equal(d("14.50")))
}

func TestGenerateAWBErrors(t *testing.T) {
	h := newHarness(t, "100")
	ctx := context.Background()
	_, err := h.orch.CreateOrder(ctx, createCmd("o1", true))
	require.NoError(t, err)

	_, err = h.orch.GenerateAWB(ctx, "m1", "o1", "")
	assert.ErrorIs(t, err, order.ErrWaybillAlreadySet)

	_, err = h.orch.GenerateAWB(ctx, "m1", "missing", "")
	assert.ErrorIs(t, err, domainErr.ErrNotFound)
}

func TestGenerateAWBOnPaidOrderDoesNotDebitAgain(t *testing.T) {
	h := newHarness(t, "100")
	ctx := context.Background()
	_, err := h.orch.CreateOrder(ctx, createCmd("o1", false))
	require.NoError(t, err)

	res, err := h.orch.GenerateAWB(ctx, "m1", "o1", "")
	require.NoError(t, err)
	assert.Equal(t, order.StatusReadyToShip, res.Order.Status)
	assert.True(t, h.balance(t).Equal(d("64.50")))
}

func TestBulkCancelCountsPendingAsFailed(t *testing.T) {
	h := newHarness(t, "100")
	ctx := context.Background()
	_, err := h.orch.CreateOrder(ctx, createCmd("o1", true))
	require.NoError(t, err)
	_, err = h.orch.CreateOrder(ctx, createCmd("o2", false))
	require.NoError(t, err)
	h.courier.cancel = func(string) (courier.CancelResult, error) {
		return courier.CancelResult{Success: true, Remark: "queued"}, nil
	}

	res, err := h.orch.BulkCancel(ctx, fulfillment.BulkCommand{MerchantID: "m1", OrderIDs: []string{"o1", "o2", "nope"}})
	require.NoError(t, err)
	assert.Equal(t, "cancellation_pending", res.Items[0].Code)
	assert.Equal(t, fulfillment.ItemSuccess, res.Items[1].Status)
	assert.Equal(t, "not_found", res.Items[2].Code)
	assert.Equal(t, 1, res.Success)
	assert.Equal(t, 2, res.Failed)
}

func TestRequestPickupGroupsByLocation(t *testing.T) {
	h := newHarness(t, "100")
	ctx := context.Background()
	for _, id := range []string{"o1", "o2"} {
		_, err := h.orch.CreateOrder(ctx, createCmd(id, true))
		require.NoError(t, err)
	}
	_, err := h.orch.CreateOrder(ctx, createCmd("o3", false))
	require.NoError(t, err)

	res, err := h.orch.RequestPickup(ctx, fulfillment.PickupCommand{BulkCommand: fulfillment.BulkCommand{MerchantID: "m1", OrderIDs: []string{"o1", "o2", "o3"}}})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Success)
	assert.Equal(t, "invalid_transition", res.Items[2].Code)

	require.Len(t, h.courier.pickups, 1)
	assert.Equal(t, 2, h.courier.pickups[0].ExpectedCount)
	assert.Equal(t, "2026-03-11", h.courier.pickups[0].Date)

	saved, err := h.orders.Get(ctx, "m1", "o1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusPickupsManifests, saved.Status)
}

func TestSyncTrackingWalksToRTO(t *testing.T) {
	h := newHarness(t, "100")
	ctx := context.Background()
	_, err := h.orch.CreateOrder(ctx, createCmd("o1", true))
	require.NoError(t, err)
	h.courier.track = courier.TrackResult{Status: "RTO", StatusType: "DL"}

	res, err := h.orch.SyncTracking(ctx, "m1", "o1")
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, order.StatusRTO, res.Order.Status)

	var seen []order.Status
	for _, e := range res.Order.History {
		seen = append(seen, e.Status)
	}
	assert.Equal(t, []order.Status{
		order.StatusNew, order.StatusReadyToShip, order.StatusPickupsManifests,
		order.StatusNDR, order.StatusRTO,
	}, seen)
	assert.Contains(t, h.events.types(), events.OrderReturned)

	// terminal orders are left alone
	h.courier.track = courier.TrackResult{Status: "Delivered", StatusType: "DL"}
	again, err := h.orch.SyncTracking(ctx, "m1", "o1")
	require.NoError(t, err)
	assert.False(t, again.Changed)
	assert.Equal(t, order.StatusRTO, again.Order.Status)
}

func TestSyncTrackingStepwise(t *testing.T) {
	h := newHarness(t, "100")
	ctx := context.Background()
	_, err := h.orch.CreateOrder(ctx, createCmd("o1", true))
	require.NoError(t, err)
	h.courier.track = courier.TrackResult{Status: "Manifested", StatusType: "UD"}
	_, err = h.orch.SyncTracking(ctx, "m1", "o1")
	require.NoError(t, err)

	h.courier.track = courier.TrackResult{Status: "In Transit", StatusType: "UD"}
	res, err := h.orch.SyncTracking(ctx, "m1", "o1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusInTransit, res.Order.Status)
	assert.Equal(t, "In Transit", res.Order.ProviderStatus)

	// no backward moves; only the provider status is kept
	h.courier.track = courier.TrackResult{Status: "Manifested", StatusType: "UD"}
	res, err = h.orch.SyncTracking(ctx, "m1", "o1")
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, order.StatusInTransit, res.Order.Status)
	assert.Equal(t, "Manifested", res.Order.ProviderStatus)
}

func TestMapProviderStatus(t *testing.T) {
	tests := []struct {
		status, statusType string
		want               order.Status
		ok                 bool
	}{
		{"Delivered", "DL", order.StatusDelivered, true},
		{"RTO", "DL", order.StatusRTO, true},
		{"In Transit", "RT", order.StatusNDR, true},
		{"In Transit", "UD", order.StatusInTransit, true},
		{"Pending", "UD", order.StatusInTransit, true},
		{"Dispatched", "UD", order.StatusOutForDelivery, true},
		{"Lost", "", order.StatusLost, true},
		{"Manifested", "UD", order.StatusPickupsManifests, true},
		{"Not Picked", "UD", "", false},
	}
	for _, tt := range tests {
		got, ok := fulfillment.MapProviderStatus(tt.status, tt.statusType)
		assert.Equal(t, tt.ok, ok, tt.status)
		assert.Equal(t, tt.want, got, tt.status)
	}
}

func TestGetLabelNeedsWaybill(t *testing.T) {
	h := newHarness(t, "100")
	ctx := context.Background()
	_, err := h.orch.CreateOrder(ctx, createCmd("o1", false))
	require.NoError(t, err)
	_, err = h.orch.GetLabel(ctx, "m1", "o1")
	assert.ErrorIs(t, err, order.ErrWaybillRequired)
}
