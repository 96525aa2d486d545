package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/Tanmoy095/logisynapse-fulfillment/internal/courier"
	domainErr "github.com/Tanmoy095/logisynapse-fulfillment/internal/domain/errors"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/events"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/money"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/order"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/retry"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/serviceability"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/wallet"
)

// Ledger is the wallet surface the orchestrator needs.
type Ledger interface {
	Debit(ctx context.Context, req wallet.EntryRequest) (*wallet.Transaction, error)
	Credit(ctx context.Context, req wallet.EntryRequest) (*wallet.Transaction, error)
	Balance(ctx context.Context, merchantID string) (decimal.Decimal, error)
	FindOrderTransaction(ctx context.Context, merchantID, orderID string, c wallet.Category) (*wallet.Transaction, error)
}

type Gate interface {
	Check(ctx context.Context, pickupPin, deliveryPin string, mode order.PaymentMode) (serviceability.Result, error)
}

// Pricer quotes a shipping charge when the caller did not supply one.
type Pricer interface {
	Quote(ctx context.Context, o *order.Order) (decimal.Decimal, error)
}

type Deps struct {
	Orders     order.Store
	Ledger     Ledger
	Courier    courier.Adapter
	Gate       Gate
	Warehouses Warehouses
	Pricer     Pricer         // optional
	Events     events.Emitter // optional

	// PreallocateWaybills asks the courier for a waybill before creation.
	PreallocateWaybills bool
	Clock               func() time.Time
	NewID               func() string
}

// Orchestrator sequences gate, courier, order state, wallet and events.
// Only the courier, the order write and the wallet debit are on the
// critical path; everything else hangs off emitted events.
type Orchestrator struct {
	orders      order.Store
	ledger      Ledger
	courier     courier.Adapter
	gate        Gate
	warehouses  Warehouses
	pricer      Pricer
	events      events.Emitter
	preallocate bool
	clock       func() time.Time
	newID       func() string
	merchants   merchantLocks
}

// merchantLocks serialises the balance check, courier call and debit of one
// merchant so two dispatches never pass the check against the same balance.
// It is per process; across instances the conditional debit still holds the
// floor and the losing shipment is cancelled.
type merchantLocks struct {
	mu    sync.Mutex
	locks map[string]*merchantLock
}

type merchantLock struct {
	sync.Mutex
	refs int
}

func (l *merchantLocks) lock(merchantID string) (unlock func()) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*merchantLock)
	}
	ml, ok := l.locks[merchantID]
	if !ok {
		ml = &merchantLock{}
		l.locks[merchantID] = ml
	}
	ml.refs++
	l.mu.Unlock()

	ml.Lock()
	return func() {
		ml.Unlock()
		l.mu.Lock()
		ml.refs--
		if ml.refs == 0 {
			delete(l.locks, merchantID)
		}
		l.mu.Unlock()
	}
}

func NewOrchestrator(d Deps) *Orchestrator {
	o := &Orchestrator{
		orders:      d.Orders,
		ledger:      d.Ledger,
		courier:     d.Courier,
		gate:        d.Gate,
		warehouses:  d.Warehouses,
		pricer:      d.Pricer,
		events:      d.Events,
		preallocate: d.PreallocateWaybills,
		clock:       d.Clock,
		newID:       d.NewID,
	}
	if o.clock == nil {
		o.clock = time.Now
	}
	if o.newID == nil {
		o.newID = func() string { return "ORD" + ulid.Make().String() }
	}
	return o
}

func (o *Orchestrator) now() time.Time { return o.clock().UTC() }

func actorOr(actor string) string {
	if actor == "" {
		return "merchant"
	}
	return actor
}

// courierErr makes sure whatever the adapter returned carries the taxonomy type.
func courierErr(op string, err error) error {
	var cpe *domainErr.CourierProviderError
	if errors.As(err, &cpe) {
		return err
	}
	return &domainErr.CourierProviderError{Op: op, Retryable: retry.IsRetryable(err), Err: err}
}

// buildOrder resolves the pickup address and the shipping charge. Nothing is persisted.
func (o *Orchestrator) buildOrder(ctx context.Context, cmd CreateOrderCommand) (*order.Order, error) {
	id := cmd.OrderID
	if id == "" {
		id = o.newID()
	}
	now := o.now()
	ord := order.New(id, cmd.MerchantID, now, actorOr(cmd.Actor))
	ord.ReferenceID = cmd.ReferenceID
	ord.ParentID = cmd.ParentID
	ord.PickupLocation = cmd.PickupLocation
	ord.Delivery = cmd.Delivery
	ord.Package = cmd.Package
	ord.ProductDescription = cmd.ProductDescription
	ord.PaymentMode = cmd.PaymentMode
	ord.OrderValue = cmd.OrderValue
	ord.CODAmount = decimal.Zero
	if cmd.PaymentMode == order.PaymentCOD {
		ord.CODAmount = cmd.CODAmount
	}
	ord.Billing.PaymentStatus = order.BillingUnpaid

	switch {
	case cmd.PickupLocation != "" && o.warehouses != nil:
		w, err := o.warehouses.Warehouse(ctx, cmd.MerchantID, cmd.PickupLocation)
		switch {
		case err == nil:
			ord.Pickup = w.Address
		case errors.Is(err, ErrWarehouseNotFound) && cmd.Pickup != nil:
			ord.Pickup = *cmd.Pickup
		case errors.Is(err, ErrWarehouseNotFound):
			return nil, domainErr.Validation("pickup_location", fmt.Sprintf("%q is not a registered pickup location", cmd.PickupLocation))
		default:
			return nil, fmt.Errorf("resolve pickup location: %w", err)
		}
	case cmd.Pickup != nil:
		ord.Pickup = *cmd.Pickup
	default:
		return nil, domainErr.Validation("pickup_location", "cannot be resolved")
	}
	if err := ord.Pickup.Validate("pickup"); err != nil {
		return nil, err
	}

	if cmd.ShippingCharge.Valid {
		ord.ShippingCharge = money.Round2(cmd.ShippingCharge.Decimal)
	} else {
		if o.pricer == nil {
			return nil, domainErr.Validation("shipping_charge", "is required")
		}
		charge, err := o.pricer.Quote(ctx, ord)
		if err != nil {
			return nil, domainErr.Validation("shipping_charge", "is required: no rate card applies ("+err.Error()+")")
		}
		ord.ShippingCharge = charge
	}
	return ord, nil
}

// ensureFunds refuses before any courier call when the wallet cannot cover the charge.
func (o *Orchestrator) ensureFunds(ctx context.Context, merchantID string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return nil
	}
	bal, err := o.ledger.Balance(ctx, merchantID)
	if err != nil {
		return fmt.Errorf("read wallet balance: %w", err)
	}
	amount = money.Round2(amount)
	if bal.LessThan(amount) {
		return &domainErr.InsufficientBalanceError{Required: amount, Available: bal}
	}
	return nil
}

func shipmentRequest(ord *order.Order, waybill string) courier.ShipmentRequest {
	total := ord.OrderValue
	if ord.PaymentMode == order.PaymentCOD && total.LessThan(ord.CODAmount) {
		total = ord.CODAmount
	}
	qty := ord.Package.BoxCount
	if qty <= 0 {
		qty = 1
	}
	party := func(a order.Address) courier.Party {
		line := a.Line1
		if a.Line2 != "" {
			line += ", " + a.Line2
		}
		return courier.Party{Name: a.Name, Address: line, City: a.City, State: a.State, Pincode: a.Pincode, Phone: a.Phone}
	}
	return courier.ShipmentRequest{
		OrderID:        ord.ID,
		Waybill:        waybill,
		PickupLocation: ord.PickupLocation,
		Consignee:      party(ord.Delivery),
		Return:         party(ord.Pickup),
		PaymentMode:    courierPaymentMode(ord.PaymentMode),
		CODAmount:      ord.CODAmount,
		TotalAmount:    total,
		WeightGrams:    int64(math.Round(ord.Package.WeightKg * 1000)),
		LengthCm:       ord.Package.LengthCm,
		WidthCm:        ord.Package.WidthCm,
		HeightCm:       ord.Package.HeightCm,
		Quantity:       qty,
		Description:    ord.ProductDescription,
	}
}

func courierPaymentMode(m order.PaymentMode) string {
	switch m {
	case order.PaymentCOD:
		return "COD"
	case order.PaymentPickupOnly:
		return "Pickup"
	default:
		return "Prepaid"
	}
}

// dispatch runs the gate and the courier creation, and assigns the waybill
// on the in-memory order only when the courier returned a usable one.
func (o *Orchestrator) dispatch(ctx context.Context, ord *order.Order, actor string) error {
	if _, err := o.gate.Check(ctx, ord.Pickup.Pincode, ord.Delivery.Pincode, ord.PaymentMode); err != nil {
		return err
	}

	var preallocated string
	if o.preallocate {
		wbs, err := o.courier.AllocateWaybills(ctx, 1)
		if err != nil || len(wbs) == 0 {
			// the provider allocates its own when none is sent
			log.Debug().Err(err).Str("order_id", ord.ID).Msg("waybill pre-allocation skipped")
		} else {
			preallocated = wbs[0]
		}
	}

	res, err := o.courier.CreateShipment(ctx, shipmentRequest(ord, preallocated))
	if err != nil {
		return courierErr("create shipment", err)
	}
	waybill := res.UsableWaybill()
	if !res.Success || waybill == "" {
		log.Warn().Str("order_id", ord.ID).Bool("success", res.Success).Str("reason", res.FailureReason()).Msg("courier did not confirm shipment")
		return &domainErr.CourierProviderError{Op: "create shipment", Remark: res.FailureReason()}
	}
	if err := ord.AssignWaybill(waybill, o.now(), actor); err != nil {
		return err
	}
	log.Info().Str("order_id", ord.ID).Str("waybill", waybill).Msg("shipment created with courier")
	return nil
}

// abandonShipment cancels a courier shipment the order will not keep.
func (o *Orchestrator) abandonShipment(ctx context.Context, ord *order.Order, why string) {
	res, err := o.courier.CancelShipment(ctx, ord.Waybill)
	if err != nil || !res.Confirmed() {
		log.Error().Err(err).Str("order_id", ord.ID).Str("waybill", ord.Waybill).Str("reason", why).Msg("orphaned courier shipment needs manual cancellation")
		return
	}
	log.Warn().Str("order_id", ord.ID).Str("waybill", ord.Waybill).Str("reason", why).Msg("courier shipment cancelled")
}

// priorCharge returns the shipping debit an earlier attempt already made for
// the order, or nil. A debit that was refunded cannot be charged again under
// the same order id.
func (o *Orchestrator) priorCharge(ctx context.Context, merchantID, orderID string) (*wallet.Transaction, error) {
	debit, err := o.ledger.FindOrderTransaction(ctx, merchantID, orderID, wallet.CategoryShipping)
	if errors.Is(err, wallet.ErrTransactionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("look up shipping debit: %w", err)
	}
	_, err = o.ledger.FindOrderTransaction(ctx, merchantID, orderID, wallet.CategoryRefund)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%w: shipping charge for order %s was already refunded", domainErr.ErrConflict, orderID)
	case !errors.Is(err, wallet.ErrTransactionNotFound):
		return nil, fmt.Errorf("look up refund: %w", err)
	}
	return debit, nil
}

// chargeShipping debits the shipping charge at most once per order and
// records the payment on the in-memory order. prior is reused when set;
// the caller runs priorCharge first under the merchant lock.
func (o *Orchestrator) chargeShipping(ctx context.Context, ord *order.Order, prior *wallet.Transaction) (*wallet.Transaction, error) {
	txn := prior
	if txn == nil {
		if !ord.ShippingCharge.IsPositive() {
			return nil, nil
		}
		var err error
		txn, err = o.ledger.Debit(ctx, wallet.EntryRequest{
			MerchantID:  ord.MerchantID,
			Amount:      ord.ShippingCharge,
			OrderID:     ord.ID,
			Category:    wallet.CategoryShipping,
			Description: "shipping charge for order " + ord.ID,
		})
		if errors.Is(err, wallet.ErrDuplicateEntry) {
			// another writer charged this order id since priorCharge ran
			return nil, fmt.Errorf("%w: shipping charge for order %s already posted", domainErr.ErrConflict, ord.ID)
		}
		if err != nil {
			return nil, err
		}
		if txn == nil {
			return nil, nil
		}
	}
	ord.Billing.WalletTxnID = txn.ID
	ord.Billing.PaymentStatus = order.BillingPaid
	return txn, nil
}

func (o *Orchestrator) emit(ctx context.Context, t events.Type, ord *order.Order) {
	if o.events == nil {
		return
	}
	ev, err := events.New(t, ord.MerchantID, ord.ID, events.OrderPayload{
		OrderID:        ord.ID,
		ParentID:       ord.ParentID,
		Waybill:        ord.Waybill,
		Status:         string(ord.Status),
		PaymentMode:    string(ord.PaymentMode),
		ShippingCharge: ord.ShippingCharge,
		CODAmount:      ord.CODAmount,
		CustomerName:   ord.Delivery.Name,
		CustomerPhone:  ord.Delivery.Phone,
		City:           ord.Delivery.City,
		State:          ord.Delivery.State,
		Pincode:        ord.Delivery.Pincode,
		StatusType:     string(ord.Cancellation.StatusType),
	}, o.now())
	if err != nil {
		log.Error().Err(err).Str("order_id", ord.ID).Msg("could not build order event")
		return
	}
	o.events.Emit(ctx, ev)
}

func (o *Orchestrator) GetOrder(ctx context.Context, merchantID, orderID string) (*order.Order, error) {
	return o.orders.Get(ctx, merchantID, orderID)
}

// PendingCancellations lists orders whose courier cancellation is unconfirmed.
func (o *Orchestrator) PendingCancellations(ctx context.Context, limit int) ([]*order.Order, error) {
	return o.orders.ListByCancellationStatus(ctx, order.CancellationPending, limit)
}
