package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Tanmoy095/logisynapse-fulfillment/internal/events"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/order"
)

// shippingCategory mirrors wallet.CategoryShipping without importing wallet.
const shippingCategory = "shipping_charge"

type OrderBilling interface {
	Get(ctx context.Context, merchantID, orderID string) (*order.Order, error)
	UpdateBilling(ctx context.Context, merchantID, orderID string, b order.Billing) error
}

// Aggregator groups per-order charges into the merchant's monthly cycle.
// It runs as an event subscriber; nothing on the order path waits for it.
type Aggregator struct {
	store  Store
	calc   *Calculator
	orders OrderBilling
	clock  func() time.Time
}

func NewAggregator(store Store, calc *Calculator, orders OrderBilling) *Aggregator {
	return &Aggregator{store: store, calc: calc, orders: orders, clock: time.Now}
}

func (a *Aggregator) WithClock(clock func() time.Time) *Aggregator {
	a.clock = clock
	return a
}

func (a *Aggregator) CurrentCycle(ctx context.Context, merchantID string) (*Cycle, error) {
	return a.store.GetOrCreateCycle(ctx, merchantID, PeriodOf(a.clock()))
}

// Cycle reads a closed or current period without creating it.
func (a *Aggregator) Cycle(ctx context.Context, merchantID string, p Period) (*Cycle, error) {
	return a.store.GetCycle(ctx, merchantID, p)
}

func (a *Aggregator) AddOrderToCycle(ctx context.Context, cycle *Cycle, o *order.Order, dir Direction, b order.Billing, charges order.Charges) (bool, error) {
	line := Line{
		OrderID:        o.ID,
		Waybill:        o.Waybill,
		Direction:      dir,
		Zone:           b.Zone,
		ChargedWeightG: b.ChargedWeightG,
		Charges:        charges,
		AddedAt:        a.clock().UTC(),
	}
	added, err := a.store.AddLine(ctx, cycle.ID, line)
	if err != nil {
		return false, fmt.Errorf("add %s line for order %s: %w", dir, o.ID, err)
	}
	return added, nil
}

// HandleWalletDebited books the forward charge of an order once its shipping
// debit has been recorded. The debit lands before the order is saved, so an
// order that is not there yet is left to HandleOrderSaved.
func (a *Aggregator) HandleWalletDebited(ctx context.Context, ev events.Event) error {
	var p events.WalletPayload
	if err := ev.Decode(&p); err != nil {
		return fmt.Errorf("decode wallet payload: %w", err)
	}
	if p.Category != shippingCategory || p.OrderID == "" {
		return nil
	}

	// 1. Load the order the debit belongs to
	o, err := a.orders.Get(ctx, ev.MerchantID, p.OrderID)
	if errors.Is(err, order.ErrOrderNotFound) {
		log.Debug().Str("order_id", p.OrderID).Str("txn_id", p.TransactionID).Msg("debited order not saved yet, booking deferred")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load order %s: %w", p.OrderID, err)
	}
	return a.bookForward(ctx, o, p.TransactionID)
}

// HandleOrderSaved books the forward charge of a paid order that is not yet
// in a cycle.
func (a *Aggregator) HandleOrderSaved(ctx context.Context, ev events.Event) error {
	var p events.OrderPayload
	if err := ev.Decode(&p); err != nil {
		return fmt.Errorf("decode order payload: %w", err)
	}
	o, err := a.orders.Get(ctx, ev.MerchantID, p.OrderID)
	if err != nil {
		return fmt.Errorf("load order %s: %w", p.OrderID, err)
	}
	if o.Billing.PaymentStatus != order.BillingPaid || o.Billing.WalletTxnID == "" || o.Billing.CycleID != "" {
		return nil
	}
	return a.bookForward(ctx, o, o.Billing.WalletTxnID)
}

func (a *Aggregator) bookForward(ctx context.Context, o *order.Order, txnID string) error {
	// 2. Compute weights and the charge split
	b := a.calc.Breakdown(ctx, o)

	// 3. Attach to the current cycle
	cycle, err := a.CurrentCycle(ctx, o.MerchantID)
	if err != nil {
		return fmt.Errorf("current cycle: %w", err)
	}
	if _, err := a.AddOrderToCycle(ctx, cycle, o, DirectionForward, b, b.Breakdown); err != nil {
		return err
	}

	// 4. Link billing on the order
	b.CycleID = cycle.ID
	b.WalletTxnID = txnID
	b.PaymentStatus = order.BillingPaid
	if err := a.orders.UpdateBilling(ctx, o.MerchantID, o.ID, b); err != nil {
		return fmt.Errorf("update order billing: %w", err)
	}
	log.Debug().Str("order_id", o.ID).Str("cycle_id", cycle.ID).Str("total", b.Breakdown.Total.StringFixed(2)).Msg("order added to billing cycle")
	return nil
}

// HandleOrderReturned books the return leg charge.
func (a *Aggregator) HandleOrderReturned(ctx context.Context, ev events.Event) error {
	var p events.OrderPayload
	if err := ev.Decode(&p); err != nil {
		return fmt.Errorf("decode order payload: %w", err)
	}
	o, err := a.orders.Get(ctx, ev.MerchantID, p.OrderID)
	if err != nil {
		return fmt.Errorf("load order %s: %w", p.OrderID, err)
	}
	rto := a.calc.RTOCharge(ctx, o)

	cycle, err := a.CurrentCycle(ctx, ev.MerchantID)
	if err != nil {
		return fmt.Errorf("current cycle: %w", err)
	}
	b := o.Billing
	if b.ChargedWeightG == 0 {
		b.DeclaredWeightG = DeclaredGrams(o.Package)
		b.VolumetricWeightG = VolumetricGrams(o.Package)
		b.ChargedWeightG = ChargedGrams(o.Package)
	}
	added, err := a.AddOrderToCycle(ctx, cycle, o, DirectionRTO, b, order.Charges{RTO: rto, Total: rto})
	if err != nil {
		return err
	}
	if !added {
		return nil
	}
	b.Breakdown.RTO = rto
	b.Breakdown.Total = b.Breakdown.Forward.Add(b.Breakdown.COD).Add(rto)
	if b.CycleID == "" {
		b.CycleID = cycle.ID
	}
	return a.orders.UpdateBilling(ctx, ev.MerchantID, o.ID, b)
}

// Subscribe registers the aggregator's handlers.
func (a *Aggregator) Subscribe(d *events.Dispatcher) {
	d.Subscribe(events.WalletDebited, "billing-cycle", a.HandleWalletDebited)
	d.Subscribe(events.OrderCreated, "billing-cycle", a.HandleOrderSaved)
	d.Subscribe(events.OrderDispatched, "billing-cycle", a.HandleOrderSaved)
	d.Subscribe(events.OrderReturned, "billing-rto", a.HandleOrderReturned)
}
