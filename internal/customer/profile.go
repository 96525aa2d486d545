package customer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/Tanmoy095/logisynapse-fulfillment/internal/events"
)

var ErrProfileNotFound = errors.New("customer profile not found")

// Profile is keyed by (merchant, phone).
type Profile struct {
	MerchantID      string          `json:"merchant_id"`
	Phone           string          `json:"phone"`
	Name            string          `json:"name"`
	City            string          `json:"city"`
	State           string          `json:"state"`
	Pincode         string          `json:"pincode"`
	TotalOrders     int             `json:"total_orders"`
	CODOrders       int             `json:"cod_orders"`
	PrepaidOrders   int             `json:"prepaid_orders"`
	CancelledOrders int             `json:"cancelled_orders"`
	TotalShipping   decimal.Decimal `json:"total_shipping"`
	FirstOrderAt    time.Time       `json:"first_order_at"`
	LastOrderAt     time.Time       `json:"last_order_at"`
}

// Store applies mutate to the stored profile, creating it when missing,
// in one atomic step.
type Store interface {
	Upsert(ctx context.Context, merchantID, phone string, mutate func(p *Profile)) error
	Get(ctx context.Context, merchantID, phone string) (*Profile, error)
}

// Subscriber keeps profile statistics in step with order events.
type Subscriber struct {
	store Store
}

func NewSubscriber(store Store) *Subscriber {
	return &Subscriber{store: store}
}

func (s *Subscriber) Subscribe(d *events.Dispatcher) {
	d.Subscribe(events.OrderCreated, "customer-profile", s.HandleOrderCreated)
	d.Subscribe(events.OrderCancelled, "customer-profile", s.HandleOrderCancelled)
}

func (s *Subscriber) HandleOrderCreated(ctx context.Context, ev events.Event) error {
	var p events.OrderPayload
	if err := ev.Decode(&p); err != nil {
		return fmt.Errorf("decode order payload: %w", err)
	}
	if p.CustomerPhone == "" {
		return nil
	}
	err := s.store.Upsert(ctx, ev.MerchantID, p.CustomerPhone, func(pr *Profile) {
		pr.Name = p.CustomerName
		pr.City, pr.State, pr.Pincode = p.City, p.State, p.Pincode
		pr.TotalOrders++
		if p.PaymentMode == "cod" {
			pr.CODOrders++
		} else {
			pr.PrepaidOrders++
		}
		pr.TotalShipping = pr.TotalShipping.Add(p.ShippingCharge)
		if pr.FirstOrderAt.IsZero() {
			pr.FirstOrderAt = ev.OccurredAt
		}
		pr.LastOrderAt = ev.OccurredAt
	})
	if err != nil {
		return err
	}
	log.Debug().Str("merchant_id", ev.MerchantID).Str("order_id", p.OrderID).Msg("customer profile updated")
	return nil
}

func (s *Subscriber) HandleOrderCancelled(ctx context.Context, ev events.Event) error {
	var p events.OrderPayload
	if err := ev.Decode(&p); err != nil {
		return fmt.Errorf("decode order payload: %w", err)
	}
	if p.CustomerPhone == "" {
		return nil
	}
	return s.store.Upsert(ctx, ev.MerchantID, p.CustomerPhone, func(pr *Profile) {
		pr.CancelledOrders++
	})
}
