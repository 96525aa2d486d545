package billing

import (
	"context"
	"errors"
	"math"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/Tanmoy095/logisynapse-fulfillment/internal/order"
)

const volumetricDivisor = 5000.0

// CategoryLookup returns the pricing category of a merchant.
type CategoryLookup interface {
	MerchantCategory(ctx context.Context, merchantID string) (string, error)
}

func DeclaredGrams(p order.Package) int64 {
	return int64(math.Round(p.WeightKg * 1000))
}

// VolumetricGrams uses L*W*H/5000 kg.
func VolumetricGrams(p order.Package) int64 {
	return int64(math.Round(p.LengthCm * p.WidthCm * p.HeightCm / volumetricDivisor * 1000))
}

func ChargedGrams(p order.Package) int64 {
	return max(DeclaredGrams(p), VolumetricGrams(p))
}

type Calculator struct {
	rates      RateCardStore
	categories CategoryLookup
}

func NewCalculator(rates RateCardStore, categories CategoryLookup) *Calculator {
	return &Calculator{rates: rates, categories: categories}
}

func (c *Calculator) card(ctx context.Context, o *order.Order, dir Direction) (*RateCard, Zone, error) {
	zone, err := ResolveZone(o.Pickup, o.Delivery)
	if err != nil {
		return nil, "", err
	}
	if c.rates == nil || c.categories == nil {
		return nil, zone, ErrRateCardNotFound
	}
	category, err := c.categories.MerchantCategory(ctx, o.MerchantID)
	if err != nil {
		return nil, zone, err
	}
	if category == "" {
		return nil, zone, ErrRateCardNotFound
	}
	rc, err := c.rates.RateCard(ctx, category, zone, dir)
	if err != nil {
		return nil, zone, err
	}
	return rc, zone, nil
}

// Quote prices the forward leg of an order. Unlike Breakdown it has no
// fallback and fails when no card applies.
func (c *Calculator) Quote(ctx context.Context, o *order.Order) (decimal.Decimal, error) {
	rc, _, err := c.card(ctx, o, DirectionForward)
	if err != nil {
		return decimal.Zero, err
	}
	fwd, err := rc.Cost(ChargedGrams(o.Package))
	if err != nil {
		return decimal.Zero, err
	}
	if o.PaymentMode == order.PaymentCOD {
		fwd = fwd.Add(rc.CODCharge(o.CODAmount))
	}
	return fwd, nil
}

// Breakdown computes weights and the forward charge split for an order.
// When zone or rate card cannot be determined the flat shipping charge
// that was debited is used as the forward charge.
func (c *Calculator) Breakdown(ctx context.Context, o *order.Order) order.Billing {
	b := o.Billing
	b.DeclaredWeightG = DeclaredGrams(o.Package)
	b.VolumetricWeightG = VolumetricGrams(o.Package)
	b.ChargedWeightG = max(b.DeclaredWeightG, b.VolumetricWeightG)

	fallback := func(reason error) order.Billing {
		log.Debug().Err(reason).Str("order_id", o.ID).Msg("rate card unavailable, using debited charge")
		b.Breakdown = order.Charges{
			Forward: o.ShippingCharge,
			RTO:     decimal.Zero,
			COD:     decimal.Zero,
			Total:   o.ShippingCharge,
		}
		return b
	}

	rc, zone, err := c.card(ctx, o, DirectionForward)
	if zone != "" {
		b.Zone = string(zone)
	}
	if err != nil {
		return fallback(err)
	}
	fwd, err := rc.Cost(b.ChargedWeightG)
	if err != nil {
		return fallback(err)
	}
	cod := decimal.Zero
	if o.PaymentMode == order.PaymentCOD {
		cod = rc.CODCharge(o.CODAmount)
	}
	b.Breakdown = order.Charges{
		Forward: fwd,
		RTO:     decimal.Zero,
		COD:     cod,
		Total:   fwd.Add(cod),
	}
	return b
}

// RTOCharge prices the return leg. Without an RTO card the forward charge is reused.
func (c *Calculator) RTOCharge(ctx context.Context, o *order.Order) decimal.Decimal {
	rc, _, err := c.card(ctx, o, DirectionRTO)
	if err == nil {
		if cost, cerr := rc.Cost(ChargedGrams(o.Package)); cerr == nil {
			return cost
		}
	} else if !errors.Is(err, ErrRateCardNotFound) && !errors.Is(err, ErrZoneUnresolved) {
		log.Warn().Err(err).Str("order_id", o.ID).Msg("rto rate lookup failed")
	}
	if o.Billing.Breakdown.Forward.IsPositive() {
		return o.Billing.Breakdown.Forward
	}
	return o.ShippingCharge
}
