package serviceability

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Tanmoy095/logisynapse-fulfillment/internal/courier"
	domainErr "github.com/Tanmoy095/logisynapse-fulfillment/internal/domain/errors"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/order"
)

// Lookup is the slice of the courier adapter the gate needs.
type Lookup interface {
	CheckServiceability(ctx context.Context, pincode string) (courier.PincodeInfo, error)
}

type Result struct {
	Pickup   courier.PincodeInfo
	Delivery courier.PincodeInfo
}

// Gate answers fresh on every call. Nothing is cached.
type Gate struct {
	lookup Lookup
}

func NewGate(lookup Lookup) *Gate {
	return &Gate{lookup: lookup}
}

// Check fails with a ServiceabilityError unless both pincodes are covered.
// A provider that cannot answer counts as not serviceable.
func (g *Gate) Check(ctx context.Context, pickupPin, deliveryPin string, mode order.PaymentMode) (Result, error) {
	if !order.ValidPincode(pickupPin) {
		return Result{}, &domainErr.ServiceabilityError{Pincode: pickupPin, Role: "pickup", Reason: "malformed pincode"}
	}
	if !order.ValidPincode(deliveryPin) {
		return Result{}, &domainErr.ServiceabilityError{Pincode: deliveryPin, Role: "delivery", Reason: "malformed pincode"}
	}

	var res Result
	g2, gctx := errgroup.WithContext(ctx)
	g2.Go(func() error {
		info, err := g.lookup.CheckServiceability(gctx, pickupPin)
		if err != nil {
			return &domainErr.ServiceabilityError{Pincode: pickupPin, Role: "pickup", Reason: fmt.Sprintf("courier did not answer: %v", err)}
		}
		res.Pickup = info
		return nil
	})
	g2.Go(func() error {
		info, err := g.lookup.CheckServiceability(gctx, deliveryPin)
		if err != nil {
			return &domainErr.ServiceabilityError{Pincode: deliveryPin, Role: "delivery", Reason: fmt.Sprintf("courier did not answer: %v", err)}
		}
		res.Delivery = info
		return nil
	})
	if err := g2.Wait(); err != nil {
		log.Warn().Err(err).Str("pickup", pickupPin).Str("delivery", deliveryPin).Msg("serviceability lookup failed")
		return Result{}, err
	}

	switch {
	case !res.Pickup.Serviceable:
		return res, &domainErr.ServiceabilityError{Pincode: pickupPin, Role: "pickup", Reason: "not serviceable"}
	case !res.Pickup.PickupAvailable:
		return res, &domainErr.ServiceabilityError{Pincode: pickupPin, Role: "pickup", Reason: "pickup not available"}
	case !res.Delivery.Serviceable:
		return res, &domainErr.ServiceabilityError{Pincode: deliveryPin, Role: "delivery", Reason: "not serviceable"}
	case mode == order.PaymentCOD && !res.Delivery.CashOnDelivery:
		return res, &domainErr.ServiceabilityError{Pincode: deliveryPin, Role: "delivery", Reason: "cash on delivery not available"}
	}
	return res, nil
}
