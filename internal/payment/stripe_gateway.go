package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"

	"github.com/Tanmoy095/logisynapse-fulfillment/internal/money"
)

// StripeGateway creates hosted Checkout Sessions for wallet top-ups.
type StripeGateway struct {
	client     *client.API
	successURL string
	cancelURL  string
}

func NewStripeGateway(apiKey, successURL, cancelURL string) *StripeGateway {
	sc := &client.API{}
	sc.Init(apiKey, nil)
	return &StripeGateway{client: sc, successURL: successURL, cancelURL: cancelURL}
}

func (sg *StripeGateway) CreateOrderSession(ctx context.Context, req SessionRequest) (*Session, error) {
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	currency := strings.ToLower(req.Currency)
	if currency == "" {
		currency = "inr"
	}
	desc := req.Description
	if desc == "" {
		desc = "Wallet top-up"
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(sg.successURL),
		CancelURL:         stripe.String(sg.cancelURL),
		ClientReferenceID: stripe.String(req.Customer.MerchantID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(currency),
				UnitAmount: stripe.Int64(money.Paise(req.Amount)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(desc),
				},
			},
		}},
		Metadata: map[string]string{
			"merchant_id":  req.Customer.MerchantID,
			"reference_id": req.ReferenceID,
		},
	}
	if req.Customer.Email != "" {
		params.CustomerEmail = stripe.String(req.Customer.Email)
	}
	// a retried create returns the same session instead of a second one
	if req.ReferenceID != "" {
		params.IdempotencyKey = stripe.String(req.ReferenceID)
	}
	params.Context = ctx

	s, err := sg.client.CheckoutSessions.New(params)
	if err != nil {
		return nil, sg.mapStripeError(err)
	}
	return &Session{OrderID: s.ID, SessionID: s.ID, PaymentLink: s.URL}, nil
}

// OrderStatus reports "paid" once money moved, otherwise the session status
// (open, complete, expired).
func (sg *StripeGateway) OrderStatus(ctx context.Context, orderID string) (string, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	s, err := sg.client.CheckoutSessions.Get(orderID, params)
	if err != nil {
		return "", sg.mapStripeError(err)
	}
	switch {
	case s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		s.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		return string(s.PaymentStatus), nil
	case s.Status == stripe.CheckoutSessionStatusComplete:
		// complete but unpaid: async payment methods still settling
		return "processing", nil
	default:
		return string(s.Status), nil
	}
}

// mapStripeError keeps stripe types out of the callers.
func (sg *StripeGateway) mapStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%w: %v", ErrProviderDown, err)
		}
		if stripeErr.Code == stripe.ErrorCodeIdempotencyKeyInUse {
			return fmt.Errorf("idempotency key collision: %w", err)
		}
		return fmt.Errorf("%w: %s", ErrPaymentRejected, stripeErr.Msg)
	}
	return fmt.Errorf("gateway internal error: %w", err)
}
