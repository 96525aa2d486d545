package payment

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

// WebhookProcessor verifies and normalizes provider callbacks.
type WebhookProcessor interface {
	Provider() string
	VerifyAndParse(payload []byte, headers map[string]string) (*NormalizedEvent, error)
}

type StripeWebhook struct {
	secret string
}

func NewStripeWebhook(secret string) *StripeWebhook {
	return &StripeWebhook{secret: secret}
}

func (p *StripeWebhook) Provider() string { return "stripe" }

// VerifyAndParse returns nil, nil for event types the wallet does not use.
func (p *StripeWebhook) VerifyAndParse(payload []byte, headers map[string]string) (*NormalizedEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, headers["Stripe-Signature"], p.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("stripe signature invalid: %w", err)
	}

	var status Status
	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		status = StatusSucceeded
	case "checkout.session.expired", "checkout.session.async_payment_failed":
		status = StatusFailed
	default:
		return nil, nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}
	if sess.ID == "" {
		return nil, fmt.Errorf("checkout session event %s without session id", event.ID)
	}
	return &NormalizedEvent{Provider: p.Provider(), GatewayOrderID: sess.ID, Status: status}, nil
}
