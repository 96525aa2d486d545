package payment

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount   = errors.New("invalid top-up amount")
	ErrProviderDown    = errors.New("payment provider is currently unavailable")
	ErrPaymentRejected = errors.New("payment provider rejected the request")
	ErrTopUpNotFound   = errors.New("top-up not found")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

type Customer struct {
	MerchantID string
	Name       string
	Email      string
	Phone      string
}

type SessionRequest struct {
	ReferenceID string // idempotency key for the provider call
	Amount      decimal.Decimal
	Currency    string
	Customer    Customer
	Description string
}

// Session is what the merchant is redirected to. OrderID is the provider's
// handle used for every later status query.
type Session struct {
	OrderID     string `json:"order_id"`
	SessionID   string `json:"session_id"`
	PaymentLink string `json:"payment_link"`
}

// Gateway abstracts the provider that actually moves money.
type Gateway interface {
	CreateOrderSession(ctx context.Context, req SessionRequest) (*Session, error)
	// OrderStatus returns the provider's raw status string.
	OrderStatus(ctx context.Context, orderID string) (string, error)
}

// MapPaymentStatus folds provider status strings into the internal enum.
// Anything unknown stays pending so the reconciler looks again.
func MapPaymentStatus(providerStatus string) Status {
	switch strings.ToLower(strings.TrimSpace(providerStatus)) {
	case "paid", "complete", "succeeded", "success", "no_payment_required":
		return StatusSucceeded
	case "expired", "failed", "canceled", "cancelled", "requires_payment_method":
		return StatusFailed
	default:
		return StatusPending
	}
}

func IsPaymentSuccessful(providerStatus string) bool {
	return MapPaymentStatus(providerStatus) == StatusSucceeded
}

// NormalizedEvent is a verified provider webhook reduced to what the
// top-up flow needs.
type NormalizedEvent struct {
	Provider       string
	GatewayOrderID string
	Status         Status
}
