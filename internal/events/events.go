package events

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

type Type string

const (
	OrderCreated    Type = "order.created"
	OrderDispatched Type = "order.dispatched"
	OrderCancelled  Type = "order.cancelled"
	OrderReturned   Type = "order.returned"
	WalletDebited   Type = "wallet.debited"
	WalletCredited  Type = "wallet.credited"
)

// Event is an immutable fact emitted after a primary mutation succeeded.
type Event struct {
	ID          string          `json:"id"`
	Type        Type            `json:"type"`
	MerchantID  string          `json:"merchant_id"`
	AggregateID string          `json:"aggregate_id"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Payload     json.RawMessage `json:"payload"`
}

func New(t Type, merchantID, aggregateID string, payload any, at time.Time) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return Event{
		ID:          ulid.MustNew(ulid.Timestamp(at), rand.Reader).String(),
		Type:        t,
		MerchantID:  merchantID,
		AggregateID: aggregateID,
		OccurredAt:  at,
		Payload:     raw,
	}, nil
}

func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// Emitter is what producers of events depend on.
type Emitter interface {
	Emit(ctx context.Context, ev Event)
}

type OrderPayload struct {
	OrderID        string          `json:"order_id"`
	ParentID       string          `json:"parent_id,omitempty"`
	Waybill        string          `json:"waybill,omitempty"`
	Status         string          `json:"status"`
	PaymentMode    string          `json:"payment_mode"`
	ShippingCharge decimal.Decimal `json:"shipping_charge"`
	CODAmount      decimal.Decimal `json:"cod_amount"`
	CustomerName   string          `json:"customer_name"`
	CustomerPhone  string          `json:"customer_phone"`
	City           string          `json:"city"`
	State          string          `json:"state"`
	Pincode        string          `json:"pincode"`
	StatusType     string          `json:"status_type,omitempty"`
}

type WalletPayload struct {
	TransactionID  string          `json:"transaction_id"`
	Type           string          `json:"type"`
	Category       string          `json:"category"`
	Amount         decimal.Decimal `json:"amount"`
	OrderID        string          `json:"order_id,omitempty"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	ClosingBalance decimal.Decimal `json:"closing_balance"`
}
