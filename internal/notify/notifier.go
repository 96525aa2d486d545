package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	domainErr "github.com/Tanmoy095/logisynapse-fulfillment/internal/domain/errors"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/events"
)

const (
	TypeBalanceChange   = "balance_change"
	TypeBalanceSnapshot = "balance_snapshot"
)

type Message struct {
	Type       string          `json:"type"`
	MerchantID string          `json:"merchant_id"`
	Data       json.RawMessage `json:"data"`
	SentAt     time.Time       `json:"sent_at"`
}

type BalanceChange struct {
	TransactionID  string          `json:"transaction_id"`
	Type           string          `json:"type"`
	Category       string          `json:"category"`
	Amount         decimal.Decimal `json:"amount"`
	OrderID        string          `json:"order_id,omitempty"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	ClosingBalance decimal.Decimal `json:"closing_balance"`
}

type BalanceSnapshot struct {
	Balance decimal.Decimal `json:"balance"`
}

// Sender delivers to live sessions.
type Sender interface {
	Send(merchantID string, msg interface{}) int
}

// QueuePublisher matches the rabbitmq client.
type QueuePublisher interface {
	Publish(ctx context.Context, queueName string, body []byte) error
}

// Notifier turns wallet events into merchant messages. With a queue
// configured messages go through it, otherwise straight to the hub.
type Notifier struct {
	hub   Sender
	queue QueuePublisher
	name  string
}

func NewNotifier(hub Sender, queue QueuePublisher, queueName string) *Notifier {
	return &Notifier{hub: hub, queue: queue, name: queueName}
}

func (n *Notifier) Subscribe(d *events.Dispatcher) {
	d.Subscribe(events.WalletDebited, "balance-notify", n.HandleWalletEvent)
	d.Subscribe(events.WalletCredited, "balance-notify", n.HandleWalletEvent)
}

func newMessage(typ, merchantID string, data interface{}, at time.Time) (Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: typ, MerchantID: merchantID, Data: raw, SentAt: at}, nil
}

func (n *Notifier) HandleWalletEvent(ctx context.Context, ev events.Event) error {
	var p events.WalletPayload
	if err := ev.Decode(&p); err != nil {
		return fmt.Errorf("decode wallet payload: %w", err)
	}
	change, err := newMessage(TypeBalanceChange, ev.MerchantID, BalanceChange{
		TransactionID:  p.TransactionID,
		Type:           p.Type,
		Category:       p.Category,
		Amount:         p.Amount,
		OrderID:        p.OrderID,
		OpeningBalance: p.OpeningBalance,
		ClosingBalance: p.ClosingBalance,
	}, ev.OccurredAt)
	if err != nil {
		return err
	}
	snapshot, err := newMessage(TypeBalanceSnapshot, ev.MerchantID, BalanceSnapshot{Balance: p.ClosingBalance}, ev.OccurredAt)
	if err != nil {
		return err
	}
	for _, m := range []Message{change, snapshot} {
		if err := n.deliver(ctx, m); err != nil {
			return domainErr.SideEffect("balance notification", err)
		}
	}
	return nil
}

func (n *Notifier) deliver(ctx context.Context, m Message) error {
	if n.queue == nil {
		n.hub.Send(m.MerchantID, m)
		return nil
	}
	body, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return n.queue.Publish(ctx, n.name, body)
}

// Consume forwards queued messages to the hub until ctx ends or the
// delivery channel closes. Unreadable messages are dropped.
func Consume(ctx context.Context, deliveries <-chan amqp.Delivery, hub Sender) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			var m Message
			if err := json.Unmarshal(d.Body, &m); err != nil {
				log.Warn().Err(err).Msg("dropping unreadable notification")
				_ = d.Nack(false, false)
				continue
			}
			sent := hub.Send(m.MerchantID, m)
			log.Debug().Str("merchant_id", m.MerchantID).Str("type", m.Type).Int("sessions", sent).Msg("notification delivered")
			_ = d.Ack(false)
		}
	}
}

// Snapshot is the message pushed to a session right after it opens.
func Snapshot(merchantID string, balance decimal.Decimal, at time.Time) (Message, error) {
	return newMessage(TypeBalanceSnapshot, merchantID, BalanceSnapshot{Balance: balance}, at)
}
