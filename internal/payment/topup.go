package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	domainErr "github.com/Tanmoy095/logisynapse-fulfillment/internal/domain/errors"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/money"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/wallet"
)

// TopUpLedger is the wallet surface the top-up flow writes through.
type TopUpLedger interface {
	CreatePendingCredit(ctx context.Context, merchantID string, amount decimal.Decimal, gatewayOrderID, description string) (*wallet.Transaction, error)
	SettleTopUp(ctx context.Context, pending *wallet.Transaction) (*wallet.Transaction, error)
	FailTopUp(ctx context.Context, txnID string) error
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*wallet.Transaction, error)
}

var (
	minTopUp = decimal.NewFromInt(1)
	maxTopUp = decimal.NewFromInt(500000)
)

type TopUpService struct {
	ledger  TopUpLedger
	gateway Gateway
	timeout time.Duration

	// concurrent confirmations of one gateway order (redirect, webhook,
	// reconciler) collapse into a single provider query
	sf singleflight.Group
}

func NewTopUpService(ledger TopUpLedger, gateway Gateway) *TopUpService {
	return &TopUpService{ledger: ledger, gateway: gateway, timeout: 30 * time.Second}
}

type TopUpResult struct {
	Transaction *wallet.Transaction `json:"transaction"`
	Session     *Session            `json:"session"`
}

// InitiateTopUp opens a provider session and records a pending credit keyed
// by the provider's order id. The balance moves only on confirmation.
func (s *TopUpService) InitiateTopUp(ctx context.Context, customer Customer, amount decimal.Decimal) (*TopUpResult, error) {
	if customer.MerchantID == "" {
		return nil, domainErr.Validation("merchant_id", "is required")
	}
	amount = money.Round2(amount)
	if amount.LessThan(minTopUp) || amount.GreaterThan(maxTopUp) {
		return nil, domainErr.Validation("amount", fmt.Sprintf("must be between %s and %s", minTopUp, maxTopUp))
	}

	gctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	sess, err := s.gateway.CreateOrderSession(gctx, SessionRequest{
		ReferenceID: "topup-" + ulid.Make().String(),
		Amount:      amount,
		Currency:    "INR",
		Customer:    customer,
		Description: "Wallet top-up",
	})
	if err != nil {
		return nil, fmt.Errorf("create payment session: %w", err)
	}

	txn, err := s.ledger.CreatePendingCredit(ctx, customer.MerchantID, amount, sess.OrderID, "wallet top-up via payment gateway")
	if err != nil {
		// the session simply expires unpaid at the provider
		log.Error().Err(err).Str("merchant_id", customer.MerchantID).Str("gateway_order_id", sess.OrderID).Msg("could not record pending top-up")
		return nil, err
	}
	log.Info().Str("merchant_id", customer.MerchantID).Str("txn_id", txn.ID).Str("amount", amount.StringFixed(2)).Msg("top-up initiated")
	return &TopUpResult{Transaction: txn, Session: sess}, nil
}

// ConfirmTopUp settles a pending top-up from the provider's authoritative
// status, never from what the caller claims. merchantID scopes the lookup
// when set. Repeated calls return the settled transaction.
func (s *TopUpService) ConfirmTopUp(ctx context.Context, merchantID, gatewayOrderID string) (*wallet.Transaction, error) {
	if gatewayOrderID == "" {
		return nil, domainErr.Validation("order_id", "is required")
	}
	v, err, _ := s.sf.Do("confirm_topup_"+gatewayOrderID, func() (interface{}, error) {
		return s.confirm(ctx, gatewayOrderID)
	})
	if err != nil {
		return nil, err
	}
	txn := v.(*wallet.Transaction)
	if merchantID != "" && txn.MerchantID != merchantID {
		return nil, ErrTopUpNotFound
	}
	return txn, nil
}

func (s *TopUpService) confirm(ctx context.Context, gatewayOrderID string) (*wallet.Transaction, error) {
	txn, err := s.ledger.FindByGatewayOrderID(ctx, gatewayOrderID)
	if errors.Is(err, wallet.ErrTransactionNotFound) {
		return nil, ErrTopUpNotFound
	}
	if err != nil {
		return nil, err
	}
	if txn.Status != wallet.StatusPending {
		return txn, nil
	}

	gctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	raw, err := s.gateway.OrderStatus(gctx, gatewayOrderID)
	if err != nil {
		return nil, fmt.Errorf("query payment status: %w", err)
	}

	switch MapPaymentStatus(raw) {
	case StatusSucceeded:
		settled, err := s.ledger.SettleTopUp(ctx, txn)
		if errors.Is(err, wallet.ErrNotPending) {
			// another process settled it first
			return s.ledger.FindByGatewayOrderID(ctx, gatewayOrderID)
		}
		return settled, err
	case StatusFailed:
		if err := s.ledger.FailTopUp(ctx, txn.ID); err != nil && !errors.Is(err, wallet.ErrNotPending) {
			return nil, err
		}
		log.Warn().Str("txn_id", txn.ID).Str("provider_status", raw).Msg("top-up failed at provider")
		return s.ledger.FindByGatewayOrderID(ctx, gatewayOrderID)
	default:
		return txn, nil
	}
}

// HandleWebhook treats a verified webhook only as a hint to re-check the provider.
func (s *TopUpService) HandleWebhook(ctx context.Context, ev *NormalizedEvent) error {
	if ev == nil {
		return nil
	}
	log.Info().Str("provider", ev.Provider).Str("gateway_order_id", ev.GatewayOrderID).Str("status", string(ev.Status)).Msg("payment webhook received")
	_, err := s.ConfirmTopUp(ctx, "", ev.GatewayOrderID)
	if errors.Is(err, ErrTopUpNotFound) {
		// sessions created outside the wallet flow
		return nil
	}
	return err
}
