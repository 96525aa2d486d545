package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	domainErr "github.com/Tanmoy095/logisynapse-fulfillment/internal/domain/errors"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/events"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/money"
)

// Ledger is the only writer of wallet balances.
type Ledger struct {
	store   Store
	tx      TxRunner
	emitter events.Emitter
	clock   func() time.Time
}

func NewLedger(store Store, tx TxRunner, emitter events.Emitter) *Ledger {
	return &Ledger{store: store, tx: tx, emitter: emitter, clock: time.Now}
}

// WithClock is used by tests to pin timestamps.
func (l *Ledger) WithClock(clock func() time.Time) *Ledger {
	l.clock = clock
	return l
}

type EntryRequest struct {
	MerchantID  string
	Amount      decimal.Decimal
	OrderID     string
	Category    Category
	Description string
}

func (r EntryRequest) validate() error {
	if r.MerchantID == "" {
		return domainErr.Validation("merchant_id", "is required")
	}
	if r.Amount.IsNegative() {
		return domainErr.Validation("amount", "must not be negative")
	}
	if r.Category == "" {
		return domainErr.Validation("category", "is required")
	}
	if r.Category.OncePerOrder() && r.OrderID == "" {
		return domainErr.Validation("order_id", "is required for "+string(r.Category))
	}
	return nil
}

// Debit fails with InsufficientBalanceError when the balance cannot cover
// the amount. A zero amount is a no-op returning (nil, nil).
func (l *Ledger) Debit(ctx context.Context, req EntryRequest) (*Transaction, error) {
	return l.post(ctx, Debit, req)
}

// Credit has no balance check. A zero amount is a no-op returning (nil, nil).
func (l *Ledger) Credit(ctx context.Context, req EntryRequest) (*Transaction, error) {
	return l.post(ctx, Credit, req)
}

func (l *Ledger) post(ctx context.Context, typ Type, req EntryRequest) (*Transaction, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	amount := money.Round2(req.Amount)
	if amount.IsZero() {
		return nil, nil
	}
	now := l.clock().UTC()
	txn := &Transaction{
		ID:          NewTransactionID(typ, req.Category, now),
		MerchantID:  req.MerchantID,
		Type:        typ,
		Category:    req.Category,
		Amount:      amount,
		OrderID:     req.OrderID,
		Status:      StatusCompleted,
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	delta := amount
	if typ == Debit {
		delta = amount.Neg()
	}

	err := l.tx.RunInTx(ctx, func(ctx context.Context) error {
		// The balance write happens first and its persisted result is what
		// the transaction records.
		opening, closing, err := l.store.AdjustBalance(ctx, req.MerchantID, delta, typ == Debit)
		if errors.Is(err, ErrInsufficientFunds) {
			return &domainErr.InsufficientBalanceError{Required: amount, Available: opening}
		}
		if err != nil {
			return fmt.Errorf("adjust balance: %w", err)
		}
		txn.OpeningBalance, txn.ClosingBalance = opening, closing
		if err := l.store.InsertTransaction(ctx, txn); err != nil {
			return fmt.Errorf("record transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("txn_id", txn.ID).
		Str("merchant_id", txn.MerchantID).
		Str("type", string(typ)).
		Str("category", string(txn.Category)).
		Str("amount", amount.StringFixed(2)).
		Str("closing", txn.ClosingBalance.StringFixed(2)).
		Msg("wallet ledger entry recorded")
	l.emit(ctx, txn)
	return txn, nil
}

func (l *Ledger) emit(ctx context.Context, txn *Transaction) {
	if l.emitter == nil {
		return
	}
	typ := events.WalletCredited
	if txn.Type == Debit {
		typ = events.WalletDebited
	}
	ev, err := events.New(typ, txn.MerchantID, txn.ID, events.WalletPayload{
		TransactionID:  txn.ID,
		Type:           string(txn.Type),
		Category:       string(txn.Category),
		Amount:         txn.Amount,
		OrderID:        txn.OrderID,
		OpeningBalance: txn.OpeningBalance,
		ClosingBalance: txn.ClosingBalance,
	}, txn.UpdatedAt)
	if err != nil {
		log.Error().Err(err).Str("txn_id", txn.ID).Msg("could not build wallet event")
		return
	}
	l.emitter.Emit(ctx, ev)
}

// CreatePendingCredit records a top-up awaiting gateway confirmation.
// The balance is untouched until SettleTopUp.
func (l *Ledger) CreatePendingCredit(ctx context.Context, merchantID string, amount decimal.Decimal, gatewayOrderID, description string) (*Transaction, error) {
	amount = money.Round2(amount)
	if !amount.IsPositive() {
		return nil, domainErr.Validation("amount", "must be positive")
	}
	if gatewayOrderID == "" {
		return nil, domainErr.Validation("gateway_order_id", "is required")
	}
	now := l.clock().UTC()
	txn := &Transaction{
		ID:             NewTransactionID(Credit, CategoryTopUp, now),
		MerchantID:     merchantID,
		Type:           Credit,
		Category:       CategoryTopUp,
		Amount:         amount,
		GatewayOrderID: gatewayOrderID,
		Status:         StatusPending,
		Description:    description,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := l.store.InsertTransaction(ctx, txn); err != nil {
		return nil, fmt.Errorf("record pending top-up: %w", err)
	}
	return txn, nil
}

// SettleTopUp credits a pending top-up exactly once. A second call sees
// ErrNotPending and the balance change is rolled back with it.
func (l *Ledger) SettleTopUp(ctx context.Context, pending *Transaction) (*Transaction, error) {
	if pending.Status != StatusPending {
		return nil, ErrNotPending
	}
	settled := *pending
	err := l.tx.RunInTx(ctx, func(ctx context.Context) error {
		opening, closing, err := l.store.AdjustBalance(ctx, pending.MerchantID, pending.Amount, false)
		if err != nil {
			return fmt.Errorf("adjust balance: %w", err)
		}
		if err := l.store.SettlePending(ctx, pending.ID, StatusCompleted, opening, closing); err != nil {
			return err
		}
		settled.OpeningBalance, settled.ClosingBalance = opening, closing
		return nil
	})
	if err != nil {
		return nil, err
	}
	settled.Status = StatusCompleted
	settled.UpdatedAt = l.clock().UTC()
	log.Info().Str("txn_id", settled.ID).Str("merchant_id", settled.MerchantID).Str("amount", settled.Amount.StringFixed(2)).Msg("top-up settled")
	l.emit(ctx, &settled)
	return &settled, nil
}

func (l *Ledger) FailTopUp(ctx context.Context, txnID string) error {
	return l.store.SettlePending(ctx, txnID, StatusFailed, decimal.Zero, decimal.Zero)
}

func (l *Ledger) Balance(ctx context.Context, merchantID string) (decimal.Decimal, error) {
	return l.store.Balance(ctx, merchantID)
}

func (l *Ledger) FindOrderTransaction(ctx context.Context, merchantID, orderID string, c Category) (*Transaction, error) {
	return l.store.FindOrderTransaction(ctx, merchantID, orderID, c)
}

func (l *Ledger) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*Transaction, error) {
	return l.store.FindByGatewayOrderID(ctx, gatewayOrderID)
}

// PendingTopUps lists top-ups still waiting on the gateway after olderThan.
func (l *Ledger) PendingTopUps(ctx context.Context, olderThan time.Duration, limit int) ([]Transaction, error) {
	return l.store.ListPendingTopUps(ctx, olderThan, limit)
}

func (l *Ledger) Transactions(ctx context.Context, merchantID string, f Filter) ([]Transaction, error) {
	return l.store.ListTransactions(ctx, merchantID, f)
}

type Summary struct {
	Balance       decimal.Decimal `json:"balance"`
	TotalCredited decimal.Decimal `json:"total_credited"`
	TotalDebited  decimal.Decimal `json:"total_debited"`
}

// Summary totals completed transactions only.
func (l *Ledger) Summary(ctx context.Context, merchantID string) (Summary, error) {
	bal, err := l.store.Balance(ctx, merchantID)
	if err != nil {
		return Summary{}, err
	}
	txns, err := l.store.ListTransactions(ctx, merchantID, Filter{Status: StatusCompleted})
	if err != nil {
		return Summary{}, err
	}
	s := Summary{Balance: bal, TotalCredited: decimal.Zero, TotalDebited: decimal.Zero}
	for _, t := range txns {
		if t.Type == Credit {
			s.TotalCredited = s.TotalCredited.Add(t.Amount)
		} else {
			s.TotalDebited = s.TotalDebited.Add(t.Amount)
		}
	}
	return s, nil
}
