// internal/wallet/models.wallet.go
package wallet

import (
	"context"
	"crypto/rand"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrInsufficientFunds   = errors.New("balance would go below zero")
	ErrNotPending          = errors.New("transaction is no longer pending")
	ErrDuplicateEntry      = errors.New("ledger entry already exists for order and category")
)

type Type string

const (
	Credit Type = "credit"
	Debit  Type = "debit"
)

type Category string

const (
	CategoryTopUp         Category = "wallet_topup"
	CategoryShipping      Category = "shipping_charge"
	CategoryRefund        Category = "shipment_cancellation_refund"
	CategoryCODRemittance Category = "cod_remittance"
	CategoryPenalty       Category = "penalty"
)

// OncePerOrder reports whether at most one entry of this category may exist per order.
func (c Category) OncePerOrder() bool {
	return c == CategoryShipping || c == CategoryRefund
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Transaction is immutable once completed. Corrections are new transactions.
type Transaction struct {
	ID             string          `json:"id"`
	MerchantID     string          `json:"merchant_id"`
	Type           Type            `json:"type"`
	Category       Category        `json:"category"`
	Amount         decimal.Decimal `json:"amount"`
	OrderID        string          `json:"order_id,omitempty"`
	GatewayOrderID string          `json:"gateway_order_id,omitempty"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	ClosingBalance decimal.Decimal `json:"closing_balance"`
	Status         Status          `json:"status"`
	Description    string          `json:"description,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// NewTransactionID prefixes a ULID with CR, DB or RF.
func NewTransactionID(t Type, c Category, at time.Time) string {
	prefix := "CR"
	switch {
	case t == Debit:
		prefix = "DB"
	case c == CategoryRefund:
		prefix = "RF"
	}
	return prefix + ulid.MustNew(ulid.Timestamp(at), rand.Reader).String()
}

type Filter struct {
	Category Category
	Status   Status
	OrderID  string
	Limit    int
	Offset   int
}

// Store is implemented by the persistence layer.
type Store interface {
	Balance(ctx context.Context, merchantID string) (decimal.Decimal, error)
	// AdjustBalance applies delta in one conditional write and returns the
	// persisted balances either side of it. With floor set, a result below
	// zero is refused with ErrInsufficientFunds and the current balance.
	AdjustBalance(ctx context.Context, merchantID string, delta decimal.Decimal, floor bool) (opening, closing decimal.Decimal, err error)
	InsertTransaction(ctx context.Context, txn *Transaction) error
	FindOrderTransaction(ctx context.Context, merchantID, orderID string, c Category) (*Transaction, error)
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*Transaction, error)
	// SettlePending moves pending -> status with the given snapshot, or ErrNotPending.
	SettlePending(ctx context.Context, txnID string, status Status, opening, closing decimal.Decimal) error
	ListTransactions(ctx context.Context, merchantID string, f Filter) ([]Transaction, error)
	ListPendingTopUps(ctx context.Context, olderThan time.Duration, limit int) ([]Transaction, error)
}

// TxRunner executes fn atomically. The postgres implementation carries the tx in ctx.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
