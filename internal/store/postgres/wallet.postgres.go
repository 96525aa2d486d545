// internal/store/postgres/wallet.postgres.go
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Tanmoy095/logisynapse-fulfillment/internal/money"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/wallet"
)

type WalletStore struct {
	db *sql.DB
}

func NewWalletStore(db *sql.DB) *WalletStore {
	return &WalletStore{db: db}
}

var _ wallet.Store = (*WalletStore)(nil)

const txnColumns = `id, merchant_id, type, category, amount, order_id, gateway_order_id,
	opening_balance, closing_balance, status, description, created_at, updated_at`

func (s *WalletStore) Balance(ctx context.Context, merchantID string) (decimal.Decimal, error) {
	var bal decimal.Decimal
	err := executor(ctx, s.db).QueryRowContext(ctx,
		`SELECT balance FROM wallets WHERE merchant_id = $1`, merchantID).Scan(&bal)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("read balance: %w", err)
	}
	return bal, nil
}

// AdjustBalance is a single conditional UPDATE; the row lock it takes
// serialises concurrent writers for the same merchant.
func (s *WalletStore) AdjustBalance(ctx context.Context, merchantID string, delta decimal.Decimal, floor bool) (opening, closing decimal.Decimal, err error) {
	ex := executor(ctx, s.db)
	if _, err = ex.ExecContext(ctx,
		`INSERT INTO wallets (merchant_id) VALUES ($1) ON CONFLICT (merchant_id) DO NOTHING`, merchantID); err != nil {
		return opening, closing, fmt.Errorf("ensure wallet: %w", err)
	}

	err = ex.QueryRowContext(ctx, `
		UPDATE wallets SET balance = balance + $2::numeric, updated_at = NOW()
		WHERE merchant_id = $1 AND (NOT $3::boolean OR balance + $2::numeric >= 0)
		RETURNING balance`, merchantID, delta, floor).Scan(&closing)
	if errors.Is(err, sql.ErrNoRows) {
		cur, berr := s.Balance(ctx, merchantID)
		if berr != nil {
			return opening, closing, berr
		}
		return cur, cur, wallet.ErrInsufficientFunds
	}
	if err != nil {
		return opening, closing, fmt.Errorf("adjust balance: %w", err)
	}
	closing = money.Round2(closing)
	return money.Round2(closing.Sub(delta)), closing, nil
}

func (s *WalletStore) InsertTransaction(ctx context.Context, txn *wallet.Transaction) error {
	_, err := executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO wallet_transactions (`+txnColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		txn.ID, txn.MerchantID, txn.Type, txn.Category, txn.Amount,
		nullString(txn.OrderID), nullString(txn.GatewayOrderID),
		txn.OpeningBalance, txn.ClosingBalance, txn.Status, nullString(txn.Description),
		txn.CreatedAt, txn.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return wallet.ErrDuplicateEntry
	}
	if err != nil {
		return fmt.Errorf("insert wallet transaction: %w", err)
	}
	return nil
}

func (s *WalletStore) FindOrderTransaction(ctx context.Context, merchantID, orderID string, c wallet.Category) (*wallet.Transaction, error) {
	row := executor(ctx, s.db).QueryRowContext(ctx, `
		SELECT `+txnColumns+` FROM wallet_transactions
		WHERE merchant_id = $1 AND order_id = $2 AND category = $3 AND status = $4
		ORDER BY created_at DESC LIMIT 1`, merchantID, orderID, c, wallet.StatusCompleted)
	return scanTxn(row)
}

func (s *WalletStore) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*wallet.Transaction, error) {
	row := executor(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+txnColumns+` FROM wallet_transactions WHERE gateway_order_id = $1`, gatewayOrderID)
	return scanTxn(row)
}

func (s *WalletStore) SettlePending(ctx context.Context, txnID string, status wallet.Status, opening, closing decimal.Decimal) error {
	ex := executor(ctx, s.db)
	res, err := ex.ExecContext(ctx, `
		UPDATE wallet_transactions
		SET status = $2,
		    opening_balance = CASE WHEN $2 = 'completed' THEN $3::numeric ELSE opening_balance END,
		    closing_balance = CASE WHEN $2 = 'completed' THEN $4::numeric ELSE closing_balance END,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`, txnID, status, opening, closing)
	if err != nil {
		return fmt.Errorf("settle transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	var exists bool
	if err := ex.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM wallet_transactions WHERE id = $1)`, txnID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return wallet.ErrTransactionNotFound
	}
	return wallet.ErrNotPending
}

func (s *WalletStore) ListTransactions(ctx context.Context, merchantID string, f wallet.Filter) ([]wallet.Transaction, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := executor(ctx, s.db).QueryContext(ctx, `
		SELECT `+txnColumns+` FROM wallet_transactions
		WHERE merchant_id = $1
		  AND ($2 = '' OR category = $2)
		  AND ($3 = '' OR status = $3)
		  AND ($4 = '' OR order_id = $4)
		ORDER BY created_at DESC
		LIMIT $5 OFFSET $6`,
		merchantID, string(f.Category), string(f.Status), f.OrderID, limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("list wallet transactions: %w", err)
	}
	return scanTxns(rows)
}

func (s *WalletStore) ListPendingTopUps(ctx context.Context, olderThan time.Duration, limit int) ([]wallet.Transaction, error) {
	rows, err := executor(ctx, s.db).QueryContext(ctx, `
		SELECT `+txnColumns+` FROM wallet_transactions
		WHERE category = $1 AND status = 'pending' AND created_at < $2
		ORDER BY created_at ASC
		LIMIT $3`, wallet.CategoryTopUp, time.Now().Add(-olderThan), limit)
	if err != nil {
		return nil, fmt.Errorf("list pending top-ups: %w", err)
	}
	return scanTxns(rows)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTxnRow(sc scanner) (*wallet.Transaction, error) {
	var t wallet.Transaction
	var orderID, gatewayID, descr sql.NullString
	err := sc.Scan(&t.ID, &t.MerchantID, &t.Type, &t.Category, &t.Amount, &orderID, &gatewayID,
		&t.OpeningBalance, &t.ClosingBalance, &t.Status, &descr, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.OrderID, t.GatewayOrderID, t.Description = orderID.String, gatewayID.String, descr.String
	return &t, nil
}

func scanTxn(row *sql.Row) (*wallet.Transaction, error) {
	t, err := scanTxnRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, wallet.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan wallet transaction: %w", err)
	}
	return t, nil
}

func scanTxns(rows *sql.Rows) ([]wallet.Transaction, error) {
	defer rows.Close()
	var out []wallet.Transaction
	for rows.Next() {
		t, err := scanTxnRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan wallet transaction: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}
