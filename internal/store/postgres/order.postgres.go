// internal/store/postgres/order.postgres.go
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Tanmoy095/logisynapse-fulfillment/internal/order"
)

// OrderStore keeps the whole order as a JSONB document. The columns
// beside it exist for lookups and the compare-and-set on status and version.
type OrderStore struct {
	db *sql.DB
}

func NewOrderStore(db *sql.DB) *OrderStore {
	return &OrderStore{db: db}
}

var _ order.Store = (*OrderStore)(nil)

func (s *OrderStore) Create(ctx context.Context, o *order.Order) error {
	doc, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}
	_, err = executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO orders (merchant_id, id, reference_id, status, waybill, cancellation_status, doc, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		o.MerchantID, o.ID, nullString(o.ReferenceID), o.Status, nullString(o.Waybill),
		o.Cancellation.Status, doc, o.CreatedAt, o.UpdatedAt, o.Version)
	if isUniqueViolation(err) {
		return order.ErrDuplicateOrder
	}
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (s *OrderStore) Get(ctx context.Context, merchantID, orderID string) (*order.Order, error) {
	var doc []byte
	err := executor(ctx, s.db).QueryRowContext(ctx,
		`SELECT doc FROM orders WHERE merchant_id = $1 AND id = $2`, merchantID, orderID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, order.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return decodeOrder(doc)
}

func (s *OrderStore) Update(ctx context.Context, o *order.Order, expected order.Status) error {
	next := *o
	next.Version = o.Version + 1
	doc, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}
	res, err := executor(ctx, s.db).ExecContext(ctx, `
		UPDATE orders
		SET status = $3, waybill = $4, cancellation_status = $5,
		    doc = jsonb_set($6::jsonb, '{billing}', doc->'billing'),
		    updated_at = $7, version = $10
		WHERE merchant_id = $1 AND id = $2 AND status = $8 AND version = $9`,
		o.MerchantID, o.ID, o.Status, nullString(o.Waybill), o.Cancellation.Status,
		doc, o.UpdatedAt, expected, o.Version, next.Version)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if err := s.checkAffected(ctx, res, o.MerchantID, o.ID, order.ErrStaleOrder); err != nil {
		return err
	}
	o.Version = next.Version
	return nil
}

func (s *OrderStore) UpdateBilling(ctx context.Context, merchantID, orderID string, b order.Billing) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal billing: %w", err)
	}
	res, err := executor(ctx, s.db).ExecContext(ctx, `
		UPDATE orders SET doc = jsonb_set(doc, '{billing}', $3::jsonb)
		WHERE merchant_id = $1 AND id = $2`, merchantID, orderID, raw)
	if err != nil {
		return fmt.Errorf("update order billing: %w", err)
	}
	return s.checkAffected(ctx, res, merchantID, orderID, nil)
}

// LinkPayment leaves an existing wallet transaction id alone when walletTxnID is empty.
func (s *OrderStore) LinkPayment(ctx context.Context, merchantID, orderID, walletTxnID string, status order.BillingPaymentStatus) error {
	res, err := executor(ctx, s.db).ExecContext(ctx, `
		UPDATE orders SET doc = jsonb_set(
			CASE WHEN $3 = '' THEN doc
			     ELSE jsonb_set(doc, '{billing,wallet_txn_id}', to_jsonb($3::text)) END,
			'{billing,payment_status}', to_jsonb($4::text))
		WHERE merchant_id = $1 AND id = $2`, merchantID, orderID, walletTxnID, string(status))
	if err != nil {
		return fmt.Errorf("link order payment: %w", err)
	}
	return s.checkAffected(ctx, res, merchantID, orderID, nil)
}

func (s *OrderStore) ListByCancellationStatus(ctx context.Context, status order.CancellationStatus, limit int) ([]*order.Order, error) {
	rows, err := executor(ctx, s.db).QueryContext(ctx, `
		SELECT doc FROM orders
		WHERE cancellation_status = $1
		ORDER BY updated_at ASC
		LIMIT NULLIF($2, 0)`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list orders by cancellation: %w", err)
	}
	defer rows.Close()

	var out []*order.Order
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		o, err := decodeOrder(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// checkAffected turns a zero-row write into not-found, or into conflict
// when the row exists but a guard did not match.
func (s *OrderStore) checkAffected(ctx context.Context, res sql.Result, merchantID, orderID string, conflict error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var exists bool
	if err := executor(ctx, s.db).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM orders WHERE merchant_id = $1 AND id = $2)`, merchantID, orderID).Scan(&exists); err != nil {
		return err
	}
	if !exists || conflict == nil {
		return order.ErrOrderNotFound
	}
	return conflict
}

func decodeOrder(doc []byte) (*order.Order, error) {
	var o order.Order
	if err := json.Unmarshal(doc, &o); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}
	return &o, nil
}
