// internal/store/postgres/customer.postgres.go
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Tanmoy095/logisynapse-fulfillment/internal/customer"
)

type CustomerStore struct {
	db *sql.DB
	tx *TxManager
}

func NewCustomerStore(db *sql.DB) *CustomerStore {
	return &CustomerStore{db: db, tx: NewTxManager(db)}
}

var _ customer.Store = (*CustomerStore)(nil)

// Upsert locks the row while mutate runs so concurrent events for one
// customer apply in sequence.
func (s *CustomerStore) Upsert(ctx context.Context, merchantID, phone string, mutate func(p *customer.Profile)) error {
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		ex := executor(ctx, s.db)
		if _, err := ex.ExecContext(ctx, `
			INSERT INTO customers (merchant_id, phone, doc) VALUES ($1, $2, $3)
			ON CONFLICT (merchant_id, phone) DO NOTHING`,
			merchantID, phone, emptyProfile(merchantID, phone)); err != nil {
			return fmt.Errorf("ensure customer: %w", err)
		}

		var doc []byte
		if err := ex.QueryRowContext(ctx, `
			SELECT doc FROM customers WHERE merchant_id = $1 AND phone = $2 FOR UPDATE`,
			merchantID, phone).Scan(&doc); err != nil {
			return fmt.Errorf("lock customer: %w", err)
		}
		var p customer.Profile
		if err := json.Unmarshal(doc, &p); err != nil {
			return fmt.Errorf("decode customer: %w", err)
		}
		mutate(&p)

		next, err := json.Marshal(p)
		if err != nil {
			return err
		}
		_, err = ex.ExecContext(ctx, `
			UPDATE customers SET doc = $3, updated_at = NOW()
			WHERE merchant_id = $1 AND phone = $2`, merchantID, phone, next)
		return err
	})
}

func (s *CustomerStore) Get(ctx context.Context, merchantID, phone string) (*customer.Profile, error) {
	var doc []byte
	err := executor(ctx, s.db).QueryRowContext(ctx,
		`SELECT doc FROM customers WHERE merchant_id = $1 AND phone = $2`, merchantID, phone).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, customer.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}
	var p customer.Profile
	if err := json.Unmarshal(doc, &p); err != nil {
		return nil, fmt.Errorf("decode customer: %w", err)
	}
	return &p, nil
}

func emptyProfile(merchantID, phone string) []byte {
	b, _ := json.Marshal(customer.Profile{MerchantID: merchantID, Phone: phone, TotalShipping: decimal.Zero})
	return b
}
