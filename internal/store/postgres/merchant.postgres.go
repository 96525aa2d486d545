// internal/store/postgres/merchant.postgres.go
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Tanmoy095/logisynapse-fulfillment/internal/fulfillment"
)

// MerchantStore answers category and pickup location lookups.
type MerchantStore struct {
	db *sql.DB
}

func NewMerchantStore(db *sql.DB) *MerchantStore {
	return &MerchantStore{db: db}
}

// MerchantCategory returns "" for unknown merchants.
func (s *MerchantStore) MerchantCategory(ctx context.Context, merchantID string) (string, error) {
	var category string
	err := executor(ctx, s.db).QueryRowContext(ctx,
		`SELECT category FROM merchants WHERE id = $1`, merchantID).Scan(&category)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get merchant category: %w", err)
	}
	return category, nil
}

func (s *MerchantStore) Warehouse(ctx context.Context, merchantID, name string) (*fulfillment.Warehouse, error) {
	w := fulfillment.Warehouse{Name: name}
	var addr []byte
	err := executor(ctx, s.db).QueryRowContext(ctx,
		`SELECT address FROM warehouses WHERE merchant_id = $1 AND name = $2`, merchantID, name).Scan(&addr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fulfillment.ErrWarehouseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get warehouse: %w", err)
	}
	if err := json.Unmarshal(addr, &w.Address); err != nil {
		return nil, fmt.Errorf("decode warehouse address: %w", err)
	}
	return &w, nil
}

func (s *MerchantStore) PutWarehouse(ctx context.Context, merchantID string, w fulfillment.Warehouse) error {
	addr, err := json.Marshal(w.Address)
	if err != nil {
		return err
	}
	_, err = executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO warehouses (merchant_id, name, address) VALUES ($1, $2, $3)
		ON CONFLICT (merchant_id, name) DO UPDATE SET address = EXCLUDED.address`,
		merchantID, w.Name, addr)
	if err != nil {
		return fmt.Errorf("put warehouse: %w", err)
	}
	return nil
}

// PutMerchant registers a merchant or updates its name and rate category.
func (s *MerchantStore) PutMerchant(ctx context.Context, id, name, category string) error {
	if category == "" {
		category = "standard"
	}
	_, err := executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO merchants (id, name, category) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, category = EXCLUDED.category`,
		id, name, category)
	if err != nil {
		return fmt.Errorf("put merchant: %w", err)
	}
	return nil
}
