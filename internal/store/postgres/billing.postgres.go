// internal/store/postgres/billing.postgres.go
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/Tanmoy095/logisynapse-fulfillment/internal/billing"
)

type BillingStore struct {
	db *sql.DB
}

func NewBillingStore(db *sql.DB) *BillingStore {
	return &BillingStore{db: db}
}

var _ billing.Store = (*BillingStore)(nil)

func (s *BillingStore) GetOrCreateCycle(ctx context.Context, merchantID string, p billing.Period) (*billing.Cycle, error) {
	_, err := executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO billing_cycles (id, merchant_id, year, month, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (id) DO NOTHING`,
		billing.CycleID(merchantID, p), merchantID, p.Year, p.Month, p.Start())
	if err != nil {
		return nil, fmt.Errorf("create billing cycle: %w", err)
	}
	return s.GetCycle(ctx, merchantID, p)
}

func (s *BillingStore) GetCycle(ctx context.Context, merchantID string, p billing.Period) (*billing.Cycle, error) {
	ex := executor(ctx, s.db)
	c := billing.Cycle{MerchantID: merchantID, Period: p}
	err := ex.QueryRowContext(ctx, `
		SELECT id, forward_total, rto_total, cod_total, total, created_at, updated_at
		FROM billing_cycles WHERE merchant_id = $1 AND year = $2 AND month = $3`,
		merchantID, p.Year, p.Month,
	).Scan(&c.ID, &c.ForwardTotal, &c.RTOTotal, &c.CODTotal, &c.Total, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, billing.ErrCycleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get billing cycle: %w", err)
	}

	rows, err := ex.QueryContext(ctx, `
		SELECT order_id, waybill, direction, zone, charged_weight_g, forward, rto, cod, total, added_at
		FROM billing_cycle_lines WHERE cycle_id = $1
		ORDER BY added_at ASC, order_id ASC`, c.ID)
	if err != nil {
		return nil, fmt.Errorf("list billing lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var l billing.Line
		var waybill, zone sql.NullString
		if err := rows.Scan(&l.OrderID, &waybill, &l.Direction, &zone, &l.ChargedWeightG,
			&l.Charges.Forward, &l.Charges.RTO, &l.Charges.COD, &l.Charges.Total, &l.AddedAt); err != nil {
			return nil, fmt.Errorf("scan billing line: %w", err)
		}
		l.Waybill, l.Zone = waybill.String, zone.String
		c.Lines = append(c.Lines, l)
	}
	return &c, rows.Err()
}

// AddLine inserts the line and bumps the cycle totals in one statement.
// A conflicting line leaves the totals untouched.
func (s *BillingStore) AddLine(ctx context.Context, cycleID string, l billing.Line) (bool, error) {
	var id string
	err := executor(ctx, s.db).QueryRowContext(ctx, `
		WITH ins AS (
			INSERT INTO billing_cycle_lines
				(cycle_id, order_id, direction, waybill, zone, charged_weight_g, forward, rto, cod, total, added_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (cycle_id, order_id, direction) DO NOTHING
			RETURNING forward, rto, cod, total, added_at
		)
		UPDATE billing_cycles c
		SET forward_total = c.forward_total + ins.forward,
		    rto_total     = c.rto_total + ins.rto,
		    cod_total     = c.cod_total + ins.cod,
		    total         = c.total + ins.total,
		    updated_at    = GREATEST(c.updated_at, ins.added_at)
		FROM ins
		WHERE c.id = $1
		RETURNING c.id`,
		cycleID, l.OrderID, l.Direction, nullString(l.Waybill), nullString(l.Zone), l.ChargedWeightG,
		l.Charges.Forward, l.Charges.RTO, l.Charges.COD, l.Charges.Total, l.AddedAt,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23503" {
		return false, billing.ErrCycleNotFound
	}
	if err != nil {
		return false, fmt.Errorf("add billing line: %w", err)
	}
	return true, nil
}

// RateCardStore reads cards maintained in the rate_cards table.
type RateCardStore struct {
	db *sql.DB
}

func NewRateCardStore(db *sql.DB) *RateCardStore {
	return &RateCardStore{db: db}
}

var _ billing.RateCardStore = (*RateCardStore)(nil)

func (s *RateCardStore) RateCard(ctx context.Context, category string, zone billing.Zone, dir billing.Direction) (*billing.RateCard, error) {
	rc := billing.RateCard{Category: category, Zone: zone, Direction: dir}
	var slabs []byte
	err := executor(ctx, s.db).QueryRowContext(ctx, `
		SELECT slabs, cod_flat, cod_percent FROM rate_cards
		WHERE category = $1 AND zone = $2 AND direction = $3`, category, zone, dir,
	).Scan(&slabs, &rc.CODFlat, &rc.CODPercent)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, billing.ErrRateCardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get rate card: %w", err)
	}
	if err := json.Unmarshal(slabs, &rc.Slabs); err != nil {
		return nil, fmt.Errorf("decode rate card slabs: %w", err)
	}
	return &rc, nil
}

// Put validates and upserts a card.
func (s *RateCardStore) Put(ctx context.Context, rc billing.RateCard) error {
	if err := rc.Validate(); err != nil {
		return err
	}
	slabs, err := json.Marshal(rc.Slabs)
	if err != nil {
		return err
	}
	_, err = executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO rate_cards (category, zone, direction, slabs, cod_flat, cod_percent)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (category, zone, direction)
		DO UPDATE SET slabs = EXCLUDED.slabs, cod_flat = EXCLUDED.cod_flat, cod_percent = EXCLUDED.cod_percent`,
		rc.Category, rc.Zone, rc.Direction, slabs, rc.CODFlat, rc.CODPercent)
	if err != nil {
		return fmt.Errorf("put rate card: %w", err)
	}
	return nil
}
