// internal/store/postgres/outbox.postgres.go
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/Tanmoy095/logisynapse-fulfillment/internal/events"
)

type OutboxStore struct {
	db *sql.DB
}

func NewOutboxStore(db *sql.DB) *OutboxStore {
	return &OutboxStore{db: db}
}

var _ events.OutboxStore = (*OutboxStore)(nil)

func (s *OutboxStore) Append(ctx context.Context, ev events.Event) error {
	_, err := executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO outbox (id, type, merchant_id, aggregate_id, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`,
		ev.ID, ev.Type, ev.MerchantID, ev.AggregateID, []byte(ev.Payload), ev.OccurredAt)
	if err != nil {
		return fmt.Errorf("append outbox: %w", err)
	}
	return nil
}

func (s *OutboxStore) Pending(ctx context.Context, limit int) ([]events.Event, error) {
	rows, err := executor(ctx, s.db).QueryContext(ctx, `
		SELECT id, type, merchant_id, aggregate_id, payload, occurred_at
		FROM outbox WHERE published_at IS NULL
		ORDER BY occurred_at ASC
		LIMIT NULLIF($1, 0)`, limit)
	if err != nil {
		return nil, fmt.Errorf("list outbox: %w", err)
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		var ev events.Event
		var payload []byte
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.MerchantID, &ev.AggregateID, &payload, &ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan outbox: %w", err)
		}
		ev.Payload = payload
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *OutboxStore) MarkPublished(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := executor(ctx, s.db).ExecContext(ctx,
		`UPDATE outbox SET published_at = NOW() WHERE id = ANY($1) AND published_at IS NULL`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}
