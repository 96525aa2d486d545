package events

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Publisher is the broker side of the relay.
type Publisher interface {
	Publish(ctx context.Context, key string, value interface{}) error
}

// Relay moves outbox rows to the broker. Rows are marked only after a
// successful publish, so a crash re-sends rather than loses.
type Relay struct {
	store     OutboxStore
	publisher Publisher
	batchSize int
}

func NewRelay(store OutboxStore, publisher Publisher, batchSize int) *Relay {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Relay{store: store, publisher: publisher, batchSize: batchSize}
}

// RunOnce publishes one batch and returns how many rows were sent.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	pending, err := r.store.Pending(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("load outbox: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}
	sent := make([]string, 0, len(pending))
	for _, ev := range pending {
		// merchant id as key keeps one merchant's events ordered on a partition
		if err := r.publisher.Publish(ctx, ev.MerchantID, ev); err != nil {
			log.Warn().Err(err).Str("event_id", ev.ID).Msg("outbox publish failed, will retry")
			break
		}
		sent = append(sent, ev.ID)
	}
	if len(sent) == 0 {
		return 0, fmt.Errorf("outbox relay published nothing out of %d pending", len(pending))
	}
	if err := r.store.MarkPublished(ctx, sent); err != nil {
		return 0, fmt.Errorf("mark outbox published: %w", err)
	}
	log.Debug().Int("count", len(sent)).Msg("outbox batch relayed")
	return len(sent), nil
}
