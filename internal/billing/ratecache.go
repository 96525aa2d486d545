package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// StaticRateCards serves cards from a fixed set.
type StaticRateCards struct {
	cards map[string]RateCard
}

func rateKey(category string, zone Zone, dir Direction) string {
	return fmt.Sprintf("%s:%s:%s", category, zone, dir)
}

func NewStaticRateCards(cards []RateCard) (*StaticRateCards, error) {
	s := &StaticRateCards{cards: make(map[string]RateCard, len(cards))}
	for _, rc := range cards {
		if err := rc.Validate(); err != nil {
			return nil, fmt.Errorf("rate card %s: %w", rateKey(rc.Category, rc.Zone, rc.Direction), err)
		}
		s.cards[rateKey(rc.Category, rc.Zone, rc.Direction)] = rc
	}
	return s, nil
}

func (s *StaticRateCards) RateCard(_ context.Context, category string, zone Zone, dir Direction) (*RateCard, error) {
	rc, ok := s.cards[rateKey(category, zone, dir)]
	if !ok {
		return nil, ErrRateCardNotFound
	}
	return &rc, nil
}

// CachedRateCards is a read-through redis cache in front of another store.
// Cache failures fall through to the underlying store.
type CachedRateCards struct {
	next   RateCardStore
	client redis.Cmdable
	ttl    time.Duration
}

func NewCachedRateCards(next RateCardStore, client redis.Cmdable, ttl time.Duration) *CachedRateCards {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedRateCards{next: next, client: client, ttl: ttl}
}

func (c *CachedRateCards) RateCard(ctx context.Context, category string, zone Zone, dir Direction) (*RateCard, error) {
	key := "ratecard:" + rateKey(category, zone, dir)

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var rc RateCard
		if uerr := json.Unmarshal(data, &rc); uerr == nil {
			return &rc, nil
		}
		log.Warn().Str("key", key).Msg("discarding unreadable cached rate card")
	case !errors.Is(err, redis.Nil):
		log.Warn().Err(err).Str("key", key).Msg("rate card cache read failed")
	}

	rc, err := c.next.RateCard(ctx, category, zone, dir)
	if err != nil {
		return nil, err
	}
	if raw, merr := json.Marshal(rc); merr == nil {
		if serr := c.client.Set(ctx, key, raw, c.ttl).Err(); serr != nil {
			log.Warn().Err(serr).Str("key", key).Msg("rate card cache write failed")
		}
	}
	return rc, nil
}
