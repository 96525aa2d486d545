package kafka

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	skafka "github.com/segmentio/kafka-go"
)

// Reader is the subset of kafka.Reader the consumer uses.
type Reader interface {
	FetchMessage(ctx context.Context) (skafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...skafka.Message) error
	Close() error
}

// Handler processes one message. A returned error leaves the offset
// uncommitted so the message is delivered again.
type Handler func(ctx context.Context, key []byte, value []byte) error

type Consumer struct {
	reader         Reader
	topic          string
	handlerTimeout time.Duration
	backoff        time.Duration
}

// NewConsumer joins groupID, so several workers split the partitions.
func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	r := skafka.NewReader(skafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  time.Second,
	})
	return NewConsumerWithReader(r, topic)
}

func NewConsumerWithReader(r Reader, topic string) *Consumer {
	return &Consumer{reader: r, topic: topic, handlerTimeout: 10 * time.Second, backoff: time.Second}
}

// Start blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context, handler Handler) {
	log.Info().Str("topic", c.topic).Msg("kafka consumer started")
	for {
		if ctx.Err() != nil {
			return
		}
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Str("topic", c.topic).Msg("fetch failed")
			sleep(ctx, c.backoff)
			continue
		}

		processCtx, cancel := context.WithTimeout(ctx, c.handlerTimeout)
		err = handler(processCtx, m.Key, m.Value)
		cancel()
		if err != nil {
			log.Error().Err(err).Int64("offset", m.Offset).Int("partition", m.Partition).Msg("message processing failed")
			sleep(ctx, c.backoff)
			continue
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			log.Warn().Err(err).Int64("offset", m.Offset).Msg("commit failed")
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
