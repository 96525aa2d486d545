package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	skafka "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs []skafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...skafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestPublish(t *testing.T) {
	fw := &fakeWriter{}
	p := NewProducerWithWriter(fw, "fulfillment.events")
	require.NoError(t, p.Publish(context.Background(), "o1", map[string]string{"a": "b"}))
	require.Len(t, fw.msgs, 1)
	assert.Equal(t, "o1", string(fw.msgs[0].Key))

	var v map[string]string
	require.NoError(t, json.Unmarshal(fw.msgs[0].Value, &v))
	assert.Equal(t, "b", v["a"])
}

func TestPublishWriteError(t *testing.T) {
	p := NewProducerWithWriter(&fakeWriter{err: errors.New("leader not available")}, "t")
	assert.Error(t, p.Publish(context.Background(), "k", 1))
}

// fakeReader serves queued messages, then blocks until ctx ends.
type fakeReader struct {
	mu        sync.Mutex
	queue     []skafka.Message
	committed []int64
}

func (f *fakeReader) FetchMessage(ctx context.Context) (skafka.Message, error) {
	f.mu.Lock()
	if len(f.queue) > 0 {
		m := f.queue[0]
		f.queue = f.queue[1:]
		f.mu.Unlock()
		return m, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return skafka.Message{}, ctx.Err()
}

func (f *fakeReader) CommitMessages(ctx context.Context, msgs ...skafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error { return nil }

func TestConsumerCommitsOnlyHandledMessages(t *testing.T) {
	r := &fakeReader{queue: []skafka.Message{
		{Offset: 1, Value: []byte("ok")},
		{Offset: 2, Value: []byte("bad")},
		{Offset: 3, Value: []byte("ok")},
	}}
	c := NewConsumerWithReader(r, "t")
	c.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	var seen int
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Start(ctx, func(_ context.Context, _ []byte, value []byte) error {
			seen++
			if seen == 3 {
				defer cancel()
			}
			if string(value) == "bad" {
				return errors.New("downstream unavailable")
			}
			return nil
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		cancel()
		t.Fatal("consumer did not stop")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Equal(t, []int64{1, 3}, r.committed)
}
