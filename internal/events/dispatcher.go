package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	domainErr "github.com/Tanmoy095/logisynapse-fulfillment/internal/domain/errors"
)

// Handler performs one best-effort side effect for an event.
type Handler func(ctx context.Context, ev Event) error

type subscription struct {
	name    string
	handler Handler
}

// OutboxStore durably records events for relay to the broker.
type OutboxStore interface {
	Append(ctx context.Context, ev Event) error
	Pending(ctx context.Context, limit int) ([]Event, error)
	MarkPublished(ctx context.Context, ids []string) error
}

// Dispatcher fans events out to in-process subscribers on a worker pool.
// Subscriber failures are logged and never reach the emitter.
type Dispatcher struct {
	mu     sync.RWMutex
	subs   map[Type][]subscription
	outbox OutboxStore

	eventChan chan Event
	quitChan  chan struct{}
	wg        sync.WaitGroup
	ctx       context.Context
	stopOnce  sync.Once
}

func NewDispatcher(ctx context.Context, outbox OutboxStore, buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Dispatcher{
		subs:      make(map[Type][]subscription),
		outbox:    outbox,
		eventChan: make(chan Event, buffer),
		quitChan:  make(chan struct{}),
		ctx:       ctx,
	}
}

func (d *Dispatcher) Subscribe(t Type, name string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs[t] = append(d.subs[t], subscription{name: name, handler: h})
}

func (d *Dispatcher) Start(workers int) {
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	log.Info().Int("workers", workers).Msg("event dispatcher started")
}

// Emit records the event in the outbox and queues it for subscribers.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	if d.outbox != nil {
		if err := d.outbox.Append(ctx, ev); err != nil {
			log.Error().Err(domainErr.SideEffect("outbox_append", err)).Str("event_id", ev.ID).Str("type", string(ev.Type)).Msg("event not recorded in outbox")
		}
	}
	select {
	case d.eventChan <- ev:
	default:
		log.Warn().Str("event_id", ev.ID).Str("type", string(ev.Type)).Msg("dispatcher queue full, dropping in-process delivery")
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case ev := <-d.eventChan:
			d.deliver(ev)
		case <-d.quitChan:
			// drain what is already buffered before exiting
			for {
				select {
				case ev := <-d.eventChan:
					d.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(ev Event) {
	d.mu.RLock()
	subs := d.subs[ev.Type]
	d.mu.RUnlock()
	for _, s := range subs {
		if err := s.handler(d.ctx, ev); err != nil {
			log.Warn().
				Err(domainErr.SideEffect(s.name, err)).
				Str("event_id", ev.ID).
				Str("type", string(ev.Type)).
				Str("merchant_id", ev.MerchantID).
				Msg("subscriber failed")
		}
	}
}

// Stop drains buffered events and waits for workers.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.quitChan)
		d.wg.Wait()
		log.Info().Msg("event dispatcher stopped")
	})
}
