package payment

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Tanmoy095/logisynapse-fulfillment/internal/wallet"
)

type PendingLister interface {
	PendingTopUps(ctx context.Context, olderThan time.Duration, limit int) ([]wallet.Transaction, error)
}

// Reconciler re-checks top-ups stuck in pending, for example when the
// merchant never came back through the redirect and the webhook was lost.
type Reconciler struct {
	service     *TopUpService
	pending     PendingLister
	batchSize   int
	workerCount int
	olderThan   time.Duration
}

func NewReconciler(service *TopUpService, pending PendingLister) *Reconciler {
	return &Reconciler{
		service:     service,
		pending:     pending,
		batchSize:   50,
		workerCount: 5,
		olderThan:   5 * time.Minute,
	}
}

// RunOnce processes one batch with a small worker pool and returns how many
// top-ups left the pending state.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	txns, err := r.pending.PendingTopUps(ctx, r.olderThan, r.batchSize)
	if err != nil {
		return 0, err
	}
	if len(txns) == 0 {
		log.Debug().Msg("no pending top-ups to reconcile")
		return 0, nil
	}
	log.Info().Int("count", len(txns)).Msg("reconciling pending top-ups")

	jobs := make(chan wallet.Transaction, len(txns))
	var (
		wg      sync.WaitGroup
		settled atomic.Int64
	)
	for w := 0; w < r.workerCount; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for txn := range jobs {
				if ctx.Err() != nil {
					return
				}
				res, err := r.service.ConfirmTopUp(ctx, "", txn.GatewayOrderID)
				if err != nil {
					log.Warn().Err(err).Int("worker", id).Str("txn_id", txn.ID).Msg("top-up reconciliation failed")
					continue
				}
				if res.Status != wallet.StatusPending {
					settled.Add(1)
				}
			}
		}(w)
	}
	for _, txn := range txns {
		jobs <- txn
	}
	close(jobs)
	wg.Wait()
	return int(settled.Load()), ctx.Err()
}
