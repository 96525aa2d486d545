package workflow

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.temporal.io/sdk/client"

	"github.com/Tanmoy095/logisynapse-fulfillment/internal/order"
)

type PendingSource interface {
	PendingCancellations(ctx context.Context, limit int) ([]*order.Order, error)
}

// Starter is the part of client.Client the sweeper uses.
type Starter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

// Sweeper starts a retry workflow for every order whose cancellation is
// still unconfirmed. Starting an id that is already running is a no-op.
type Sweeper struct {
	pending   PendingSource
	starter   Starter
	taskQueue string
	limit     int
}

func NewSweeper(pending PendingSource, starter Starter, taskQueue string) *Sweeper {
	if taskQueue == "" {
		taskQueue = TaskQueue
	}
	return &Sweeper{pending: pending, starter: starter, taskQueue: taskQueue, limit: 100}
}

func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	orders, err := s.pending.PendingCancellations(ctx, s.limit)
	if err != nil {
		return 0, err
	}
	started := 0
	for _, o := range orders {
		opts := client.StartWorkflowOptions{
			ID:        WorkflowID(o.ID),
			TaskQueue: s.taskQueue,
		}
		run, err := s.starter.ExecuteWorkflow(ctx, opts, RetryCancellationWorkflow, CancelRequest{
			MerchantID: o.MerchantID,
			OrderID:    o.ID,
			Reason:     o.Cancellation.Reason,
		})
		if err != nil {
			log.Warn().Err(err).Str("order_id", o.ID).Msg("could not start cancellation retry")
			continue
		}
		started++
		log.Debug().Str("order_id", o.ID).Str("run_id", run.GetRunID()).Msg("cancellation retry running")
	}
	return started, nil
}
