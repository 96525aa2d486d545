package workflow

import (
	"errors"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	TaskQueue = "FULFILLMENT_TASK_QUEUE"

	ActivityCancelOrder         = "CancelOrder"
	ActivityAbandonCancellation = "AbandonCancellation"

	// error types the activity tags its failures with
	ErrTypeDenied         = "CancellationDenied"
	ErrTypeNotCancellable = "OrderNotCancellable"
	ErrTypePending        = "CancellationPending"
)

type CancelRequest struct {
	MerchantID string `json:"merchant_id"`
	OrderID    string `json:"order_id"`
	Reason     string `json:"reason"`
}

type CancelOutcome struct {
	OrderID   string `json:"order_id"`
	Status    string `json:"status"`
	Cancelled bool   `json:"cancelled"`
	Refunded  bool   `json:"refunded"`
	Remark    string `json:"remark,omitempty"`
}

// WorkflowID keeps one retry loop per order.
func WorkflowID(orderID string) string {
	return "cancel-" + orderID
}

// RetryCancellationWorkflow keeps asking the courier to cancel until it
// confirms. A definitive refusal ends the loop and clears the pending marker.
func RetryCancellationWorkflow(ctx workflow.Context, req CancelRequest) (CancelOutcome, error) {
	retrypolicy := &temporal.RetryPolicy{
		InitialInterval:        30 * time.Second,
		BackoffCoefficient:     2.0,
		MaximumInterval:        30 * time.Minute,
		MaximumAttempts:        20,
		NonRetryableErrorTypes: []string{ErrTypeDenied, ErrTypeNotCancellable},
	}
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         retrypolicy,
	})
	logger := workflow.GetLogger(ctx)

	var out CancelOutcome
	err := workflow.ExecuteActivity(ctx, ActivityCancelOrder, req).Get(ctx, &out)
	if err == nil {
		logger.Info("cancellation confirmed", "order_id", req.OrderID)
		return out, nil
	}

	var appErr *temporal.ApplicationError
	if !errors.As(err, &appErr) || appErr.Type() != ErrTypeDenied {
		return CancelOutcome{}, err
	}

	logger.Warn("courier denied cancellation", "order_id", req.OrderID, "error", err)
	short := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 5},
	})
	if aerr := workflow.ExecuteActivity(short, ActivityAbandonCancellation, req, appErr.Error()).Get(ctx, nil); aerr != nil {
		return CancelOutcome{}, aerr
	}
	return CancelOutcome{OrderID: req.OrderID, Remark: appErr.Error()}, nil
}
