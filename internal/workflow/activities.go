package workflow

import (
	"context"
	"errors"

	"go.temporal.io/sdk/temporal"

	domainErr "github.com/Tanmoy095/logisynapse-fulfillment/internal/domain/errors"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/fulfillment"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/order"
)

// Canceller is the orchestrator surface the activities drive.
type Canceller interface {
	Cancel(ctx context.Context, cmd fulfillment.CancelCommand) (*fulfillment.CancelResult, error)
	AbandonCancellation(ctx context.Context, merchantID, orderID, remark string) error
}

type Activities struct {
	Orders Canceller
}

// CancelOrder makes one cancellation attempt. Anything short of a courier
// confirmation comes back as an error so the retry policy decides what next.
func (a *Activities) CancelOrder(ctx context.Context, req CancelRequest) (CancelOutcome, error) {
	res, err := a.Orders.Cancel(ctx, fulfillment.CancelCommand{
		MerchantID: req.MerchantID,
		OrderID:    req.OrderID,
		Reason:     req.Reason,
		Actor:      "cancellation-retry",
	})
	if err != nil {
		if errors.Is(err, order.ErrNotCancellable) || errors.Is(err, domainErr.ErrNotFound) {
			return CancelOutcome{}, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeNotCancellable, err)
		}
		return CancelOutcome{}, err
	}
	if res.Denied {
		return CancelOutcome{}, temporal.NewNonRetryableApplicationError("courier denied cancellation of "+req.OrderID, ErrTypeDenied, nil)
	}
	if res.Pending {
		return CancelOutcome{}, temporal.NewApplicationError("cancellation of "+req.OrderID+" not confirmed yet", ErrTypePending)
	}
	return CancelOutcome{
		OrderID:   res.Order.ID,
		Status:    string(res.Order.Status),
		Cancelled: res.Order.Status == order.StatusCancelled,
		Refunded:  res.Refund != nil,
	}, nil
}

func (a *Activities) AbandonCancellation(ctx context.Context, req CancelRequest, remark string) error {
	return a.Orders.AbandonCancellation(ctx, req.MerchantID, req.OrderID, remark)
}
