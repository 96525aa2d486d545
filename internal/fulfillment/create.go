package fulfillment

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	domainErr "github.com/Tanmoy095/logisynapse-fulfillment/internal/domain/errors"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/events"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/order"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/wallet"
)

type CreateResult struct {
	Order       *order.Order        `json:"order"`
	Transaction *wallet.Transaction `json:"transaction,omitempty"`
}

// CreateOrder runs the single-package creation workflow. The order is only
// persisted once the shipping charge is debited and, with GenerateAWB, the
// courier has returned a usable waybill. Any other outcome leaves nothing
// behind.
func (o *Orchestrator) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (*CreateResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	actor := actorOr(cmd.Actor)

	// 1. Build the order in memory
	ord, err := o.buildOrder(ctx, cmd)
	if err != nil {
		return nil, err
	}

	unlock := o.merchants.lock(ord.MerchantID)
	defer unlock()

	// 2. Refuse early when the id is taken or the wallet cannot pay
	if _, err := o.orders.Get(ctx, ord.MerchantID, ord.ID); err == nil {
		return nil, order.ErrDuplicateOrder
	} else if !errors.Is(err, order.ErrOrderNotFound) {
		return nil, fmt.Errorf("check order %s: %w", ord.ID, err)
	}
	prior, err := o.priorCharge(ctx, ord.MerchantID, ord.ID)
	if err != nil {
		return nil, err
	}
	if prior == nil {
		if err := o.ensureFunds(ctx, ord.MerchantID, ord.ShippingCharge); err != nil {
			return nil, err
		}
	}

	// 3. Courier confirmation
	if cmd.GenerateAWB {
		if err := o.dispatch(ctx, ord, actor); err != nil {
			return nil, err
		}
	}

	// 4. Debit
	txn, err := o.chargeShipping(ctx, ord, prior)
	if err != nil {
		if ord.Waybill != "" {
			o.abandonShipment(ctx, ord, "shipping debit failed")
		}
		return nil, err
	}

	// 5. Persist
	if err := o.orders.Create(ctx, ord); err != nil {
		if ord.Waybill != "" {
			o.abandonShipment(ctx, ord, "order could not be saved")
		}
		if txn != nil {
			if _, rerr := o.ensureRefund(ctx, ord, "refund for unsaved order "+ord.ID); rerr != nil {
				log.Error().Err(rerr).Str("order_id", ord.ID).Str("txn_id", txn.ID).Msg("debit of unsaved order needs manual refund")
			}
		}
		return nil, fmt.Errorf("persist order %s: %w", ord.ID, err)
	}

	// 6. Side effects hang off events
	o.emit(ctx, events.OrderCreated, ord)
	if ord.Waybill != "" {
		o.emit(ctx, events.OrderDispatched, ord)
	}
	log.Info().Str("order_id", ord.ID).Str("merchant_id", ord.MerchantID).Str("status", string(ord.Status)).Msg("order created")
	return &CreateResult{Order: ord, Transaction: txn}, nil
}

type MultiOutcome string

const (
	OutcomeAllSuccess     MultiOutcome = "all_success"
	OutcomePartialSuccess MultiOutcome = "partial_success"
	OutcomeAllFailed      MultiOutcome = "all_failed"
)

type BoxResult struct {
	Box     int    `json:"box"`
	OrderID string `json:"order_id"`
	Waybill string `json:"waybill,omitempty"`
	Status  string `json:"status,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

type MultiResult struct {
	ParentID     string       `json:"parent_id"`
	Outcome      MultiOutcome `json:"outcome"`
	Orders       []BoxResult  `json:"orders"`
	FailedOrders []BoxResult  `json:"failed_orders"`
}

// ChildOrderID derives box k's order id (1-based) from the parent id.
func ChildOrderID(parentID string, k int) string {
	return fmt.Sprintf("%s-%d", parentID, k)
}

// CreateMultiPackage fans a multi-box request out into one order per box.
// Partial failure is a normal outcome and is reported, not returned as an error.
func (o *Orchestrator) CreateMultiPackage(ctx context.Context, cmd MultiPackageCommand) (*MultiResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	parentID := cmd.Base.OrderID
	if parentID == "" {
		parentID = o.newID()
	}

	// Boxes go one at a time and in order, so when the wallet runs short the
	// later boxes are the ones refused, before any courier call.
	results := make([]BoxResult, 0, len(cmd.Boxes))
	for i, box := range cmd.Boxes {
		k := i + 1
		child := cmd.Base
		child.OrderID = ChildOrderID(parentID, k)
		child.ParentID = parentID
		child.Package = box
		child.Package.BoxCount = 1
		if cmd.Base.ReferenceID != "" {
			child.ReferenceID = ChildOrderID(cmd.Base.ReferenceID, k)
		}
		br := BoxResult{Box: k, OrderID: child.OrderID}
		// siblings never abort each other
		res, err := o.CreateOrder(ctx, child)
		if err != nil {
			br.Error = err.Error()
			br.Code = ErrorCode(err)
		} else {
			br.Waybill = res.Order.Waybill
			br.Status = string(res.Order.Status)
		}
		results = append(results, br)
	}

	out := &MultiResult{ParentID: parentID, Orders: []BoxResult{}, FailedOrders: []BoxResult{}}
	for _, r := range results {
		if r.Error != "" {
			out.FailedOrders = append(out.FailedOrders, r)
		} else {
			out.Orders = append(out.Orders, r)
		}
	}
	switch {
	case len(out.FailedOrders) == 0:
		out.Outcome = OutcomeAllSuccess
	case len(out.Orders) == 0:
		out.Outcome = OutcomeAllFailed
	default:
		out.Outcome = OutcomePartialSuccess
	}
	log.Info().Str("parent_id", parentID).Str("outcome", string(out.Outcome)).
		Int("succeeded", len(out.Orders)).Int("failed", len(out.FailedOrders)).Msg("multi-package order processed")
	return out, nil
}

// GenerateAWB dispatches a previously saved order. It never re-generates.
func (o *Orchestrator) GenerateAWB(ctx context.Context, merchantID, orderID, actor string) (*CreateResult, error) {
	actor = actorOr(actor)
	unlock := o.merchants.lock(merchantID)
	defer unlock()

	ord, err := o.orders.Get(ctx, merchantID, orderID)
	if err != nil {
		return nil, err
	}
	if ord.Waybill != "" {
		return nil, order.ErrWaybillAlreadySet
	}
	if ord.Status != order.StatusNew {
		return nil, fmt.Errorf("%w: AWB generation needs status new (current %s)", domainErr.ErrInvalidTransition, ord.Status)
	}

	// orders saved without AWB are normally already paid for
	prior, err := o.priorCharge(ctx, merchantID, orderID)
	if err != nil {
		return nil, err
	}
	if prior == nil {
		if err := o.ensureFunds(ctx, merchantID, ord.ShippingCharge); err != nil {
			return nil, err
		}
	}

	if err := o.dispatch(ctx, ord, actor); err != nil {
		return nil, err
	}
	txn, err := o.chargeShipping(ctx, ord, prior)
	if err != nil {
		o.abandonShipment(ctx, ord, "shipping debit failed")
		return nil, err
	}
	if txn != nil && prior == nil {
		// the debit stays with the order even if the waybill cannot be saved
		if err := o.orders.LinkPayment(ctx, ord.MerchantID, ord.ID, txn.ID, order.BillingPaid); err != nil {
			log.Warn().Err(err).Str("order_id", ord.ID).Str("txn_id", txn.ID).Msg("could not link payment on order")
		}
	}
	if err := o.orders.Update(ctx, ord, order.StatusNew); err != nil {
		o.abandonShipment(ctx, ord, "waybill could not be saved")
		return nil, fmt.Errorf("save waybill for %s: %w", ord.ID, err)
	}

	o.emit(ctx, events.OrderDispatched, ord)
	return &CreateResult{Order: ord, Transaction: txn}, nil
}

// ErrorCode is a stable machine-readable code for an orchestrator error.
func ErrorCode(err error) string {
	var (
		ve  *domainErr.ValidationError
		se  *domainErr.ServiceabilityError
		ib  *domainErr.InsufficientBalanceError
		cpe *domainErr.CourierProviderError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return "validation_error"
	case errors.As(err, &se):
		return "not_serviceable"
	case errors.As(err, &ib):
		return "insufficient_balance"
	case errors.As(err, &cpe):
		return "courier_error"
	case errors.Is(err, order.ErrDuplicateOrder):
		return "duplicate_order"
	case errors.Is(err, domainErr.ErrNotFound):
		return "not_found"
	case errors.Is(err, domainErr.ErrConflict):
		return "conflict"
	case errors.Is(err, domainErr.ErrInvalidTransition):
		return "invalid_transition"
	default:
		return "internal_error"
	}
}
