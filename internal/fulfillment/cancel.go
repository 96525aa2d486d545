package fulfillment

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/Tanmoy095/logisynapse-fulfillment/internal/events"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/order"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/wallet"
)

type CancelResult struct {
	Order  *order.Order        `json:"order"`
	Refund *wallet.Transaction `json:"refund,omitempty"`
	// Pending means the courier neither confirmed nor timed out; the
	// order keeps its status and the cancellation can be retried.
	Pending bool `json:"pending,omitempty"`
	// Denied is an explicit courier rejection. Retrying will not help.
	Denied           bool   `json:"denied,omitempty"`
	AlreadyCancelled bool   `json:"already_cancelled,omitempty"`
	RefundError      string `json:"refund_error,omitempty"`
}

// Cancel runs the cancellation workflow. Only an explicit courier
// confirmation closes an order that has a waybill.
func (o *Orchestrator) Cancel(ctx context.Context, cmd CancelCommand) (*CancelResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	actor := actorOr(cmd.Actor)
	unlock := o.merchants.lock(cmd.MerchantID)
	defer unlock()
	ord, err := o.orders.Get(ctx, cmd.MerchantID, cmd.OrderID)
	if err != nil {
		return nil, err
	}

	if ord.Status == order.StatusCancelled {
		res := &CancelResult{Order: ord, AlreadyCancelled: true}
		o.refund(ctx, ord, res)
		return res, nil
	}
	if !ord.Cancellable() {
		return nil, fmt.Errorf("%w (status %s)", order.ErrNotCancellable, ord.Status)
	}
	prev := ord.Status

	// No waybill: nothing exists at the courier, local metadata only.
	if ord.Waybill == "" {
		if err := ord.Cancel(cmd.Reason, "cancelled before dispatch", o.now(), actor); err != nil {
			return nil, err
		}
		return o.finishCancel(ctx, ord, prev)
	}

	cres, err := o.courier.CancelShipment(ctx, ord.Waybill)
	if err != nil {
		cerr := courierErr("cancel shipment", err)
		// status stays as it was; the pending marker lets the sweep retry it
		if merr := ord.MarkCancellationPending(cmd.Reason, "courier did not answer", o.now()); merr == nil {
			if uerr := o.orders.Update(ctx, ord, prev); uerr != nil {
				log.Warn().Err(uerr).Str("order_id", ord.ID).Msg("could not record pending cancellation")
			}
		}
		log.Warn().Err(err).Str("order_id", ord.ID).Str("waybill", ord.Waybill).Msg("courier cancellation failed")
		return nil, cerr
	}

	if !cres.Confirmed() {
		remark := cres.Remark
		if cres.Error != "" {
			remark = cres.Error
		}
		if err := ord.MarkCancellationPending(cmd.Reason, remark, o.now()); err != nil {
			return nil, err
		}
		if err := o.orders.Update(ctx, ord, prev); err != nil {
			return nil, err
		}
		log.Warn().Str("order_id", ord.ID).Str("remark", remark).Bool("denied", cres.Denied()).Msg("courier cancellation not confirmed, left pending")
		return &CancelResult{Order: ord, Pending: true, Denied: cres.Denied()}, nil
	}

	if err := ord.Cancel(cmd.Reason, cres.Remark, o.now(), actor); err != nil {
		return nil, err
	}
	return o.finishCancel(ctx, ord, prev)
}

func (o *Orchestrator) finishCancel(ctx context.Context, ord *order.Order, prev order.Status) (*CancelResult, error) {
	if err := o.orders.Update(ctx, ord, prev); err != nil {
		if errors.Is(err, order.ErrStaleOrder) {
			log.Warn().Str("order_id", ord.ID).Msg("order changed during cancellation")
		}
		return nil, err
	}
	res := &CancelResult{Order: ord}
	o.refund(ctx, ord, res)
	o.emit(ctx, events.OrderCancelled, ord)
	log.Info().Str("order_id", ord.ID).Str("status_type", string(ord.Cancellation.StatusType)).Msg("order cancelled")
	return res, nil
}

// refund records the outcome of ensureRefund on res. A failed refund does
// not undo the cancellation; cancelling again retries it.
func (o *Orchestrator) refund(ctx context.Context, ord *order.Order, res *CancelResult) {
	txn, err := o.ensureRefund(ctx, ord, "refund for cancelled order "+ord.ID)
	if err != nil {
		log.Error().Err(err).Str("order_id", ord.ID).Msg("cancellation refund failed")
		res.RefundError = err.Error()
		return
	}
	res.Refund = txn
}

// ensureRefund credits back the shipping debit of an order exactly once.
// Orders that were never charged get nothing.
func (o *Orchestrator) ensureRefund(ctx context.Context, ord *order.Order, description string) (*wallet.Transaction, error) {
	debit, err := o.ledger.FindOrderTransaction(ctx, ord.MerchantID, ord.ID, wallet.CategoryShipping)
	if errors.Is(err, wallet.ErrTransactionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("look up shipping debit: %w", err)
	}
	if _, err := o.ledger.FindOrderTransaction(ctx, ord.MerchantID, ord.ID, wallet.CategoryRefund); err == nil {
		return nil, nil
	} else if !errors.Is(err, wallet.ErrTransactionNotFound) {
		return nil, fmt.Errorf("look up refund: %w", err)
	}
	txn, err := o.ledger.Credit(ctx, wallet.EntryRequest{
		MerchantID:  ord.MerchantID,
		Amount:      debit.Amount,
		OrderID:     ord.ID,
		Category:    wallet.CategoryRefund,
		Description: description,
	})
	if errors.Is(err, wallet.ErrDuplicateEntry) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("credit refund: %w", err)
	}
	return txn, nil
}

// AbandonCancellation clears a pending cancellation the courier refused.
// The order keeps moving through its lifecycle.
func (o *Orchestrator) AbandonCancellation(ctx context.Context, merchantID, orderID, remark string) error {
	ord, err := o.orders.Get(ctx, merchantID, orderID)
	if err != nil {
		return err
	}
	if ord.Cancellation.Status != order.CancellationPending {
		return nil
	}
	ord.ClearCancellationPending(remark, o.now())
	if err := o.orders.Update(ctx, ord, ord.Status); err != nil {
		return err
	}
	log.Warn().Str("order_id", ord.ID).Str("remark", remark).Msg("pending cancellation abandoned")
	return nil
}
