package fulfillment

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/Tanmoy095/logisynapse-fulfillment/internal/courier"
	domainErr "github.com/Tanmoy095/logisynapse-fulfillment/internal/domain/errors"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/order"
)

type ItemStatus string

const (
	ItemSuccess ItemStatus = "success"
	ItemFailed  ItemStatus = "failed"
	ItemSkipped ItemStatus = "skipped"
)

type BulkItem struct {
	OrderID string     `json:"order_id"`
	Status  ItemStatus `json:"status"`
	Waybill string     `json:"waybill,omitempty"`
	Message string     `json:"message,omitempty"`
	Code    string     `json:"code,omitempty"`
}

type BulkResult struct {
	Items   []BulkItem `json:"items"`
	Success int        `json:"success"`
	Failed  int        `json:"failed"`
	Skipped int        `json:"skipped"`
}

func (r *BulkResult) add(item BulkItem) {
	r.Items = append(r.Items, item)
	switch item.Status {
	case ItemSuccess:
		r.Success++
	case ItemFailed:
		r.Failed++
	case ItemSkipped:
		r.Skipped++
	}
}

func failedItem(id string, err error) BulkItem {
	return BulkItem{OrderID: id, Status: ItemFailed, Message: err.Error(), Code: ErrorCode(err)}
}

// BulkGenerateAWB dispatches orders one by one. Once the wallet runs dry
// every remaining order is skipped, since each would fail the same way.
func (o *Orchestrator) BulkGenerateAWB(ctx context.Context, cmd BulkCommand) (*BulkResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	out := &BulkResult{Items: make([]BulkItem, 0, len(cmd.OrderIDs))}
	exhausted := false
	for _, id := range cmd.OrderIDs {
		if exhausted {
			out.add(BulkItem{OrderID: id, Status: ItemSkipped, Message: "skipped: wallet balance exhausted", Code: "insufficient_balance"})
			continue
		}
		if err := ctx.Err(); err != nil {
			out.add(BulkItem{OrderID: id, Status: ItemSkipped, Message: err.Error()})
			continue
		}
		res, err := o.GenerateAWB(ctx, cmd.MerchantID, id, cmd.Actor)
		switch {
		case err != nil:
			out.add(failedItem(id, err))
			exhausted = domainErr.IsInsufficientBalance(err)
		default:
			out.add(BulkItem{OrderID: id, Status: ItemSuccess, Waybill: res.Order.Waybill})
		}
	}
	log.Info().Str("merchant_id", cmd.MerchantID).Int("success", out.Success).Int("failed", out.Failed).Int("skipped", out.Skipped).Msg("bulk AWB generation done")
	return out, nil
}

// BulkCancel cancels orders one by one. A pending courier answer counts as failed
// for this call since the order is not cancelled yet.
func (o *Orchestrator) BulkCancel(ctx context.Context, cmd BulkCommand) (*BulkResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	out := &BulkResult{Items: make([]BulkItem, 0, len(cmd.OrderIDs))}
	for _, id := range cmd.OrderIDs {
		if err := ctx.Err(); err != nil {
			out.add(BulkItem{OrderID: id, Status: ItemSkipped, Message: err.Error()})
			continue
		}
		res, err := o.Cancel(ctx, CancelCommand{MerchantID: cmd.MerchantID, OrderID: id, Reason: cmd.Reason, Actor: cmd.Actor})
		switch {
		case err != nil:
			out.add(failedItem(id, err))
		case res.Pending:
			out.add(BulkItem{OrderID: id, Status: ItemFailed, Waybill: res.Order.Waybill, Message: "cancellation pending courier confirmation", Code: "cancellation_pending"})
		case res.AlreadyCancelled:
			out.add(BulkItem{OrderID: id, Status: ItemSuccess, Waybill: res.Order.Waybill, Message: "already cancelled"})
		default:
			out.add(BulkItem{OrderID: id, Status: ItemSuccess, Waybill: res.Order.Waybill})
		}
	}
	return out, nil
}

// RequestPickup schedules one courier pickup per pickup location for the
// ready_to_ship orders given and moves them to pickups_manifests.
func (o *Orchestrator) RequestPickup(ctx context.Context, cmd PickupCommand) (*BulkResult, error) {
	if err := cmd.BulkCommand.Validate(); err != nil {
		return nil, err
	}
	date, at := cmd.Date, cmd.Time
	if date == "" {
		date = o.now().AddDate(0, 0, 1).Format("2006-01-02")
	}
	if at == "" {
		at = "11:00:00"
	}
	actor := actorOr(cmd.Actor)

	items := make(map[string]BulkItem, len(cmd.OrderIDs))
	groups := make(map[string][]*order.Order)
	for _, id := range cmd.OrderIDs {
		ord, err := o.orders.Get(ctx, cmd.MerchantID, id)
		switch {
		case err != nil:
			items[id] = failedItem(id, err)
		case ord.Status != order.StatusReadyToShip || ord.Waybill == "":
			items[id] = failedItem(id, fmt.Errorf("%w: pickup needs ready_to_ship (current %s)", domainErr.ErrInvalidTransition, ord.Status))
		case ord.PickupLocation == "":
			items[id] = failedItem(id, domainErr.Validation("pickup_location", "is not set; pickups can only be scheduled at a registered location"))
		default:
			groups[ord.PickupLocation] = append(groups[ord.PickupLocation], ord)
		}
	}

	locations := make([]string, 0, len(groups))
	for loc := range groups {
		locations = append(locations, loc)
	}
	sort.Strings(locations)

	for _, loc := range locations {
		orders := groups[loc]
		pr, err := o.courier.SchedulePickup(ctx, courier.PickupRequest{Location: loc, Date: date, Time: at, ExpectedCount: len(orders)})
		if err == nil && !pr.Success {
			err = &domainErr.CourierProviderError{Op: "schedule pickup", Remark: pr.Error}
		}
		if err != nil {
			err = courierErr("schedule pickup", err)
			for _, ord := range orders {
				items[ord.ID] = failedItem(ord.ID, err)
			}
			continue
		}
		log.Info().Str("location", loc).Str("pickup_id", pr.PickupID).Int("orders", len(orders)).Msg("pickup scheduled")
		for _, ord := range orders {
			if err := ord.Transition(order.StatusPickupsManifests, o.now(), "pickup "+pr.PickupID+" scheduled for "+date, actor); err != nil {
				items[ord.ID] = failedItem(ord.ID, err)
				continue
			}
			if err := o.orders.Update(ctx, ord, order.StatusReadyToShip); err != nil {
				items[ord.ID] = failedItem(ord.ID, err)
				continue
			}
			items[ord.ID] = BulkItem{OrderID: ord.ID, Status: ItemSuccess, Waybill: ord.Waybill, Message: "pickup " + pr.PickupID}
		}
	}

	out := &BulkResult{Items: make([]BulkItem, 0, len(cmd.OrderIDs))}
	for _, id := range cmd.OrderIDs {
		out.add(items[id])
	}
	return out, nil
}
