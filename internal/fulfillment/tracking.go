package fulfillment

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/Tanmoy095/logisynapse-fulfillment/internal/courier"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/events"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/order"
)

const trackingActor = "courier-sync"

// MapProviderStatus translates the courier's free-text status into an order
// status. ok is false for statuses that carry no lifecycle meaning.
func MapProviderStatus(status, statusType string) (order.Status, bool) {
	s := strings.ToLower(strings.TrimSpace(status))
	t := strings.ToUpper(strings.TrimSpace(statusType))
	switch {
	case s == "lost" || t == "LT":
		return order.StatusLost, true
	case t == "DL" && (s == "rto" || strings.Contains(s, "returned")):
		return order.StatusRTO, true
	case s == "delivered" || t == "DL":
		return order.StatusDelivered, true
	case t == "RT":
		return order.StatusNDR, true
	case s == "dispatched" || s == "out for delivery":
		return order.StatusOutForDelivery, true
	case s == "undelivered":
		return order.StatusNDR, true
	case s == "manifested":
		return order.StatusPickupsManifests, true
	case t == "PU" || s == "in transit" || s == "pending":
		return order.StatusInTransit, true
	}
	return "", false
}

type TrackingResult struct {
	Order   *order.Order        `json:"order"`
	Track   courier.TrackResult `json:"tracking"`
	Changed bool                `json:"changed"`
}

// SyncTracking pulls the courier's view of a shipment and walks the order
// forward to match it. Moves the table does not allow are logged and skipped.
func (o *Orchestrator) SyncTracking(ctx context.Context, merchantID, orderID string) (*TrackingResult, error) {
	ord, err := o.orders.Get(ctx, merchantID, orderID)
	if err != nil {
		return nil, err
	}
	if ord.Waybill == "" {
		return nil, order.ErrWaybillRequired
	}
	tr, err := o.courier.TrackShipment(ctx, ord.Waybill, ord.ReferenceID)
	if err != nil {
		return nil, courierErr("track shipment", err)
	}
	res := &TrackingResult{Order: ord, Track: tr}
	if ord.Status.IsTerminal() {
		return res, nil
	}

	prev := ord.Status
	target, ok := MapProviderStatus(tr.Status, tr.StatusType)
	if ok && target != ord.Status {
		path, found := order.Path(ord.Status, target)
		if !found {
			log.Warn().Str("order_id", ord.ID).Str("from", string(ord.Status)).Str("to", string(target)).
				Str("provider_status", tr.Status).Msg("courier status has no legal path, ignored")
		}
		for _, step := range path {
			if err := ord.Transition(step, o.now(), "courier: "+tr.Status, trackingActor); err != nil {
				return nil, err
			}
		}
	}
	statusChanged := ord.Status != prev
	if !statusChanged && ord.ProviderStatus == tr.Status {
		return res, nil
	}
	ord.ProviderStatus = tr.Status
	if !statusChanged {
		ord.UpdatedAt = o.now()
	}
	if err := o.orders.Update(ctx, ord, prev); err != nil {
		return nil, err
	}
	res.Changed = statusChanged
	if ord.Status == order.StatusRTO && prev != order.StatusRTO {
		o.emit(ctx, events.OrderReturned, ord)
	}
	log.Info().Str("order_id", ord.ID).Str("status", string(ord.Status)).Str("provider_status", tr.Status).Msg("tracking synced")
	return res, nil
}

// GetLabel renders the shipping label of a dispatched order.
func (o *Orchestrator) GetLabel(ctx context.Context, merchantID, orderID string) (courier.Label, error) {
	ord, err := o.orders.Get(ctx, merchantID, orderID)
	if err != nil {
		return courier.Label{}, err
	}
	if ord.Waybill == "" {
		return courier.Label{}, order.ErrWaybillRequired
	}
	label, err := o.courier.RenderLabel(ctx, ord.Waybill)
	if err != nil {
		return courier.Label{}, courierErr("render label", err)
	}
	return label, nil
}
