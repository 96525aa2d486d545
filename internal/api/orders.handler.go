package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Tanmoy095/logisynapse-fulfillment/internal/fulfillment"
)

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	merchantID := MerchantFrom(r.Context())
	var req createOrderRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if len(req.Boxes) > 1 {
		res, err := h.Orders.CreateMultiPackage(r.Context(), fulfillment.MultiPackageCommand{
			Base:  req.command(merchantID),
			Boxes: req.Boxes,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		status := http.StatusCreated
		if len(res.FailedOrders) > 0 {
			status = http.StatusMultiStatus
		}
		writeJSON(w, status, res)
		return
	}

	res, err := h.Orders.CreateOrder(r.Context(), req.command(merchantID))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.GetOrder(r.Context(), MerchantFrom(r.Context()), chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) generateAWB(w http.ResponseWriter, r *http.Request) {
	merchantID := MerchantFrom(r.Context())
	res, err := h.Orders.GenerateAWB(r.Context(), merchantID, chi.URLParam(r, "orderID"), "merchant:"+merchantID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	merchantID := MerchantFrom(r.Context())
	var req cancelRequest
	if r.ContentLength > 0 {
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}
	res, err := h.Orders.Cancel(r.Context(), fulfillment.CancelCommand{
		MerchantID: merchantID,
		OrderID:    chi.URLParam(r, "orderID"),
		Reason:     req.Reason,
		Actor:      "merchant:" + merchantID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := cancelResponse{CancelResult: res, Message: "order cancelled"}
	status := http.StatusOK
	switch {
	case res.AlreadyCancelled:
		out.Message = "order was already cancelled"
	case res.Denied:
		out.Message = "courier refused the cancellation"
		status = http.StatusConflict
	case res.Pending:
		out.Message = "cancellation requested, awaiting courier confirmation"
		status = http.StatusAccepted
	}
	writeJSON(w, status, out)
}

func (h *Handler) bulkAWB(w http.ResponseWriter, r *http.Request) {
	merchantID := MerchantFrom(r.Context())
	var req bulkRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.Orders.BulkGenerateAWB(r.Context(), fulfillment.BulkCommand{
		MerchantID: merchantID,
		OrderIDs:   req.OrderIDs,
		Actor:      "merchant:" + merchantID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) bulkCancel(w http.ResponseWriter, r *http.Request) {
	merchantID := MerchantFrom(r.Context())
	var req bulkRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.Orders.BulkCancel(r.Context(), fulfillment.BulkCommand{
		MerchantID: merchantID,
		OrderIDs:   req.OrderIDs,
		Reason:     req.Reason,
		Actor:      "merchant:" + merchantID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) requestPickup(w http.ResponseWriter, r *http.Request) {
	merchantID := MerchantFrom(r.Context())
	var req pickupRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.Orders.RequestPickup(r.Context(), fulfillment.PickupCommand{
		BulkCommand: fulfillment.BulkCommand{
			MerchantID: merchantID,
			OrderIDs:   req.OrderIDs,
			Actor:      "merchant:" + merchantID,
		},
		Date: req.Date,
		Time: req.Time,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) syncTracking(w http.ResponseWriter, r *http.Request) {
	res, err := h.Orders.SyncTracking(r.Context(), MerchantFrom(r.Context()), chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) getLabel(w http.ResponseWriter, r *http.Request) {
	label, err := h.Orders.GetLabel(r.Context(), MerchantFrom(r.Context()), chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, label)
}
