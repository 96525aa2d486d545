package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Tanmoy095/logisynapse-fulfillment/internal/billing"
	domainErr "github.com/Tanmoy095/logisynapse-fulfillment/internal/domain/errors"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/fulfillment"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/order"
)

func (h *Handler) currentCycle(w http.ResponseWriter, r *http.Request) {
	c, err := h.Billing.CurrentCycle(r.Context(), MerchantFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// cycle serves /billing/cycles/2026-03.
func (h *Handler) cycle(w http.ResponseWriter, r *http.Request) {
	t, err := time.Parse("2006-01", chi.URLParam(r, "period"))
	if err != nil {
		writeError(w, r, domainErr.Validation("period", "must look like YYYY-MM"))
		return
	}
	c, err := h.Billing.Cycle(r.Context(), MerchantFrom(r.Context()), billing.PeriodOf(t))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// putWarehouse registers or replaces a pickup location under the name
// the courier knows it by.
func (h *Handler) putWarehouse(w http.ResponseWriter, r *http.Request) {
	var addr order.Address
	if err := decode(r, &addr); err != nil {
		writeError(w, r, err)
		return
	}
	if err := addr.Validate("address"); err != nil {
		writeError(w, r, err)
		return
	}
	wh := fulfillment.Warehouse{Name: chi.URLParam(r, "name"), Address: addr}
	if err := h.Warehouses.PutWarehouse(r.Context(), MerchantFrom(r.Context()), wh); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wh)
}
