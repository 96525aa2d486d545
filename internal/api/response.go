package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	domainErr "github.com/Tanmoy095/logisynapse-fulfillment/internal/domain/errors"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/fulfillment"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/order"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/payment"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/wallet"
)

type envelope struct {
	Status  string      `json:"status"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
	Details interface{} `json:"details,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Status: "success", Data: data})
}

func writeFailure(w http.ResponseWriter, status int, code, msg string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Status: "error", Code: code, Message: msg, Details: details})
}

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve  *domainErr.ValidationError
		se  *domainErr.ServiceabilityError
		ib  *domainErr.InsufficientBalanceError
		cpe *domainErr.CourierProviderError
	)
	code := fulfillment.ErrorCode(err)
	switch {
	case errors.As(err, &ve):
		writeFailure(w, http.StatusBadRequest, code, err.Error(), map[string]string{"field": ve.Field, "reason": ve.Reason})
	case errors.As(err, &se):
		writeFailure(w, http.StatusUnprocessableEntity, code, err.Error(), map[string]string{"pincode": se.Pincode, "role": se.Role})
	case errors.As(err, &ib):
		writeFailure(w, http.StatusPaymentRequired, code, err.Error(), map[string]string{
			"required":  ib.Required.StringFixed(2),
			"available": ib.Available.StringFixed(2),
			"shortfall": ib.Shortfall().StringFixed(2),
		})
	case errors.As(err, &cpe):
		status := http.StatusBadGateway
		if cpe.Retryable {
			status = http.StatusServiceUnavailable
		}
		writeFailure(w, status, code, err.Error(), map[string]interface{}{"op": cpe.Op, "retryable": cpe.Retryable})
	case errors.Is(err, domainErr.ErrUnauthorized):
		writeFailure(w, http.StatusUnauthorized, "unauthorized", err.Error(), nil)
	case errors.Is(err, domainErr.ErrNotFound),
		errors.Is(err, wallet.ErrTransactionNotFound),
		errors.Is(err, payment.ErrTopUpNotFound),
		errors.Is(err, fulfillment.ErrWarehouseNotFound):
		writeFailure(w, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, order.ErrDuplicateOrder):
		writeFailure(w, http.StatusConflict, code, err.Error(), nil)
	case errors.Is(err, domainErr.ErrInvalidTransition), errors.Is(err, domainErr.ErrConflict),
		errors.Is(err, order.ErrNotCancellable), errors.Is(err, order.ErrWaybillAlreadySet),
		errors.Is(err, order.ErrWaybillRequired):
		writeFailure(w, http.StatusConflict, "invalid_state", err.Error(), nil)
	case errors.Is(err, domainErr.ErrInvalidInput), errors.Is(err, payment.ErrInvalidAmount):
		writeFailure(w, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.Is(err, payment.ErrProviderDown):
		writeFailure(w, http.StatusServiceUnavailable, "payment_provider_unavailable", err.Error(), nil)
	case errors.Is(err, payment.ErrPaymentRejected):
		writeFailure(w, http.StatusBadGateway, "payment_rejected", err.Error(), nil)
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeFailure(w, http.StatusInternalServerError, "internal_error", "internal server error", nil)
	}
}

func decode(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domainErr.Validation("body", "is not valid JSON: "+err.Error())
	}
	return nil
}
