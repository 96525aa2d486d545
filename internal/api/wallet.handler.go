package api

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	domainErr "github.com/Tanmoy095/logisynapse-fulfillment/internal/domain/errors"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/notify"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/payment"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/wallet"
)

const maxWebhookBody = 1 << 16

func (h *Handler) walletSummary(w http.ResponseWriter, r *http.Request) {
	s, err := h.Wallet.Summary(r.Context(), MerchantFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, domainErr.Validation(key, "must be a non-negative integer")
	}
	return n, nil
}

func (h *Handler) walletTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if limit > 200 {
		limit = 200
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	txns, err := h.Wallet.Transactions(r.Context(), MerchantFrom(r.Context()), wallet.Filter{
		Category: wallet.Category(q.Get("category")),
		Status:   wallet.Status(q.Get("status")),
		OrderID:  q.Get("order_id"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if txns == nil {
		txns = []wallet.Transaction{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txns,
		"limit":        limit,
		"offset":       offset,
	})
}

func (h *Handler) initiateTopUp(w http.ResponseWriter, r *http.Request) {
	var req topUpRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.TopUps.InitiateTopUp(r.Context(), payment.Customer{
		MerchantID: MerchantFrom(r.Context()),
		Name:       req.Name,
		Email:      req.Email,
		Phone:      req.Phone,
	}, req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) confirmTopUp(w http.ResponseWriter, r *http.Request) {
	txn, err := h.TopUps.ConfirmTopUp(r.Context(), MerchantFrom(r.Context()), chi.URLParam(r, "gatewayOrderID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txn)
}

// paymentWebhook verifies the provider signature and hands the event to
// the top-up service, which re-checks status with the provider itself.
func (h *Handler) paymentWebhook(p payment.WebhookProcessor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			writeFailure(w, http.StatusBadRequest, "bad_request", "could not read body", nil)
			return
		}
		headers := make(map[string]string, len(r.Header))
		for k := range r.Header {
			headers[k] = r.Header.Get(k)
		}
		ev, err := p.VerifyAndParse(body, headers)
		if err != nil {
			log.Warn().Err(err).Str("provider", p.Provider()).Msg("webhook rejected")
			writeFailure(w, http.StatusBadRequest, "invalid_webhook", "signature verification failed", nil)
			return
		}
		if ev != nil && h.TopUps != nil {
			if err := h.TopUps.HandleWebhook(r.Context(), ev); err != nil {
				// the provider will redeliver
				log.Error().Err(err).Str("gateway_order_id", ev.GatewayOrderID).Msg("webhook handling failed")
				writeFailure(w, http.StatusInternalServerError, "internal_error", "try again", nil)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
	}
}

func (h *Handler) serveSession(w http.ResponseWriter, r *http.Request) {
	merchantID := MerchantFrom(r.Context())
	h.Sessions.Serve(w, r, merchantID, func(c *notify.Connection) {
		bal, err := h.Wallet.Balance(r.Context(), merchantID)
		if err != nil {
			log.Warn().Err(err).Str("merchant_id", merchantID).Msg("balance snapshot failed")
			return
		}
		msg, err := notify.Snapshot(merchantID, bal, time.Now().UTC())
		if err != nil {
			return
		}
		if err := c.Write(msg); err != nil {
			log.Debug().Err(err).Str("merchant_id", merchantID).Msg("snapshot write failed")
		}
	})
}
