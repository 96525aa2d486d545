package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/Tanmoy095/logisynapse-fulfillment/internal/billing"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/courier"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/fulfillment"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/notify"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/order"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/payment"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/wallet"
)

type Fulfillment interface {
	CreateOrder(ctx context.Context, cmd fulfillment.CreateOrderCommand) (*fulfillment.CreateResult, error)
	CreateMultiPackage(ctx context.Context, cmd fulfillment.MultiPackageCommand) (*fulfillment.MultiResult, error)
	GenerateAWB(ctx context.Context, merchantID, orderID, actor string) (*fulfillment.CreateResult, error)
	Cancel(ctx context.Context, cmd fulfillment.CancelCommand) (*fulfillment.CancelResult, error)
	BulkGenerateAWB(ctx context.Context, cmd fulfillment.BulkCommand) (*fulfillment.BulkResult, error)
	BulkCancel(ctx context.Context, cmd fulfillment.BulkCommand) (*fulfillment.BulkResult, error)
	RequestPickup(ctx context.Context, cmd fulfillment.PickupCommand) (*fulfillment.BulkResult, error)
	SyncTracking(ctx context.Context, merchantID, orderID string) (*fulfillment.TrackingResult, error)
	GetLabel(ctx context.Context, merchantID, orderID string) (courier.Label, error)
	GetOrder(ctx context.Context, merchantID, orderID string) (*order.Order, error)
}

type Wallet interface {
	Balance(ctx context.Context, merchantID string) (decimal.Decimal, error)
	Summary(ctx context.Context, merchantID string) (wallet.Summary, error)
	Transactions(ctx context.Context, merchantID string, f wallet.Filter) ([]wallet.Transaction, error)
}

type TopUps interface {
	InitiateTopUp(ctx context.Context, customer payment.Customer, amount decimal.Decimal) (*payment.TopUpResult, error)
	ConfirmTopUp(ctx context.Context, merchantID, gatewayOrderID string) (*wallet.Transaction, error)
	HandleWebhook(ctx context.Context, ev *payment.NormalizedEvent) error
}

type Cycles interface {
	CurrentCycle(ctx context.Context, merchantID string) (*billing.Cycle, error)
	Cycle(ctx context.Context, merchantID string, p billing.Period) (*billing.Cycle, error)
}

type Warehouses interface {
	PutWarehouse(ctx context.Context, merchantID string, w fulfillment.Warehouse) error
}

type Sessions interface {
	Serve(w http.ResponseWriter, r *http.Request, merchantID string, onOpen func(c *notify.Connection))
}

// Handler holds the services behind the HTTP surface. Optional
// services leave their routes out when nil.
type Handler struct {
	Orders     Fulfillment
	Wallet     Wallet
	TopUps     TopUps
	Webhooks   []payment.WebhookProcessor
	Billing    Cycles
	Warehouses Warehouses
	Sessions   Sessions
	Auth       *Authenticator
}

func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		for _, p := range h.Webhooks {
			r.Post("/webhooks/"+p.Provider(), h.paymentWebhook(p))
		}

		r.Group(func(r chi.Router) {
			r.Use(h.Auth.Middleware)

			r.Route("/orders", func(r chi.Router) {
				r.Use(middleware.Timeout(60 * time.Second))
				r.Post("/", h.createOrder)
				r.Post("/bulk/awb", h.bulkAWB)
				r.Post("/bulk/cancel", h.bulkCancel)
				r.Post("/pickups", h.requestPickup)
				r.Get("/{orderID}", h.getOrder)
				r.Post("/{orderID}/awb", h.generateAWB)
				r.Post("/{orderID}/cancel", h.cancelOrder)
				r.Post("/{orderID}/tracking", h.syncTracking)
				r.Get("/{orderID}/label", h.getLabel)
			})

			r.Get("/wallet", h.walletSummary)
			r.Get("/wallet/transactions", h.walletTransactions)
			if h.TopUps != nil {
				r.Post("/wallet/topups", h.initiateTopUp)
				r.Post("/wallet/topups/{gatewayOrderID}/confirm", h.confirmTopUp)
			}

			r.Get("/billing/cycles/current", h.currentCycle)
			r.Get("/billing/cycles/{period}", h.cycle)

			if h.Warehouses != nil {
				r.Put("/warehouses/{name}", h.putWarehouse)
			}

			if h.Sessions != nil {
				r.Get("/ws", h.serveSession)
			}
		})
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}
