package cmd

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Tanmoy095/logisynapse-fulfillment/config"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/billing"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/courier"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/customer"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/events"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/fulfillment"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/order"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/payment"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/serviceability"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/store/memory"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/store/postgres"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/wallet"
)

// merchantRegistry is implemented by both store drivers.
type merchantRegistry interface {
	fulfillment.Warehouses
	billing.CategoryLookup
	PutMerchant(ctx context.Context, id, name, category string) error
	PutWarehouse(ctx context.Context, merchantID string, w fulfillment.Warehouse) error
}

type rateCardWriter interface {
	Put(ctx context.Context, rc billing.RateCard) error
}

// app is the object graph shared by serve, worker and seed.
type app struct {
	cfg *config.Config
	db  *sql.DB

	orders     order.Store
	merchants  merchantRegistry
	rates      billing.RateCardStore
	rateWriter rateCardWriter
	outbox     events.OutboxStore
	dispatcher *events.Dispatcher
	redis      *redis.Client

	ledger       *wallet.Ledger
	orchestrator *fulfillment.Orchestrator
	aggregator   *billing.Aggregator
	topups       *payment.TopUpService
	webhooks     []payment.WebhookProcessor
}

func newApp(ctx context.Context, c *config.Config) (*app, error) {
	a := &app{cfg: c}

	var (
		walletStore  wallet.Store
		tx           wallet.TxRunner
		billingStore billing.Store
		customers    customer.Store
	)
	switch c.StoreDriver {
	case "memory":
		log.Warn().Msg("Using in-memory stores, state is lost on exit")
		ws := memory.NewWalletStore()
		walletStore, tx = ws, ws
		a.orders = memory.NewOrderStore()
		a.merchants = memory.NewMerchantStore()
		a.outbox = memory.NewOutboxStore()
		billingStore = memory.NewBillingStore()
		customers = memory.NewCustomerStore()
		cards, err := billing.NewStaticRateCards(billing.DefaultRateCards())
		if err != nil {
			return nil, err
		}
		a.rates = cards
	default:
		db, err := postgres.Open(ctx, c.GetDBURL())
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		a.db = db
		walletStore, tx = postgres.NewWalletStore(db), postgres.NewTxManager(db)
		a.orders = postgres.NewOrderStore(db)
		a.merchants = postgres.NewMerchantStore(db)
		a.outbox = postgres.NewOutboxStore(db)
		billingStore = postgres.NewBillingStore(db)
		customers = postgres.NewCustomerStore(db)
		rc := postgres.NewRateCardStore(db)
		a.rates, a.rateWriter = rc, rc
		log.Info().Str("host", c.DB.Host).Str("db", c.DB.Name).Msg("Connected to Postgres")
	}

	if c.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: c.Redis.Addr, Password: c.Redis.Password, DB: c.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Msg("Failed to reach Redis, continuing without rate card cache")
			rdb.Close()
		} else {
			a.redis = rdb
			a.rates = billing.NewCachedRateCards(a.rates, rdb, c.Redis.TTL)
		}
	}

	a.dispatcher = events.NewDispatcher(ctx, a.outbox, 0)
	a.ledger = wallet.NewLedger(walletStore, tx, a.dispatcher)
	calc := billing.NewCalculator(a.rates, a.merchants)

	courierClient := courier.NewClient(c.Courier.BaseURL, c.Courier.Token, c.Courier.Timeout)
	a.orchestrator = fulfillment.NewOrchestrator(fulfillment.Deps{
		Orders:              a.orders,
		Ledger:              a.ledger,
		Courier:             courierClient,
		Gate:                serviceability.NewGate(courierClient),
		Warehouses:          a.merchants,
		Pricer:              calc,
		Events:              a.dispatcher,
		PreallocateWaybills: c.Courier.PreallocateWaybills,
	})

	a.aggregator = billing.NewAggregator(billingStore, calc, a.orders)
	a.aggregator.Subscribe(a.dispatcher)
	customer.NewSubscriber(customers).Subscribe(a.dispatcher)

	if c.Stripe.SecretKey != "" {
		gw := payment.NewStripeGateway(c.Stripe.SecretKey, c.Stripe.SuccessURL, c.Stripe.CancelURL)
		a.topups = payment.NewTopUpService(a.ledger, gw)
		if c.Stripe.WebhookSecret != "" {
			a.webhooks = append(a.webhooks, payment.NewStripeWebhook(c.Stripe.WebhookSecret))
		}
	} else {
		log.Warn().Msg("STRIPE_SECRET_KEY not set, wallet top-ups are disabled")
	}
	return a, nil
}

// start runs the in-process subscribers. Call after every Subscribe.
func (a *app) start() {
	a.dispatcher.Start(4)
}

func (a *app) close() {
	a.dispatcher.Stop()
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close Redis client")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close database")
		}
	}
}

func (a *app) requireTopUps(what string) error {
	if a.topups == nil {
		return fmt.Errorf("%s needs STRIPE_SECRET_KEY", what)
	}
	return nil
}
