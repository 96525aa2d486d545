package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Tanmoy095/logisynapse-fulfillment/internal/api"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/notify"
	"github.com/Tanmoy095/logisynapse-fulfillment/shared/rabbitmq"
)

const shutdownWait = 15 * time.Second

var (
	seedFile    string
	embedWorker bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the merchant HTTP API and the websocket session hub. Balance
notifications arrive over RabbitMQ when it is configured, otherwise they
are delivered in-process.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&seedFile, "seed", "", "merchants file to register before serving")
	serveCmd.Flags().BoolVar(&embedWorker, "with-worker", false, "also run the background jobs in this process")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if seedFile != "" {
		if err := seedFromFile(ctx, a, seedFile); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	hub := notify.NewHub()

	rabbitURL := cfg.GetRabbitMQURL()
	if len(cfg.Kafka.Brokers) == 0 || rabbitURL == "" {
		// no broker path to the hub, deliver straight from the dispatcher
		notify.NewNotifier(hub, nil, "").Subscribe(a.dispatcher)
	}
	if rabbitURL != "" {
		rmq, err := rabbitmq.NewClient(rabbitURL)
		if err != nil {
			return err
		}
		defer rmq.Close()
		if err := rmq.CreateQueue(cfg.RabbitMQ.NotifyQueue); err != nil {
			return err
		}
		deliveries, err := rmq.Consume(cfg.RabbitMQ.NotifyQueue, 50)
		if err != nil {
			return err
		}
		g.Go(func() error {
			log.Info().Str("queue", cfg.RabbitMQ.NotifyQueue).Msg("Forwarding balance notifications to sessions")
			notify.Consume(ctx, deliveries, hub)
			return nil
		})
	}
	a.start()

	if embedWorker {
		w, err := newWorker(ctx, a)
		if err != nil {
			return err
		}
		defer w.close()
		w.run(ctx, g)
	}

	h := &api.Handler{
		Orders:     a.orchestrator,
		Wallet:     a.ledger,
		Webhooks:   a.webhooks,
		Billing:    a.aggregator,
		Warehouses: a.merchants,
		Sessions:   hub,
		Auth:       api.NewAuthenticator(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL),
	}
	if a.topups != nil {
		h.TopUps = a.topups
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(h),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Str("store", cfg.StoreDriver).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWait)
		defer cancel()
		log.Info().Msg("Shutting down API server")
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server error")
		return err
	}
	return nil
}
