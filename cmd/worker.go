package cmd

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"golang.org/x/sync/errgroup"

	"github.com/Tanmoy095/logisynapse-fulfillment/internal/events"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/notify"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/payment"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/workflow"
	"github.com/Tanmoy095/logisynapse-fulfillment/shared/kafka"
	"github.com/Tanmoy095/logisynapse-fulfillment/shared/rabbitmq"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background worker",
	Long: `Start the background worker: relays the event outbox to Kafka,
reconciles stuck wallet top-ups, retries unconfirmed cancellations through
Temporal and bridges wallet events to the notification queue.`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()
	a.start()

	g, ctx := errgroup.WithContext(ctx)
	bg, err := newWorker(ctx, a)
	if err != nil {
		return err
	}
	defer bg.close()
	bg.run(ctx, g)

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker error")
		return err
	}
	log.Info().Msg("Worker shutting down gracefully")
	return nil
}

// background holds the broker and workflow clients the jobs run against.
// Each one is optional and its jobs are skipped when it is not configured.
type background struct {
	app      *app
	producer *kafka.Producer
	consumer *kafka.Consumer
	rmq      *rabbitmq.Client
	temporal client.Client
}

func newWorker(ctx context.Context, a *app) (*background, error) {
	c := a.cfg
	bg := &background{app: a}

	if len(c.Kafka.Brokers) > 0 {
		bg.producer = kafka.NewProducer(c.Kafka.Brokers, c.Kafka.Topic)
		log.Info().Strs("brokers", c.Kafka.Brokers).Str("topic", c.Kafka.Topic).Msg("Worker connected to Kafka")
	} else {
		log.Warn().Msg("KAFKA_BROKER not set, outbox events will not be relayed")
	}

	if url := c.GetRabbitMQURL(); url != "" && bg.producer != nil {
		rmq, err := rabbitmq.NewClient(url)
		if err != nil {
			bg.close()
			return nil, err
		}
		bg.rmq = rmq
		if err := rmq.CreateQueue(c.RabbitMQ.NotifyQueue); err != nil {
			bg.close()
			return nil, err
		}
		bg.consumer = kafka.NewConsumer(c.Kafka.Brokers, c.Kafka.Topic, c.Kafka.GroupID)
	}

	if c.Temporal.HostPort != "" {
		tc, err := client.Dial(client.Options{
			HostPort:  c.Temporal.HostPort,
			Namespace: c.Temporal.Namespace,
		})
		if err != nil {
			bg.close()
			return nil, err
		}
		bg.temporal = tc
		log.Info().Str("host", c.Temporal.HostPort).Msg("Worker connected to Temporal")
	} else {
		log.Warn().Msg("TEMPORAL_HOST_PORT not set, unconfirmed cancellations are not retried")
	}
	return bg, nil
}

func (bg *background) run(ctx context.Context, g *errgroup.Group) {
	c := bg.app.cfg

	g.Go(func() error {
		return bg.schedule(ctx)
	})

	if bg.consumer != nil {
		notifier := notify.NewNotifier(nil, bg.rmq, c.RabbitMQ.NotifyQueue)
		g.Go(func() error {
			bg.consumer.Start(ctx, func(ctx context.Context, key, value []byte) error {
				return forwardWalletEvent(ctx, notifier, value)
			})
			return nil
		})
	}

	if bg.temporal != nil {
		w := worker.New(bg.temporal, c.Temporal.TaskQueue, worker.Options{})
		w.RegisterWorkflow(workflow.RetryCancellationWorkflow)
		w.RegisterActivity(&workflow.Activities{Orders: bg.app.orchestrator})
		g.Go(func() error {
			if err := w.Start(); err != nil {
				return err
			}
			log.Info().Str("task_queue", c.Temporal.TaskQueue).Msg("Temporal worker started")
			<-ctx.Done()
			w.Stop()
			return nil
		})
	}
}

// schedule registers the periodic jobs and blocks until ctx ends.
func (bg *background) schedule(ctx context.Context) error {
	c := bg.app.cfg
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return err
	}

	add := func(name string, every time.Duration, run func(ctx context.Context) (int, error)) error {
		_, err := scheduler.NewJob(
			gocron.DurationJob(every),
			gocron.NewTask(func() {
				n, err := run(ctx)
				if err != nil {
					log.Error().Err(err).Str("job", name).Msg("Job failed")
					return
				}
				if n > 0 {
					log.Info().Str("job", name).Int("count", n).Msg("Job finished")
				}
			}),
			gocron.WithName(name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		return err
	}

	if bg.producer != nil {
		relay := events.NewRelay(bg.app.outbox, bg.producer, 0)
		if err := add("outbox-relay", c.Jobs.RelayInterval, relay.RunOnce); err != nil {
			return err
		}
	}
	if bg.app.topups != nil {
		rec := payment.NewReconciler(bg.app.topups, bg.app.ledger)
		if err := add("topup-reconcile", c.Jobs.ReconcileInterval, rec.RunOnce); err != nil {
			return err
		}
	}
	if bg.temporal != nil {
		sweeper := workflow.NewSweeper(bg.app.orchestrator, bg.temporal, c.Temporal.TaskQueue)
		if err := add("cancellation-sweep", c.Jobs.SweepInterval, sweeper.RunOnce); err != nil {
			return err
		}
	}

	log.Info().Int("jobs", len(scheduler.Jobs())).Msg("Starting scheduler")
	scheduler.Start()
	<-ctx.Done()
	return scheduler.Shutdown()
}

// forwardWalletEvent passes balance-moving events from the topic on to the
// notification queue. Other event types are acknowledged and ignored.
func forwardWalletEvent(ctx context.Context, n *notify.Notifier, value []byte) error {
	var ev events.Event
	if err := json.Unmarshal(value, &ev); err != nil {
		log.Warn().Err(err).Msg("Skipping unreadable event")
		return nil
	}
	if ev.Type != events.WalletDebited && ev.Type != events.WalletCredited {
		return nil
	}
	return n.HandleWalletEvent(ctx, ev)
}

func (bg *background) close() {
	if bg.temporal != nil {
		bg.temporal.Close()
	}
	if bg.consumer != nil {
		if err := bg.consumer.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close Kafka consumer")
		}
	}
	if bg.producer != nil {
		if err := bg.producer.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close Kafka producer")
		}
	}
	if bg.rmq != nil {
		if err := bg.rmq.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close RabbitMQ client")
		}
	}
}
