package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	contract "todoagent/contracts/mq"
	"todoagent/internal/bootstrap"
	"todoagent/internal/config"
	"todoagent/internal/mqhandler"
	"todoagent/internal/service/reminder"
	pkgconfig "todoagent/pkg/config"
	"todoagent/pkg/logger"
	"todoagent/pkg/mq"
	"todoagent/pkg/outbox"
	redisclient "todoagent/pkg/redis"
	"todoagent/pkg/util"
)

type consumerSpec struct {
	queue      string
	routingKey string
	handler    mq.MessageHandler
}

func main() {
	cfg, err := config.Load(pkgconfig.GetConfigEnv(), pkgconfig.GetEnv("CONFIG_DIR", "config"))
	if err != nil {
		panic(err)
	}

	log := logger.NewLogger(cfg.Log)
	defer log.Sync()

	log.Info("Starting worker service...",
		zap.String("mq_url", cfg.MQ.URL),
		zap.String("redis_addr", cfg.Redis.Addr),
	)

	if cfg.Storage.Driver != config.DriverPostgres {
		log.Fatal("Worker needs storage.driver=postgres; the memory driver handles events in the server process")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := time.LoadLocation(cfg.Worker.Timezone)
	if err != nil {
		log.Fatal("Invalid worker.timezone", zap.String("timezone", cfg.Worker.Timezone), zap.Error(err))
	}

	storage, err := bootstrap.OpenStorage(ctx, cfg, nil, log)
	if err != nil {
		log.Fatal("Failed to open storage", zap.Error(err))
	}
	defer storage.Close()
	log.Info("Database connection established")

	// Init Redis
	rdb, err := redisclient.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer rdb.Close()

	deduper := util.NewDeduper(rdb, cfg.Worker.DedupTTL, log)
	retries := util.NewRetryCounter(rdb, cfg.Worker.DedupTTL)

	// Outbox -> RabbitMQ
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init publisher", zap.Error(err))
	}
	defer publisher.Close()

	outboxRepo := outbox.NewRepository(storage.Pool)
	dispatcher := outbox.NewDispatcher(outboxRepo, publisher, log).
		WithInterval(cfg.Worker.OutboxInterval).
		WithBatchSize(cfg.Worker.OutboxBatchSize).
		WithMaxRetries(cfg.Worker.OutboxMaxRetries)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		dispatcher.Start(ctx)
	}()

	// Consumers
	specs := []consumerSpec{
		{
			queue:      "task.completed.recurrence.q",
			routingKey: contract.RoutingTaskCompleted,
			handler:    mqhandler.NewTaskRecurrenceHandler(storage.Tasks, deduper, log).Handle,
		},
		{
			queue:      "task.reminder_due.notify.q",
			routingKey: contract.RoutingTaskReminderDue,
			handler:    mqhandler.NewTaskReminderHandler(mqhandler.LogNotifier{Logger: log}, deduper, log).Handle,
		},
	}
	for _, spec := range specs {
		log.Info("Initializing consumer", zap.String("queue", spec.queue), zap.String("routing_key", spec.routingKey))
		consumer, err := mq.NewConsumer(cfg.MQ.URL, spec.queue, spec.routingKey, log)
		if err != nil {
			log.Fatal("Failed to init consumer", zap.String("queue", spec.queue), zap.Error(err))
		}
		defer consumer.Close()
		consumer.SetHandler(spec.handler)
		consumer.WithRetryLimit(retries, cfg.Worker.ConsumerRetries)

		wg.Add(1)
		go func(queue string) {
			defer wg.Done()
			if err := consumer.Start(ctx); err != nil {
				log.Error("Consumer stopped with error", zap.String("queue", queue), zap.Error(err))
				stop()
			}
		}(spec.queue)
	}

	// Cron jobs
	scanner := reminder.NewScanner(storage.Tasks, cfg.Worker.OutboxBatchSize, log)
	replay := outbox.NewReplayService(outboxRepo, log)
	scheduler := reminder.NewScheduler(loc, log)
	if _, err := scheduler.Add(ctx, "reminder_scan", cfg.Worker.ReminderSpec, time.Minute, func(ctx context.Context) error {
		_, err := scanner.Scan(ctx)
		return err
	}); err != nil {
		log.Fatal("Failed to schedule reminder scan", zap.Error(err))
	}
	if _, err := scheduler.Add(ctx, "outbox_replay", cfg.Worker.ReplaySpec, time.Minute, func(ctx context.Context) error {
		_, err := replay.ReplayFailed(ctx, cfg.Worker.OutboxBatchSize)
		return err
	}); err != nil {
		log.Fatal("Failed to schedule outbox replay", zap.Error(err))
	}
	scheduler.Start()

	log.Info("Worker is ready to process messages")

	<-ctx.Done()
	log.Info("Shutting down worker gracefully...")
	scheduler.Stop()
	wg.Wait()
	log.Info("Worker shutdown complete")
}
