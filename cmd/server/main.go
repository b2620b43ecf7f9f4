package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	contract "todoagent/contracts/mq"
	"todoagent/internal/agent/tools"
	"todoagent/internal/bootstrap"
	"todoagent/internal/config"
	"todoagent/internal/handler"
	"todoagent/internal/httpserver"
	"todoagent/internal/mqhandler"
	"todoagent/internal/service/auth"
	"todoagent/internal/service/conversation"
	"todoagent/internal/service/reminder"
	"todoagent/internal/service/taskstore"
	pkgconfig "todoagent/pkg/config"
	"todoagent/pkg/logger"
	redisclient "todoagent/pkg/redis"
)

func main() {
	cfg, err := config.Load(pkgconfig.GetConfigEnv(), pkgconfig.GetEnv("CONFIG_DIR", "config"))
	if err != nil {
		panic(err)
	}

	log := logger.NewLogger(cfg.Log)
	defer log.Sync()

	log.Info("Starting todoagent server...",
		zap.String("storage", cfg.Storage.Driver),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", cfg.LLM.Model),
		zap.Bool("dev_auth", httpserver.DevAuthEnabled),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := time.LoadLocation(cfg.Worker.Timezone)
	if err != nil {
		log.Fatal("Invalid worker.timezone", zap.String("timezone", cfg.Worker.Timezone), zap.Error(err))
	}

	// memory 模式下事件在进程内处理
	bus := bootstrap.NewLocalBus(log)
	storage, err := bootstrap.OpenStorage(ctx, cfg, bus.Sink(), log)
	if err != nil {
		log.Fatal("Failed to open storage", zap.Error(err))
	}
	defer storage.Close()

	var rdb *redis.Client
	if cfg.RateLimit.Enabled && cfg.RateLimit.Store == "redis" {
		rdb, err = redisclient.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer rdb.Close()
	}

	tasks := taskstore.NewService(storage.Tasks, storage.Tags, log, taskstore.WithLocation(loc))
	registry := tools.NewTodoRegistry(tasks)

	model, err := bootstrap.NewModelClient(cfg.LLM, log)
	if err != nil {
		log.Fatal("Failed to init model client", zap.Error(err))
	}
	chatAgent, err := bootstrap.NewAgent(cfg, registry, model, log)
	if err != nil {
		log.Fatal("Failed to init agent", zap.Error(err))
	}

	var scheduler *reminder.Scheduler
	if cfg.Storage.Driver == config.DriverMemory {
		bus.Subscribe(contract.RoutingTaskCompleted, mqhandler.NewTaskRecurrenceHandler(storage.Tasks, nil, log).Handle)
		bus.Subscribe(contract.RoutingTaskReminderDue, mqhandler.NewTaskReminderHandler(mqhandler.LogNotifier{Logger: log}, nil, log).Handle)

		scanner := reminder.NewScanner(storage.Tasks, cfg.Worker.OutboxBatchSize, log)
		scheduler = reminder.NewScheduler(loc, log)
		if _, err := scheduler.Add(ctx, "reminder_scan", cfg.Worker.ReminderSpec, time.Minute, func(ctx context.Context) error {
			_, err := scanner.Scan(ctx)
			return err
		}); err != nil {
			log.Fatal("Failed to schedule reminder scan", zap.Error(err))
		}
		scheduler.Start()
	}

	limiter, err := httpserver.NewRateLimiter(cfg.RateLimit, rdb)
	if err != nil {
		log.Fatal("Failed to init rate limiter", zap.Error(err))
	}

	deps := httpserver.Deps{
		Auth:     handler.NewAuthHandler(auth.NewService(storage.Users, cfg.JWT.Secret, cfg.JWT.TTL, log), log),
		Tasks:    handler.NewTaskHandler(tasks, log),
		Chat:     handler.NewChatHandler(chatAgent, conversation.NewService(storage.Conversations, log), cfg.Agent.MaxHistory, log),
		Verifier: httpserver.NewTokenVerifier(cfg.JWT.Secret),
		Limiter:  limiter,
		Logger:   log,
	}
	if storage.Pool != nil {
		deps.DB = storage.Pool
	}
	srv := httpserver.NewRouter(deps).Server(cfg.Server.Port)

	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// 优雅退出处理
	<-ctx.Done()
	log.Info("Shutting down todoagent server gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	if scheduler != nil {
		scheduler.Stop()
	}
	bus.Wait()

	log.Info("todoagent server shutdown complete")
}
