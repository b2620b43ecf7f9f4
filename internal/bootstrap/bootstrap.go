// Package bootstrap assembles the pieces every binary shares: storage for the
// configured driver and the chat agent.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"todoagent/internal/agent"
	"todoagent/internal/agent/llm"
	"todoagent/internal/agent/tools"
	"todoagent/internal/config"
	"todoagent/internal/repository"
	"todoagent/internal/repository/memory"
	"todoagent/internal/service/auth"
	"todoagent/internal/service/conversation"
	"todoagent/internal/service/reminder"
	"todoagent/internal/service/taskstore"
	"todoagent/pkg/circuitbreaker"
	"todoagent/pkg/db"
)

type TaskRepository interface {
	taskstore.TaskRepository
	reminder.Claimer
}

type Storage struct {
	Tasks         TaskRepository
	Tags          taskstore.TagRepository
	Conversations conversation.Repository
	Users         auth.UserRepository
	// Pool is nil for the memory driver.
	Pool *pgxpool.Pool
}

func (s *Storage) Close() {
	if s.Pool != nil {
		s.Pool.Close()
	}
}

// OpenStorage connects to PostgreSQL (running migrations when
// db.auto_migrate is set) or builds the in-process store. sink only applies
// to the memory driver.
func OpenStorage(ctx context.Context, cfg *config.Config, sink memory.EventSink, logger *zap.Logger) (*Storage, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		logger.Warn("Using in-memory storage; data is lost on restart")
		var opts []memory.Option
		if sink != nil {
			opts = append(opts, memory.WithEventSink(sink))
		}
		store := memory.New(opts...)
		return &Storage{Tasks: store, Tags: store, Conversations: store, Users: store}, nil

	case config.DriverPostgres:
		if cfg.DB.AutoMigrate {
			if err := repository.ApplyMigrations(ctx, cfg.DB.DSN()); err != nil {
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
			logger.Info("Database migrations applied")
		}
		pool, err := db.NewConnection(ctx, cfg.DB, logger)
		if err != nil {
			return nil, err
		}
		return &Storage{
			Tasks:         repository.NewTaskRepository(pool, logger),
			Tags:          repository.NewTagRepository(pool, logger),
			Conversations: repository.NewConversationRepository(pool, logger),
			Users:         repository.NewUserRepository(pool, logger),
			Pool:          pool,
		}, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

// NewModelClient builds the provider client wrapped in timeout, retry and
// circuit-breaker handling.
func NewModelClient(cfg config.LLMConfig, logger *zap.Logger) (llm.Client, error) {
	base, err := llm.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	breaker := circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		Timeout:          cfg.Breaker.OpenTimeout,
		// caller cancellations say nothing about provider health
		IsFailure: func(err error) bool {
			return err != nil && !errors.Is(err, context.Canceled)
		},
		OnStateChange: func(from, to circuitbreaker.State) {
			logger.Warn("Model circuit breaker state changed",
				zap.String("provider", cfg.Provider),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return llm.NewInvoker(base, llm.InvokerConfig{
		Timeout:       cfg.Timeout,
		RetryAttempts: cfg.RetryAttempts,
		RetryBackoff:  cfg.RetryBackoff,
		Breaker:       breaker,
	}, logger), nil
}

// NewAgent resolves agent.adapter and wires it to client.
func NewAgent(cfg *config.Config, registry *tools.Registry, client llm.Client, logger *zap.Logger) (*agent.Agent, error) {
	adapters, err := agent.NewAdapterRegistry(agent.NewTodoAdapter(registry, agent.TodoOptions{
		SystemPrompt:  cfg.Agent.SystemPrompt,
		GreetingReply: cfg.Agent.GreetingReply,
	}))
	if err != nil {
		return nil, err
	}
	adapter, err := adapters.Get(cfg.Agent.Adapter)
	if err != nil {
		return nil, err
	}

	counter, err := agent.NewTokenCounter(cfg.LLM.Model)
	if err != nil {
		logger.Warn("Token encoding unavailable, estimating history size", zap.Error(err))
	}

	return agent.New(adapter, client, agent.Options{
		MaxHistory:       cfg.Agent.MaxHistory,
		MaxHistoryTokens: cfg.Agent.MaxHistoryTokens,
		Temperature:      cfg.LLM.Temperature,
	}, counter, logger), nil
}
