package bootstrap

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	contract "todoagent/contracts/mq"
	"todoagent/internal/agent/llm"
	"todoagent/internal/agent/tools"
	"todoagent/internal/config"
	"todoagent/internal/model"
	"todoagent/internal/service/taskstore"
)

type staticClient struct{}

func (staticClient) Generate(context.Context, *llm.Request) (*llm.Response, error) {
	return &llm.Response{Content: "ok"}, nil
}

func (staticClient) Provider() string { return "static" }

func memoryConfig() *config.Config {
	cfg := config.Default()
	cfg.Storage.Driver = config.DriverMemory
	cfg.JWT.Secret = "secret"
	return cfg
}

func TestLocalBus(t *testing.T) {
	t.Run("Should deliver store events to every subscriber", func(t *testing.T) {
		bus := NewLocalBus(zap.NewNop())

		var mu sync.Mutex
		var got []contract.TaskEventPayload
		handler := func(_ context.Context, data json.RawMessage) error {
			var p contract.TaskEventPayload
			if err := json.Unmarshal(data, &p); err != nil {
				return err
			}
			mu.Lock()
			got = append(got, p)
			mu.Unlock()
			return nil
		}
		bus.Subscribe(contract.RoutingTaskCompleted, handler)
		bus.Subscribe(contract.RoutingTaskCompleted, handler)

		storage, err := OpenStorage(context.Background(), memoryConfig(), bus.Sink(), zap.NewNop())
		require.NoError(t, err)
		defer storage.Close()
		assert.Nil(t, storage.Pool)

		task, err := storage.Tasks.CreateTask(context.Background(), &model.Task{UserID: "u1", Title: "water plants", Priority: model.PriorityMedium}, nil)
		require.NoError(t, err)
		_, err = storage.Tasks.CompleteTask(context.Background(), "u1", task.ID)
		require.NoError(t, err)

		bus.Wait()
		mu.Lock()
		defer mu.Unlock()
		require.Len(t, got, 2)
		for _, p := range got {
			assert.Equal(t, task.ID, p.TaskID)
			assert.Equal(t, "u1", p.UserID)
			assert.True(t, p.Completed)
		}
	})

	t.Run("Should drop events nobody subscribed to", func(t *testing.T) {
		bus := NewLocalBus(zap.NewNop())
		bus.Sink()(context.Background(), contract.RoutingTaskCreated, contract.TaskEventPayload{TaskID: 1})
		bus.Wait()
	})
}

func TestOpenStorage(t *testing.T) {
	t.Run("Should reject an unknown driver", func(t *testing.T) {
		cfg := memoryConfig()
		cfg.Storage.Driver = "sqlite"
		_, err := OpenStorage(context.Background(), cfg, nil, zap.NewNop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sqlite")
	})
}

func TestNewAgent(t *testing.T) {
	storage, err := OpenStorage(context.Background(), memoryConfig(), nil, zap.NewNop())
	require.NoError(t, err)
	registry := tools.NewTodoRegistry(taskstore.NewService(storage.Tasks, storage.Tags, zap.NewNop()))

	t.Run("Should build the configured adapter", func(t *testing.T) {
		a, err := NewAgent(memoryConfig(), registry, staticClient{}, zap.NewNop())
		require.NoError(t, err)
		assert.NotNil(t, a)
	})

	t.Run("Should fail on an unknown adapter", func(t *testing.T) {
		cfg := memoryConfig()
		cfg.Agent.Adapter = "crm"
		_, err := NewAgent(cfg, registry, staticClient{}, zap.NewNop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "crm")
	})
}
