package bootstrap

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	contract "todoagent/contracts/mq"
	"todoagent/internal/repository/memory"
	"todoagent/pkg/mq"
)

// LocalBus stands in for RabbitMQ with the memory driver: store events go
// straight to the same handlers the worker would run, one goroutine each.
type LocalBus struct {
	mu       sync.RWMutex
	handlers map[string][]mq.MessageHandler
	wg       sync.WaitGroup
	logger   *zap.Logger
}

func NewLocalBus(logger *zap.Logger) *LocalBus {
	return &LocalBus{handlers: map[string][]mq.MessageHandler{}, logger: logger}
}

func (b *LocalBus) Subscribe(routingKey string, h mq.MessageHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[routingKey] = append(b.handlers[routingKey], h)
}

// Sink is passed to memory.WithEventSink. The store calls it while holding
// its lock, so delivery is always asynchronous.
func (b *LocalBus) Sink() memory.EventSink {
	return func(ctx context.Context, routingKey string, payload contract.TaskEventPayload) {
		b.mu.RLock()
		hs := b.handlers[routingKey]
		b.mu.RUnlock()
		if len(hs) == 0 {
			return
		}

		raw, err := json.Marshal(payload)
		if err != nil {
			b.logger.Error("Failed to encode local event", zap.String("routing_key", routingKey), zap.Error(err))
			return
		}
		// 请求结束后事件仍要处理
		ctx = context.WithoutCancel(ctx)
		for _, h := range hs {
			b.wg.Add(1)
			go func(h mq.MessageHandler) {
				defer b.wg.Done()
				if err := h(ctx, raw); err != nil {
					b.logger.Error("Local event handler failed",
						zap.String("routing_key", routingKey),
						zap.String("event_id", payload.EventID),
						zap.Error(err),
					)
				}
			}(h)
		}
	}
}

// Wait blocks until in-flight deliveries finish.
func (b *LocalBus) Wait() {
	b.wg.Wait()
}
