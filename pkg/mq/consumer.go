package mq

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"todoagent/pkg/trace"
)

type MessageHandler func(ctx context.Context, data json.RawMessage) error

// RetryTracker counts handler failures per message across redeliveries.
type RetryTracker interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

type Consumer struct {
	channel    *amqp091.Channel
	queue      amqp091.Queue
	routingKey string
	handler    MessageHandler
	conn       *amqp091.Connection
	logger     *zap.Logger

	retries    RetryTracker
	maxRetries int64
	deadLetter func(ctx context.Context, body []byte, cause error) error
}

// NewConsumer creates a consumer for a specific routing key.
func NewConsumer(url, queueName, routingKey string, logger *zap.Logger) (*Consumer, error) {
	conn, err := NewConnection(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	closeAll := func() {
		ch.Close()
		conn.Close()
	}

	if err := DeclareExchange(ch); err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	if err := DeclareDLQExchange(ch); err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to declare dlq exchange: %w", err)
	}
	if _, err := DeclareDLQQueue(ch, routingKey); err != nil {
		closeAll()
		return nil, err
	}

	q, err := ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, routingKey, ExchangeName, false, nil); err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	logger.Info("Consumer initialized",
		zap.String("routing_key", routingKey),
		zap.String("queue", queueName),
		zap.String("exchange", ExchangeName),
	)

	c := &Consumer{
		conn:       conn,
		channel:    ch,
		queue:      q,
		routingKey: routingKey,
		logger:     logger,
	}
	c.deadLetter = func(ctx context.Context, body []byte, cause error) error {
		return publishToDLQ(ctx, ch, routingKey, q.Name, body, cause)
	}
	return c, nil
}

func (c *Consumer) SetHandler(h MessageHandler) {
	c.handler = h
}

// WithRetryLimit parks a message on the dead letter queue once its handler
// has failed maxRetries times.
func (c *Consumer) WithRetryLimit(tracker RetryTracker, maxRetries int64) *Consumer {
	c.retries = tracker
	c.maxRetries = maxRetries
	return c
}

func (c *Consumer) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// Start consumes until ctx is cancelled or the delivery channel closes.
func (c *Consumer) Start(ctx context.Context) error {
	if c.handler == nil {
		return fmt.Errorf("consumer handler not set")
	}

	deliveries, err := c.channel.Consume(
		c.queue.Name,
		"worker."+c.routingKey,
		false, // 手动ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Consumer started consuming messages",
		zap.String("routing_key", c.routingKey),
		zap.String("queue", c.queue.Name),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.handleDelivery(ctx, msg)
		}
	}
}

// handleDelivery 保证每条消息都会被 ack 或 nack
func (c *Consumer) handleDelivery(ctx context.Context, msg amqp091.Delivery) {
	if traceID, ok := msg.Headers[trace.HeaderName].(string); ok && traceID != "" {
		ctx = trace.WithContext(ctx, traceID)
	}

	c.logger.Debug("Received message",
		zap.String("routing_key", c.routingKey),
		zap.String("queue", c.queue.Name),
		zap.Int("message_size", len(msg.Body)),
	)

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Handler panic recovered",
				zap.String("routing_key", c.routingKey),
				zap.Any("panic", r),
			)
			c.fail(ctx, msg, fmt.Errorf("handler panic: %v", r))
		}
	}()

	if err := c.handler(ctx, msg.Body); err != nil {
		c.logger.Error("Handler error",
			zap.String("routing_key", c.routingKey),
			zap.String("queue", c.queue.Name),
			zap.Error(err),
		)
		c.fail(ctx, msg, err)
		return
	}

	if c.retries != nil {
		_ = c.retries.Reset(ctx, c.retryKey(msg.Body))
	}

	if err := msg.Ack(false); err != nil {
		c.logger.Error("Failed to ack message",
			zap.String("routing_key", c.routingKey),
			zap.Error(err),
		)
		return
	}
	c.logger.Debug("Message processed successfully",
		zap.String("routing_key", c.routingKey),
		zap.String("queue", c.queue.Name),
	)
}

// fail requeues the message, or dead-letters it once the retry budget is spent.
func (c *Consumer) fail(ctx context.Context, msg amqp091.Delivery, cause error) {
	if c.retries != nil && c.maxRetries > 0 && c.deadLetter != nil {
		key := c.retryKey(msg.Body)
		count, err := c.retries.IncrementAndGet(ctx, key)
		if err != nil {
			c.logger.Warn("Retry counter unavailable, requeueing",
				zap.String("routing_key", c.routingKey),
				zap.Error(err),
			)
		} else if count >= c.maxRetries {
			if err := c.deadLetter(ctx, msg.Body, cause); err != nil {
				c.logger.Error("Failed to publish to DLQ",
					zap.String("routing_key", c.routingKey),
					zap.Error(err),
				)
			} else {
				c.logger.Warn("Message moved to DLQ",
					zap.String("routing_key", c.routingKey),
					zap.Int64("attempts", count),
				)
				_ = c.retries.Reset(ctx, key)
				if err := msg.Ack(false); err != nil {
					c.logger.Error("Failed to ack dead-lettered message", zap.Error(err))
				}
				return
			}
		}
	}

	if err := msg.Nack(false, true); err != nil {
		c.logger.Error("Failed to nack message",
			zap.String("routing_key", c.routingKey),
			zap.Error(err),
		)
	}
}

func (c *Consumer) retryKey(body []byte) string {
	return fmt.Sprintf("retry:%s:%s", c.queue.Name, uuid.NewSHA1(uuid.NameSpaceOID, body))
}
