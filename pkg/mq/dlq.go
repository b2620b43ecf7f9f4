package mq

import (
	"context"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

const (
	DLQExchangeName = "events.dlq"
)

// DeclareDLQExchange declares the dead letter exchange.
func DeclareDLQExchange(ch *amqp091.Channel) error {
	return ch.ExchangeDeclare(
		DLQExchangeName,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
}

// DeclareDLQQueue declares <routingKey>.dlq bound to the dead letter exchange.
func DeclareDLQQueue(ch *amqp091.Channel, routingKey string) (amqp091.Queue, error) {
	q, err := ch.QueueDeclare(
		fmt.Sprintf("%s.dlq", routingKey),
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return amqp091.Queue{}, fmt.Errorf("failed to declare DLQ queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, routingKey, DLQExchangeName, false, nil); err != nil {
		return amqp091.Queue{}, fmt.Errorf("failed to bind DLQ queue: %w", err)
	}

	return q, nil
}

// publishToDLQ parks a poison message together with the error that exhausted its retries.
func publishToDLQ(ctx context.Context, ch *amqp091.Channel, routingKey, queue string, body []byte, cause error) error {
	headers := amqp091.Table{
		"x-original-error": cause.Error(),
		"x-failed-queue":   queue,
		"x-failed-at":      time.Now().UTC().Format(time.RFC3339),
	}

	return ch.PublishWithContext(
		ctx,
		DLQExchangeName,
		routingKey,
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp091.Persistent,
			Headers:      headers,
		},
	)
}
