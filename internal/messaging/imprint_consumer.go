package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// TaskHandlerFunc обрабатывает одну задачу импринта.
// Ошибка означает nack без requeue: сообщение уходит в DLQ.
type TaskHandlerFunc func(ctx context.Context, task ImprintTaskPayload) error

// ImprintConsumer потребляет задачи импринтов из RabbitMQ с ручным ack
// и маршрутизацией сбойных задач в DLQ.
type ImprintConsumer struct {
	ch        *amqp.Channel
	queueName string
	handler   TaskHandlerFunc
	logger    *zap.Logger
}

// NewImprintConsumer открывает канал, объявляет DLX/DLQ и основную очередь
// с dead-letter аргументами, ставит prefetch=1. Имя очереди приходит из
// конфигурации и должно совпадать с именем на стороне издателя.
func NewImprintConsumer(conn *amqp.Connection, queueName string, handler TaskHandlerFunc, logger *zap.Logger) (*ImprintConsumer, error) {
	if conn == nil {
		return nil, fmt.Errorf("rabbitmq connection is nil")
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	if err := declareImprintTopology(ch, queueName); err != nil {
		_ = ch.Close()
		return nil, err
	}

	// prefetch=1: одна тяжелая задача (оракул) на воркера за раз.
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	return &ImprintConsumer{
		ch:        ch,
		queueName: queueName,
		handler:   handler,
		logger:    logger.Named("ImprintConsumer"),
	}, nil
}

// StartConsuming блокирует вызывающую горутину и обрабатывает задачи до
// отмены контекста или закрытия канала доставки.
func (c *ImprintConsumer) StartConsuming(ctx context.Context) error {
	msgs, err := c.ch.Consume(
		c.queueName, // queue
		"",          // consumer tag
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Imprint consumer started", zap.String("queue", c.queueName))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Imprint consumer stopping on context cancellation")
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				c.logger.Warn("Delivery channel closed, imprint consumer stopping")
				return nil
			}
			c.handleDelivery(ctx, msg)
		}
	}
}

func (c *ImprintConsumer) handleDelivery(ctx context.Context, msg amqp.Delivery) {
	var task ImprintTaskPayload
	if err := json.Unmarshal(msg.Body, &task); err != nil {
		c.logger.Error("Failed to decode imprint task, sending to DLQ",
			zap.String("messageID", msg.MessageId), zap.Error(err))
		_ = msg.Nack(false, false)
		return
	}

	if err := c.handler(ctx, task); err != nil {
		// Requeue=false: сбойная задача уходит в DLQ, а не крутится в цикле.
		c.logger.Error("Imprint task failed, sending to DLQ",
			zap.String("taskID", task.TaskID), zap.Error(err))
		_ = msg.Nack(false, false)
		return
	}

	if err := msg.Ack(false); err != nil {
		c.logger.Error("Failed to ack imprint task",
			zap.String("taskID", task.TaskID), zap.Error(err))
	}
}

// Close закрывает канал консьюмера.
func (c *ImprintConsumer) Close() error {
	if c.ch != nil {
		return c.ch.Close()
	}
	return nil
}
