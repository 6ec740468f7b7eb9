package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// TaskPublisher публикует задачи обработки импринтов.
type TaskPublisher interface {
	PublishImprintTask(ctx context.Context, payload ImprintTaskPayload) error
	Close() error
}

// Compile-time check to ensure implementation satisfies the interface.
var _ TaskPublisher = (*RabbitMQImprintPublisher)(nil)

// RabbitMQImprintPublisher реализует TaskPublisher для RabbitMQ.
type RabbitMQImprintPublisher struct {
	ch        *amqp.Channel
	queueName string
	logger    *zap.Logger
}

// NewRabbitMQImprintPublisher создает издателя задач импринтов.
// Важно: предполагается, что соединение conn уже установлено и переподключения
// управляются внешним кодом, который передает сюда стабильное соединение.
// Топология объявляется той же функцией, что и на стороне консьюмера:
// аргументы очереди обязаны совпадать у обоих бинарников.
func NewRabbitMQImprintPublisher(conn *amqp.Connection, queueName string, logger *zap.Logger) (*RabbitMQImprintPublisher, error) {
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

	log := logger.Named("ImprintPublisher")
	log.Info("Imprint task queue declared", zap.String("queue", queueName))

	return &RabbitMQImprintPublisher{ch: ch, queueName: queueName, logger: log}, nil
}

// PublishImprintTask публикует задачу в очередь импринтов.
func (p *RabbitMQImprintPublisher) PublishImprintTask(ctx context.Context, payload ImprintTaskPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal imprint task: %w", err)
	}

	err = p.ch.PublishWithContext(ctx,
		"",          // exchange (default)
		p.queueName, // routing key
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    time.Now(),
			MessageId:    payload.TaskID,
		},
	)
	if err != nil {
		p.logger.Error("Failed to publish imprint task",
			zap.String("taskID", payload.TaskID), zap.Error(err))
		return fmt.Errorf("failed to publish imprint task: %w", err)
	}

	p.logger.Debug("Imprint task published",
		zap.String("taskID", payload.TaskID), zap.String("userID", payload.UserID))
	return nil
}

// Close закрывает канал издателя.
func (p *RabbitMQImprintPublisher) Close() error {
	if p.ch != nil {
		return p.ch.Close()
	}
	return nil
}
