package realtime

import (
	"context"
	"encoding/json"

	"flame-server/internal/broadcast"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StatusSubscriber подписывается на Redis-канал flame_status и доставляет
// события подключенным WebSocket клиентам. Событие адресуется одному
// пользователю: остальным оно не рассылается.
type StatusSubscriber struct {
	client  *redis.Client
	manager *ConnectionManager
	logger  *zap.Logger
}

// NewStatusSubscriber создает подписчика канала flame_status.
func NewStatusSubscriber(client *redis.Client, manager *ConnectionManager, logger *zap.Logger) *StatusSubscriber {
	return &StatusSubscriber{
		client:  client,
		manager: manager,
		logger:  logger.Named("StatusSubscriber"),
	}
}

// Run блокирует вызывающую горутину до отмены контекста.
// События для оффлайн-пользователей отбрасываются: клиент все равно
// перечитает статус при следующем опросе.
func (s *StatusSubscriber) Run(ctx context.Context) error {
	pubsub := s.client.Subscribe(ctx, broadcast.ChannelFlameStatus)
	defer pubsub.Close()

	// Ждем подтверждения подписки до входа в цикл доставки.
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	s.logger.Info("Subscribed to flame status channel", zap.String("channel", broadcast.ChannelFlameStatus))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Status subscriber stopping on context cancellation")
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				s.logger.Warn("Pub/sub channel closed, status subscriber stopping")
				return nil
			}
			s.deliver(msg.Payload)
		}
	}
}

func (s *StatusSubscriber) deliver(payload string) {
	var event broadcast.StatusEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		s.logger.Warn("Malformed flame status event", zap.Error(err))
		return
	}

	delivered := s.manager.SendToUser(event.UserID.String(), []byte(payload))
	s.logger.Debug("Flame status event processed",
		zap.String("event", event.Event),
		zap.Stringer("userID", event.UserID),
		zap.Bool("delivered", delivered))
}
