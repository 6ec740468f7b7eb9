package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Compile-time check to ensure implementation satisfies the interface.
var _ Broadcaster = (*redisBroadcaster)(nil)

type redisBroadcaster struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisBroadcaster создает Broadcaster поверх Redis pub/sub.
func NewRedisBroadcaster(client *redis.Client, logger *zap.Logger) Broadcaster {
	return &redisBroadcaster{
		client: client,
		logger: logger.Named("RedisBroadcaster"),
	}
}

// PublishStatus публикует событие в канал flame_status.
// Публикация ограничена коротким таймаутом, чтобы медленный Redis не
// задерживал цикл резолвера.
func (b *redisBroadcaster) PublishStatus(ctx context.Context, event string, userID, questID uuid.UUID) error {
	payload, err := json.Marshal(StatusEvent{Event: event, UserID: userID, QuestID: questID})
	if err != nil {
		return fmt.Errorf("failed to marshal status event: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := b.client.Publish(pubCtx, ChannelFlameStatus, payload).Err(); err != nil {
		b.logger.Warn("Failed to publish flame status event",
			zap.String("event", event), zap.Stringer("userID", userID), zap.Error(err))
		return err
	}

	b.logger.Debug("Flame status event published",
		zap.String("event", event), zap.Stringer("userID", userID))
	return nil
}
