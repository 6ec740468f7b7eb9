package broadcast

import (
	"context"

	"github.com/google/uuid"
)

// ChannelFlameStatus - имя realtime-канала статуса ритуала.
const ChannelFlameStatus = "flame_status"

// События канала flame_status.
const (
	EventMissing    = "missing"    // строки прогресса нет, идет ленивое создание
	EventProcessing = "processing" // прогресс устарел, ожидается обновление воркером
	EventReady      = "ready"      // воркер обновил прогресс, можно перечитать
)

// StatusEvent - payload события канала flame_status.
type StatusEvent struct {
	Event   string    `json:"event"`
	UserID  uuid.UUID `json:"user_id"`
	QuestID uuid.UUID `json:"quest_id"`
}

// Broadcaster публикует события статуса в realtime-канал.
// Все публикации best-effort: ошибка публикации логируется и НИКОГДА
// не роняет вызывающий запрос.
type Broadcaster interface {
	PublishStatus(ctx context.Context, event string, userID, questID uuid.UUID) error
}
