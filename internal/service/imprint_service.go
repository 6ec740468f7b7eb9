package service

import (
	"context"
	"fmt"

	"flame-server/internal/messaging"
	"flame-server/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ImprintReceipt - квитанция о постановке импринта в очередь обработки.
type ImprintReceipt struct {
	TaskID    string `json:"taskId"`
	RitualDay int    `json:"ritualDay"`
	Status    string `json:"status"`
}

// ImprintService принимает рефлексии пользователей и ставит их в очередь
// воркеру. Сам прогресс здесь НЕ пишется: запись делает воркер, а следующий
// цикл опроса статуса наблюдает результат (eventual consistency через окно
// свежести, без блокировок).
type ImprintService struct {
	publisher messaging.TaskPublisher
	logger    *zap.Logger
}

// NewImprintService создает сервис приема импринтов.
func NewImprintService(publisher messaging.TaskPublisher, logger *zap.Logger) *ImprintService {
	return &ImprintService{
		publisher: publisher,
		logger:    logger.Named("ImprintService"),
	}
}

// SubmitImprint валидирует рефлексию и публикует задачу воркеру.
func (s *ImprintService) SubmitImprint(ctx context.Context, userID uuid.UUID, ritualDay int, content string) (*ImprintReceipt, error) {
	if ritualDay < models.MinRitualDay || ritualDay > models.MaxRitualDay {
		return nil, fmt.Errorf("%w: ritual day %d", models.ErrInvalidDay, ritualDay)
	}
	if content == "" {
		return nil, fmt.Errorf("%w: empty imprint content", models.ErrInvalidInput)
	}

	taskID := uuid.NewString()
	payload := messaging.ImprintTaskPayload{
		TaskID:    taskID,
		UserID:    userID.String(),
		QuestSlug: models.FirstFlameSlug,
		RitualDay: ritualDay,
		Content:   content,
	}

	if err := s.publisher.PublishImprintTask(ctx, payload); err != nil {
		s.logger.Error("Failed to publish imprint task",
			zap.Stringer("userID", userID), zap.Int("ritualDay", ritualDay), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", models.ErrInternalServer, err)
	}

	s.logger.Info("Imprint task queued",
		zap.String("taskID", taskID), zap.Stringer("userID", userID), zap.Int("ritualDay", ritualDay))

	return &ImprintReceipt{TaskID: taskID, RitualDay: ritualDay, Status: "queued"}, nil
}
