package service

import (
	"context"
	"errors"
	"time"

	"flame-server/internal/broadcast"
	"flame-server/internal/config"
	"flame-server/internal/models"
	"flame-server/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DaySource отдает статические определения ритуальных дней.
type DaySource interface {
	GetDayDefinition(day int) *models.DayDefinition
}

// StatusResolver реализует протокол разрешения статуса ритуала:
// ленивое создание строк квеста/прогресса, оценку свежести по updated_at
// и ограниченный по времени внутренний цикл ожидания свежих данных.
type StatusResolver struct {
	quests      repository.QuestRepository
	progress    repository.ProgressRepository
	days        DaySource
	broadcaster broadcast.Broadcaster
	policy      config.RetryPolicy
	logger      *zap.Logger

	// now подменяется в тестах.
	now func() time.Time
}

// NewStatusResolver создает резолвер статуса.
func NewStatusResolver(
	quests repository.QuestRepository,
	progress repository.ProgressRepository,
	days DaySource,
	broadcaster broadcast.Broadcaster,
	policy config.RetryPolicy,
	logger *zap.Logger,
) *StatusResolver {
	return &StatusResolver{
		quests:      quests,
		progress:    progress,
		days:        days,
		broadcaster: broadcaster,
		policy:      policy,
		logger:      logger.Named("StatusResolver"),
		now:         time.Now,
	}
}

// ResolveStatus возвращает статус ритуала для пользователя.
//
// Ответ ВСЕГДА содержит dayDefinition (при необходимости - fallback дня 1),
// чтобы UI мог отрисовать нарратив, не дожидаясь цифр прогресса.
// processing=true означает "данные устарели, вызывающий должен повторить
// запрос" - это валидное промежуточное состояние, а не ошибка.
//
// Ошибки БД фатальны для обычных пользователей, но глотаются для
// демо-sentinel'а: демо-пользователь не обязан иметь долговременных строк.
func (r *StatusResolver) ResolveStatus(ctx context.Context, userID uuid.UUID) (*models.StatusResponse, error) {
	log := r.logger.With(zap.Stringer("userID", userID))
	isDemo := models.IsDemoUser(userID)

	// Шаг 1: идемпотентно создаем квест по фиксированному slug.
	quest, err := r.quests.EnsureQuest(ctx, models.FirstFlameSlug, "First Flame Ritual", models.FirstFlameSlug)
	if err != nil {
		if !isDemo {
			log.Error("Failed to ensure quest", zap.Error(err))
			return nil, err
		}
		log.Warn("Demo user: quest ensure failed, continuing without progress", zap.Error(err))
		return r.processingResponse(nil, 0, false), nil
	}

	if err := r.quests.EnsureParticipant(ctx, quest.ID, userID); err != nil && !isDemo {
		log.Error("Failed to ensure quest participant", zap.Error(err))
		return nil, err
	}

	// Шаг 2: лениво создаем строку прогресса (дубликат вставки - не ошибка).
	progress, err := r.progress.Ensure(ctx, quest.ID, userID)
	if err != nil {
		if !isDemo {
			log.Error("Failed to ensure flame progress", zap.Error(err))
			return nil, err
		}
		log.Warn("Demo user: progress ensure failed, treating as no progress yet", zap.Error(err))
		progress = nil
	}

	// Шаг 3: ограниченный цикл ожидания свежести.
	deadline := r.now().Add(r.policy.ResolverBudget)
	retryCount := 0
	exhausted := false

	for {
		if progress != nil {
			age := r.now().Sub(progress.UpdatedAt)
			if age <= r.policy.StaleWindow {
				return r.readyResponse(progress), nil
			}
			// Устарело: best-effort сигнал, что данные в обработке.
			r.notify(ctx, broadcast.EventProcessing, userID, quest.ID)
			log.Debug("Flame progress is stale",
				zap.Duration("age", age), zap.Int("retryCount", retryCount))
		} else {
			r.notify(ctx, broadcast.EventMissing, userID, quest.ID)
		}

		retryCount++
		if retryCount >= r.policy.ResolverMaxRetries || !r.now().Add(r.policy.ResolverPollDelay).Before(deadline) {
			exhausted = true
			break
		}

		if err := sleepCtx(ctx, r.policy.ResolverPollDelay); err != nil {
			// Клиент ушел; возвращаем processing, не считая это ошибкой запроса.
			log.Debug("Resolve loop cancelled", zap.Error(err))
			break
		}

		progress, err = r.progress.Get(ctx, quest.ID, userID)
		if err != nil {
			if errors.Is(err, models.ErrProgressNotFound) || isDemo {
				progress = nil
				continue
			}
			log.Error("Failed to re-read flame progress", zap.Error(err))
			return nil, err
		}
	}

	return r.processingResponse(progress, retryCount, exhausted), nil
}

// readyResponse собирает 200-ответ со свежим прогрессом.
func (r *StatusResolver) readyResponse(progress *models.FlameProgress) *models.StatusResponse {
	return &models.StatusResponse{
		Processing:      false,
		DataVersion:     r.now().UnixMilli(),
		OverallProgress: models.ProgressToOverall(progress),
		DayDefinition:   r.days.GetDayDefinition(progress.CurrentDayTarget),
	}
}

// processingResponse собирает 202-ответ. dayDefinition заполняется всегда:
// при отсутствии прогресса берется день 1.
func (r *StatusResolver) processingResponse(progress *models.FlameProgress, retryCount int, exceeded bool) *models.StatusResponse {
	day := models.MinRitualDay
	if progress != nil {
		day = progress.CurrentDayTarget
	}
	return &models.StatusResponse{
		Processing:      true,
		DataVersion:     r.now().UnixMilli(),
		OverallProgress: models.ProgressToOverall(progress),
		DayDefinition:   r.days.GetDayDefinition(day),
		Meta: &models.StatusMeta{
			EstimatedRetryMs: r.policy.PollerBaseDelay.Milliseconds(),
			RetryCount:       retryCount,
			MaxRetryExceeded: exceeded,
		},
	}
}

// notify отправляет best-effort событие в realtime-канал.
// Ошибки вещания никогда не роняют запрос.
func (r *StatusResolver) notify(ctx context.Context, event string, userID, questID uuid.UUID) {
	if r.broadcaster == nil {
		return
	}
	_ = r.broadcaster.PublishStatus(ctx, event, userID, questID)
}

// sleepCtx - пауза, прерываемая отменой контекста.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
