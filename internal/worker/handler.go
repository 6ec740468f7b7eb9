package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"flame-server/internal/broadcast"
	"flame-server/internal/messaging"
	"flame-server/internal/models"
	"flame-server/internal/repository"
	"flame-server/internal/service"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrRejectTask - терминальная ошибка задачи: повтор не поможет (некорректный
// payload, день вне диапазона и т.п.). Консьюмер отправляет такие задачи в DLQ
// без requeue.
var ErrRejectTask = errors.New("imprint task rejected")

// OracleReflector генерирует ответ оракула на импринт.
type OracleReflector interface {
	Reflect(ctx context.Context, def *models.DayDefinition, imprint string) (string, error)
}

// Handler обрабатывает задачи импринтов: досоздает строки ритуала,
// сохраняет рефлексию, продвигает прогресс и рассылает событие ready.
// Это фоновая запись, чье существование предполагает окно свежести
// резолвера: каждая успешная задача обновляет updated_at.
type Handler struct {
	quests      repository.QuestRepository
	progress    repository.ProgressRepository
	imprints    repository.ImprintRepository
	days        service.DaySource
	oracle      OracleReflector
	broadcaster broadcast.Broadcaster
	logger      *zap.Logger
}

// NewHandler создает обработчик задач импринтов.
func NewHandler(
	quests repository.QuestRepository,
	progress repository.ProgressRepository,
	imprints repository.ImprintRepository,
	days service.DaySource,
	oracle OracleReflector,
	broadcaster broadcast.Broadcaster,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		quests:      quests,
		progress:    progress,
		imprints:    imprints,
		days:        days,
		oracle:      oracle,
		broadcaster: broadcaster,
		logger:      logger.Named("ImprintWorker"),
	}
}

// ProcessTask выполняет одну задачу импринта.
// Ошибки, обернутые в ErrRejectTask, терминальны; остальные ретраются
// консьюмером через requeue.
func (h *Handler) ProcessTask(ctx context.Context, task messaging.ImprintTaskPayload) error {
	tasksReceived.Inc()
	start := time.Now()
	log := h.logger.With(zap.String("taskID", task.TaskID), zap.String("userID", task.UserID))

	userID, err := uuid.Parse(task.UserID)
	if err != nil {
		tasksFailed.WithLabelValues("bad_user_id").Inc()
		return fmt.Errorf("%w: invalid user id %q", ErrRejectTask, task.UserID)
	}
	if task.RitualDay < models.MinRitualDay || task.RitualDay > models.MaxRitualDay {
		tasksFailed.WithLabelValues("bad_day").Inc()
		return fmt.Errorf("%w: ritual day %d out of range", ErrRejectTask, task.RitualDay)
	}
	if task.Content == "" {
		tasksFailed.WithLabelValues("empty_content").Inc()
		return fmt.Errorf("%w: empty imprint content", ErrRejectTask)
	}

	// Идемпотентное досоздание скелета ритуала: задача могла обогнать
	// первый запрос статуса.
	quest, err := h.quests.EnsureQuest(ctx, task.QuestSlug, "First Flame Ritual", task.QuestSlug)
	if err != nil {
		tasksFailed.WithLabelValues("db_quest").Inc()
		return fmt.Errorf("ensure quest: %w", err)
	}
	if err := h.quests.EnsureParticipant(ctx, quest.ID, userID); err != nil {
		tasksFailed.WithLabelValues("db_participant").Inc()
		return fmt.Errorf("ensure participant: %w", err)
	}
	progress, err := h.progress.Ensure(ctx, quest.ID, userID)
	if err != nil {
		tasksFailed.WithLabelValues("db_progress").Inc()
		return fmt.Errorf("ensure progress: %w", err)
	}

	// Импринт будущего дня недопустим: текущий целевой день - максимум.
	if task.RitualDay > progress.CurrentDayTarget {
		tasksFailed.WithLabelValues("future_day").Inc()
		return fmt.Errorf("%w: day %d is ahead of target %d",
			ErrRejectTask, task.RitualDay, progress.CurrentDayTarget)
	}

	imprint := &models.FlameImprint{
		QuestID:   quest.ID,
		UserID:    userID,
		RitualDay: task.RitualDay,
		Content:   task.Content,
	}
	if err := h.imprints.Create(ctx, imprint); err != nil {
		tasksFailed.WithLabelValues("db_imprint").Inc()
		return fmt.Errorf("create imprint: %w", err)
	}

	// Генерация ответа оракула best-effort: при ошибке остается
	// fallback-текст, импринт не теряется и задача не фейлится.
	def := h.days.GetDayDefinition(task.RitualDay)
	reflection, reflectErr := h.oracle.Reflect(ctx, def, task.Content)
	if reflectErr != nil {
		log.Warn("Oracle reflection degraded to fallback", zap.Error(reflectErr))
	}
	if reflection != "" {
		if err := h.imprints.SetOracleReflection(ctx, imprint.ID, reflection); err != nil {
			log.Warn("Failed to persist oracle reflection", zap.Error(err))
		}
	}

	// Продвижение прогресса обновляет updated_at - сигнал свежести,
	// который ждет цикл резолвера.
	updated, err := h.progress.CompleteDay(ctx, quest.ID, userID, task.RitualDay, imprint.CreatedAt)
	if err != nil {
		tasksFailed.WithLabelValues("db_complete_day").Inc()
		return fmt.Errorf("complete day: %w", err)
	}

	// Best-effort: клиенты, подписанные на flame_status, перечитают статус.
	if h.broadcaster != nil {
		_ = h.broadcaster.PublishStatus(ctx, broadcast.EventReady, userID, quest.ID)
	}

	tasksSucceeded.Inc()
	taskDuration.Observe(time.Since(start).Seconds())
	log.Info("Imprint task processed",
		zap.Int("ritualDay", task.RitualDay),
		zap.Int("currentDayTarget", updated.CurrentDayTarget),
		zap.Bool("isQuestComplete", updated.IsQuestComplete))
	return nil
}
