package repository

import (
	"context"
	"time"

	"flame-server/internal/models"

	"github.com/google/uuid"
)

// QuestRepository управляет строками квестов и участников.
type QuestRepository interface {
	// EnsureQuest идемпотентно создает квест по slug и возвращает его строку.
	// Повторные вызовы (в том числе конкурентные) возвращают один и тот же
	// квест; гонки разрешаются нативным ON CONFLICT, без разбора ошибок.
	EnsureQuest(ctx context.Context, slug, title, realm string) (*models.Quest, error)
	// EnsureParticipant идемпотентно добавляет пользователя в квест.
	EnsureParticipant(ctx context.Context, questID, userID uuid.UUID) error
}

// ProgressRepository управляет строками flame_progress.
type ProgressRepository interface {
	// Get возвращает прогресс или models.ErrProgressNotFound.
	Get(ctx context.Context, questID, userID uuid.UUID) (*models.FlameProgress, error)
	// Ensure лениво создает строку прогресса (current_day_target=1) и
	// возвращает актуальное состояние. Дубликат вставки - не ошибка.
	Ensure(ctx context.Context, questID, userID uuid.UUID) (*models.FlameProgress, error)
	// CompleteDay отмечает ритуальный день завершенным: добавляет его в
	// completed_days, монотонно продвигает current_day_target, выставляет
	// is_quest_complete на дне 5 и обновляет last_imprint_at/updated_at.
	CompleteDay(ctx context.Context, questID, userID uuid.UUID, day int, imprintAt time.Time) (*models.FlameProgress, error)
	// Touch обновляет только updated_at (сигнал свежести).
	Touch(ctx context.Context, questID, userID uuid.UUID) error
}

// ImprintRepository хранит сохраненные рефлексии пользователей.
type ImprintRepository interface {
	Create(ctx context.Context, imprint *models.FlameImprint) error
	SetOracleReflection(ctx context.Context, imprintID uuid.UUID, reflection string) error
}
