package repository

import (
	"context"
	"errors"
	"time"

	"flame-server/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Compile-time check to ensure implementation satisfies the interface.
var _ ProgressRepository = (*pgProgressRepository)(nil)

type pgProgressRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPgProgressRepository creates a new repository instance.
func NewPgProgressRepository(pool *pgxpool.Pool, logger *zap.Logger) ProgressRepository {
	return &pgProgressRepository{
		pool:   pool,
		logger: logger.Named("PgProgressRepo"),
	}
}

const getProgressQuery = `
SELECT id, quest_id, user_id, current_day_target, is_quest_complete, completed_days, last_imprint_at, updated_at
FROM flame_progress
WHERE quest_id = $1 AND user_id = $2`

// Вставка лениво создает строку с дефолтами (день 1, квест не завершен).
// Конкурентные вставки для нового пользователя разрешаются уникальным
// ограничением + DO NOTHING: обе стороны затем читают одну и ту же строку.
const ensureProgressQuery = `
INSERT INTO flame_progress (quest_id, user_id)
VALUES ($1, $2)
ON CONFLICT (quest_id, user_id) DO NOTHING`

// Продвижение монотонно по построению: GREATEST не дает current_day_target
// откатиться назад, повторный импринт того же дня - no-op для массива.
const completeDayQuery = `
UPDATE flame_progress SET
    completed_days     = CASE WHEN completed_days @> ARRAY[$3::int]
                              THEN completed_days
                              ELSE array_append(completed_days, $3::int) END,
    current_day_target = GREATEST(current_day_target, LEAST($3 + 1, 5)),
    is_quest_complete  = is_quest_complete OR $3 >= 5,
    last_imprint_at    = $4,
    updated_at         = now()
WHERE quest_id = $1 AND user_id = $2
RETURNING id, quest_id, user_id, current_day_target, is_quest_complete, completed_days, last_imprint_at, updated_at`

const touchProgressQuery = `
UPDATE flame_progress SET updated_at = now()
WHERE quest_id = $1 AND user_id = $2`

// Get возвращает прогресс или models.ErrProgressNotFound.
func (r *pgProgressRepository) Get(ctx context.Context, questID, userID uuid.UUID) (*models.FlameProgress, error) {
	return r.scanProgress(ctx, r.pool.QueryRow(ctx, getProgressQuery, questID, userID), questID, userID)
}

// Ensure лениво создает строку прогресса и возвращает актуальное состояние.
func (r *pgProgressRepository) Ensure(ctx context.Context, questID, userID uuid.UUID) (*models.FlameProgress, error) {
	if _, err := r.pool.Exec(ctx, ensureProgressQuery, questID, userID); err != nil {
		r.logger.Error("Failed to insert flame progress",
			zap.Stringer("questID", questID), zap.Stringer("userID", userID), zap.Error(err))
		return nil, err
	}
	return r.Get(ctx, questID, userID)
}

// CompleteDay отмечает день завершенным и обновляет сигнал свежести.
func (r *pgProgressRepository) CompleteDay(ctx context.Context, questID, userID uuid.UUID, day int, imprintAt time.Time) (*models.FlameProgress, error) {
	if day < models.MinRitualDay || day > models.MaxRitualDay {
		return nil, models.ErrInvalidDay
	}
	return r.scanProgress(ctx,
		r.pool.QueryRow(ctx, completeDayQuery, questID, userID, day, imprintAt),
		questID, userID)
}

// Touch обновляет только updated_at.
func (r *pgProgressRepository) Touch(ctx context.Context, questID, userID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, touchProgressQuery, questID, userID)
	if err != nil {
		r.logger.Error("Failed to touch flame progress",
			zap.Stringer("questID", questID), zap.Stringer("userID", userID), zap.Error(err))
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrProgressNotFound
	}
	return nil
}

// scanProgress сканирует одну строку flame_progress.
// completed_days читается через pq.Int64Array (integer[]).
func (r *pgProgressRepository) scanProgress(ctx context.Context, row pgx.Row, questID, userID uuid.UUID) (*models.FlameProgress, error) {
	progress := &models.FlameProgress{}
	var completedDays pq.Int64Array

	err := row.Scan(
		&progress.ID,
		&progress.QuestID,
		&progress.UserID,
		&progress.CurrentDayTarget,
		&progress.IsQuestComplete,
		&completedDays,
		&progress.LastImprintAt,
		&progress.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrProgressNotFound
		}
		r.logger.Error("Failed to scan flame progress",
			zap.Stringer("questID", questID), zap.Stringer("userID", userID), zap.Error(err))
		return nil, err
	}

	progress.CompletedDays = []int64(completedDays)
	return progress, nil
}
