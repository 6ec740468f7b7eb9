package repository

import (
	"context"
	"time"

	"flame-server/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Compile-time check to ensure implementation satisfies the interface.
var _ ImprintRepository = (*pgImprintRepository)(nil)

type pgImprintRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPgImprintRepository creates a new repository instance.
func NewPgImprintRepository(pool *pgxpool.Pool, logger *zap.Logger) ImprintRepository {
	return &pgImprintRepository{
		pool:   pool,
		logger: logger.Named("PgImprintRepo"),
	}
}

const createImprintQuery = `
INSERT INTO flame_imprints (id, quest_id, user_id, ritual_day, content, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`

const setOracleReflectionQuery = `
UPDATE flame_imprints SET oracle_reflection = $2 WHERE id = $1`

// Create сохраняет рефлексию пользователя.
func (r *pgImprintRepository) Create(ctx context.Context, imprint *models.FlameImprint) error {
	if imprint.ID == uuid.Nil {
		imprint.ID = uuid.New()
	}
	if imprint.CreatedAt.IsZero() {
		imprint.CreatedAt = time.Now().UTC()
	}

	_, err := r.pool.Exec(ctx, createImprintQuery,
		imprint.ID, imprint.QuestID, imprint.UserID, imprint.RitualDay, imprint.Content, imprint.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to create flame imprint",
			zap.Stringer("userID", imprint.UserID), zap.Int("ritualDay", imprint.RitualDay), zap.Error(err))
		return err
	}
	r.logger.Debug("Flame imprint created", zap.Stringer("imprintID", imprint.ID))
	return nil
}

// SetOracleReflection дописывает сгенерированный ответ оракула к импринту.
func (r *pgImprintRepository) SetOracleReflection(ctx context.Context, imprintID uuid.UUID, reflection string) error {
	tag, err := r.pool.Exec(ctx, setOracleReflectionQuery, imprintID, reflection)
	if err != nil {
		r.logger.Error("Failed to set oracle reflection", zap.Stringer("imprintID", imprintID), zap.Error(err))
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
