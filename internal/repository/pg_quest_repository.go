package repository

import (
	"context"

	"flame-server/internal/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Compile-time check to ensure implementation satisfies the interface.
var _ QuestRepository = (*pgQuestRepository)(nil)

type pgQuestRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPgQuestRepository creates a new repository instance.
func NewPgQuestRepository(pool *pgxpool.Pool, logger *zap.Logger) QuestRepository {
	return &pgQuestRepository{
		pool:   pool,
		logger: logger.Named("PgQuestRepo"),
	}
}

// DO UPDATE с no-op присваиванием вместо DO NOTHING: так RETURNING отдает
// строку и при вставке, и при конфликте, одним round-trip'ом.
const ensureQuestQuery = `
INSERT INTO quests (slug, title, type, realm, is_pinned)
VALUES ($1, $2, 'ritual', $3, TRUE)
ON CONFLICT (slug) DO UPDATE SET slug = EXCLUDED.slug
RETURNING id, slug, title, type, realm, is_pinned, created_at`

const ensureParticipantQuery = `
INSERT INTO quest_participants (quest_id, user_id, role)
VALUES ($1, $2, $3)
ON CONFLICT (quest_id, user_id) DO NOTHING`

// EnsureQuest идемпотентно создает квест по slug и возвращает его строку.
func (r *pgQuestRepository) EnsureQuest(ctx context.Context, slug, title, realm string) (*models.Quest, error) {
	quest := &models.Quest{}
	err := pgxscan.Get(ctx, r.pool, quest, ensureQuestQuery, slug, title, realm)
	if err != nil {
		r.logger.Error("Failed to ensure quest", zap.String("slug", slug), zap.Error(err))
		return nil, err
	}
	r.logger.Debug("Quest ensured", zap.String("slug", slug), zap.Stringer("questID", quest.ID))
	return quest, nil
}

// EnsureParticipant идемпотентно добавляет пользователя в квест.
func (r *pgQuestRepository) EnsureParticipant(ctx context.Context, questID, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, ensureParticipantQuery, questID, userID, models.RoleParticipant)
	if err != nil {
		r.logger.Error("Failed to ensure quest participant",
			zap.Stringer("questID", questID), zap.Stringer("userID", userID), zap.Error(err))
		return err
	}
	return nil
}
