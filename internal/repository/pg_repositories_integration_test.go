package repository_test

import (
	"context"
	"testing"
	"time"

	"flame-server/internal/models"
	"flame-server/internal/repository"
	"flame-server/migrations"
	"flame-server/pkg/migration"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

// RepositoryIntegrationSuite гоняет репозитории против настоящего PostgreSQL
// в контейнере, со схемой из встроенных миграций.
type RepositoryIntegrationSuite struct {
	suite.Suite
	pgContainer *postgres.PostgresContainer
	pool        *pgxpool.Pool

	quests   repository.QuestRepository
	progress repository.ProgressRepository
	imprints repository.ImprintRepository
}

func TestRepositoryIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}
	suite.Run(t, new(RepositoryIntegrationSuite))
}

func (s *RepositoryIntegrationSuite) SetupSuite() {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("flame-test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(5*time.Minute),
		),
	)
	require.NoError(s.T(), err)
	s.pgContainer = pgContainer

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(s.T(), err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(s.T(), err)
	s.pool = pool

	migrator := migration.NewMigrator(
		migration.Config{MigrationsFS: migrations.FS, MigrationsPath: "."},
		pool, zap.NewNop())
	require.NoError(s.T(), migrator.Up(ctx))

	log := zap.NewNop()
	s.quests = repository.NewPgQuestRepository(pool, log)
	s.progress = repository.NewPgProgressRepository(pool, log)
	s.imprints = repository.NewPgImprintRepository(pool, log)
}

func (s *RepositoryIntegrationSuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.pgContainer != nil {
		_ = s.pgContainer.Terminate(context.Background())
	}
}

func (s *RepositoryIntegrationSuite) TestEnsureQuestIsIdempotent() {
	ctx := context.Background()

	first, err := s.quests.EnsureQuest(ctx, "idempotency_check", "Idempotency Check", "test")
	s.Require().NoError(err)
	s.Require().NotEqual(uuid.Nil, first.ID)
	s.Equal("ritual", first.Type)
	s.True(first.IsPinned)

	second, err := s.quests.EnsureQuest(ctx, "idempotency_check", "Another Title", "test")
	s.Require().NoError(err)
	s.Equal(first.ID, second.ID, "same slug must resolve to the same quest row")
	// Повторный вызов не перезаписывает существующий квест.
	s.Equal(first.Title, second.Title)
}

func (s *RepositoryIntegrationSuite) TestEnsureParticipantIsIdempotent() {
	ctx := context.Background()
	quest, err := s.quests.EnsureQuest(ctx, models.FirstFlameSlug, "First Flame Ritual", models.FirstFlameSlug)
	s.Require().NoError(err)
	userID := uuid.New()

	s.Require().NoError(s.quests.EnsureParticipant(ctx, quest.ID, userID))
	s.Require().NoError(s.quests.EnsureParticipant(ctx, quest.ID, userID))

	var count int
	err = s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM quest_participants WHERE quest_id = $1 AND user_id = $2`,
		quest.ID, userID).Scan(&count)
	s.Require().NoError(err)
	s.Equal(1, count)
}

func (s *RepositoryIntegrationSuite) TestProgressLazyCreation() {
	ctx := context.Background()
	quest, err := s.quests.EnsureQuest(ctx, models.FirstFlameSlug, "First Flame Ritual", models.FirstFlameSlug)
	s.Require().NoError(err)
	userID := uuid.New()

	_, err = s.progress.Get(ctx, quest.ID, userID)
	s.Require().ErrorIs(err, models.ErrProgressNotFound)

	created, err := s.progress.Ensure(ctx, quest.ID, userID)
	s.Require().NoError(err)
	s.Equal(1, created.CurrentDayTarget)
	s.False(created.IsQuestComplete)
	s.Empty(created.CompletedDays)
	s.WithinDuration(time.Now(), created.UpdatedAt, time.Minute)

	// Повторный Ensure возвращает ту же строку, не создавая дубликат.
	again, err := s.progress.Ensure(ctx, quest.ID, userID)
	s.Require().NoError(err)
	s.Equal(created.ID, again.ID)
}

func (s *RepositoryIntegrationSuite) TestCompleteDayAdvancesMonotonically() {
	ctx := context.Background()
	quest, err := s.quests.EnsureQuest(ctx, models.FirstFlameSlug, "First Flame Ritual", models.FirstFlameSlug)
	s.Require().NoError(err)
	userID := uuid.New()

	_, err = s.progress.Ensure(ctx, quest.ID, userID)
	s.Require().NoError(err)

	imprintAt := time.Now().UTC()
	p, err := s.progress.CompleteDay(ctx, quest.ID, userID, 1, imprintAt)
	s.Require().NoError(err)
	s.Equal(2, p.CurrentDayTarget)
	s.Equal([]int64{1}, p.CompletedDays)
	s.False(p.IsQuestComplete)
	s.Require().NotNil(p.LastImprintAt)

	// Повторное завершение того же дня - no-op для массива и цели.
	p, err = s.progress.CompleteDay(ctx, quest.ID, userID, 1, imprintAt)
	s.Require().NoError(err)
	s.Equal(2, p.CurrentDayTarget)
	s.Equal([]int64{1}, p.CompletedDays)

	p, err = s.progress.CompleteDay(ctx, quest.ID, userID, 2, imprintAt)
	s.Require().NoError(err)
	s.Equal(3, p.CurrentDayTarget)
	s.Equal([]int64{1, 2}, p.CompletedDays)

	for day := 3; day <= 5; day++ {
		p, err = s.progress.CompleteDay(ctx, quest.ID, userID, day, imprintAt)
		s.Require().NoError(err)
	}
	// День 5 - последний: цель не выходит за 5, квест завершен.
	s.Equal(5, p.CurrentDayTarget)
	s.True(p.IsQuestComplete)
	s.Equal([]int64{1, 2, 3, 4, 5}, p.CompletedDays)

	// Завершение прошлого дня после финала ничего не откатывает.
	p, err = s.progress.CompleteDay(ctx, quest.ID, userID, 2, imprintAt)
	s.Require().NoError(err)
	s.Equal(5, p.CurrentDayTarget)
	s.True(p.IsQuestComplete)
}

func (s *RepositoryIntegrationSuite) TestCompleteDayRejectsOutOfRangeDay() {
	ctx := context.Background()
	quest, err := s.quests.EnsureQuest(ctx, models.FirstFlameSlug, "First Flame Ritual", models.FirstFlameSlug)
	s.Require().NoError(err)
	userID := uuid.New()
	_, err = s.progress.Ensure(ctx, quest.ID, userID)
	s.Require().NoError(err)

	_, err = s.progress.CompleteDay(ctx, quest.ID, userID, 0, time.Now())
	s.Require().ErrorIs(err, models.ErrInvalidDay)
	_, err = s.progress.CompleteDay(ctx, quest.ID, userID, 6, time.Now())
	s.Require().ErrorIs(err, models.ErrInvalidDay)
}

func (s *RepositoryIntegrationSuite) TestTouchRefreshesUpdatedAt() {
	ctx := context.Background()
	quest, err := s.quests.EnsureQuest(ctx, models.FirstFlameSlug, "First Flame Ritual", models.FirstFlameSlug)
	s.Require().NoError(err)
	userID := uuid.New()

	created, err := s.progress.Ensure(ctx, quest.ID, userID)
	s.Require().NoError(err)

	// Искусственно состариваем строку, чтобы увидеть эффект Touch.
	_, err = s.pool.Exec(ctx,
		`UPDATE flame_progress SET updated_at = now() - interval '1 hour' WHERE id = $1`, created.ID)
	s.Require().NoError(err)

	s.Require().NoError(s.progress.Touch(ctx, quest.ID, userID))

	touched, err := s.progress.Get(ctx, quest.ID, userID)
	s.Require().NoError(err)
	s.WithinDuration(time.Now(), touched.UpdatedAt, time.Minute)

	// Touch несуществующей строки - ErrProgressNotFound.
	s.Require().ErrorIs(s.progress.Touch(ctx, quest.ID, uuid.New()), models.ErrProgressNotFound)
}

func (s *RepositoryIntegrationSuite) TestImprintLifecycle() {
	ctx := context.Background()
	quest, err := s.quests.EnsureQuest(ctx, models.FirstFlameSlug, "First Flame Ritual", models.FirstFlameSlug)
	s.Require().NoError(err)
	userID := uuid.New()
	s.Require().NoError(s.quests.EnsureParticipant(ctx, quest.ID, userID))

	imprint := &models.FlameImprint{
		QuestID:   quest.ID,
		UserID:    userID,
		RitualDay: 1,
		Content:   "I lit the first candle.",
	}
	s.Require().NoError(s.imprints.Create(ctx, imprint))
	s.Require().NotEqual(uuid.Nil, imprint.ID)

	s.Require().NoError(s.imprints.SetOracleReflection(ctx, imprint.ID, "The flame hears you."))

	var reflection *string
	err = s.pool.QueryRow(ctx,
		`SELECT oracle_reflection FROM flame_imprints WHERE id = $1`, imprint.ID).Scan(&reflection)
	s.Require().NoError(err)
	s.Require().NotNil(reflection)
	s.Equal("The flame hears you.", *reflection)

	// Обновление несуществующего импринта - ErrNotFound.
	s.Require().ErrorIs(
		s.imprints.SetOracleReflection(ctx, uuid.New(), "ghost"), models.ErrNotFound)
}
