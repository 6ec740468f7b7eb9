package mocks

import (
	"context"
	"time"

	"flame-server/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// Mock QuestRepository
type QuestRepository struct {
	mock.Mock
}

func (m *QuestRepository) EnsureQuest(ctx context.Context, slug, title, realm string) (*models.Quest, error) {
	args := m.Called(ctx, slug, title, realm)
	quest, _ := args.Get(0).(*models.Quest)
	return quest, args.Error(1)
}
func (m *QuestRepository) EnsureParticipant(ctx context.Context, questID, userID uuid.UUID) error {
	args := m.Called(ctx, questID, userID)
	return args.Error(0)
}

// Mock ProgressRepository
type ProgressRepository struct {
	mock.Mock
}

func (m *ProgressRepository) Get(ctx context.Context, questID, userID uuid.UUID) (*models.FlameProgress, error) {
	args := m.Called(ctx, questID, userID)
	progress, _ := args.Get(0).(*models.FlameProgress)
	return progress, args.Error(1)
}
func (m *ProgressRepository) Ensure(ctx context.Context, questID, userID uuid.UUID) (*models.FlameProgress, error) {
	args := m.Called(ctx, questID, userID)
	progress, _ := args.Get(0).(*models.FlameProgress)
	return progress, args.Error(1)
}
func (m *ProgressRepository) CompleteDay(ctx context.Context, questID, userID uuid.UUID, day int, imprintAt time.Time) (*models.FlameProgress, error) {
	args := m.Called(ctx, questID, userID, day, imprintAt)
	progress, _ := args.Get(0).(*models.FlameProgress)
	return progress, args.Error(1)
}
func (m *ProgressRepository) Touch(ctx context.Context, questID, userID uuid.UUID) error {
	args := m.Called(ctx, questID, userID)
	return args.Error(0)
}

// Mock ImprintRepository
type ImprintRepository struct {
	mock.Mock
}

func (m *ImprintRepository) Create(ctx context.Context, imprint *models.FlameImprint) error {
	args := m.Called(ctx, imprint)
	return args.Error(0)
}
func (m *ImprintRepository) SetOracleReflection(ctx context.Context, imprintID uuid.UUID, reflection string) error {
	args := m.Called(ctx, imprintID, reflection)
	return args.Error(0)
}
