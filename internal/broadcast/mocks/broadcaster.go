package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// Mock Broadcaster
type Broadcaster struct {
	mock.Mock
}

func (m *Broadcaster) PublishStatus(ctx context.Context, event string, userID, questID uuid.UUID) error {
	args := m.Called(ctx, event, userID, questID)
	return args.Error(0)
}
