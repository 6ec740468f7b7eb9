package mocks

import (
	"context"

	"flame-server/internal/messaging"

	"github.com/stretchr/testify/mock"
)

// Mock TaskPublisher
type TaskPublisher struct {
	mock.Mock
}

func (m *TaskPublisher) PublishImprintTask(ctx context.Context, payload messaging.ImprintTaskPayload) error {
	args := m.Called(ctx, payload)
	return args.Error(0)
}
func (m *TaskPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}
