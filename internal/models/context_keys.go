package models

import (
	"context"

	"github.com/google/uuid"
)

// contextKey - приватный тип для ключей контекста, чтобы избежать коллизий.
type contextKey string

const (
	// UserContextKey используется как ключ для хранения UserID в контексте запроса.
	UserContextKey contextKey = "userID"
	// RolesContextKey используется как ключ для хранения ролей пользователя.
	RolesContextKey contextKey = "userRoles"
)

// GetUserIDFromContext извлекает UserID из контекста.
// Возвращает ID и true, если ключ найден и значение корректного типа.
func GetUserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(UserContextKey).(uuid.UUID)
	return userID, ok
}

// WithUserID кладет UserID в контекст запроса.
func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, UserContextKey, userID)
}
