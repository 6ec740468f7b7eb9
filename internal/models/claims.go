package models

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims представляет стандартные поля JWT и пользовательские данные токена.
// UserID - UUID пользователя (sub у Supabase-совместимых токенов дублируется
// в user_id для обратной совместимости со старыми клиентами).
type Claims struct {
	UserID               uuid.UUID `json:"user_id"`
	Roles                []string  `json:"roles"`
	jwt.RegisteredClaims           // Issuer, Subject, ExpiresAt, IssuedAt и т.д.
}

// DemoUserID - sentinel-идентификатор демо-пользователя.
// Для него ошибки чтения БД не фатальны: демо-пользователь не обязан
// иметь долговременных строк прогресса.
var DemoUserID = uuid.MustParse("00000000-0000-0000-0000-000000000000")

// IsDemoUser сообщает, является ли идентификатор демо-sentinel'ом.
func IsDemoUser(userID uuid.UUID) bool {
	return userID == DemoUserID
}
