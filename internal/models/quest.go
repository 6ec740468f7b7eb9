package models

import (
	"time"

	"github.com/google/uuid"
)

// FirstFlameSlug - фиксированный slug квеста "Первое Пламя".
// Все операции ритуала привязаны к квесту с этим slug.
const FirstFlameSlug = "first_flame"

// Quest представляет ритуальный квест (например, "Первое Пламя").
// Строка создается идемпотентно по slug и после этого не изменяется.
type Quest struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Slug      string    `db:"slug" json:"slug"`
	Title     string    `db:"title" json:"title"`
	Type      string    `db:"type" json:"type"`
	Realm     string    `db:"realm" json:"realm"`
	IsPinned  bool      `db:"is_pinned" json:"isPinned"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// QuestParticipant связывает пользователя с квестом.
// Вставляется идемпотентно (ON CONFLICT DO NOTHING) при первом обращении.
type QuestParticipant struct {
	QuestID  uuid.UUID `db:"quest_id" json:"questId"`
	UserID   uuid.UUID `db:"user_id" json:"userId"`
	Role     string    `db:"role" json:"role"`
	JoinedAt time.Time `db:"joined_at" json:"joinedAt"`
}

// RoleParticipant - роль обычного участника квеста.
const RoleParticipant = "participant"
