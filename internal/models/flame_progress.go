package models

import (
	"time"

	"github.com/google/uuid"
)

// Границы ритуальных дней квеста "Первое Пламя".
const (
	MinRitualDay = 1
	MaxRitualDay = 5
)

// FlameProgress хранит текущее состояние пользователя в рамках ритуального квеста.
// Одна строка на пару (quest, user). CurrentDayTarget монотонно не убывает;
// UpdatedAt обновляется при КАЖДОЙ записи строки - это единственный сигнал
// свежести для резолвера статуса.
type FlameProgress struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	QuestID          uuid.UUID  `db:"quest_id" json:"questId"`
	UserID           uuid.UUID  `db:"user_id" json:"userId"`
	CurrentDayTarget int        `db:"current_day_target" json:"currentDayTarget"`
	IsQuestComplete  bool       `db:"is_quest_complete" json:"isQuestComplete"`
	CompletedDays    []int64    `db:"completed_days" json:"completedDays"`
	LastImprintAt    *time.Time `db:"last_imprint_at" json:"lastImprintAt"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updatedAt"`
}

// HasCompletedDay сообщает, завершен ли указанный ритуальный день.
func (p *FlameProgress) HasCompletedDay(day int) bool {
	for _, d := range p.CompletedDays {
		if int(d) == day {
			return true
		}
	}
	return false
}

// FlameImprint - сохраненная рефлексия пользователя за один ритуальный день.
// OracleReflection заполняется воркером после генерации ответа оракула.
type FlameImprint struct {
	ID               uuid.UUID `db:"id" json:"id"`
	QuestID          uuid.UUID `db:"quest_id" json:"questId"`
	UserID           uuid.UUID `db:"user_id" json:"userId"`
	RitualDay        int       `db:"ritual_day" json:"ritualDay"`
	Content          string    `db:"content" json:"content"`
	OracleReflection *string   `db:"oracle_reflection" json:"oracleReflection,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"createdAt"`
}
