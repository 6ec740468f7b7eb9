package models

import "time"

// OverallProgress - копия полей FlameProgress в том виде, в котором их
// ожидает клиент (snake_case, как в таблице flame_progress).
type OverallProgress struct {
	CurrentDayTarget int        `json:"current_day_target"`
	IsQuestComplete  bool       `json:"is_quest_complete"`
	CompletedDays    []int64    `json:"completed_days"`
	LastImprintAt    *time.Time `json:"last_imprint_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// StatusMeta - подсказки для внешнего ретрая, заполняются только при processing=true.
type StatusMeta struct {
	EstimatedRetryMs int64 `json:"estimatedRetryMs"`
	RetryCount       int   `json:"retryCount"`
	MaxRetryExceeded bool  `json:"maxRetryExceeded"`
}

// StatusResponse - эфемерный ответ резолвера статуса, никогда не персистится.
//
// DataVersion - wall-clock метка в миллисекундах (time.Now().UnixMilli()).
// Это НЕ версионный вектор: клиент использует ее только чтобы заметить,
// что payload изменился. Никаких гарантий упорядочивания сильнее, чем
// дает timestamp, здесь нет.
//
// DayDefinition заполняется ВСЕГДА, даже при processing=true, чтобы UI мог
// сразу отрисовать статический нарратив, пока цифры прогресса догоняют.
type StatusResponse struct {
	Processing      bool             `json:"processing"`
	DataVersion     int64            `json:"dataVersion"`
	OverallProgress *OverallProgress `json:"overallProgress"`
	DayDefinition   *DayDefinition   `json:"dayDefinition"`
	Meta            *StatusMeta      `json:"meta,omitempty"`
}

// ProgressToOverall конвертирует строку прогресса в клиентское представление.
func ProgressToOverall(p *FlameProgress) *OverallProgress {
	if p == nil {
		return nil
	}
	return &OverallProgress{
		CurrentDayTarget: p.CurrentDayTarget,
		IsQuestComplete:  p.IsQuestComplete,
		CompletedDays:    p.CompletedDays,
		LastImprintAt:    p.LastImprintAt,
		UpdatedAt:        p.UpdatedAt,
	}
}
