package messaging

// ImprintTaskPayload - задача обработки импринта для воркера.
// Публикуется сервисом статуса при submit-flame-imprint; воркер идемпотентно
// досоздает строки квеста/прогресса, сохраняет импринт, продвигает прогресс
// и рассылает событие ready.
type ImprintTaskPayload struct {
	TaskID    string `json:"taskId"`
	UserID    string `json:"userId"`
	QuestSlug string `json:"questSlug"`
	RitualDay int    `json:"ritualDay"`
	Content   string `json:"content"`
}
