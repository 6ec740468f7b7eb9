package models

// DayDefinition - статический нарративный контент одного ритуального дня (1-5).
// Контент неизменяемый: карта определений строится один раз при старте
// и дальше передается по ссылке, без глобального мутабельного состояния.
type DayDefinition struct {
	RitualDay            int      `json:"ritualDay"`
	Title                string   `json:"title"`
	Narrative            string   `json:"narrative"`
	OracleGuidance       string   `json:"oracleGuidance"`
	ReflectionSteps      []string `json:"reflectionSteps"`
	ContemplationPrompts []string `json:"contemplationPrompts"`
	Symbolism            []string `json:"symbolism"`
	Affirmation          string   `json:"affirmation"`
	ClosingNarrative     string   `json:"closingNarrative"`
}
