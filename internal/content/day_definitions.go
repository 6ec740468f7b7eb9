package content

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"flame-server/internal/models"

	"go.uber.org/zap"
)

// Source отдает статические определения ритуальных дней (1-5).
// Карта определений строится один раз при создании и дальше не мутируется;
// Source безопасен для конкурентного чтения.
type Source struct {
	days   map[int]*models.DayDefinition
	logger *zap.Logger
}

// NewSource строит источник определений. Если dir непустой, файлы
// day-<n>.json из него переопределяют встроенный контент (формат файлов
// повторяет формат бакета asrayaospublicbucket из фронтенда). Отсутствие
// или некорректность отдельного файла не фатальна - остается встроенное
// определение этого дня.
func NewSource(dir string, logger *zap.Logger) *Source {
	s := &Source{
		days:   builtinDayDefinitions(),
		logger: logger.Named("DayDefinitions"),
	}

	if dir == "" {
		return s
	}

	for day := models.MinRitualDay; day <= models.MaxRitualDay; day++ {
		def, err := loadDayFile(dir, day)
		if err != nil {
			if !os.IsNotExist(err) {
				s.logger.Warn("Не удалось загрузить определение дня, используется встроенное",
					zap.Int("day", day), zap.Error(err))
			}
			continue
		}
		s.days[day] = def
		s.logger.Info("Определение дня загружено из файла", zap.Int("day", day))
	}

	return s
}

// GetDayDefinition возвращает определение для дня 1-5.
// День вне диапазона - defensive default: возвращается день 1 с warn-логом,
// а не ошибка, потому что UI никогда не должен рендериться с пустым нарративом.
func (s *Source) GetDayDefinition(day int) *models.DayDefinition {
	if def, ok := s.days[day]; ok {
		return def
	}
	s.logger.Warn("Запрошен день вне диапазона, возвращается день 1", zap.Int("day", day))
	return s.days[models.MinRitualDay]
}

// loadDayFile читает и валидирует day-<n>.json.
func loadDayFile(dir string, day int) (*models.DayDefinition, error) {
	path := filepath.Join(dir, fmt.Sprintf("day-%d.json", day))
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var def models.DayDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("некорректный JSON в %s: %w", path, err)
	}
	if len(def.ContemplationPrompts) == 0 {
		return nil, fmt.Errorf("определение дня %d не содержит contemplationPrompts", day)
	}
	if def.RitualDay == 0 {
		def.RitualDay = day
	}
	if def.RitualDay != day {
		return nil, fmt.Errorf("в файле %s указан день %d, ожидался %d", path, def.RitualDay, day)
	}
	return &def, nil
}

// builtinDayDefinitions - встроенный fallback-контент всех пяти дней.
// Он гарантирует, что резолвер ВСЕГДА может приложить dayDefinition к ответу,
// даже при processing=true и недоступном каталоге контента.
func builtinDayDefinitions() map[int]*models.DayDefinition {
	return map[int]*models.DayDefinition{
		1: {
			RitualDay:      1,
			Title:          "The Calling of the Spark",
			Narrative:      "Before a fire, there is a spark. Before a spark, there is a wish for warmth. Tonight you stand at the edge of the dark, and the dark is only the room where your light has not yet arrived.",
			OracleGuidance: "Name the thing you are ready to begin. Speak it plainly; the flame does not read between lines.",
			ReflectionSteps: []string{
				"Sit with one unlit intention and describe it in a single sentence.",
				"Write down what has kept it unlit until now.",
				"Offer the sentence to the flame as your first imprint.",
			},
			ContemplationPrompts: []string{
				"What would you start if you knew the start itself was the reward?",
				"Whose permission have you been waiting for?",
			},
			Symbolism:        []string{"spark", "threshold", "unstruck match"},
			Affirmation:      "I am the one who strikes the match.",
			ClosingNarrative: "The spark does not ask whether the night is large. It burns at its own size, and that is enough for the first day.",
		},
		2: {
			RitualDay:      2,
			Title:          "Feeding the Ember",
			Narrative:      "An ember survives on attention. Too much wind and it scatters; too much fuel and it smothers. The second day is the day of measure.",
			OracleGuidance: "Describe one small act you performed today in service of yesterday's intention.",
			ReflectionSteps: []string{
				"Recall the intention of day one without rereading it.",
				"Name the smallest real step taken since then.",
				"Name the wind that nearly scattered it.",
			},
			ContemplationPrompts: []string{
				"What does 'enough for today' look like?",
				"Where does your attention leak?",
			},
			Symbolism:        []string{"ember", "breath", "cupped hands"},
			Affirmation:      "Small and steady is still fire.",
			ClosingNarrative: "The ember glows brighter for being watched. Tomorrow it will want shape.",
		},
		3: {
			RitualDay:      3,
			Title:          "The Shape of the Flame",
			Narrative:      "On the third day the fire takes a form: a hearth, a torch, a signal. Form is a promise about what the fire is for.",
			OracleGuidance: "Tell the flame who it warms. An intention without a beneficiary is only decoration.",
			ReflectionSteps: []string{
				"Name one person or part of yourself your intention serves.",
				"Describe how they would notice the fire exists.",
				"Commit to one visible act of service before the next imprint.",
			},
			ContemplationPrompts: []string{
				"Is your fire a hearth, a torch, or a signal - and why?",
				"What form would embarrass you to admit you want?",
			},
			Symbolism:        []string{"hearth", "torch", "signal fire"},
			Affirmation:      "My fire has a shape, and the shape has a purpose.",
			ClosingNarrative: "A flame with a form can be found by others. Let yourself be findable.",
		},
		4: {
			RitualDay:      4,
			Title:          "The Night of Ash",
			Narrative:      "Every practice meets the night it almost stops. Ash is not failure; ash is proof that something burned.",
			OracleGuidance: "Confess the moment this week you nearly let it go out. The flame keeps no ledger of shame.",
			ReflectionSteps: []string{
				"Describe the almost-stopping honestly, without varnish.",
				"Find the heat still hiding under the ash.",
				"Write the one sentence you will say to yourself next time the night comes.",
			},
			ContemplationPrompts: []string{
				"What does your discouragement reliably say, and is it ever right?",
				"What survived the worst day so far?",
			},
			Symbolism:        []string{"ash", "banked coals", "grey dawn"},
			Affirmation:      "What burned once knows how to burn again.",
			ClosingNarrative: "Banked coals hold till morning. So will you.",
		},
		5: {
			RitualDay:      5,
			Title:          "Carrying the Fire",
			Narrative:      "The fifth day is not an ending. A ritual closes; a fire is carried. From tonight the flame travels in you, unceremonied, ordinary, yours.",
			OracleGuidance: "Tell the flame how you will carry it when no one is asking you to.",
			ReflectionSteps: []string{
				"Reread your first imprint and mark what has changed.",
				"Name the practice you will keep after the ritual ends.",
				"Thank one thing - person, habit, accident - that kept the fire alive this week.",
			},
			ContemplationPrompts: []string{
				"What do you know on day five that day one could not have believed?",
				"Where will the fire live in an ordinary Tuesday?",
			},
			Symbolism:        []string{"lantern", "road", "carried coal"},
			Affirmation:      "The ritual ends; the fire goes with me.",
			ClosingNarrative: "Go quietly. You are lit.",
		},
	}
}
