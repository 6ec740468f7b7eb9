package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"flame-server/internal/config"
	"flame-server/internal/models"

	"github.com/pkoukk/tiktoken-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	openaigo "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// ErrOracleGenerationFailed - ошибка при генерации ответа оракула.
var ErrOracleGenerationFailed = errors.New("ошибка генерации ответа оракула")

var (
	oracleRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flame_worker_oracle_requests_total",
			Help: "Total number of requests to the oracle AI API.",
		},
		[]string{"model", "status"},
	)
	oracleRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flame_worker_oracle_request_duration_seconds",
			Help:    "Histogram of oracle AI request durations.",
			Buckets: prometheus.DefBuckets,
		},
	)
	oraclePromptTokens = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flame_worker_oracle_prompt_tokens",
			Help:    "Histogram of oracle prompt token counts.",
			Buckets: prometheus.LinearBuckets(50, 50, 10),
		},
	)
)

// Client генерирует короткие ответы оракула на импринты пользователей
// через OpenAI-совместимый chat API.
type Client struct {
	api       *openaigo.Client
	model     string
	maxTokens int
	timeout   time.Duration
	logger    *zap.Logger
	enabled   bool
}

// NewClient создает клиента оракула. Пустой API-ключ - допустимая
// конфигурация: клиент переходит в degraded-режим и отдает канонический
// ответ, не обращаясь к API.
func NewClient(cfg *config.WorkerConfig, logger *zap.Logger) *Client {
	log := logger.Named("OracleClient")

	if cfg.OracleAPIKey == "" {
		log.Warn("Oracle API key is empty, falling back to canned reflections")
		return &Client{logger: log, model: cfg.OracleModel, enabled: false}
	}

	apiConfig := openaigo.DefaultConfig(cfg.OracleAPIKey)
	if cfg.OracleBaseURL != "" {
		apiConfig.BaseURL = cfg.OracleBaseURL
	}

	return &Client{
		api:       openaigo.NewClientWithConfig(apiConfig),
		model:     cfg.OracleModel,
		maxTokens: cfg.OracleMaxTokens,
		timeout:   cfg.OracleTimeout,
		logger:    log,
		enabled:   true,
	}
}

const oracleSystemPrompt = `You are the Oracle of the First Flame, a quiet ceremonial voice guiding a five-day reflection ritual.
Answer the participant's imprint with a short reflection (2-4 sentences): acknowledge what they wrote, mirror one concrete detail back to them, and close with a single gentle question or blessing.
Never give advice lists, never mention that you are an AI.`

// Reflect генерирует ответ оракула на импринт. При любой ошибке генерации
// возвращается канонический fallback-текст и ошибка: вызывающий код сам
// решает, что делать, но без ответа не остается никто.
func (c *Client) Reflect(ctx context.Context, def *models.DayDefinition, imprint string) (string, error) {
	fallback := cannedReflection(def)
	if !c.enabled {
		return fallback, nil
	}

	prompt := buildPrompt(def, imprint)
	c.observePromptTokens(prompt)

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(reqCtx, openaigo.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []openaigo.ChatCompletionMessage{
			{Role: openaigo.ChatMessageRoleSystem, Content: oracleSystemPrompt},
			{Role: openaigo.ChatMessageRoleUser, Content: prompt},
		},
	})
	oracleRequestDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		oracleRequestsTotal.WithLabelValues(c.model, "error").Inc()
		c.logger.Error("Oracle generation failed", zap.Error(err))
		return fallback, fmt.Errorf("%w: %v", ErrOracleGenerationFailed, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		oracleRequestsTotal.WithLabelValues(c.model, "empty").Inc()
		return fallback, fmt.Errorf("%w: empty completion", ErrOracleGenerationFailed)
	}

	oracleRequestsTotal.WithLabelValues(c.model, "success").Inc()
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func buildPrompt(def *models.DayDefinition, imprint string) string {
	var sb strings.Builder
	sb.WriteString("Ritual day ")
	fmt.Fprintf(&sb, "%d: %s\n", def.RitualDay, def.Title)
	sb.WriteString("Day guidance: ")
	sb.WriteString(def.OracleGuidance)
	sb.WriteString("\n\nParticipant imprint:\n")
	sb.WriteString(imprint)
	return sb.String()
}

// observePromptTokens считает токены промпта для метрик.
// Ошибка токенизатора не влияет на генерацию.
func (c *Client) observePromptTokens(prompt string) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		c.logger.Debug("Failed to load tokenizer", zap.Error(err))
		return
	}
	oraclePromptTokens.Observe(float64(len(enc.Encode(prompt, nil, nil))))
}

// cannedReflection - degraded-режим: детерминированный ответ из статического
// контента дня. Используется при выключенном оракуле и при ошибках генерации,
// чтобы импринт никогда не оставался без ответа.
func cannedReflection(def *models.DayDefinition) string {
	return fmt.Sprintf("The flame has received your words for day %d. %s", def.RitualDay, def.Affirmation)
}
