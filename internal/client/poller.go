package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"flame-server/internal/config"
	"flame-server/internal/models"

	"go.uber.org/zap"
)

// RequestError - сетевая ошибка (fetch-уровень): запрос не дошел до сервера
// или ответ не был получен. Отличается от HTTP-ошибок, чтобы вызывающий код
// мог решить, ставить ли запрос в фоновую очередь повторов.
type RequestError struct {
	Err error
}

func (e *RequestError) Error() string { return fmt.Sprintf("flame status request failed: %v", e.Err) }
func (e *RequestError) Unwrap() error { return e.Err }

// StatusError - HTTP-ошибка функции: сервер ответил, но с ошибочным статусом.
// Code - код ошибки API из JSON-тела (AUTH_REQUIRED, INVALID_TOKEN и т.д.).
type StatusError struct {
	StatusCode int
	Code       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("flame status error: http %d (%s)", e.StatusCode, e.Code)
}

// FlameStatusClient - клиентский поллер статуса ритуала.
//
// Это ВНЕШНИЙ слой ретрая поверх резолвера, который уже ретраит внутри
// своего запроса - намеренная (пусть и избыточная) двухуровневая схема.
// processing=true не считается ошибкой: это валидное промежуточное
// состояние, которое ведет к повтору с бэкоффом.
type FlameStatusClient struct {
	baseURL    string
	httpClient *http.Client
	policy     config.RetryPolicy
	logger     *zap.Logger
}

// NewFlameStatusClient создает клиента сервиса статуса.
func NewFlameStatusClient(baseURL string, policy config.RetryPolicy, logger *zap.Logger) *FlameStatusClient {
	return &FlameStatusClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: policy.ResolverBudget + 5*time.Second},
		policy:     policy,
		logger:     logger.Named("FlameStatusClient"),
	}
}

// FetchStatus выполняет один запрос статуса без ретраев.
func (c *FlameStatusClient) FetchStatus(ctx context.Context, token string) (*models.StatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/get-flame-status", nil)
	if err != nil {
		return nil, &RequestError{Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &RequestError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RequestError{Err: err}
	}

	// 200 и 202 - валидные ответы протокола; остальное - HTTP-ошибка функции.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		var apiErr models.ErrorResponse
		if jsonErr := json.Unmarshal(body, &apiErr); jsonErr != nil || apiErr.Error == "" {
			apiErr.Error = models.CodeServerError
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Code: apiErr.Error}
	}

	var status models.StatusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, &RequestError{Err: fmt.Errorf("malformed status payload: %w", err)}
	}
	return &status, nil
}

// Poll опрашивает статус до первого свежего payload'а.
//
// Повторы выполняются только пока processing=true; как только получен
// не-processing ответ, опрос прекращается и наружу отдается РОВНО ОДНО
// терминальное состояние. Бэкофф сидируется подсказкой meta.estimatedRetryMs
// (если она есть), растет экспоненциально и ограничен капом.
func (c *FlameStatusClient) Poll(ctx context.Context, token string) (*models.StatusResponse, error) {
	delay := c.policy.PollerBaseDelay
	var last *models.StatusResponse

	for attempt := 1; attempt <= c.policy.PollerMaxAttempts; attempt++ {
		status, err := c.FetchStatus(ctx, token)
		if err != nil {
			return nil, err
		}
		last = status

		if !status.Processing {
			c.logger.Debug("Fresh flame status received",
				zap.Int("attempt", attempt), zap.Int64("dataVersion", status.DataVersion))
			return status, nil
		}

		if status.Meta != nil && status.Meta.EstimatedRetryMs > 0 && attempt == 1 {
			delay = time.Duration(status.Meta.EstimatedRetryMs) * time.Millisecond
		}
		if delay > c.policy.PollerMaxDelay {
			delay = c.policy.PollerMaxDelay
		}

		c.logger.Debug("Flame status still processing, retrying",
			zap.Int("attempt", attempt), zap.Duration("delay", delay))

		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	// Бюджет попыток исчерпан; отдаем последний processing-ответ, чтобы UI
	// мог отрисовать хотя бы статический нарратив дня.
	c.logger.Warn("Poll attempts exhausted while status is still processing",
		zap.Int("maxAttempts", c.policy.PollerMaxAttempts))
	return last, nil
}

// SubmitImprint отправляет рефлексию пользователя.
func (c *FlameStatusClient) SubmitImprint(ctx context.Context, token string, ritualDay int, content string) error {
	payload, err := json.Marshal(map[string]interface{}{
		"ritualDay": ritualDay,
		"content":   content,
	})
	if err != nil {
		return &RequestError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/submit-flame-imprint", bytes.NewReader(payload))
	if err != nil {
		return &RequestError{Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &RequestError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(resp.Body)
		var apiErr models.ErrorResponse
		if jsonErr := json.Unmarshal(body, &apiErr); jsonErr != nil || apiErr.Error == "" {
			apiErr.Error = models.CodeServerError
		}
		return &StatusError{StatusCode: resp.StatusCode, Code: apiErr.Error}
	}
	return nil
}
