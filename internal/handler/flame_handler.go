package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"flame-server/internal/models"
	"flame-server/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FlameHandler обрабатывает HTTP-запросы протокола "Первое Пламя".
type FlameHandler struct {
	resolver *service.StatusResolver
	imprints *service.ImprintService
	logger   *zap.Logger
}

// NewFlameHandler создает новый FlameHandler.
func NewFlameHandler(resolver *service.StatusResolver, imprints *service.ImprintService, logger *zap.Logger) *FlameHandler {
	return &FlameHandler{
		resolver: resolver,
		imprints: imprints,
		logger:   logger.Named("FlameHandler"),
	}
}

// RegisterRoutes регистрирует маршруты сервиса.
// authMiddleware передается снаружи, чтобы handler не знал про секреты.
func (h *FlameHandler) RegisterRoutes(router *gin.Engine, authMiddleware gin.HandlerFunc) {
	// Любой метод, кроме объявленных, должен получать JSON 405,
	// а не дефолтный текстовый ответ.
	router.HandleMethodNotAllowed = true
	router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, models.ErrorResponse{Error: models.CodeMethodNotAllowed})
	})

	flame := router.Group("/", authMiddleware)
	{
		// Исторически клиенты дергают эндпоинт и GET'ом, и POST'ом.
		flame.GET("/get-flame-status", h.getFlameStatus)
		flame.POST("/get-flame-status", h.getFlameStatus)
		flame.POST("/submit-flame-imprint", h.submitFlameImprint)
	}
}

// getFlameStatus возвращает статус ритуала: 200 со свежим payload'ом либо
// 202 с processing=true и подсказками ретрая. dayDefinition присутствует
// в обоих случаях.
func (h *FlameHandler) getFlameStatus(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		// Middleware не положило userID - это ошибка конфигурации маршрута.
		h.logger.Error("UserID missing from request context")
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: models.CodeAuthRequired})
		return
	}

	// POST-вариант исторически шлется с пустым телом, но если тело
	// передано, оно обязано быть валидным JSON.
	if c.Request.Method == http.MethodPost && !h.validStatusBody(c) {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: models.CodeInvalidJSON})
		return
	}

	resp, err := h.resolver.ResolveStatus(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to resolve flame status", zap.Stringer("userID", userID), zap.Error(err))
		handleServiceError(c, err)
		return
	}

	status := http.StatusOK
	if resp.Processing {
		status = http.StatusAccepted
	}
	c.JSON(status, resp)
}

// validStatusBody читает тело статусного POST-запроса и проверяет, что оно
// либо пустое, либо синтаксически корректный JSON.
func (h *FlameHandler) validStatusBody(c *gin.Context) bool {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.logger.Warn("Failed to read status request body", zap.Error(err))
		return false
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return true
	}
	return json.Valid(trimmed)
}

type submitImprintRequest struct {
	RitualDay int    `json:"ritualDay" binding:"required"`
	Content   string `json:"content" binding:"required"`
}

// submitFlameImprint ставит рефлексию пользователя в очередь обработки.
// Запись прогресса выполняет воркер; клиент наблюдает результат следующим
// циклом опроса статуса.
func (h *FlameHandler) submitFlameImprint(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: models.CodeAuthRequired})
		return
	}

	var req submitImprintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		code := models.CodeMissingFields
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
			code = models.CodeInvalidJSON
		}
		h.logger.Warn("Invalid imprint request body", zap.Stringer("userID", userID), zap.Error(err))
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: code})
		return
	}

	receipt, err := h.imprints.SubmitImprint(c.Request.Context(), userID, req.RitualDay, req.Content)
	if err != nil {
		h.logger.Error("Failed to submit imprint", zap.Stringer("userID", userID), zap.Error(err))
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, receipt)
}

// getUserIDFromContext извлекает UserID, положенный auth middleware.
func getUserIDFromContext(c *gin.Context) (uuid.UUID, bool) {
	v, exists := c.Get(string(models.UserContextKey))
	if !exists {
		return uuid.Nil, false
	}
	userID, ok := v.(uuid.UUID)
	return userID, ok
}

// handleServiceError отображает ошибки сервисного слоя на HTTP-статусы и
// коды API. Верхний уровень никогда не отдает не-JSON тело.
func handleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidDay), errors.Is(err, models.ErrInvalidInput), errors.Is(err, models.ErrBadRequest):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: models.CodeMissingFields})
	case errors.Is(err, models.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: models.CodeAuthRequired})
	case errors.Is(err, models.ErrTokenInvalid), errors.Is(err, models.ErrTokenExpired), errors.Is(err, models.ErrTokenMalformed):
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: models.CodeInvalidToken})
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrProgressNotFound), errors.Is(err, models.ErrQuestNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: models.CodeServerError})
	default:
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: models.CodeDBError})
	}
}

// HealthCheck - простой healthcheck для балансировщика.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
