package models

import "errors"

// Стандартные ошибки приложения
var (
	// Ресурсы / БД
	ErrNotFound         = errors.New("resource not found")
	ErrProgressNotFound = errors.New("flame progress not found")
	ErrQuestNotFound    = errors.New("quest not found")

	// Аутентификация
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Токены
	ErrTokenInvalid   = errors.New("token is invalid")
	ErrTokenMalformed = errors.New("token is malformed")
	ErrTokenExpired   = errors.New("token has expired")

	// Валидация запросов
	ErrBadRequest   = errors.New("bad request")
	ErrInvalidInput = errors.New("invalid input data")
	ErrInvalidDay   = errors.New("ritual day out of range")

	// Общие
	ErrInternalServer = errors.New("internal server error")
)

// Коды ошибок API - попадают в JSON-тело {"error": "<code>"}.
// Клиент различает ошибки по этим кодам, а не по текстам.
const (
	CodeAuthRequired     = "AUTH_REQUIRED"
	CodeInvalidToken     = "INVALID_TOKEN"
	CodeMissingFields    = "MISSING_FIELDS"
	CodeInvalidJSON      = "INVALID_JSON"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeServerError      = "SERVER_ERROR"
	CodeDBError          = "DB"
)

// ErrorResponse - стандартная структура для ответа об ошибке в формате JSON.
type ErrorResponse struct {
	Error string `json:"error"`
}
