package config

import (
	"fmt"
	"time"

	"flame-server/internal/utils"

	"github.com/kelseyhightower/envconfig"
)

// RetryPolicy - единый набор констант ретрая/свежести, который потребляют
// ОБЕ стороны протокола: внутренний цикл резолвера и внешний клиентский
// поллер. Значения по умолчанию - эвристики, а не инварианты: окно
// свежести предполагает, что фоновый воркер успевает обновить updated_at
// внутри него.
type RetryPolicy struct {
	// Окно, после которого строка прогресса считается устаревшей.
	StaleWindow time.Duration `envconfig:"FLAME_STALE_WINDOW" default:"60s"`
	// Бюджет wall-clock на внутренний цикл резолвера в рамках одного запроса.
	ResolverBudget time.Duration `envconfig:"FLAME_RESOLVER_BUDGET" default:"10s"`
	// Пауза между итерациями внутреннего цикла.
	ResolverPollDelay time.Duration `envconfig:"FLAME_RESOLVER_POLL_DELAY" default:"1s"`
	// Максимум итераций внутреннего цикла.
	ResolverMaxRetries int `envconfig:"FLAME_RESOLVER_MAX_RETRIES" default:"8"`
	// Максимум попыток внешнего клиентского поллера.
	PollerMaxAttempts int `envconfig:"FLAME_POLLER_MAX_ATTEMPTS" default:"10"`
	// Начальная задержка внешнего поллера (растет экспоненциально до капа).
	PollerBaseDelay time.Duration `envconfig:"FLAME_POLLER_BASE_DELAY" default:"1s"`
	// Кап экспоненциального бэкоффа внешнего поллера.
	PollerMaxDelay time.Duration `envconfig:"FLAME_POLLER_MAX_DELAY" default:"8s"`
}

// ServerConfig содержит конфигурацию HTTP-сервиса статуса.
type ServerConfig struct {
	Port     string `envconfig:"FLAME_SERVER_PORT" default:"8084"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// CORS: по умолчанию разрешены все источники, переопределяется env-переменной.
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`

	// Разрешает dev-обход авторизации через ?userId=...&allowPublic=1.
	// НИКОГДА не включать в production.
	AllowPublicDemo bool `envconfig:"FLAME_ALLOW_PUBLIC_DEMO" default:"false"`

	// Настройки PostgreSQL
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     string `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`
	DBSSLMode  string `envconfig:"DB_SSL_MODE" default:"disable"`
	DBMaxConns int    `envconfig:"DB_MAX_CONNECTIONS" default:"10"`
	// Секретное поле БЕЗ envconfig тега
	DBPassword string

	// Настройки Redis (realtime-канал flame_status)
	RedisAddr string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisDB   int    `envconfig:"REDIS_DB" default:"0"`
	// Секретное поле БЕЗ envconfig тега
	RedisPassword string

	// Настройки RabbitMQ
	RabbitMQURL      string `envconfig:"RABBITMQ_URL" required:"true"`
	ImprintTaskQueue string `envconfig:"IMPRINT_TASK_QUEUE" default:"flame_imprint_tasks"`

	// Каталог со статическими day-<n>.json; пусто = только встроенные определения.
	DayDefinitionsDir string `envconfig:"DAY_DEFINITIONS_DIR" default:""`

	Retry RetryPolicy

	// Секретное поле БЕЗ envconfig тега
	JWTSecret string
}

// GetDSN возвращает строку подключения (DSN) для PostgreSQL.
func (c *ServerConfig) GetDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// LoadServerConfig загружает конфигурацию сервиса статуса из переменных
// окружения и секретов.
func LoadServerConfig() (*ServerConfig, error) {
	var cfg ServerConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации flame-server: %w", err)
	}

	var loadErr error
	cfg.DBPassword, loadErr = utils.ReadSecret("db_password")
	if loadErr != nil {
		return nil, loadErr
	}
	cfg.JWTSecret, loadErr = utils.ReadSecret("jwt_secret")
	if loadErr != nil {
		return nil, loadErr
	}
	// Redis в dev-окружении может быть без пароля
	cfg.RedisPassword, _ = utils.ReadSecret("redis_password")

	return &cfg, nil
}

// WorkerConfig содержит конфигурацию воркера импринтов.
type WorkerConfig struct {
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	MetricsPort string `envconfig:"WORKER_METRICS_PORT" default:"9094"`

	// Настройки PostgreSQL
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     string `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`
	DBSSLMode  string `envconfig:"DB_SSL_MODE" default:"disable"`
	DBMaxConns int    `envconfig:"DB_MAX_CONNECTIONS" default:"5"`
	DBPassword string

	// Настройки Redis
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisPassword string

	// Настройки RabbitMQ
	RabbitMQURL      string `envconfig:"RABBITMQ_URL" required:"true"`
	ImprintTaskQueue string `envconfig:"IMPRINT_TASK_QUEUE" default:"flame_imprint_tasks"`

	// Каталог со статическими day-<n>.json; пусто = только встроенные определения.
	DayDefinitionsDir string `envconfig:"DAY_DEFINITIONS_DIR" default:""`

	// Настройки оракула (OpenAI-совместимый endpoint)
	OracleBaseURL   string        `envconfig:"ORACLE_BASE_URL" default:""`
	OracleModel     string        `envconfig:"ORACLE_MODEL" default:"gpt-4o-mini"`
	OracleTimeout   time.Duration `envconfig:"ORACLE_TIMEOUT" default:"30s"`
	OracleMaxTokens int           `envconfig:"ORACLE_MAX_TOKENS" default:"256"`
	OracleAPIKey    string
}

// GetDSN возвращает строку подключения (DSN) для PostgreSQL.
func (c *WorkerConfig) GetDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// LoadWorkerConfig загружает конфигурацию воркера из переменных окружения и секретов.
func LoadWorkerConfig() (*WorkerConfig, error) {
	var cfg WorkerConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации flame-worker: %w", err)
	}

	var loadErr error
	cfg.DBPassword, loadErr = utils.ReadSecret("db_password")
	if loadErr != nil {
		return nil, loadErr
	}
	cfg.RedisPassword, _ = utils.ReadSecret("redis_password")
	// Без ключа оракул работает в degraded-режиме (канонический ответ),
	// импринты при этом не теряются.
	cfg.OracleAPIKey, _ = utils.ReadSecret("oracle_api_key")

	return &cfg, nil
}
