package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"flame-server/internal/broadcast"
	"flame-server/internal/config"
	"flame-server/internal/content"
	"flame-server/internal/logger"
	"flame-server/internal/messaging"
	"flame-server/internal/oracle"
	"flame-server/internal/repository"
	"flame-server/internal/worker"
	"flame-server/pkg/database"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadWorkerConfig()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:    cfg.LogLevel,
		Encoding: "json",
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	zap.ReplaceGlobals(log)
	zap.L().Info("Flame imprint worker starting", zap.String("logLevel", cfg.LogLevel))

	// --- Метрики и health ---
	go startMetricsServer(cfg.MetricsPort, log)

	// --- External Connections ---
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.New(ctx, cfg.GetDSN(), cfg.DBMaxConns, log)
	if err != nil {
		zap.L().Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer db.Close()
	zap.L().Info("Connected to PostgreSQL")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		zap.L().Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	zap.L().Info("Connected to Redis")

	mqConn, err := connectRabbitMQ(cfg.RabbitMQURL, log)
	if err != nil {
		zap.L().Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer mqConn.Close()
	zap.L().Info("Connected to RabbitMQ")

	// --- Dependency Injection ---
	questRepo := repository.NewPgQuestRepository(db.Pool, log)
	progressRepo := repository.NewPgProgressRepository(db.Pool, log)
	imprintRepo := repository.NewPgImprintRepository(db.Pool, log)

	broadcaster := broadcast.NewRedisBroadcaster(redisClient, log)
	days := content.NewSource(cfg.DayDefinitionsDir, log)
	oracleClient := oracle.NewClient(cfg, log)

	taskHandler := worker.NewHandler(questRepo, progressRepo, imprintRepo, days, oracleClient, broadcaster, log)

	consumer, err := messaging.NewImprintConsumer(mqConn, cfg.ImprintTaskQueue, taskHandler.ProcessTask, log)
	if err != nil {
		zap.L().Fatal("Failed to create imprint consumer", zap.Error(err))
	}
	defer consumer.Close()

	// --- Consume loop + graceful shutdown ---
	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.StartConsuming(runCtx); err != nil && runCtx.Err() == nil {
			zap.L().Error("Consumer stopped unexpectedly", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		zap.L().Info("Shutdown signal received, stopping worker...")
		runCancel()
		select {
		case <-done:
		case <-time.After(15 * time.Second):
			zap.L().Warn("Timed out waiting for consumer to stop")
		}
	case <-done:
		zap.L().Warn("Consumer finished without shutdown signal")
	}

	zap.L().Info("Flame imprint worker stopped")
}

// startMetricsServer поднимает HTTP-сервер для /metrics и /health.
func startMetricsServer(port string, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status": "ok"}`))
	})

	log.Info("Metrics server starting", zap.String("port", port))
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		log.Fatal("Failed to start metrics server", zap.Error(err))
	}
}

// connectRabbitMQ пытается подключиться к RabbitMQ с несколькими попытками.
func connectRabbitMQ(uri string, logger *zap.Logger) (*amqp.Connection, error) {
	var connection *amqp.Connection
	var err error
	maxRetries := 5
	retryDelay := 5 * time.Second

	for i := 0; i < maxRetries; i++ {
		connection, err = amqp.Dial(uri)
		if err == nil {
			return connection, nil
		}
		logger.Warn("Failed to connect to RabbitMQ, retrying...",
			zap.Error(err),
			zap.Int("retry", i+1),
			zap.Duration("delay", retryDelay),
		)
		time.Sleep(retryDelay)
	}
	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", maxRetries, err)
}
