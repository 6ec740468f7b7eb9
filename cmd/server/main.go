package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"flame-server/internal/authutils"
	"flame-server/internal/broadcast"
	"flame-server/internal/config"
	"flame-server/internal/content"
	"flame-server/internal/handler"
	"flame-server/internal/logger"
	"flame-server/internal/messaging"
	"flame-server/internal/middleware"
	"flame-server/internal/realtime"
	"flame-server/internal/repository"
	"flame-server/internal/service"
	"flame-server/migrations"
	"flame-server/pkg/database"
	"flame-server/pkg/migration"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"
)

func main() {
	// .env опционален: в контейнере конфигурация приходит из окружения.
	_ = godotenv.Load()

	cfg, err := config.LoadServerConfig()
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
	zap.L().Info("Logger initialized", zap.String("logLevel", cfg.LogLevel))

	// --- External Connections ---
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.New(ctx, cfg.GetDSN(), cfg.DBMaxConns, log)
	if err != nil {
		zap.L().Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer db.Close()
	zap.L().Info("Connected to PostgreSQL")

	migrator := migration.NewMigrator(migration.Config{MigrationsFS: migrations.FS, MigrationsPath: "."}, db.Pool, log)
	if err := migrator.Up(ctx); err != nil {
		zap.L().Fatal("Failed to apply migrations", zap.Error(err))
	}

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

	broadcaster := broadcast.NewRedisBroadcaster(redisClient, log)
	days := content.NewSource(cfg.DayDefinitionsDir, log)

	imprintPublisher, err := messaging.NewRabbitMQImprintPublisher(mqConn, cfg.ImprintTaskQueue, log)
	if err != nil {
		zap.L().Fatal("Failed to create imprint publisher", zap.Error(err))
	}
	defer imprintPublisher.Close()

	resolver := service.NewStatusResolver(questRepo, progressRepo, days, broadcaster, cfg.Retry, log)
	imprintSvc := service.NewImprintService(imprintPublisher, log)

	verifier, err := authutils.NewJWTVerifier(cfg.JWTSecret, log)
	if err != nil {
		zap.L().Fatal("Failed to create JWT verifier", zap.Error(err))
	}

	flameHandler := handler.NewFlameHandler(resolver, imprintSvc, log)

	// --- Realtime ---
	wsManager := realtime.NewConnectionManager(log)
	wsHandler := realtime.NewWSHandler(wsManager, verifier.VerifyToken, log)
	subscriber := realtime.NewStatusSubscriber(redisClient, wsManager, log)

	subCtx, subCancel := context.WithCancel(context.Background())
	defer subCancel()
	go func() {
		if err := subscriber.Run(subCtx); err != nil && subCtx.Err() == nil {
			zap.L().Error("Status subscriber stopped unexpectedly", zap.Error(err))
		}
	}()

	// --- HTTP Server Setup (Gin) ---
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.ZapLoggingMiddlewareForGin(log))

	p := ginprometheus.NewPrometheus("gin")
	p.Use(router)

	corsConfig := cors.DefaultConfig()
	if len(cfg.CORSAllowedOrigins) == 1 && cfg.CORSAllowedOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.CORSAllowedOrigins
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.GET("/health", handler.HealthCheck)
	router.GET("/ws/flame", wsHandler.ServeWS)

	authMw := middleware.AuthMiddleware(verifier.VerifyToken, log, cfg.AllowPublicDemo)
	flameHandler.RegisterRoutes(router, authMw)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		zap.L().Info("Flame status server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.L().Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zap.L().Info("Shutdown signal received, stopping server...")

	subCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("HTTP server shutdown error", zap.Error(err))
	}

	zap.L().Info("Server stopped")
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
			go func() {
				notifyClose := make(chan *amqp.Error)
				connection.NotifyClose(notifyClose)
				if closeErr := <-notifyClose; closeErr != nil {
					logger.Error("RabbitMQ connection lost", zap.Error(closeErr))
				}
			}()
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
