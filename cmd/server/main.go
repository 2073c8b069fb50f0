package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"market_call/internal/config"
	"market_call/internal/handler"
	"market_call/internal/middleware"
	"market_call/internal/repository"
	"market_call/internal/service"
	"market_call/internal/transport"
	"market_call/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	appLogger := logger.New(cfg.Log.Level)

	// Подключение к PostgreSQL (опционально: без DSN логи живут в памяти)
	var dbPool *pgxpool.Pool
	if cfg.Database.DSN != "" {
		dbPool, err = pgxpool.New(context.Background(), cfg.Database.DSN)
		if err != nil {
			appLogger.Fatal("Failed to connect to database", "error", err)
		}
		defer dbPool.Close()

		if err := dbPool.Ping(context.Background()); err != nil {
			appLogger.Fatal("Failed to ping database", "error", err)
		}
		appLogger.Info("Database connection established")
	} else {
		appLogger.Warn("No database DSN configured, session logs are kept in memory")
	}

	// Подключение к Redis (опционально: без него баны не переживают рестарт)
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(context.Background()).Err(); err != nil {
			appLogger.Fatal("Failed to connect to Redis", "error", err)
		}
		appLogger.Info("Redis connection established")
	} else {
		appLogger.Warn("No Redis address configured, ban records are not persisted")
	}

	// Инициализация репозиториев
	repos := repository.NewRepositories(dbPool, rdb, appLogger)

	// Клиент LiveKit
	roomService := transport.NewLiveKitRoomService(cfg.LiveKit.URL, cfg.LiveKit.APIKey, cfg.LiveKit.APISecret, appLogger)

	// Инициализация сервисов
	services := service.NewServices(repos, cfg, roomService, appLogger)

	// Инициализация middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT, appLogger)

	// Инициализация handlers
	handlers := handler.NewHandlers(services, cfg, appLogger)

	// Настройка роутера
	router := setupRouter(handlers, authMiddleware, cfg, appLogger)

	// Запуск HTTP сервера
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		appLogger.Info("Starting server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Ожидание сигнала для graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Fatal("Server forced to shutdown", "error", err)
	}

	appLogger.Info("Server exited")
}

func setupRouter(
	handlers *handler.Handlers,
	authMiddleware *middleware.AuthMiddleware,
	cfg *config.Config,
	log logger.Logger,
) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.ErrorHandler())

	// Health check
	router.GET("/health", handlers.Health.Check)

	// Server info - настройки подключения для клиентов
	router.GET("/server-info", handlers.Health.ServerInfo)

	// API v1
	v1 := router.Group("/api/v1")

	// Защищенные endpoints: вызывает backend маркетплейса, не конечный пользователь
	protected := v1.Group("")
	protected.Use(authMiddleware.RequireAuth())
	{
		rooms := protected.Group("/rooms")
		{
			rooms.POST("", handlers.Rooms.Create)
			rooms.GET("", handlers.Rooms.List)
			rooms.PATCH("/:id/metadata", handlers.Rooms.UpdateMetadata)
			rooms.DELETE("/:id", handlers.Rooms.End)
			rooms.POST("/:id/token", handlers.Rooms.CreateToken)
			rooms.GET("/:id/logs", handlers.Logs.GetByRoom)
		}
	}

	// WebSocket endpoint для наблюдения за событиями комнаты
	router.GET("/ws/rooms/:id/events", handlers.Monitor.StreamEvents)

	return router
}
