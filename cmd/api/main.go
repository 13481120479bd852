package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/quality-agent/backend/internal/api/handlers"
	redisCache "github.com/quality-agent/backend/internal/cache/redis"
	"github.com/quality-agent/backend/internal/llm"
	"github.com/quality-agent/backend/internal/metrics"
	"github.com/quality-agent/backend/internal/middleware/ratelimit"
	"github.com/quality-agent/backend/internal/middleware/security"
	"github.com/quality-agent/backend/internal/middleware/validation"
	"github.com/quality-agent/backend/internal/pipeline"
	"github.com/quality-agent/backend/internal/session"
	"github.com/quality-agent/backend/internal/storage/sqlite"
	"github.com/quality-agent/backend/pkg/config"
	appLogger "github.com/quality-agent/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting quality analysis agent API server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	err = sqliteClient.SeedSampleData()
	if err != nil {
		appLogger.Warn("Failed to seed sample data", zap.Error(err))
	}

	llmClient := llm.NewClient(llm.Config{
		APIKey:             cfg.LLM.APIKey,
		BaseURL:            cfg.LLM.BaseURL,
		Model:              cfg.LLM.Model,
		Temperature:        cfg.LLM.Temperature,
		MaxTokens:          cfg.LLM.MaxTokens,
		Timeout:            time.Duration(cfg.LLM.TimeoutSec) * time.Second,
		StructuredAttempts: cfg.LLM.StructuredAttempts,
		TempStep:           cfg.LLM.TempStep,
		TempCeiling:        cfg.LLM.TempCeiling,
	})

	sessions := session.NewStore()
	for i := 0; i < cfg.Pipeline.SeedSessions; i++ {
		sessions.Create()
	}

	engine := pipeline.NewEngine(llmClient, sqliteClient, sessions, pipeline.Options{
		HistoryWindow:          cfg.Pipeline.HistoryWindow,
		SQLHistoryWindow:       cfg.Pipeline.SQLHistoryWindow,
		MaxConfirmationRetries: cfg.Pipeline.MaxConfirmationRetries,
	}).WithRecorder(sqliteClient)

	if cfg.Redis.Enabled {
		cacheClient, err := redisCache.NewClient(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
			time.Duration(cfg.Redis.ConceptTTLMin)*time.Minute,
		)
		if err != nil {
			appLogger.Warn("Redis unavailable, concept caching disabled", zap.Error(err))
		} else {
			defer cacheClient.Close()
			engine.WithCache(cacheClient)
		}
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	limiter := ratelimit.New(ratelimit.Config{})
	defer limiter.Stop()

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, X-Session-ID",
		AllowMethods: "GET, POST, DELETE, OPTIONS",
	}))
	app.Use(security.Middleware(security.HeadersConfig{
		IsDevelopment: cfg.Logging.Level == "debug",
	}))
	app.Use(limiter.Middleware())
	app.Use(validation.Middleware(validation.Config{}))

	chatHandler := handlers.NewChatHandler(engine)
	sessionHandler := handlers.NewSessionHandler(sessions)
	dashboardHandler := handlers.NewDashboardHandler(sqliteClient)
	wsHandler := handlers.NewWebSocketHandler(engine)

	api := app.Group("/api")

	api.Post("/chat", chatHandler.HandleChat)

	api.Post("/sessions", sessionHandler.CreateSession)
	api.Get("/sessions", sessionHandler.ListSessions)
	api.Get("/sessions/:id", sessionHandler.GetSession)
	api.Post("/sessions/:id/reset", sessionHandler.ResetSession)
	api.Delete("/sessions/:id", sessionHandler.DeleteSession)

	api.Get("/dashboard/yearly", dashboardHandler.YearlyDefectRate)
	api.Get("/dashboard/monthly", dashboardHandler.MonthlyDefectRate)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/chat", websocket.New(wsHandler.HandleConnection))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
