package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/kovaldeep/backend/internal/api/handlers"
	rediscache "github.com/kovaldeep/backend/internal/cache/redis"
	"github.com/kovaldeep/backend/internal/embedding"
	"github.com/kovaldeep/backend/internal/ingestion"
	"github.com/kovaldeep/backend/internal/knowledge"
	"github.com/kovaldeep/backend/internal/metrics"
	"github.com/kovaldeep/backend/internal/middleware/ratelimit"
	"github.com/kovaldeep/backend/internal/middleware/security"
	"github.com/kovaldeep/backend/internal/middleware/validation"
	"github.com/kovaldeep/backend/internal/retrieval"
	"github.com/kovaldeep/backend/internal/storage/sqlite"
	"github.com/kovaldeep/backend/internal/vector/pinecone"
	"github.com/kovaldeep/backend/pkg/config"
	appLogger "github.com/kovaldeep/backend/pkg/logger"
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

	appLogger.Info("Starting knowledge retrieval API server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	if err := sqliteClient.InitSchema(); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	var cache *rediscache.Client
	if cfg.Redis.Enabled {
		cache, err = rediscache.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Warn("Redis unavailable, running without cache", zap.Error(err))
			cache = nil
		} else {
			defer cache.Close()
		}
	}

	pineconeClient, err := pinecone.NewClient(pinecone.Config{
		APIKey:        cfg.Pinecone.APIKey,
		ControllerURL: cfg.Pinecone.ControllerURL,
		IndexName:     cfg.Pinecone.IndexName,
		Environment:   cfg.Pinecone.Environment,
		QueryTimeout:  time.Duration(cfg.Pinecone.QueryTimeoutSec) * time.Second,
		QuickTimeout:  time.Duration(cfg.Pinecone.QuickTimeoutSec) * time.Second,
	})
	if err != nil {
		appLogger.Fatal("Failed to create Pinecone client", zap.Error(err))
	}

	embedder := embedding.NewClient(
		cfg.OpenAI.APIKey,
		cfg.OpenAI.EmbeddingModel,
		cache,
		time.Duration(cfg.Redis.EmbeddingTTLMin)*time.Minute,
	)

	loader := knowledge.NewLoader(cfg.Knowledge.IndexPath, cfg.Knowledge.FallbackPaths)

	service := retrieval.NewService(embedder, pineconeClient, loader, retrieval.Defaults{
		TopK:                    cfg.Retrieval.TopK,
		RetrievalTopK:           cfg.Retrieval.RetrievalTopK,
		Threshold:               cfg.Retrieval.Threshold,
		Confidence:              cfg.Retrieval.Confidence,
		MaxConcurrentNamespaces: cfg.Retrieval.MaxConcurrentNamespaces,
		Namespace:               cfg.Pinecone.Namespace,
	}, cache, time.Duration(cfg.Redis.QueryTTLMin)*time.Minute)

	processor := ingestion.NewProcessor(
		sqliteClient,
		pineconeClient,
		embedder,
		cfg.Pinecone.Namespace,
		cfg.Ingestion.ChunkSize,
		cfg.Ingestion.ChunkOverlap,
	)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: 60,
		Logger:               appLogger.GetLogger(),
	})
	defer limiter.Stop()

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, X-User-ID",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))
	app.Use(limiter.Middleware())
	app.Use(validation.Middleware(validation.Config{
		Logger: appLogger.GetLogger(),
	}))

	queryHandler := handlers.NewQueryHandler(service, sqliteClient)
	indexHandler := handlers.NewIndexHandler(service, pineconeClient)
	documentHandler := handlers.NewDocumentHandler(processor, cfg.Ingestion.DocsDir)
	wsHandler := handlers.NewWebSocketHandler(service)

	api := app.Group("/api/v1")

	api.Post("/query", queryHandler.HandleQuery)
	api.Post("/query/multi", queryHandler.HandleMultiQuery)
	api.Get("/query/history", queryHandler.GetQueryHistory)
	api.Post("/feedback", queryHandler.HandleFeedback)

	api.Get("/index/stats", indexHandler.GetStats)
	api.Get("/index/catalog", indexHandler.GetCatalog)

	api.Post("/documents", documentHandler.IngestDocument)

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
	app.Get("/ws", websocket.New(wsHandler.HandleConnection))

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
