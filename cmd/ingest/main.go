// Command ingest builds the knowledge base offline: it processes every
// document under the configured docs directory, fills the vector index,
// and writes the knowledge index JSON the API server loads at startup.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	rediscache "github.com/kovaldeep/backend/internal/cache/redis"
	"github.com/kovaldeep/backend/internal/embedding"
	"github.com/kovaldeep/backend/internal/ingestion"
	"github.com/kovaldeep/backend/internal/metrics"
	"github.com/kovaldeep/backend/internal/storage/sqlite"
	"github.com/kovaldeep/backend/internal/vector/pinecone"
	"github.com/kovaldeep/backend/pkg/config"
	appLogger "github.com/kovaldeep/backend/pkg/logger"
)

func main() {
	docsDir := flag.String("docs", "", "docs directory (overrides config)")
	indexPath := flag.String("out", "", "knowledge index output path (overrides config)")
	flag.Parse()

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

	metrics.Init()

	if *docsDir == "" {
		*docsDir = cfg.Ingestion.DocsDir
	}
	if *indexPath == "" {
		*indexPath = cfg.Knowledge.IndexPath
	}

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	if err := sqliteClient.InitSchema(); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
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

	embedder := embedding.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.EmbeddingModel, nil, 0)

	processor := ingestion.NewProcessor(
		sqliteClient,
		pineconeClient,
		embedder,
		cfg.Pinecone.Namespace,
		cfg.Ingestion.ChunkSize,
		cfg.Ingestion.ChunkOverlap,
	)

	ctx := context.Background()
	if err := processor.Run(ctx, *docsDir, *indexPath); err != nil {
		appLogger.Fatal("Ingestion failed", zap.Error(err))
	}

	// Cached responses reference the old chunk set; drop them.
	if cfg.Redis.Enabled {
		cache, err := rediscache.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err == nil {
			if err := cache.InvalidateResponses(ctx); err != nil {
				appLogger.Warn("Failed to invalidate response cache", zap.Error(err))
			}
			cache.Close()
		}
	}

	appLogger.Info("Ingestion complete",
		zap.String("docs", *docsDir),
		zap.String("index", *indexPath),
	)
}
