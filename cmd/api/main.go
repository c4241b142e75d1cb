package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/docqa/backend/internal/agent"
	"github.com/docqa/backend/internal/agent/retrieval"
	"github.com/docqa/backend/internal/agent/tabular"
	"github.com/docqa/backend/internal/agent/vision"
	"github.com/docqa/backend/internal/api"
	"github.com/docqa/backend/internal/auth"
	"github.com/docqa/backend/internal/cache/redis"
	"github.com/docqa/backend/internal/history"
	"github.com/docqa/backend/internal/ingestion"
	"github.com/docqa/backend/internal/intake"
	"github.com/docqa/backend/internal/llm"
	"github.com/docqa/backend/internal/query"
	"github.com/docqa/backend/internal/selector"
	"github.com/docqa/backend/internal/storage/sqlite"
	"github.com/docqa/backend/internal/summary"
	"github.com/docqa/backend/internal/vector/milvus"
	"github.com/docqa/backend/pkg/config"
	"github.com/docqa/backend/pkg/logger"
)

const reasoningBudget = 15

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("%v", err)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath); err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	for _, dir := range []string{cfg.Storage.UploadDir, cfg.Storage.LockDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Fatal("Failed to create directory", zap.String("dir", dir), zap.Error(err))
		}
	}

	db, err := sqlite.NewClient(cfg.Storage.SQLitePath)
	if err != nil {
		logger.Fatal("Failed to open database", zap.Error(err))
	}
	defer db.Close()

	if err := db.InitSchema(); err != nil {
		logger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	vectors, err := milvus.NewClient(cfg.Milvus.Endpoint, cfg.Milvus.CollectionPrefix, cfg.Milvus.VectorDim)
	if err != nil {
		logger.Fatal("Failed to connect to Milvus", zap.Error(err))
	}
	defer vectors.Close()

	var cacheClient *redis.Client
	if cfg.Redis.Enabled {
		cacheClient, err = redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warn("Redis unavailable, continuing without cache", zap.Error(err))
			cacheClient = nil
		} else {
			defer cacheClient.Close()
		}
	}

	llmClient := llm.NewClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		Model:          cfg.LLM.Model,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		VisionModel:    cfg.LLM.VisionModel,
		Temperature:    cfg.LLM.Temperature,
		MaxTokens:      cfg.LLM.MaxTokens,
		TimeoutSec:     cfg.LLM.TimeoutSec,
	})

	tokens := auth.NewTokenIssuer(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTLMin)*time.Minute)
	authSvc := auth.NewService(db, tokens, cfg.Auth.BcryptCost)

	var embedder interface {
		GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
		GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
	} = llmClient
	if cacheClient != nil {
		embedder = redis.NewCachingEmbedder(llmClient, cacheClient)
	}

	saver := intake.NewSaver(cfg.Storage.UploadDir)
	processor := ingestion.NewProcessor(
		embedder, vectors, db,
		cfg.Storage.LockDir, cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap,
	)
	summarizer := summary.NewSummarizer(llmClient, db, cfg.Storage.UploadDir)

	router := agent.NewRouter()
	router.Register(tabular.New(llmClient, summarizer, reasoningBudget), ".csv", ".xls", ".xlsx")
	router.Register(retrieval.New(embedder, vectors, llmClient, 5), ".pdf", ".txt", ".md", ".docx")
	router.Register(vision.New(llmClient, reasoningBudget), ".png", ".jpg", ".jpeg")

	sel, err := selector.New(cfg.Selector.Strategy, summarizer, llmClient, embedder, cfg.Storage.UploadDir)
	if err != nil {
		logger.Fatal("Failed to build selector", zap.Error(err))
	}

	var answerCache query.Cache
	if cacheClient != nil {
		answerCache = cacheClient
	}

	querySvc := query.NewService(db, router, sel, history.NewManager(db), answerCache)

	// summarize anything uploaded before summaries existed
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		created, err := summarizer.Backfill(ctx)
		if err != nil {
			logger.Warn("Summary backfill failed", zap.Error(err))
			return
		}
		if created > 0 {
			logger.Info("Summary backfill completed", zap.Int("created", created))
		}
	}()

	deps := api.Deps{
		Config:     cfg,
		Auth:       authSvc,
		Tokens:     tokens,
		Query:      querySvc,
		Saver:      saver,
		Processor:  processor,
		Summarizer: summarizer,
		Docs:       db,
	}
	if cacheClient != nil {
		deps.Cache = cacheClient
	}

	app := api.NewApp(deps)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		logger.Info("Server starting", zap.String("addr", addr))
		if err := app.Listen(addr); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	if err := app.ShutdownWithTimeout(15 * time.Second); err != nil {
		logger.Error("Shutdown failed", zap.Error(err))
	}
	logger.Info("Server stopped")
}
