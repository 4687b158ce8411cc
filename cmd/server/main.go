package main

import (
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/xaenox/linkstash/internal/api"
	"github.com/xaenox/linkstash/internal/backup"
	"github.com/xaenox/linkstash/internal/bot"
	"github.com/xaenox/linkstash/internal/ingest"
	"github.com/xaenox/linkstash/internal/provider"
	"github.com/xaenox/linkstash/internal/search"
	"github.com/xaenox/linkstash/internal/storage"
	"github.com/xaenox/linkstash/internal/worker"
	"github.com/xaenox/linkstash/pkg/config"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", "config.yaml"))
	}

	// Initialize storage
	var store storage.Storage
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory storage")
		store = storage.NewMemoryStorage()
	} else {
		logger.Info("Using PostgreSQL storage")
		store, err = storage.NewPostgresStorage(storage.DatabaseConfig{
			Host:        cfg.Database.Host,
			Port:        cfg.Database.Port,
			User:        cfg.Database.User,
			Password:    cfg.Database.Password,
			DBName:      cfg.Database.DBName,
			SSLMode:     cfg.Database.SSLMode,
			UseInMemory: cfg.Database.UseInMemory,
		})
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	}
	defer store.Close()

	// Initialize the AI provider and local fallback tagger
	aiProvider := provider.NewOpenAIProvider(provider.OpenAIConfig{
		APIKey:             cfg.OpenAI.APIKey,
		Model:              cfg.OpenAI.Model,
		VisionModel:        cfg.OpenAI.VisionModel,
		TranscriptionModel: cfg.OpenAI.TranscriptionModel,
		MaxTokens:          cfg.OpenAI.MaxTokens,
		Temperature:        cfg.OpenAI.Temperature,
	}, cfg.Tagger.MaxTags, logger)
	fallback := provider.NewKeywordTagger(cfg.Tagger.MaxTags)

	// Initialize the enrichment pool
	pool := worker.NewPool(store, aiProvider, fallback, worker.Config{
		PoolSize:    cfg.Worker.PoolSize,
		QueueSize:   cfg.Worker.QueueSize,
		MaxAttempts: cfg.Worker.MaxAttempts,
		BaseBackoff: cfg.Worker.BaseBackoff,
		CallTimeout: cfg.Worker.CallTimeout,
	}, logger)
	if err := pool.Start(); err != nil {
		logger.Fatal("Failed to start enrichment workers", zap.Error(err))
	}
	defer pool.Stop()

	gateway := ingest.NewGateway(store, pool, logger)
	engine := search.NewEngine(store, aiProvider, search.Config{
		CandidateLimit: cfg.Search.CandidateLimit,
		RankLimit:      cfg.Search.RankLimit,
		CallTimeout:    cfg.Search.CallTimeout,
	}, logger)
	codec := backup.NewCodec(store, logger)

	// Optional Telegram capture surface
	if cfg.Telegram.Enabled && cfg.Telegram.Token != "" {
		captureBot, err := bot.New(cfg.Telegram.Token, gateway, store, engine, logger)
		if err != nil {
			logger.Fatal("Failed to create Telegram bot", zap.Error(err))
		}
		go func() {
			if err := captureBot.Start(); err != nil {
				logger.Error("Telegram bot error", zap.Error(err))
			}
		}()
		defer captureBot.Stop()
	}

	server := api.NewServer(store, gateway, engine, codec, aiProvider, logger)

	go func() {
		if err := server.Start(cfg.Server.Host, cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	if err := server.Stop(); err != nil {
		logger.Error("Failed to stop HTTP server", zap.Error(err))
	}
}
