package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hseong/llmchess/internal/archive"
	"github.com/hseong/llmchess/internal/config"
	"github.com/hseong/llmchess/internal/game"
	"github.com/hseong/llmchess/internal/llm"
	"github.com/hseong/llmchess/internal/obslog"
	"github.com/hseong/llmchess/internal/render"
	"github.com/hseong/llmchess/internal/server"
	"github.com/hseong/llmchess/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var snapshots game.SnapshotStore
	if cfg.RedisURL != "" {
		redisStore, err := store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal("redis init failed", zap.Error(err))
		}
		defer func() { _ = redisStore.Close() }()
		snapshots = redisStore
		logger.Info("snapshot store: redis")
	} else {
		snapshots = store.NewMemoryStore()
		logger.Info("snapshot store: memory")
	}

	var repo archive.Repository
	if cfg.DatabaseURL != "" {
		repo, err = archive.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("database init failed", zap.Error(err))
		}
		logger.Info("archive: postgres")
	} else {
		repo = archive.NewMemoryRepository()
		logger.Info("archive: memory")
	}

	factory := func(apiKey, _ string) llm.Completer {
		return llm.NewClient(cfg.LLMBaseURL, apiKey,
			llm.WithTimeout(time.Duration(cfg.LLMTimeoutSec)*time.Second))
	}

	manager := game.NewManager(game.ManagerConfig{
		KeyPrefix:      cfg.LLMKeyPrefix,
		DefaultModel:   cfg.LLMModel,
		ClockSeconds:   cfg.ClockInitialSeconds,
		HistoryWindow:  cfg.HistoryWindow,
		Temperature:    cfg.LLMTemperature,
		RequestTimeout: time.Duration(cfg.LLMTimeoutSec) * time.Second,
		TickInterval:   time.Second,
		SnapshotTTL:    time.Duration(cfg.SessionTTLSec) * time.Second,
	}, factory, snapshots, repo)
	defer manager.Close()

	srv := server.New(manager, render.NewRenderer(), repo)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Listen(cfg.HTTPAddr) }()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal("server failed", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Close(shutdownCtx); err != nil {
			logger.Warn("shutdown error", zap.Error(err))
		}
	}
}
