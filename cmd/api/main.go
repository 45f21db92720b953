package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"voicemail-gateway/internal/config"
	"voicemail-gateway/internal/storage"
	"voicemail-gateway/internal/voicemail"
	"voicemail-gateway/pkg/logger"
)

func main() {
	// Optional env-file for local runs; real deployments set env directly.
	_ = godotenv.Load()

	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	store, closeStore, err := openStore(rootCtx, cfg.Storage)
	if err != nil {
		log.Error("storage init failed", "backend", cfg.Storage.Backend, "err", err)
		os.Exit(1)
	}
	defer closeStore()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	h := voicemail.Handlers{
		Cfg:         cfg.Voicemail,
		ObjectStore: store,
		Index:       storage.NewIndex(store),
		Validator:   voicemail.NewPayloadValidator(),
	}
	registerRoutes(r, h)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "provider", cfg.Voicemail.Provider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}

func openStore(ctx context.Context, cfg config.StorageConfig) (storage.ObjectStore, func(), error) {
	switch cfg.Backend {
	case "redis":
		rs, err := storage.OpenRedis(ctx, storage.RedisOptions{Addr: cfg.RedisAddr()})
		if err != nil {
			return nil, nil, err
		}
		return rs, func() { _ = rs.Close() }, nil
	case "postgres":
		ps, err := storage.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), storage.PostgresPoolConfig{})
		if err != nil {
			return nil, nil, err
		}
		return ps, func() { _ = ps.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
