package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"mypharma/backend/internal/advisor"
	"mypharma/backend/internal/cache"
	"mypharma/backend/internal/config"
	"mypharma/backend/internal/httpapi"
	"mypharma/backend/internal/jobs"
	"mypharma/backend/internal/logging"
	"mypharma/backend/internal/service"
	"mypharma/backend/internal/store"
	"mypharma/backend/internal/store/memory"
	pgstore "mypharma/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()

	logger, err := logging.Setup(logging.Options{Level: cfg.LogLevel, Mode: cfg.LogMode, File: cfg.LogFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger setup failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := validateSecurityConfig(cfg); err != nil {
		zap.S().Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			zap.S().Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			zap.S().Fatalf("schema migration failed: %v", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		zap.S().Info("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		zap.S().Info("repository: in-memory (demo pharmacy seeded)")
	}

	var cacheStore cache.Cache = cache.NewMemory()
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			zap.S().Warnw("redis unavailable, using in-process cache", "error", err)
		} else {
			cacheStore = redisCache
			closers = append(closers, redisCache.Close)
			zap.S().Info("cache: redis")
		}
	} else {
		zap.S().Info("cache: in-process")
	}

	alerts := advisor.New(cacheStore, 10*time.Minute, cfg.LowStockThreshold, cfg.ExpiryWarningDays)
	svc := service.New(repo, alerts, cacheStore, service.Options{
		SaleTxTimeout:     cfg.SaleTxTimeout,
		StatsCacheTTL:     cfg.StatsCacheTTL,
		LowStockThreshold: cfg.LowStockThreshold,
	})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	scheduler := jobs.New(svc)
	if err := scheduler.Start(cfg.AlertSchedule); err != nil {
		zap.S().Fatalf("invalid ALERT_SCHEDULE %q: %v", cfg.AlertSchedule, err)
	}

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		zap.S().Infof("pharmacy backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.S().Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zap.S().Warnw("shutdown error", "error", err)
	}

	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		zap.S().Warn("alert scan still running at shutdown")
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			zap.S().Warnw("close error", "error", err)
		}
	}

	zap.S().Info("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.SaleTxTimeout <= 0 {
		return fmt.Errorf("SALE_TX_TIMEOUT_SECONDS must be positive")
	}
	return nil
}
