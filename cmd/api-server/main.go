package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/careloop/practice-scheduling/internal/api"
	"github.com/careloop/practice-scheduling/internal/booking"
	"github.com/careloop/practice-scheduling/internal/config"
	"github.com/careloop/practice-scheduling/internal/db"
	"github.com/careloop/practice-scheduling/internal/logging"
	"github.com/careloop/practice-scheduling/internal/observability/metrics"
	"github.com/careloop/practice-scheduling/internal/practice"
	redisclient "github.com/careloop/practice-scheduling/internal/redisclient"
	"github.com/careloop/practice-scheduling/internal/schedule"
)

const version = "0.3.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("version", version))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	migrator, err := db.NewMigrator(pgPool)
	if err != nil {
		logger.Fatal("migrator init error", zap.Error(err))
	}
	if err := migrator.Run(rootCtx); err != nil {
		logger.Fatal("migration error", zap.Error(err))
	}
	if v, err := migrator.Version(rootCtx); err == nil {
		logger.Info("migrations applied", zap.Int64("version", v))
	}
	_ = migrator.Close()

	rdb, err := redisclient.Connect(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", zap.Error(err))
		}
	}()
	logger.Info("connected to Redis")

	m := metrics.NewSchedulingMetrics(nil)
	locker := redisclient.NewRedisPracticeLocker(rdb, cfg.LockTTL)

	practiceSvc := practice.NewService(practice.NewPgRepository(pgPool), logger)
	bookingSvc := booking.NewService(booking.NewPgRepository(pgPool), practiceSvc, locker, cfg.HoldTTL, logger, m)

	gridCfg := schedule.GridConfig{
		WindowStartMinute: cfg.GridWindowStartMinute,
		WindowEndMinute:   cfg.GridWindowEndMinute,
		StepMinutes:       cfg.GridStepMinutes,
	}
	scheduleSvc := schedule.NewService(schedule.NewPgRepository(pgPool), bookingSvc, practiceSvc, gridCfg, cfg.CarveMinutes, logger, m)

	router := api.NewRouter(api.RouterConfig{
		Schedule:  scheduleSvc,
		Booking:   bookingSvc,
		Practices: practiceSvc,
		PgPool:    pgPool,
		Redis:     rdb,
		Logger:    logger,
		Metrics:   m,
		Env:       cfg.Env,
		Version:   version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-rootCtx.Done()
	logger.Info("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
