// The hold sweeper cancels hold appointments whose expiry has passed. Every
// read path already treats an expired hold as vacant; the sweeper only keeps
// the table tidy so stale rows do not pile up behind the exclusion
// constraint.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/careloop/practice-scheduling/internal/booking"
	"github.com/careloop/practice-scheduling/internal/config"
	"github.com/careloop/practice-scheduling/internal/db"
	"github.com/careloop/practice-scheduling/internal/logging"
	"github.com/careloop/practice-scheduling/internal/observability/metrics"
	"github.com/careloop/practice-scheduling/internal/practice"
	redisclient "github.com/careloop/practice-scheduling/internal/redisclient"
)

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

	logger.Info("hold-sweeper starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.SweepInterval))

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

	rdb, err := redisclient.Connect(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal("redis connection error", zap.Error(err))
	}
	defer func() { _ = rdb.Close() }()

	m := metrics.NewSchedulingMetrics(nil)
	locker := redisclient.NewRedisPracticeLocker(rdb, cfg.LockTTL)
	practiceSvc := practice.NewService(practice.NewPgRepository(pgPool), logger)
	svc := booking.NewService(booking.NewPgRepository(pgPool), practiceSvc, locker, cfg.HoldTTL, logger, m)

	runOnce(rootCtx, svc, logger)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping hold sweeper")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *booking.Service, logger *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	n, err := svc.ExpireHolds(runCtx)
	if err != nil {
		logger.Error("sweep run error", zap.Error(err))
		return
	}
	logger.Info("sweep run complete",
		zap.Int("holds_canceled", n),
		zap.Duration("took", time.Since(start)))
}
