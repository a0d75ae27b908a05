package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/barledger/internal/app"
	"github.com/odyssey-erp/barledger/internal/identity"
	jobmetrics "github.com/odyssey-erp/barledger/internal/jobs"
	"github.com/odyssey-erp/barledger/internal/ledger"
	"github.com/odyssey-erp/barledger/internal/platform/cache"
	"github.com/odyssey-erp/barledger/internal/platform/db"
	"github.com/odyssey-erp/barledger/internal/shared"
	"github.com/odyssey-erp/barledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, db.Options{DSN: cfg.PGDSN, MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := jobmetrics.NewMetrics(nil)
	identityService := identity.NewService(
		identity.NewRepository(pool),
		identity.NewCache(redisClient, cfg.IdentityCacheTTL),
		logger,
	)
	sweepJob := jobs.NewSubscriptionSweepJob(identityService, logger, metrics)
	archiveJob := jobs.NewSnapshotArchiveJob(ledger.NewRepository(pool), shared.NewAuditLogger(pool), logger, metrics)

	sweepTask, err := jobs.NewSubscriptionSweepTask(time.Now().UTC())
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSubscriptionSweep, Handler: sweepJob.Handle},
			{Type: jobs.TaskSnapshotArchive, Handler: archiveJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.SubscriptionSweepCron, Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
