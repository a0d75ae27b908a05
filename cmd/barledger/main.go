package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/barledger/internal/app"
	"github.com/odyssey-erp/barledger/internal/catalog"
	"github.com/odyssey-erp/barledger/internal/expense"
	"github.com/odyssey-erp/barledger/internal/identity"
	"github.com/odyssey-erp/barledger/internal/ledger"
	"github.com/odyssey-erp/barledger/internal/observability"
	"github.com/odyssey-erp/barledger/internal/platform/cache"
	"github.com/odyssey-erp/barledger/internal/platform/db"
	"github.com/odyssey-erp/barledger/internal/shared"
	"github.com/odyssey-erp/barledger/internal/workspace"
	workspacehttp "github.com/odyssey-erp/barledger/internal/workspace/http"
	"github.com/odyssey-erp/barledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, db.Options{DSN: cfg.PGDSN, MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	if err := db.EnsureSchema(ctx, dbpool); err != nil {
		logger.Error("ensure schema", slog.Any("error", err))
		os.Exit(1)
	}

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

	ingestDefaults, err := cfg.IngestDefaults()
	if err != nil {
		logger.Error("ingest defaults", slog.Any("error", err))
		os.Exit(1)
	}

	sessionManager := shared.NewSessionManager(redisClient, "barledger_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	auditLogger := shared.NewAuditLogger(dbpool)
	metrics := observability.NewMetrics()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	registry := workspace.NewRegistry(workspace.Deps{
		Catalog:  catalog.NewRepository(dbpool),
		Expenses: expense.NewRepository(dbpool),
		Ledger:   ledger.NewRepository(dbpool),
		Audit:    auditLogger,
		Locker:   shared.NewTenantLocker(redisClient, cfg.SaveLockTTL).WithWait(cfg.SaveLockWait),
		Notifier: jobClient,
		Observer: metrics,
		Defaults: ingestDefaults,
		Logger:   logger,
	})

	identityService := identity.NewService(
		identity.NewRepository(dbpool),
		identity.NewCache(redisClient, cfg.IdentityCacheTTL),
		logger,
	)
	identityHandler := identity.NewHandler(logger, identityService, sessionManager, csrfManager, registry)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		IdentityHandler:    identityHandler,
		IdentityMiddleware: identity.Middleware{Service: identityService, Logger: logger},
		WorkspaceHandler:   workspacehttp.NewHandler(logger, registry),
		JobHandler:         jobs.NewHandler(inspector, logger),
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
