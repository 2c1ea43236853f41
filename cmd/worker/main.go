// Command worker runs the background job server: the scheduled low-stock
// scan and the stock snapshot rebuild.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/meridian-erp/meridian/internal/app"
	"github.com/meridian-erp/meridian/internal/ledger"
	"github.com/meridian-erp/meridian/internal/masterdata"
	"github.com/meridian-erp/meridian/internal/observability"
	"github.com/meridian-erp/meridian/internal/platform/cache"
	"github.com/meridian-erp/meridian/internal/platform/db"
	"github.com/meridian-erp/meridian/jobs"
)

func main() {
	_ = godotenv.Load()

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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, snapshot priming disabled", slog.Any("error", err))
		redisClient = nil
	}

	store := ledger.NewPGStore(pool)
	view := ledger.NewStockView(store, redisClient, cfg.StockCacheTTL, logger)
	catalog := masterdata.NewRepository(pool)

	scanner := jobs.NewLowStockScanner(catalog, store, logger)
	rebuilder := jobs.NewSnapshotRebuilder(jobs.NewPGAggregator(pool), view, logger)

	lowStockTask, err := jobs.NewLowStockScanTask()
	if err != nil {
		logger.Error("build low stock task", slog.Any("error", err))
		os.Exit(1)
	}
	snapshotTask, err := jobs.NewStockSnapshotTask()
	if err != nil {
		logger.Error("build snapshot task", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    logger,
		Scanner:   scanner,
		Rebuilder: rebuilder,
		Metrics:   metrics,
		Cron: []jobs.CronRegistration{
			{Spec: cfg.LowStockCron, Task: lowStockTask},
			{Spec: cfg.StockSnapshotCron, Task: snapshotTask},
		},
	})
	if err != nil {
		logger.Error("build worker", slog.Any("error", err))
		os.Exit(1)
	}

	// Small ops surface next to the queue consumer: queue depth and metrics.
	opsRouter := chi.NewRouter()
	jobs.NewHandler(asynq.NewInspector(redisOpts), logger).MountRoutes(opsRouter)
	opsRouter.Method(http.MethodGet, "/metrics", metrics.Handler())
	opsSrv := &http.Server{Addr: cfg.WorkerAddr, Handler: opsRouter}
	go func() {
		logger.Info("worker ops server listening", slog.String("addr", cfg.WorkerAddr))
		if err := opsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("worker ops server", slog.Any("error", err))
		}
	}()
	defer func() { _ = opsSrv.Close() }()

	logger.Info("worker started",
		slog.String("low_stock_cron", cfg.LowStockCron),
		slog.String("snapshot_cron", cfg.StockSnapshotCron))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
