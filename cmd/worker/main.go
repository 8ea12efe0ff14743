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

	"github.com/medconsult-liberia/medconsult/internal/app"
	"github.com/medconsult-liberia/medconsult/internal/earnings"
	"github.com/medconsult-liberia/medconsult/internal/observability"
	"github.com/medconsult-liberia/medconsult/internal/payouts"
	"github.com/medconsult-liberia/medconsult/internal/platform/cache"
	"github.com/medconsult-liberia/medconsult/internal/platform/db"
	"github.com/medconsult-liberia/medconsult/internal/reporting"
	"github.com/medconsult-liberia/medconsult/internal/shared"
	"github.com/medconsult-liberia/medconsult/jobs"
	"github.com/medconsult-liberia/medconsult/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadBaseConfig()
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
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	jobMetrics := metrics.Jobs()

	jobClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	earningsService := earnings.NewService(earnings.NewRepository(pool))
	payoutsService := payouts.NewService(
		payouts.NewRepository(pool),
		earningsService,
		cache.NewLocker(redisClient, cfg.PayoutLockTTL),
		jobClient,
		metrics,
		logger,
		payouts.Options{AllowOverpayment: cfg.PayoutAllowOverpayment},
	)
	reportingRepo := reporting.NewRepository(pool)
	reportingService := reporting.NewService(reportingRepo, earningsService, payoutsService)

	renderer, err := report.NewRenderer(report.NewClient(cfg.GotenbergURL))
	if err != nil {
		logger.Error("init report renderer", slog.Any("error", err))
		os.Exit(1)
	}

	remittance := jobs.NewRemittanceNotifier(jobs.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom), logger, jobMetrics)
	archiveJob := reporting.NewArchiveJob(reporting.ArchiveJobConfig{
		Service:    reportingService,
		Renderer:   renderer,
		Store:      reportingRepo,
		StorageDir: cfg.ReportStorageDir,
		Logger:     logger,
		Metrics:    jobMetrics,
	})
	reconciliation := payouts.NewReconciliationJob(payoutsService, logger, jobMetrics)
	cleanup := jobs.NewIdempotencyCleanup(shared.NewIdempotencyStore(pool), cfg.IdempotencyRetention, logger, jobMetrics)

	archiveTask, err := jobs.NewReportArchiveTask(jobs.ReportArchivePayload{})
	if err != nil {
		logger.Error("build archive task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRemittanceNotice, Handler: remittance.Handle},
			{Type: jobs.TaskReportArchive, Handler: archiveJob.Handle},
			{Type: jobs.TaskReconciliationScan, Handler: reconciliation.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanup.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 2 * * *", Task: jobs.NewReconciliationScanTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 3 1 * *", Task: archiveTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 3 * * *", Task: jobs.NewIdempotencyCleanupTask(), Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
