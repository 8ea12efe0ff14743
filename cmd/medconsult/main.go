package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/medconsult-liberia/medconsult/internal/app"
	"github.com/medconsult-liberia/medconsult/internal/assignments"
	"github.com/medconsult-liberia/medconsult/internal/dashboard"
	"github.com/medconsult-liberia/medconsult/internal/earnings"
	"github.com/medconsult-liberia/medconsult/internal/expenses"
	"github.com/medconsult-liberia/medconsult/internal/observability"
	"github.com/medconsult-liberia/medconsult/internal/payouts"
	"github.com/medconsult-liberia/medconsult/internal/platform/cache"
	"github.com/medconsult-liberia/medconsult/internal/platform/db"
	"github.com/medconsult-liberia/medconsult/internal/rbac"
	"github.com/medconsult-liberia/medconsult/internal/reporting"
	"github.com/medconsult-liberia/medconsult/internal/transactions"
	"github.com/medconsult-liberia/medconsult/jobs"
	"github.com/medconsult-liberia/medconsult/report"
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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
	rbacMiddleware := rbac.Middleware{Verifier: rbac.NewTokenVerifier(cfg.JWTSecret, cfg.JWTIssuer), Logger: logger}

	jobClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	earningsService := earnings.NewService(earnings.NewRepository(dbpool))
	payoutsService := payouts.NewService(
		payouts.NewRepository(dbpool),
		earningsService,
		cache.NewLocker(redisClient, cfg.PayoutLockTTL),
		jobClient,
		metrics,
		logger,
		payouts.Options{AllowOverpayment: cfg.PayoutAllowOverpayment},
	)
	reportingService := reporting.NewService(reporting.NewRepository(dbpool), earningsService, payoutsService)
	dashboardService := dashboard.NewService(reportingService, earningsService, payoutsService, payoutsService, logger)

	pdfClient := report.NewClient(cfg.GotenbergURL)
	renderer, err := report.NewRenderer(pdfClient)
	if err != nil {
		logger.Error("init report renderer", slog.Any("error", err))
		os.Exit(1)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		RBACMiddleware: rbacMiddleware,
		Metrics:        metrics,
		Readiness: map[string]app.ReadinessCheck{
			"postgres":  dbpool.Ping,
			"redis":     func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
			"gotenberg": pdfClient.Ping,
		},
		TransactionsHandler: transactions.NewHandler(logger, transactions.NewService(transactions.NewRepository(dbpool)), rbacMiddleware),
		ExpensesHandler:     expenses.NewHandler(logger, expenses.NewService(expenses.NewRepository(dbpool)), rbacMiddleware),
		AssignmentsHandler:  assignments.NewHandler(logger, assignments.NewService(assignments.NewRepository(dbpool)), rbacMiddleware),
		EarningsHandler:     earnings.NewHandler(logger, earningsService, rbacMiddleware),
		PayoutsHandler:      payouts.NewHandler(logger, payoutsService, rbacMiddleware),
		ReportingHandler:    reporting.NewHandler(logger, reportingService, renderer, jobClient, rbacMiddleware),
		DashboardHandler:    dashboard.NewHandler(logger, dashboardService, rbacMiddleware),
		JobHandler:          jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
