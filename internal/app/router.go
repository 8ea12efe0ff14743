package app

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/medconsult-liberia/medconsult/internal/assignments"
	"github.com/medconsult-liberia/medconsult/internal/dashboard"
	"github.com/medconsult-liberia/medconsult/internal/earnings"
	"github.com/medconsult-liberia/medconsult/internal/expenses"
	"github.com/medconsult-liberia/medconsult/internal/observability"
	"github.com/medconsult-liberia/medconsult/internal/payouts"
	"github.com/medconsult-liberia/medconsult/internal/platform/httpx"
	"github.com/medconsult-liberia/medconsult/internal/rbac"
	"github.com/medconsult-liberia/medconsult/internal/reporting"
	"github.com/medconsult-liberia/medconsult/internal/transactions"
	"github.com/medconsult-liberia/medconsult/jobs"
)

// ReadinessCheck checks one backing service.
type ReadinessCheck func(ctx context.Context) error

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	RBACMiddleware rbac.Middleware
	Metrics        *observability.Metrics
	Readiness      map[string]ReadinessCheck

	TransactionsHandler *transactions.Handler
	ExpensesHandler     *expenses.Handler
	AssignmentsHandler  *assignments.Handler
	EarningsHandler     *earnings.Handler
	PayoutsHandler      *payouts.Handler
	ReportingHandler    *reporting.Handler
	DashboardHandler    *dashboard.Handler
	JobHandler          *jobs.Handler
}

// NewRouter constructs the chi.Router with MedConsult defaults.
func NewRouter(params RouterParams) http.Handler {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}
	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readinessHandler(logger, params.Readiness))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(params.RBACMiddleware.Authenticate)
		if params.TransactionsHandler != nil {
			params.TransactionsHandler.MountRoutes(r)
		}
		if params.ExpensesHandler != nil {
			params.ExpensesHandler.MountRoutes(r)
		}
		if params.AssignmentsHandler != nil {
			params.AssignmentsHandler.MountRoutes(r)
		}
		if params.EarningsHandler != nil {
			params.EarningsHandler.MountRoutes(r)
		}
		if params.PayoutsHandler != nil {
			params.PayoutsHandler.MountRoutes(r)
		}
		if params.ReportingHandler != nil {
			params.ReportingHandler.MountRoutes(r)
		}
		if params.DashboardHandler != nil {
			params.DashboardHandler.MountRoutes(r)
		}
		if params.JobHandler != nil {
			r.With(params.RBACMiddleware.RequireAny(rbac.RoleAdmin)).Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, "Method Not Allowed", "")
	})
	return r
}

type readiness struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func readinessHandler(logger *slog.Logger, checks map[string]ReadinessCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		out := readiness{Status: "ok", Checks: make(map[string]string, len(names))}
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				logger.Warn("readiness check failed", slog.String("check", name), slog.Any("error", err))
				out.Status = "degraded"
				out.Checks[name] = "unavailable"
				continue
			}
			out.Checks[name] = "ok"
		}
		status := http.StatusOK
		if out.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		httpx.JSON(w, status, out)
	}
}
