package reporting

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/medconsult-liberia/medconsult/internal/platform/httpx"
	"github.com/medconsult-liberia/medconsult/internal/rbac"
	"github.com/medconsult-liberia/medconsult/jobs"
)

// Generator produces fresh reports.
type Generator interface {
	Generate(ctx context.Context) (Report, error)
}

// Enqueuer schedules archive jobs.
type Enqueuer interface {
	EnqueueReportArchive(ctx context.Context, payload jobs.ReportArchivePayload) (string, error)
}

// Handler serves report endpoints.
type Handler struct {
	logger    *slog.Logger
	generator Generator
	renderer  PDFRenderer
	enqueuer  Enqueuer
	validator *httpx.Validator
	rbac      rbac.Middleware
}

// NewHandler builds the handler. renderer and enqueuer may be nil, in which
// case their endpoints answer 503.
func NewHandler(logger *slog.Logger, generator Generator, renderer PDFRenderer, enqueuer Enqueuer, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, generator: generator, renderer: renderer, enqueuer: enqueuer, validator: httpx.NewValidator(), rbac: mw}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.RoleAdmin, rbac.RoleAccountant, rbac.RoleManagement))
		r.Get("/accountant/report", h.report)
		r.Get("/accountant/report/pdf", h.pdf)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.RoleAdmin, rbac.RoleAccountant))
		r.Post("/accountant/report/archive", h.archive)
	})
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	rep, err := h.generator.Generate(r.Context())
	if err != nil {
		h.logger.Error("generate report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rep)
}

func (h *Handler) pdf(w http.ResponseWriter, r *http.Request) {
	if h.renderer == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "pdf rendering is not configured")
		return
	}
	rep, err := h.generator.Generate(r.Context())
	if err != nil {
		h.logger.Error("generate report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	pdf, err := h.renderer.RenderReport(r.Context(), rep)
	if err != nil {
		h.logger.Error("render report pdf", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Bad Gateway", "pdf rendering failed")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=financial-report-%s.pdf", rep.GeneratedAt.Format("2006-01-02")))
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

type archiveRequest struct {
	Period string `json:"period" validate:"omitempty,datetime=2006-01"`
}

func (h *Handler) archive(w http.ResponseWriter, r *http.Request) {
	if h.enqueuer == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "job queue is not configured")
		return
	}
	var req archiveRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := rbac.PrincipalFromContext(r.Context())
	id, err := h.enqueuer.EnqueueReportArchive(r.Context(), jobs.ReportArchivePayload{
		Period:      strings.TrimSpace(req.Period),
		RequestedBy: actor.ID,
	})
	if err != nil {
		h.logger.Error("enqueue report archive", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]string{"task_id": id})
}
