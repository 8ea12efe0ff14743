package assignments

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/medconsult-liberia/medconsult/internal/platform/httpx"
	"github.com/medconsult-liberia/medconsult/internal/rbac"
)

// API is the subset of Service used by the handler.
type API interface {
	Create(ctx context.Context, actor rbac.Principal, in CreateInput) (Assignment, error)
	Get(ctx context.Context, actor rbac.Principal, id int64) (Detail, error)
	List(ctx context.Context, actor rbac.Principal, status Status) ([]Assignment, error)
	Transition(ctx context.Context, actor rbac.Principal, id int64, in TransitionInput) (Assignment, error)
}

// Handler serves assignment endpoints.
type Handler struct {
	logger  *slog.Logger
	service API
	rbac    rbac.Middleware
}

// NewHandler builds the handler.
func NewHandler(logger *slog.Logger, service API, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: mw}
}

// MountRoutes registers assignment routes. Per-status role checks happen in
// the service.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/assignments", func(r chi.Router) {
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Post("/{id}/transition", h.transition)
		r.With(h.rbac.RequireAny(rbac.RoleClient, rbac.RoleAdmin)).Post("/", h.create)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.PrincipalFromContext(r.Context())
	items, err := h.service.List(r.Context(), actor, Status(r.URL.Query().Get("status")))
	if err != nil {
		h.logger.Error("list assignments", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor, _ := rbac.PrincipalFromContext(r.Context())
	detail, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := rbac.PrincipalFromContext(r.Context())
	a, err := h.service.Create(r.Context(), actor, in)
	if err != nil {
		h.logger.Warn("create assignment", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, a)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in TransitionInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := rbac.PrincipalFromContext(r.Context())
	a, err := h.service.Transition(r.Context(), actor, id, in)
	if err != nil {
		h.logger.Warn("assignment transition", slog.Int64("id", id), slog.String("status", in.Status), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, a)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, httpx.NewValidationError("id", "must be a positive integer"))
		return 0, false
	}
	return id, true
}
