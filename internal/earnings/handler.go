package earnings

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/medconsult-liberia/medconsult/internal/platform/httpx"
	"github.com/medconsult-liberia/medconsult/internal/rbac"
)

// Reader is the subset of Service used by the handler.
type Reader interface {
	Entries(ctx context.Context, principal rbac.Principal) ([]Entry, error)
	Summary(ctx context.Context) (Summary, error)
}

// Handler serves earnings endpoints.
type Handler struct {
	logger  *slog.Logger
	service Reader
	rbac    rbac.Middleware
}

// NewHandler builds the handler.
func NewHandler(logger *slog.Logger, service Reader, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: mw}
}

// MountRoutes registers earnings routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.RoleAdmin, rbac.RoleAccountant, rbac.RoleManagement, rbac.RoleConsultant))
		r.Get("/consultant-earnings", h.listEntries)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.RoleAdmin, rbac.RoleAccountant, rbac.RoleManagement))
		r.Get("/accountant/consultant-summary", h.summary)
	})
}

func (h *Handler) listEntries(w http.ResponseWriter, r *http.Request) {
	principal, _ := rbac.PrincipalFromContext(r.Context())
	entries, err := h.service.Entries(r.Context(), principal)
	if err != nil {
		h.logger.Error("list consultant earnings", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Summary(r.Context())
	if err != nil {
		h.logger.Error("consultant summary", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}
