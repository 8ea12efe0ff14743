package dashboard

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/medconsult-liberia/medconsult/internal/platform/httpx"
	"github.com/medconsult-liberia/medconsult/internal/rbac"
)

// Refresher is the subset of Service used by the handler.
type Refresher interface {
	Refresh(ctx context.Context, prev State, sections ...SectionName) State
}

// Response is the dashboard payload.
type Response struct {
	State   State   `json:"state"`
	Derived Derived `json:"derived"`
}

// Handler serves the dashboard.
type Handler struct {
	logger  *slog.Logger
	service Refresher
	rbac    rbac.Middleware
}

// NewHandler builds the handler.
func NewHandler(logger *slog.Logger, service Refresher, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: mw}
}

// MountRoutes registers the dashboard route.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(rbac.RoleAdmin, rbac.RoleAccountant, rbac.RoleManagement)).
		Get("/accountant/dashboard", h.dashboard)
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	sections, err := parseSections(r.URL.Query().Get("sections"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	state := h.service.Refresh(r.Context(), State{}, sections...)
	httpx.JSON(w, http.StatusOK, Response{State: state, Derived: Derive(state)})
}

func parseSections(raw string) ([]SectionName, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	seen := map[SectionName]bool{}
	var out []SectionName
	for _, part := range strings.Split(raw, ",") {
		name := SectionName(strings.TrimSpace(part))
		if name == "" || seen[name] {
			continue
		}
		if !name.Valid() {
			return nil, httpx.NewValidationError("sections", "unknown section "+string(name))
		}
		seen[name] = true
		out = append(out, name)
	}
	return out, nil
}
