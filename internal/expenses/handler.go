package expenses

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/medconsult-liberia/medconsult/internal/platform/httpx"
	"github.com/medconsult-liberia/medconsult/internal/rbac"
	"github.com/medconsult-liberia/medconsult/internal/shared"
)

// API is the subset of Service used by the handler.
type API interface {
	Create(ctx context.Context, actor rbac.Principal, in Input) (Expense, error)
	Update(ctx context.Context, actor rbac.Principal, id int64, in Input) (Expense, error)
	Delete(ctx context.Context, actor rbac.Principal, id int64) error
	Approve(ctx context.Context, actor rbac.Principal, id int64) (Expense, error)
	Reject(ctx context.Context, actor rbac.Principal, id int64) (Expense, error)
	Get(ctx context.Context, id int64) (Expense, error)
	List(ctx context.Context, filter Filter, page shared.PageRequest) (Page, error)
}

// Handler serves expense endpoints.
type Handler struct {
	logger  *slog.Logger
	service API
	rbac    rbac.Middleware
}

// NewHandler builds the handler.
func NewHandler(logger *slog.Logger, service API, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: mw}
}

// MountRoutes registers expense routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/expenses", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAny(rbac.RoleAdmin, rbac.RoleAccountant, rbac.RoleManagement))
			r.Get("/", h.list)
			r.Get("/{id}", h.get)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAny(rbac.RoleAdmin, rbac.RoleAccountant))
			r.Post("/", h.create)
			r.Put("/{id}", h.update)
			r.Delete("/{id}", h.delete)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAny(rbac.RoleAdmin))
			r.Post("/{id}/approve", h.decide(h.service.Approve))
			r.Post("/{id}/reject", h.decide(h.service.Reject))
		})
	})
}

type listResponse struct {
	Items      []Expense         `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter, err := parseFilter(q)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page := shared.ParsePage(q)
	res, err := h.service.List(r.Context(), filter, page)
	if err != nil {
		h.logger.Error("list expenses", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Items: res.Items, Pagination: shared.NewPagination(page.Page, page.PerPage, res.Total)})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	e, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, e)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in Input
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := rbac.PrincipalFromContext(r.Context())
	e, err := h.service.Create(r.Context(), actor, in)
	if err != nil {
		h.logger.Warn("create expense", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, e)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in Input
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := rbac.PrincipalFromContext(r.Context())
	e, err := h.service.Update(r.Context(), actor, id, in)
	if err != nil {
		h.logger.Warn("update expense", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, e)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor, _ := rbac.PrincipalFromContext(r.Context())
	if err := h.service.Delete(r.Context(), actor, id); err != nil {
		h.logger.Warn("delete expense", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decide(fn func(context.Context, rbac.Principal, int64) (Expense, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		actor, _ := rbac.PrincipalFromContext(r.Context())
		e, err := fn(r.Context(), actor, id)
		if err != nil {
			h.logger.Warn("decide expense", slog.Int64("id", id), slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, e)
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, httpx.NewValidationError("id", "must be a positive integer"))
		return 0, false
	}
	return id, true
}

func parseFilter(q url.Values) (Filter, error) {
	f := Filter{Category: strings.TrimSpace(q.Get("category"))}
	switch s := Status(q.Get("status")); s {
	case "", StatusPending, StatusApproved, StatusRejected:
		f.Status = s
	default:
		return Filter{}, httpx.NewValidationError("status", "must be one of pending approved rejected")
	}
	for _, p := range []struct {
		key string
		dst **time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		v := q.Get(p.key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return Filter{}, httpx.NewValidationError(p.key, "must be a date formatted YYYY-MM-DD")
		}
		*p.dst = &t
	}
	return f, nil
}
