package transactions

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/medconsult-liberia/medconsult/internal/platform/httpx"
	"github.com/medconsult-liberia/medconsult/internal/rbac"
	"github.com/medconsult-liberia/medconsult/internal/revenue"
	"github.com/medconsult-liberia/medconsult/internal/shared"
)

// API is the subset of Service used by the handler.
type API interface {
	Create(ctx context.Context, actor rbac.Principal, in Input) (Transaction, error)
	Update(ctx context.Context, actor rbac.Principal, id int64, in Input) (Transaction, error)
	Delete(ctx context.Context, actor rbac.Principal, id int64) error
	Get(ctx context.Context, id int64) (Transaction, error)
	List(ctx context.Context, filter Filter, page shared.PageRequest) (Page, error)
}

// Handler serves transaction endpoints.
type Handler struct {
	logger  *slog.Logger
	service API
	rbac    rbac.Middleware
}

// NewHandler builds the handler.
func NewHandler(logger *slog.Logger, service API, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: mw}
}

// MountRoutes registers transaction routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/transactions", func(r chi.Router) {
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
	})
}

type listResponse struct {
	Items      []Transaction     `json:"items"`
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
		h.logger.Error("list transactions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{
		Items:      res.Items,
		Pagination: shared.NewPagination(page.Page, page.PerPage, res.Total),
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	t, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in Input
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := rbac.PrincipalFromContext(r.Context())
	t, err := h.service.Create(r.Context(), actor, in)
	if err != nil {
		h.logger.Warn("create transaction", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, t)
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
	t, err := h.service.Update(r.Context(), actor, id, in)
	if err != nil {
		h.logger.Warn("update transaction", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor, _ := rbac.PrincipalFromContext(r.Context())
	if err := h.service.Delete(r.Context(), actor, id); err != nil {
		h.logger.Warn("delete transaction", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
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
	var f Filter
	if v := q.Get("type"); v != "" {
		f.Type = revenue.TransactionType(v)
		if !f.Type.Valid() {
			return Filter{}, httpx.NewValidationError("type", "must be one of consultation_fee partnership_payment grant other")
		}
	}
	if v := q.Get("status"); v != "" {
		f.Status = Status(v)
		if f.Status != StatusCompleted && f.Status != StatusPending {
			return Filter{}, httpx.NewValidationError("status", "must be one of completed pending")
		}
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
	if v := q.Get("consultant_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return Filter{}, httpx.NewValidationError("consultant_id", "must be a positive integer")
		}
		f.ConsultantID = id
	}
	return f, nil
}
