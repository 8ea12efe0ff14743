package payouts

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/medconsult-liberia/medconsult/internal/ledger"
	"github.com/medconsult-liberia/medconsult/internal/platform/httpx"
	"github.com/medconsult-liberia/medconsult/internal/rbac"
)

// IdempotencyHeader carries the client-generated submission key.
const IdempotencyHeader = "Idempotency-Key"

// API is the subset of Service used by the handler.
type API interface {
	Record(ctx context.Context, actor rbac.Principal, idempotencyKey string, in CreateInput) (Receipt, error)
	History(ctx context.Context, paymentType, recipientID string) (History, error)
	Status(ctx context.Context) (ledger.Snapshot, error)
	Feed(ctx context.Context) (Feed, error)
}

// Handler serves payout endpoints.
type Handler struct {
	logger  *slog.Logger
	service API
	rbac    rbac.Middleware
}

// NewHandler builds the handler.
func NewHandler(logger *slog.Logger, service API, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: mw}
}

// MountRoutes registers payout routes under /accountant.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.RoleAdmin, rbac.RoleAccountant))
		r.Post("/accountant/make-payment", h.record)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.RoleAdmin, rbac.RoleAccountant, rbac.RoleManagement))
		r.Get("/accountant/make-payment", h.history)
		r.Get("/accountant/payment-status", h.status)
		r.Get("/accountant/all-payments", h.feed)
	})
}

func (h *Handler) record(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := rbac.PrincipalFromContext(r.Context())
	key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	receipt, err := h.service.Record(r.Context(), actor, key, in)
	if err != nil {
		h.logger.Warn("record payment", slog.Any("error", err), slog.String("payment_type", in.PaymentType), slog.String("recipient_id", in.RecipientID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, receipt)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	history, err := h.service.History(r.Context(), q.Get("payment_type"), q.Get("recipient_id"))
	if err != nil {
		h.logger.Error("payment history", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, history)
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.service.Status(r.Context())
	if err != nil {
		h.logger.Error("payment status", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, snapshot)
}

func (h *Handler) feed(w http.ResponseWriter, r *http.Request) {
	feed, err := h.service.Feed(r.Context())
	if err != nil {
		h.logger.Error("all payments", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, feed)
}
