package transactions

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/medconsult-liberia/medconsult/internal/platform/httpx"
	"github.com/medconsult-liberia/medconsult/internal/rbac"
	"github.com/medconsult-liberia/medconsult/internal/revenue"
	"github.com/medconsult-liberia/medconsult/internal/shared"
	_ "github.com/medconsult-liberia/medconsult/testing"
)

type memoryRepo struct {
	rows        map[int64]Transaction
	consultants map[int64]bool
	audits      []shared.AuditLog
	nextID      int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rows: map[int64]Transaction{}, consultants: map[int64]bool{7: true}}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := make(map[int64]Transaction, len(r.rows))
	for k, v := range r.rows {
		snapshot[k] = v
	}
	audits := len(r.audits)
	if err := fn(ctx, r); err != nil {
		r.rows = snapshot
		r.audits = r.audits[:audits]
		return err
	}
	return nil
}

func (r *memoryRepo) List(ctx context.Context, f Filter, page shared.PageRequest) ([]Transaction, int, error) {
	var out []Transaction
	for _, t := range r.rows {
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.From != nil && t.Date.Before(*f.From) {
			continue
		}
		if f.To != nil && t.Date.After(*f.To) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	total := len(out)
	start := page.Offset()
	if start > total {
		start = total
	}
	end := start + page.Limit()
	if end > total {
		end = total
	}
	return out[start:end], total, nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Transaction, error) {
	t, ok := r.rows[id]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	return t, nil
}

func (r *memoryRepo) ConsultantExists(ctx context.Context, id int64) (bool, error) {
	return r.consultants[id], nil
}

func (r *memoryRepo) Insert(ctx context.Context, t Transaction) (Transaction, error) {
	r.nextID++
	t.ID = r.nextID
	r.rows[t.ID] = t
	return t, nil
}

func (r *memoryRepo) Update(ctx context.Context, t Transaction) (Transaction, error) {
	if _, ok := r.rows[t.ID]; !ok {
		return Transaction{}, ErrNotFound
	}
	r.rows[t.ID] = t
	return t, nil
}

func (r *memoryRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := r.rows[id]; !ok {
		return ErrNotFound
	}
	delete(r.rows, id)
	return nil
}

func (r *memoryRepo) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	r.audits = append(r.audits, log)
	return nil
}

var accountant = rbac.Principal{ID: 3, Role: rbac.RoleAccountant}

func ptr(v int64) *int64 { return &v }

func consultationInput() Input {
	return Input{Amount: decimal.NewFromInt(100), Type: "consultation_fee", ConsultantID: ptr(7), Date: "2025-03-04"}
}

func TestCreateConsultationFee(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)

	tx, err := svc.Create(context.Background(), accountant, consultationInput())
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, tx.Status)
	require.EqualValues(t, 3, tx.RecordedBy)
	require.Equal(t, "75", tx.Split.Consultant.String())
	require.Equal(t, time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC), tx.Date)
	require.Len(t, repo.audits, 1)
	require.Equal(t, "transaction.created", repo.audits[0].Action)
}

func TestCreateRules(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	cases := map[string]struct {
		mutate func(*Input)
		field  string
	}{
		"consultation without consultant": {func(in *Input) { in.ConsultantID = nil }, "consultant_id"},
		"consultation distributed":        {func(in *Input) { in.DistributeToTeam = true }, "distribute_to_team"},
		"grant with consultant":           {func(in *Input) { in.Type = "grant" }, "consultant_id"},
		"unknown consultant":              {func(in *Input) { in.ConsultantID = ptr(99) }, "consultant_id"},
		"zero amount":                     {func(in *Input) { in.Amount = decimal.Zero }, "amount"},
		"sub-cent amount":                 {func(in *Input) { in.Amount = decimal.RequireFromString("10.005") }, "amount"},
		"amount beyond column range":      {func(in *Input) { in.Amount = decimal.RequireFromString("1e15") }, "amount"},
		"bad type":                        {func(in *Input) { in.Type = "loan" }, "type"},
		"bad status":                      {func(in *Input) { in.Status = "refunded" }, "status"},
		"bad date":                        {func(in *Input) { in.Date = "04/03/2025" }, "transaction_date"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			in := consultationInput()
			tc.mutate(&in)
			_, err := svc.Create(ctx, accountant, in)
			var verr *httpx.ValidationError
			require.ErrorAs(t, err, &verr)
			require.Contains(t, verr.Fields, tc.field)
		})
	}
}

func TestGrantDistributedToTeam(t *testing.T) {
	svc := NewService(newMemoryRepo())
	tx, err := svc.Create(context.Background(), accountant, Input{
		Amount: decimal.NewFromInt(200), Type: "grant", DistributeToTeam: true, Status: "pending", Date: "2025-01-10",
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, tx.Status)
	require.Equal(t, "190", tx.Split.Team.String())
	require.True(t, tx.Split.Consultant.IsZero())
}

func TestUpdateAndDeleteAreAudited(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()
	created, err := svc.Create(ctx, accountant, consultationInput())
	require.NoError(t, err)

	in := consultationInput()
	in.Amount = decimal.NewFromInt(120)
	updated, err := svc.Update(ctx, accountant, created.ID, in)
	require.NoError(t, err)
	require.Equal(t, "120", updated.Amount.String())
	require.EqualValues(t, 3, updated.RecordedBy)
	require.Equal(t, "100", repo.audits[1].Meta["previous_amount"])

	require.NoError(t, svc.Delete(ctx, accountant, created.ID))
	_, err = svc.Get(ctx, created.ID)
	require.ErrorIs(t, err, httpx.ErrNotFound)
	require.Len(t, repo.audits, 3)

	require.ErrorIs(t, svc.Delete(ctx, accountant, created.ID), ErrNotFound)
	_, err = svc.Update(ctx, accountant, 404, in)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestParseFilter(t *testing.T) {
	f, err := parseFilter(url.Values{"type": {"grant"}, "status": {"pending"}, "from": {"2025-01-01"}, "consultant_id": {"7"}})
	require.NoError(t, err)
	require.Equal(t, revenue.TypeGrant, f.Type)
	require.Equal(t, StatusPending, f.Status)
	require.NotNil(t, f.From)
	require.Nil(t, f.To)
	require.EqualValues(t, 7, f.ConsultantID)

	_, err = parseFilter(url.Values{"to": {"yesterday"}})
	require.ErrorIs(t, err, httpx.ErrValidation)
	_, err = parseFilter(url.Values{"type": {"loan"}})
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func newTestRouter(repo *memoryRepo) http.Handler {
	r := chi.NewRouter()
	NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), NewService(repo), rbac.Middleware{}).MountRoutes(r)
	return r
}

func do(router http.Handler, method, path string, body any, role rbac.Role) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req = req.WithContext(rbac.ContextWithPrincipal(req.Context(), rbac.Principal{ID: 1, Role: role}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestHandlerLifecycle(t *testing.T) {
	router := newTestRouter(newMemoryRepo())
	body := map[string]any{"amount": "50", "type": "other", "transaction_date": "2025-02-02"}

	rr := do(router, http.MethodPost, "/transactions", body, rbac.RoleManagement)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(router, http.MethodPost, "/transactions", body, rbac.RoleAccountant)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = do(router, http.MethodGet, "/transactions?type=other", nil, rbac.RoleManagement)
	require.Equal(t, http.StatusOK, rr.Code)
	var list struct {
		Items      []map[string]any  `json:"items"`
		Pagination shared.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list.Items, 1)
	require.Equal(t, 1, list.Pagination.Total)

	rr = do(router, http.MethodGet, "/transactions/1", nil, rbac.RoleAdmin)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(router, http.MethodGet, "/transactions/abc", nil, rbac.RoleAdmin)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(router, http.MethodDelete, "/transactions/1", nil, rbac.RoleAdmin)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = do(router, http.MethodGet, "/transactions/1", nil, rbac.RoleAdmin)
	require.Equal(t, http.StatusNotFound, rr.Code)
}
