package assignments

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/medconsult-liberia/medconsult/internal/platform/httpx"
	"github.com/medconsult-liberia/medconsult/internal/rbac"
	"github.com/medconsult-liberia/medconsult/internal/shared"
	_ "github.com/medconsult-liberia/medconsult/testing"
)

type memoryState struct {
	rows     map[int64]Assignment
	history  map[int64][]HistoryEntry
	earnings []Earning
	audits   []shared.AuditLog
}

type memoryRepo struct {
	state       memoryState
	consultants map[int64]bool
	nextID      int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		state:       memoryState{rows: map[int64]Assignment{}, history: map[int64][]HistoryEntry{}},
		consultants: map[int64]bool{7: true},
	}
}

func (s memoryState) clone() memoryState {
	out := memoryState{rows: map[int64]Assignment{}, history: map[int64][]HistoryEntry{}}
	for k, v := range s.rows {
		out.rows[k] = v
	}
	for k, v := range s.history {
		out.history[k] = append([]HistoryEntry{}, v...)
	}
	out.earnings = append([]Earning{}, s.earnings...)
	out.audits = append([]shared.AuditLog{}, s.audits...)
	return out
}

type memoryTx struct {
	repo  *memoryRepo
	state memoryState
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memoryTx{repo: r, state: r.state.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.state = tx.state
	return nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Assignment, error) {
	a, ok := r.state.rows[id]
	if !ok {
		return Assignment{}, ErrNotFound
	}
	return a, nil
}

func (r *memoryRepo) List(ctx context.Context, f ListFilter) ([]Assignment, error) {
	var out []Assignment
	for _, a := range r.state.rows {
		if f.ClientID != 0 && a.ClientID != f.ClientID {
			continue
		}
		if f.ConsultantID != 0 && (a.ConsultantID == nil || *a.ConsultantID != f.ConsultantID) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *memoryRepo) History(ctx context.Context, id int64) ([]HistoryEntry, error) {
	return r.state.history[id], nil
}

func (r *memoryRepo) ConsultantExists(ctx context.Context, id int64) (bool, error) {
	return r.consultants[id], nil
}

func (t *memoryTx) GetForUpdate(ctx context.Context, id int64) (Assignment, error) {
	a, ok := t.state.rows[id]
	if !ok {
		return Assignment{}, ErrNotFound
	}
	return a, nil
}

func (t *memoryTx) Insert(ctx context.Context, a Assignment) (Assignment, error) {
	t.repo.nextID++
	a.ID = t.repo.nextID
	t.state.rows[a.ID] = a
	return a, nil
}

func (t *memoryTx) Save(ctx context.Context, a Assignment) error {
	t.state.rows[a.ID] = a
	return nil
}

func (t *memoryTx) AppendHistory(ctx context.Context, id int64, h HistoryEntry) error {
	t.state.history[id] = append(t.state.history[id], h)
	return nil
}

func (t *memoryTx) InsertEarning(ctx context.Context, e Earning) error {
	for _, existing := range t.state.earnings {
		if existing.AssignmentID == e.AssignmentID {
			return ErrInvalidTransition
		}
	}
	t.state.earnings = append(t.state.earnings, e)
	return nil
}

func (t *memoryTx) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	t.state.audits = append(t.state.audits, log)
	return nil
}

var (
	client     = rbac.Principal{ID: 20, Role: rbac.RoleClient}
	otherUser  = rbac.Principal{ID: 21, Role: rbac.RoleClient}
	admin      = rbac.Principal{ID: 1, Role: rbac.RoleAdmin}
	accountant = rbac.Principal{ID: 3, Role: rbac.RoleAccountant}
	manager    = rbac.Principal{ID: 2, Role: rbac.RoleManagement}
	consultant = rbac.Principal{ID: 7, Role: rbac.RoleConsultant}
)

func price(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func newService(repo *memoryRepo) *Service {
	svc := NewService(repo)
	svc.now = func() time.Time { return time.Date(2025, 5, 5, 10, 0, 0, 0, time.UTC) }
	return svc
}

func TestTransitionTable(t *testing.T) {
	require.True(t, CanTransition(StatusPendingReview, StatusPriceProposed))
	require.True(t, CanTransition(StatusNegotiating, StatusPriceProposed))
	require.True(t, CanTransition(StatusPaymentUploaded, StatusPaymentPending))
	require.False(t, CanTransition(StatusPendingReview, StatusCompleted))
	require.False(t, CanTransition(StatusCompleted, StatusInProgress))

	require.True(t, MayEnter(rbac.RoleAccountant, StatusPaymentVerified))
	require.False(t, MayEnter(rbac.RoleClient, StatusPriceProposed))
	require.False(t, MayEnter(rbac.RoleAdmin, StatusInProgress))
}

func TestFullWorkflowBooksEarning(t *testing.T) {
	repo := newMemoryRepo()
	svc := newService(repo)
	ctx := context.Background()

	a, err := svc.Create(ctx, client, CreateInput{Title: "Cardiology second opinion"})
	require.NoError(t, err)
	require.Equal(t, StatusPendingReview, a.Status)

	steps := []struct {
		actor rbac.Principal
		in    TransitionInput
	}{
		{admin, TransitionInput{Status: "price_proposed", Price: price("200"), ConsultantID: ptr(7)}},
		{client, TransitionInput{Status: "payment_pending"}},
		{client, TransitionInput{Status: "payment_uploaded", Note: "receipt attached"}},
		{accountant, TransitionInput{Status: "payment_verified"}},
		{manager, TransitionInput{Status: "in_progress"}},
		{manager, TransitionInput{Status: "completed"}},
	}
	for _, step := range steps {
		a, err = svc.Transition(ctx, step.actor, a.ID, step.in)
		require.NoError(t, err, step.in.Status)
	}
	require.Equal(t, StatusCompleted, a.Status)
	require.NotNil(t, a.CompletedAt)

	require.Len(t, repo.state.earnings, 1)
	e := repo.state.earnings[0]
	require.EqualValues(t, 7, e.ConsultantID)
	require.Equal(t, "150", e.ConsultantShare.String())
	require.Equal(t, "20", e.WebsiteFee.String())
	require.Equal(t, "30", e.TeamFee.String())
	require.True(t, e.Amount.Equal(e.ConsultantShare.Add(e.WebsiteFee).Add(e.TeamFee)))

	detail, err := svc.Get(ctx, consultant, a.ID)
	require.NoError(t, err)
	require.Len(t, detail.History, 6)
	require.Equal(t, "receipt attached", detail.History[2].Note)
}

func ptr(v int64) *int64 { return &v }

func TestTransitionGuards(t *testing.T) {
	repo := newMemoryRepo()
	svc := newService(repo)
	ctx := context.Background()
	a, err := svc.Create(ctx, client, CreateInput{Title: "Dermatology"})
	require.NoError(t, err)

	_, err = svc.Transition(ctx, client, a.ID, TransitionInput{Status: "price_proposed", Price: price("10")})
	require.ErrorIs(t, err, httpx.ErrForbidden)

	_, err = svc.Transition(ctx, admin, a.ID, TransitionInput{Status: "price_proposed"})
	require.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.Transition(ctx, admin, a.ID, TransitionInput{Status: "completed"})
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.Transition(ctx, otherUser, a.ID, TransitionInput{Status: "negotiating"})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Transition(ctx, admin, a.ID, TransitionInput{Status: "price_proposed", Price: price("80"), ConsultantID: ptr(99)})
	require.ErrorIs(t, err, httpx.ErrValidation)

	stored, err := repo.Get(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPendingReview, stored.Status)
	require.Empty(t, repo.state.history[a.ID])
}

func TestCompletionRequiresConsultant(t *testing.T) {
	repo := newMemoryRepo()
	svc := newService(repo)
	ctx := context.Background()
	a, err := svc.Create(ctx, client, CreateInput{Title: "Nutrition plan"})
	require.NoError(t, err)

	for _, step := range []struct {
		actor rbac.Principal
		in    TransitionInput
	}{
		{admin, TransitionInput{Status: "price_proposed", Price: price("90")}},
		{admin, TransitionInput{Status: "payment_pending"}},
		{client, TransitionInput{Status: "payment_uploaded"}},
		{admin, TransitionInput{Status: "payment_verified"}},
		{manager, TransitionInput{Status: "in_progress"}},
	} {
		_, err = svc.Transition(ctx, step.actor, a.ID, step.in)
		require.NoError(t, err, step.in.Status)
	}

	_, err = svc.Transition(ctx, admin, a.ID, TransitionInput{Status: "completed"})
	var verr *httpx.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "consultant_id")
	require.Empty(t, repo.state.earnings)

	done, err := svc.Transition(ctx, admin, a.ID, TransitionInput{Status: "completed", ConsultantID: ptr(7)})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, done.Status)
	require.Len(t, repo.state.earnings, 1)
}

func TestVisibility(t *testing.T) {
	repo := newMemoryRepo()
	svc := newService(repo)
	ctx := context.Background()
	a, err := svc.Create(ctx, client, CreateInput{Title: "Physio"})
	require.NoError(t, err)

	_, err = svc.Get(ctx, otherUser, a.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Get(ctx, consultant, a.ID)
	require.ErrorIs(t, err, ErrNotFound)

	mine, err := svc.List(ctx, client, "")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	theirs, err := svc.List(ctx, otherUser, "")
	require.NoError(t, err)
	require.Empty(t, theirs)
}

func TestHandlerTransitionStatusCodes(t *testing.T) {
	repo := newMemoryRepo()
	r := chi.NewRouter()
	NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), newService(repo), rbac.Middleware{}).MountRoutes(r)

	call := func(method, path string, body any, p rbac.Principal) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			_ = json.NewEncoder(&buf).Encode(body)
		}
		req := httptest.NewRequest(method, path, &buf)
		req = req.WithContext(rbac.ContextWithPrincipal(req.Context(), p))
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr
	}

	rr := call(http.MethodPost, "/assignments", map[string]any{"title": "Eye exam"}, accountant)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = call(http.MethodPost, "/assignments", map[string]any{"title": "Eye exam"}, client)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = call(http.MethodPost, "/assignments/1/transition", map[string]any{"status": "in_progress"}, client)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = call(http.MethodPost, "/assignments/1/transition", map[string]any{"status": "payment_pending"}, admin)
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = call(http.MethodPost, "/assignments/1/transition", map[string]any{"status": "price_proposed", "price": "120"}, admin)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = call(http.MethodGet, "/assignments/1", nil, client)
	require.Equal(t, http.StatusOK, rr.Code)
	var detail Detail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &detail))
	require.Equal(t, StatusPriceProposed, detail.Status)
	require.Len(t, detail.History, 1)
}
