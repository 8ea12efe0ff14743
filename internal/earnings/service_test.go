package earnings

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/medconsult-liberia/medconsult/internal/rbac"
	"github.com/medconsult-liberia/medconsult/internal/revenue"
	_ "github.com/medconsult-liberia/medconsult/testing"
)

type memoryRepo struct {
	entries       []Entry
	distributions []TeamDistribution
	consultants   []Consultant
	err           error
	lastFilter    int64
}

func (m *memoryRepo) ListEntries(ctx context.Context, consultantID int64) ([]Entry, error) {
	m.lastFilter = consultantID
	if m.err != nil {
		return nil, m.err
	}
	var out []Entry
	for _, e := range m.entries {
		if consultantID == 0 || e.ConsultantID == consultantID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memoryRepo) ListTeamDistributions(ctx context.Context) ([]TeamDistribution, error) {
	return m.distributions, m.err
}

func (m *memoryRepo) ListConsultants(ctx context.Context) ([]Consultant, error) {
	return m.consultants, m.err
}

func (m *memoryRepo) GetConsultant(ctx context.Context, id int64) (Consultant, error) {
	for _, c := range m.consultants {
		if c.ID == id {
			return c, nil
		}
	}
	return Consultant{}, ErrConsultantNotFound
}

func entry(id, consultantID int64, name, amount string) Entry {
	a := decimal.RequireFromString(amount)
	s := revenue.Split(a, revenue.KindConsultation)
	return Entry{
		ID: id, AssignmentID: id, ConsultantID: consultantID, ConsultantName: name,
		Amount: a, ConsultantShare: s.Consultant, WebsiteFee: s.Website, TeamFee: s.Team,
		CreatedAt: time.Date(2025, 1, int(id), 0, 0, 0, 0, time.UTC),
	}
}

func sampleRepo() *memoryRepo {
	return &memoryRepo{
		entries: []Entry{
			entry(1, 10, "Dr. Weah", "100"),
			entry(2, 11, "Dr. Sirleaf", "400"),
			entry(3, 10, "Dr. Weah", "250"),
		},
		distributions: []TeamDistribution{
			{TransactionID: 90, Type: revenue.TypePartnershipPayment, Amount: decimal.NewFromInt(200)},
		},
		consultants: []Consultant{{ID: 10, Name: "Dr. Weah"}, {ID: 11, Name: "Dr. Sirleaf"}},
	}
}

func TestSummarizeGroupsByConsultant(t *testing.T) {
	sum := Summarize(sampleRepo().entries, nil)
	require.Len(t, sum.Consultants, 2)
	require.EqualValues(t, 11, sum.Consultants[0].ConsultantID)
	require.Equal(t, 2, sum.Consultants[1].TotalAssignments)
	require.Equal(t, "350", sum.Consultants[1].TotalAmount.String())
	require.Equal(t, "262.5", sum.Consultants[1].ConsultantShare.String())
	require.Equal(t, "112.5", sum.TotalTeamFee.String())
	require.Equal(t, "75", sum.TotalWebsiteFee.String())
}

func TestSummarizeFoldsDistributionsIntoFeeTotals(t *testing.T) {
	repo := sampleRepo()
	sum := Summarize(repo.entries, repo.distributions)
	// 200 partnership: team 190, website 10
	require.Len(t, sum.Consultants, 2)
	require.Equal(t, "190", sum.DistributionTeamFee.String())
	require.Equal(t, "10", sum.DistributionWebsiteFee.String())
	require.Equal(t, "302.5", sum.TotalTeamFee.String())
	require.Equal(t, "85", sum.TotalWebsiteFee.String())
	require.Equal(t, "562.5", sum.TotalConsultantShare.String())
}

func TestSummarizeEmpty(t *testing.T) {
	sum := Summarize(nil, nil)
	require.NotNil(t, sum.Consultants)
	require.True(t, sum.TotalTeamFee.IsZero())
}

func TestEntriesRestrictsConsultants(t *testing.T) {
	repo := sampleRepo()
	svc := NewService(repo)

	entries, err := svc.Entries(context.Background(), rbac.Principal{ID: 10, Role: rbac.RoleConsultant})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.EqualValues(t, 10, repo.lastFilter)

	entries, err = svc.Entries(context.Background(), rbac.Principal{ID: 1, Role: rbac.RoleAccountant})
	require.NoError(t, err)
	require.Len(t, entries, 3)
}

func TestLedgerEarningsIncludesTeamDistributions(t *testing.T) {
	svc := NewService(sampleRepo())
	earned, err := svc.LedgerEarnings(context.Background())
	require.NoError(t, err)
	require.Len(t, earned, 4)
	last := earned[3]
	require.EqualValues(t, 0, last.ConsultantID)
	require.Equal(t, "190", last.TeamFee.String())
	require.True(t, last.ConsultantShare.IsZero())
}

func TestLedgerEarningsPropagatesErrors(t *testing.T) {
	repo := sampleRepo()
	repo.err = errors.New("db down")
	_, err := NewService(repo).LedgerEarnings(context.Background())
	require.Error(t, err)
}

func TestConsultantPayee(t *testing.T) {
	svc := NewService(sampleRepo())
	p, err := svc.ConsultantPayee(context.Background(), 11)
	require.NoError(t, err)
	require.Equal(t, "11", p.RecipientID())

	_, err = svc.ConsultantPayee(context.Background(), 404)
	require.ErrorIs(t, err, ErrConsultantNotFound)
}

func newTestRouter(svc Reader) http.Handler {
	r := chi.NewRouter()
	NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc, rbac.Middleware{}).MountRoutes(r)
	return r
}

func asPrincipal(req *http.Request, p rbac.Principal) *http.Request {
	return req.WithContext(rbac.ContextWithPrincipal(req.Context(), p))
}

func TestHandlerSummaryShape(t *testing.T) {
	router := newTestRouter(NewService(sampleRepo()))
	req := asPrincipal(httptest.NewRequest(http.MethodGet, "/accountant/consultant-summary", nil), rbac.Principal{ID: 1, Role: rbac.RoleAccountant})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Contains(t, body, "consultants")
	require.JSONEq(t, `"302.5"`, string(body["totalTeamFee"]))
	require.JSONEq(t, `"85"`, string(body["totalWebsiteFee"]))
}

func TestHandlerSummaryForbiddenForConsultant(t *testing.T) {
	router := newTestRouter(NewService(sampleRepo()))
	req := asPrincipal(httptest.NewRequest(http.MethodGet, "/accountant/consultant-summary", nil), rbac.Principal{ID: 10, Role: rbac.RoleConsultant})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusForbidden, rr.Code)
}
