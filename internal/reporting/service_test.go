package reporting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/medconsult-liberia/medconsult/internal/earnings"
	"github.com/medconsult-liberia/medconsult/internal/ledger"
	"github.com/medconsult-liberia/medconsult/internal/rbac"
	"github.com/medconsult-liberia/medconsult/jobs"
)

type stubStats struct {
	stats Stats
	err   error
}

func (s stubStats) Stats(context.Context) (Stats, error) { return s.stats, s.err }

type stubSummary struct{ summary earnings.Summary }

func (s stubSummary) Summary(context.Context) (earnings.Summary, error) { return s.summary, nil }

type stubBalances struct{ snap ledger.Snapshot }

func (s stubBalances) Status(context.Context) (ledger.Snapshot, error) { return s.snap, nil }

type stubRenderer struct {
	calls int
	err   error
}

func (r *stubRenderer) RenderReport(ctx context.Context, rep Report) ([]byte, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return []byte("%PDF-" + rep.ID.String()), nil
}

type memoryArchives struct{ saved []Archive }

func (m *memoryArchives) SaveArchive(ctx context.Context, a Archive) error {
	m.saved = append(m.saved, a)
	return nil
}

type recordingEnqueuer struct{ payloads []jobs.ReportArchivePayload }

func (e *recordingEnqueuer) EnqueueReportArchive(ctx context.Context, p jobs.ReportArchivePayload) (string, error) {
	e.payloads = append(e.payloads, p)
	return "task-42", nil
}

var fixedNow = time.Date(2025, 7, 1, 3, 0, 0, 0, time.UTC)

func newTestService(statsErr error) *Service {
	return NewService(
		stubStats{stats: Stats{TotalRevenue: d("100"), TotalExpenses: d("0")}, err: statsErr},
		stubSummary{summary: earnings.Summary{
			Consultants:     []earnings.ConsultantSummary{{ConsultantID: 1, ConsultantShare: d("75")}},
			TotalTeamFee:    d("15"),
			TotalWebsiteFee: d("10"),
		}},
		stubBalances{},
	).WithNow(func() time.Time { return fixedNow })
}

func TestGenerateMatchingTotalsHasNoWarning(t *testing.T) {
	rep, err := newTestService(nil).Generate(context.Background())
	require.NoError(t, err)
	require.Equal(t, "10", rep.NetProfit.String())
	require.False(t, rep.Discrepancy)
	require.Empty(t, rep.Warning)
	require.Equal(t, fixedNow, rep.GeneratedAt)
}

func TestGenerateFailsWhenAnySourceFails(t *testing.T) {
	_, err := newTestService(errors.New("db down")).Generate(context.Background())
	require.EqualError(t, err, "db down")
}

func TestArchiveJobWritesPDFAndRecordsArchive(t *testing.T) {
	dir := t.TempDir()
	store := &memoryArchives{}
	job := NewArchiveJob(ArchiveJobConfig{
		Service:    newTestService(nil),
		Renderer:   &stubRenderer{},
		Store:      store,
		StorageDir: dir,
	})

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(jobs.TaskReportArchive, nil)))
	require.Len(t, store.saved, 1)
	a := store.saved[0]
	require.Equal(t, "2025-06", a.Period)
	require.Equal(t, filepath.Join(dir, "2025-06"), filepath.Dir(a.Path))
	raw, err := os.ReadFile(a.Path)
	require.NoError(t, err)
	require.Equal(t, "%PDF-"+a.ID.String(), string(raw))
}

func TestArchiveJobSkipsRetryOnBadPayload(t *testing.T) {
	job := NewArchiveJob(ArchiveJobConfig{Service: newTestService(nil), Renderer: &stubRenderer{}, Store: &memoryArchives{}, StorageDir: t.TempDir()})

	err := job.Handle(context.Background(), asynq.NewTask(jobs.TaskReportArchive, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	payload, _ := json.Marshal(jobs.ReportArchivePayload{Period: "../etc"})
	err = job.Handle(context.Background(), asynq.NewTask(jobs.TaskReportArchive, payload))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func newReportRouter(renderer PDFRenderer, enq Enqueuer) http.Handler {
	r := chi.NewRouter()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	NewHandler(logger, newTestService(nil), renderer, enq, rbac.Middleware{}).MountRoutes(r)
	return r
}

func serve(router http.Handler, method, path string, body []byte, role rbac.Role) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req = req.WithContext(rbac.ContextWithPrincipal(req.Context(), rbac.Principal{ID: 5, Role: role}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestHandlerReportJSON(t *testing.T) {
	rr := serve(newReportRouter(nil, nil), http.MethodGet, "/accountant/report", nil, rbac.RoleManagement)
	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "10", body["net_profit"])
	require.Equal(t, false, body["discrepancy"])

	rr = serve(newReportRouter(nil, nil), http.MethodGet, "/accountant/report", nil, rbac.RoleConsultant)
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestHandlerReportPDF(t *testing.T) {
	rr := serve(newReportRouter(&stubRenderer{}, nil), http.MethodGet, "/accountant/report/pdf", nil, rbac.RoleAccountant)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "application/pdf", rr.Header().Get("Content-Type"))
	require.Contains(t, rr.Header().Get("Content-Disposition"), "financial-report-2025-07-01.pdf")

	rr = serve(newReportRouter(&stubRenderer{err: errors.New("boom")}, nil), http.MethodGet, "/accountant/report/pdf", nil, rbac.RoleAccountant)
	require.Equal(t, http.StatusBadGateway, rr.Code)

	rr = serve(newReportRouter(nil, nil), http.MethodGet, "/accountant/report/pdf", nil, rbac.RoleAccountant)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestHandlerArchiveEnqueues(t *testing.T) {
	enq := &recordingEnqueuer{}
	router := newReportRouter(nil, enq)

	rr := serve(router, http.MethodPost, "/accountant/report/archive", []byte(`{"period":"2025-05"}`), rbac.RoleAccountant)
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Len(t, enq.payloads, 1)
	require.Equal(t, "2025-05", enq.payloads[0].Period)
	require.EqualValues(t, 5, enq.payloads[0].RequestedBy)

	rr = serve(router, http.MethodPost, "/accountant/report/archive", []byte(`{"period":"May"}`), rbac.RoleAccountant)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(router, http.MethodPost, "/accountant/report/archive", nil, rbac.RoleManagement)
	require.Equal(t, http.StatusForbidden, rr.Code)
}
