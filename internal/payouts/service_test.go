package payouts

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/medconsult-liberia/medconsult/internal/earnings"
	jobmetrics "github.com/medconsult-liberia/medconsult/internal/jobs"
	"github.com/medconsult-liberia/medconsult/internal/ledger"
	"github.com/medconsult-liberia/medconsult/internal/platform/cache"
	"github.com/medconsult-liberia/medconsult/internal/platform/httpx"
	"github.com/medconsult-liberia/medconsult/internal/rbac"
	"github.com/medconsult-liberia/medconsult/internal/revenue"
	"github.com/medconsult-liberia/medconsult/internal/shared"
	"github.com/medconsult-liberia/medconsult/jobs"
	_ "github.com/medconsult-liberia/medconsult/testing"
)

type memoryRepo struct {
	mu       sync.Mutex
	payments []Record
	inflows  []Inflow
	keys     map[string]bool
	audits   []shared.AuditLog
	nextID   int64
}

type memoryTx struct {
	repo     *memoryRepo
	payments []Record
	keys     []string
	audits   []shared.AuditLog
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{keys: map[string]bool{}}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := &memoryTx{repo: r}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for _, k := range tx.keys {
		r.keys[k] = true
	}
	r.payments = append(r.payments, tx.payments...)
	r.audits = append(r.audits, tx.audits...)
	return nil
}

func (r *memoryRepo) ListPayments(ctx context.Context, f Filter) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Record
	for _, p := range r.payments {
		if (f.PaymentType == "" || p.PaymentType == f.PaymentType) && (f.RecipientID == "" || p.RecipientID == f.RecipientID) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListInflows(ctx context.Context) ([]Inflow, error) {
	return r.inflows, nil
}

func (t *memoryTx) ClaimIdempotencyKey(ctx context.Context, key string) error {
	if t.repo.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	t.keys = append(t.keys, key)
	return nil
}

func (t *memoryTx) InsertPayment(ctx context.Context, rec Record) (Record, error) {
	t.repo.nextID++
	rec.ID = t.repo.nextID
	rec.CreatedAt = time.Date(2025, 3, 1, 9, 0, 0, int(rec.ID), time.UTC)
	t.payments = append(t.payments, rec)
	return rec, nil
}

func (t *memoryTx) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	t.audits = append(t.audits, log)
	return nil
}

type stubEarnings struct {
	earned      []ledger.Earning
	consultants []ledger.Payee
	onRead      func()
}

func (s *stubEarnings) LedgerEarnings(ctx context.Context) ([]ledger.Earning, error) {
	if s.onRead != nil {
		s.onRead()
	}
	return s.earned, nil
}

func (s *stubEarnings) ConsultantPayees(ctx context.Context) ([]ledger.Payee, error) {
	return s.consultants, nil
}

func (s *stubEarnings) ConsultantPayee(ctx context.Context, id int64) (ledger.Payee, error) {
	for _, c := range s.consultants {
		if c.ConsultantID == id {
			return c, nil
		}
	}
	return ledger.Payee{}, earnings.ErrConsultantNotFound
}

type recordingNotifier struct {
	payloads []jobs.RemittancePayload
}

func (n *recordingNotifier) EnqueueRemittance(ctx context.Context, p jobs.RemittancePayload) (string, error) {
	n.payloads = append(n.payloads, p)
	return "task-1", nil
}

type countingMetrics struct {
	recorded map[string]int
	rejected map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{recorded: map[string]int{}, rejected: map[string]int{}}
}

func (m *countingMetrics) PaymentRecorded(payeeType string) { m.recorded[payeeType]++ }
func (m *countingMetrics) PaymentRejected(reason string)    { m.rejected[reason]++ }

type fixture struct {
	svc      *Service
	repo     *memoryRepo
	notifier *recordingNotifier
	metrics  *countingMetrics
	locker   *cache.Locker
	earnings *stubEarnings
	redis    *miniredis.Miniredis
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newFixture(t *testing.T, opts Options) fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := cache.NewLocker(client, 5*time.Second)

	amount := d("100")
	src := &stubEarnings{
		earned: []ledger.Earning{ledger.FromShares(7, amount, revenue.Split(amount, revenue.KindConsultation))},
		consultants: []ledger.Payee{
			ledger.ConsultantPayee(7, "Dr. Tubman", "tubman@example.com"),
			ledger.ConsultantPayee(8, "Dr. Barclay", ""),
		},
	}
	repo := newMemoryRepo()
	notifier := &recordingNotifier{}
	metrics := newCountingMetrics()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(repo, src, locker, notifier, metrics, logger, opts)
	return fixture{svc: svc, repo: repo, notifier: notifier, metrics: metrics, locker: locker, earnings: src, redis: mr}
}

var accountant = rbac.Principal{ID: 3, Name: "Musu", Role: rbac.RoleAccountant}

func consultantPayment(amount string) CreateInput {
	return CreateInput{
		PaymentType:   "consultant",
		RecipientID:   "7",
		Amount:        d(amount),
		PaymentMethod: "mobile_money",
		PeriodStart:   "2025-02-01",
		PeriodEnd:     "2025-02-28",
	}
}

func TestRecordPartialPayment(t *testing.T) {
	f := newFixture(t, Options{})
	receipt, err := f.svc.Record(context.Background(), accountant, "", consultantPayment("50"))
	require.NoError(t, err)

	require.EqualValues(t, 1, receipt.Payment.ID)
	require.Equal(t, "Dr. Tubman", receipt.Payment.RecipientName)
	require.True(t, strings.HasPrefix(receipt.Payment.PaymentReference, "PAY-"))
	require.Equal(t, "25", receipt.Balance.Unpaid.String())
	require.Equal(t, ledger.StatusPartial, receipt.Balance.Status)
	require.Len(t, f.repo.audits, 1)
	require.Equal(t, "payment.recorded", f.repo.audits[0].Action)
	require.Len(t, f.notifier.payloads, 1)
	require.Equal(t, "50.00", f.notifier.payloads[0].Amount)
	require.Equal(t, "2025-02-01", f.notifier.payloads[0].PeriodStart)
	require.Equal(t, 1, f.metrics.recorded["consultant"])
}

func TestRecordRejectsOverpayment(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.svc.Record(context.Background(), accountant, "", consultantPayment("75.02"))
	require.ErrorIs(t, err, ErrOverpayment)
	require.ErrorIs(t, err, httpx.ErrConflict)
	require.Empty(t, f.repo.payments)
	require.Equal(t, 1, f.metrics.rejected["overpayment"])

	_, err = f.svc.Record(context.Background(), accountant, "", consultantPayment("75.01"))
	require.NoError(t, err)

	_, err = f.svc.Record(context.Background(), accountant, "", consultantPayment("1"))
	require.ErrorIs(t, err, ErrOverpayment)
}

func TestRecordAllowsOverpaymentWhenConfigured(t *testing.T) {
	f := newFixture(t, Options{AllowOverpayment: true})
	receipt, err := f.svc.Record(context.Background(), accountant, "", consultantPayment("500"))
	require.NoError(t, err)
	require.Equal(t, ledger.StatusPaid, receipt.Balance.Status)
}

func TestRecordReplayedKeyConflicts(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.svc.Record(context.Background(), accountant, "key-1", consultantPayment("10"))
	require.NoError(t, err)

	_, err = f.svc.Record(context.Background(), accountant, "key-1", consultantPayment("10"))
	require.ErrorIs(t, err, ErrDuplicateSubmission)
	require.Len(t, f.repo.payments, 1)
	require.Equal(t, 1, f.metrics.rejected["duplicate"])
}

func TestRecordWhilePayeeLocked(t *testing.T) {
	f := newFixture(t, Options{})
	lock, err := f.locker.Acquire(context.Background(), shared.PayeeLockKey("consultant", "7"))
	require.NoError(t, err)
	defer func() { _ = lock.Release(context.Background()) }()

	_, err = f.svc.Record(context.Background(), accountant, "", consultantPayment("10"))
	require.ErrorIs(t, err, ErrPayeeBusy)
}

func TestRecordAbortsWhenLockLapsesDuringBalanceRead(t *testing.T) {
	f := newFixture(t, Options{})
	var takeover error
	f.earnings.onRead = func() {
		f.earnings.onRead = nil
		f.redis.FastForward(6 * time.Second)
		_, takeover = f.locker.Acquire(context.Background(), shared.PayeeLockKey("consultant", "7"))
	}

	_, err := f.svc.Record(context.Background(), accountant, "", consultantPayment("10"))
	require.NoError(t, takeover)
	require.ErrorIs(t, err, ErrPayeeBusy)
	require.Empty(t, f.repo.payments)
	require.Empty(t, f.repo.audits)
	require.Equal(t, 1, f.metrics.rejected["locked"])
}

func TestRecordReleasesLock(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.svc.Record(context.Background(), accountant, "", consultantPayment("10"))
	require.NoError(t, err)
	lock, err := f.locker.Acquire(context.Background(), shared.PayeeLockKey("consultant", "7"))
	require.NoError(t, err)
	require.NoError(t, lock.Release(context.Background()))
}

func TestRecordValidation(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	in := consultantPayment("0")
	_, err := f.svc.Record(ctx, accountant, "", in)
	require.ErrorIs(t, err, httpx.ErrValidation)

	for _, raw := range []string{"0.004", "10.005", "1000000000000"} {
		_, err = f.svc.Record(ctx, accountant, "", consultantPayment(raw))
		require.ErrorIs(t, err, httpx.ErrValidation, raw)
	}
	require.Empty(t, f.repo.payments)

	in = consultantPayment("5")
	in.PaymentType = "vendor"
	_, err = f.svc.Record(ctx, accountant, "", in)
	require.ErrorIs(t, err, httpx.ErrValidation)

	in = consultantPayment("5")
	in.PaymentType, in.RecipientID = "team", "intern"
	_, err = f.svc.Record(ctx, accountant, "", in)
	require.ErrorIs(t, err, httpx.ErrValidation)

	in = consultantPayment("5")
	in.RecipientID = "99"
	_, err = f.svc.Record(ctx, accountant, "", in)
	require.ErrorIs(t, err, httpx.ErrNotFound)

	in = consultantPayment("5")
	in.PeriodStart, in.PeriodEnd = "2025-03-01", "2025-02-01"
	_, err = f.svc.Record(ctx, accountant, "", in)
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestTeamPaymentUsesRoleShare(t *testing.T) {
	f := newFixture(t, Options{})
	// team fee 15, ceo share 15*40/95 = 6.3158
	in := CreateInput{PaymentType: "team", RecipientID: "ceo", Amount: d("6.32"), PaymentMethod: "bank"}
	receipt, err := f.svc.Record(context.Background(), accountant, "", in)
	require.NoError(t, err)
	require.Equal(t, "CEO", receipt.Payment.RecipientName)
	require.Equal(t, ledger.StatusPaid, receipt.Balance.Status)
	require.Empty(t, f.notifier.payloads)

	in.Amount = d("0.5")
	_, err = f.svc.Record(context.Background(), accountant, "", in)
	require.ErrorIs(t, err, ErrOverpayment)
}

func TestStatusAndHistory(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	_, err := f.svc.Record(ctx, accountant, "", consultantPayment("30"))
	require.NoError(t, err)

	snap, err := f.svc.Status(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Consultants, 2)
	require.Equal(t, ledger.StatusPartial, snap.Consultants[0].Status)
	require.Equal(t, ledger.StatusPaid, snap.Consultants[1].Status)
	require.Len(t, snap.Team, 4)

	history, err := f.svc.History(ctx, "consultant", "7")
	require.NoError(t, err)
	require.Len(t, history.Payments, 1)
	require.Equal(t, "45", history.Balance.Unpaid.String())

	history, err = f.svc.History(ctx, "team", "accountant")
	require.NoError(t, err)
	require.Empty(t, history.Payments)
}

func TestBuildFeedOrdersAndSummarises(t *testing.T) {
	inflows := []Inflow{
		{ID: 1, Type: "consultation_fee", Amount: d("100"), Status: "completed", Date: time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)},
		{ID: 2, Type: "grant", Amount: d("500"), Status: "pending", Date: time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC)},
	}
	payments := []Record{
		{ID: 9, PaymentType: ledger.PayeeConsultant, Amount: d("40"), CreatedAt: time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)},
	}
	feed := BuildFeed(inflows, payments)
	require.Len(t, feed.Items, 3)
	require.EqualValues(t, 2, feed.Items[0].ID)
	require.Equal(t, DirectionOut, feed.Items[1].Direction)
	require.Equal(t, "100", feed.Summary.TotalIn.String())
	require.Equal(t, "40", feed.Summary.TotalOut.String())
	require.Equal(t, "60", feed.Summary.Net.String())
	require.Equal(t, 1, feed.Summary.PaymentCount)
	require.Equal(t, 2, feed.Summary.TransactionCount)
}

func TestScanFlagsOverpaidPayees(t *testing.T) {
	snap := ledger.Snapshot{
		Consultants: []ledger.Balance{
			{PayeeType: ledger.PayeeConsultant, RecipientID: "1", TotalEarned: d("10"), TotalPaid: d("12"), Unpaid: d("-2"), Status: ledger.StatusPaid},
			{PayeeType: ledger.PayeeConsultant, RecipientID: "2", TotalEarned: d("10"), TotalPaid: d("10.005"), Unpaid: d("-0.005"), Status: ledger.StatusPaid},
			{PayeeType: ledger.PayeeConsultant, RecipientID: "3", TotalEarned: d("10"), TotalPaid: decimal.Zero, Unpaid: d("10"), Status: ledger.StatusUnpaid},
		},
	}
	res := Scan(snap, nil, nil)
	require.Equal(t, 1, res.Overpaid)
	require.Equal(t, 1, res.Unpaid)
}

func TestScanLabelsAnomaliesByGroup(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	snap := ledger.Snapshot{
		Team: []ledger.Balance{
			{RecipientID: "ceo", TotalEarned: d("10"), TotalPaid: d("11"), Unpaid: d("-1"), Status: ledger.StatusPaid},
			{RecipientID: "accountant", TotalEarned: d("4"), TotalPaid: decimal.Zero, Unpaid: d("4"), Status: ledger.StatusUnpaid},
		},
	}
	res := Scan(snap, nil, metrics)
	require.Equal(t, 1, res.Overpaid)

	rr := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rr.Body.String()
	require.Contains(t, body, `medconsult_reconciliation_anomalies_total{kind="overpaid",payee_type="team"} 1`)
	require.Contains(t, body, `medconsult_reconciliation_anomalies_total{kind="unpaid",payee_type="team"} 1`)
	require.NotContains(t, body, `payee_type="unknown"`)
	require.NotContains(t, body, `payee_type="consultant"`)
}

func newTestRouter(svc API) http.Handler {
	r := chi.NewRouter()
	NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc, rbac.Middleware{}).MountRoutes(r)
	return r
}

func postPayment(t *testing.T, router http.Handler, key string, body any, p rbac.Principal) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/accountant/make-payment", bytes.NewReader(raw))
	req.Header.Set(IdempotencyHeader, key)
	req = req.WithContext(rbac.ContextWithPrincipal(req.Context(), p))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestHandlerMakePaymentReplayReturnsConflict(t *testing.T) {
	f := newFixture(t, Options{})
	router := newTestRouter(f.svc)
	body := map[string]any{
		"payment_type":   "consultant",
		"recipient_id":   "7",
		"amount":         "20",
		"payment_method": "bank",
	}

	rr := postPayment(t, router, "abc", body, accountant)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = postPayment(t, router, "abc", body, accountant)
	require.Equal(t, http.StatusConflict, rr.Code)
}

func TestHandlerMakePaymentForbiddenForManagement(t *testing.T) {
	f := newFixture(t, Options{})
	router := newTestRouter(f.svc)
	rr := postPayment(t, router, "", map[string]any{}, rbac.Principal{ID: 2, Role: rbac.RoleManagement})
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestHandlerPaymentStatusShape(t *testing.T) {
	f := newFixture(t, Options{})
	router := newTestRouter(f.svc)
	req := httptest.NewRequest(http.MethodGet, "/accountant/payment-status", nil)
	req = req.WithContext(rbac.ContextWithPrincipal(req.Context(), accountant))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Consultants []map[string]any `json:"consultants"`
		Team        []map[string]any `json:"team"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Consultants, 2)
	require.Equal(t, "unpaid", body.Consultants[0]["status"])
	require.Len(t, body.Team, 4)
}
