package payouts

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	jobmetrics "github.com/medconsult-liberia/medconsult/internal/jobs"
	"github.com/medconsult-liberia/medconsult/internal/ledger"
	"github.com/medconsult-liberia/medconsult/jobs"
)

// StatusSource loads the payment status snapshot.
type StatusSource interface {
	Status(ctx context.Context) (ledger.Snapshot, error)
}

// ScanResult counts flagged balances.
type ScanResult struct {
	Overpaid int
	Unpaid   int
}

// Scan flags overpaid payees (beyond the cent slack) and payees with nothing paid
// against a positive balance.
func Scan(snapshot ledger.Snapshot, logger *slog.Logger, metrics *jobmetrics.Metrics) ScanResult {
	var res ScanResult
	limit := OverpaymentSlack.Neg()
	check := func(payeeType ledger.PayeeType, balances []ledger.Balance) {
		overpaid, unpaid := 0, 0
		for _, b := range balances {
			switch {
			case b.Unpaid.LessThan(limit):
				overpaid++
				if logger != nil {
					logger.Warn("payee overpaid",
						slog.String("payee_type", string(payeeType)),
						slog.String("recipient_id", b.RecipientID),
						slog.String("overpaid_by", b.Unpaid.Neg().StringFixed(2)))
				}
			case b.Status == ledger.StatusUnpaid && b.TotalEarned.GreaterThan(decimal.Zero):
				unpaid++
			}
		}
		metrics.AddAnomalies("overpaid", string(payeeType), overpaid)
		metrics.AddAnomalies("unpaid", string(payeeType), unpaid)
		res.Overpaid += overpaid
		res.Unpaid += unpaid
	}
	check(ledger.PayeeConsultant, snapshot.Consultants)
	check(ledger.PayeeTeam, snapshot.Team)
	return res
}

// ReconciliationJob handles jobs.TaskReconciliationScan.
type ReconciliationJob struct {
	source  StatusSource
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewReconciliationJob constructs the job.
func NewReconciliationJob(source StatusSource, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReconciliationJob {
	return &ReconciliationJob{source: source, logger: logger, metrics: metrics}
}

// Handle recomputes every balance and reports anomalies.
func (j *ReconciliationJob) Handle(ctx context.Context, _ *asynq.Task) error {
	tracker := j.metrics.Track(jobs.TaskReconciliationScan)
	snapshot, err := j.source.Status(ctx)
	if err != nil {
		return tracker.End(err)
	}
	res := Scan(snapshot, j.logger, j.metrics)
	if j.logger != nil {
		j.logger.Info("reconciliation scan complete",
			slog.Int("consultants", len(snapshot.Consultants)),
			slog.Int("overpaid", res.Overpaid),
			slog.Int("unpaid", res.Unpaid))
	}
	return tracker.End(nil)
}
