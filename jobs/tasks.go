package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueNotifications carries outbound email.
	QueueNotifications = "notifications"

	// TaskRemittanceNotice emails a payee after a payment is recorded.
	TaskRemittanceNotice = "payouts:remittance_notice"
	// TaskReportArchive renders the financial report to PDF and stores it.
	TaskReportArchive = "reporting:archive"
	// TaskReconciliationScan recomputes every payee balance and logs anomalies.
	TaskReconciliationScan = "payouts:reconciliation_scan"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// RemittancePayload describes a recorded payment to notify a payee about.
type RemittancePayload struct {
	PaymentID      int64     `json:"payment_id"`
	PaymentType    string    `json:"payment_type"`
	RecipientName  string    `json:"recipient_name"`
	RecipientEmail string    `json:"recipient_email"`
	Amount         string    `json:"amount"`
	Method         string    `json:"payment_method"`
	Reference      string    `json:"payment_reference"`
	PeriodStart    string    `json:"period_start,omitempty"`
	PeriodEnd      string    `json:"period_end,omitempty"`
	PaidAt         time.Time `json:"paid_at"`
}

// ReportArchivePayload selects the period label an archived report is filed under.
type ReportArchivePayload struct {
	Period      string `json:"period"`
	RequestedBy int64  `json:"requested_by"`
}

// NewRemittanceTask constructs a remittance notice task.
func NewRemittanceTask(payload RemittancePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRemittanceNotice, data, asynq.MaxRetry(5), asynq.Queue(QueueNotifications)), nil
}

// NewReportArchiveTask constructs a report archive task.
func NewReportArchiveTask(payload ReportArchivePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportArchive, data, asynq.MaxRetry(3), asynq.Timeout(5*time.Minute)), nil
}

// NewReconciliationScanTask constructs the nightly reconciliation task.
func NewReconciliationScanTask() *asynq.Task {
	return asynq.NewTask(TaskReconciliationScan, nil, asynq.MaxRetry(1))
}

// NewIdempotencyCleanupTask constructs the key purge task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil, asynq.MaxRetry(1))
}

// MonthlyPeriod labels the month before at, e.g. "2025-05" on 1 June 2025.
func MonthlyPeriod(at time.Time) string {
	first := time.Date(at.Year(), at.Month(), 1, 0, 0, 0, 0, time.UTC)
	return first.AddDate(0, -1, 0).Format("2006-01")
}
