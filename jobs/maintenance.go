package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/medconsult-liberia/medconsult/internal/jobs"
)

// KeyCleaner purges stored idempotency keys.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// IdempotencyCleanup handles TaskIdempotencyCleanup.
type IdempotencyCleanup struct {
	store     KeyCleaner
	retention time.Duration
	logger    *slog.Logger
	metrics   *jobmetrics.Metrics
}

// NewIdempotencyCleanup constructs the handler.
func NewIdempotencyCleanup(store KeyCleaner, retention time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyCleanup {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &IdempotencyCleanup{store: store, retention: retention, logger: logger, metrics: metrics}
}

// Handle processes the task.
func (c *IdempotencyCleanup) Handle(ctx context.Context, _ *asynq.Task) error {
	tracker := c.metrics.Track(TaskIdempotencyCleanup)
	removed, err := c.store.Cleanup(ctx, c.retention)
	if err != nil {
		return tracker.End(err)
	}
	if c.logger != nil {
		c.logger.Info("idempotency keys purged", slog.Int64("removed", removed))
	}
	return tracker.End(nil)
}
