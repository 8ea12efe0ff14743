package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/medconsult-liberia/medconsult/jobs"
)

// errUnsupportedJob is returned for job names the CLI cannot build.
var errUnsupportedJob = errors.New("jobctl: unsupported job")

// jobsCLI wraps manual management helpers for the finance queues.
type jobsCLI struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

func newJobsCLI(redisAddr string) *jobsCLI {
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	return &jobsCLI{client: asynq.NewClient(opts), inspector: asynq.NewInspector(opts)}
}

func (c *jobsCLI) Close() error {
	return errors.Join(c.inspector.Close(), c.client.Close())
}

// taskFor builds the task for a job name. period only applies to report archives.
func taskFor(name, period string) (*asynq.Task, error) {
	switch name {
	case jobs.TaskReconciliationScan:
		return jobs.NewReconciliationScanTask(), nil
	case jobs.TaskIdempotencyCleanup:
		return jobs.NewIdempotencyCleanupTask(), nil
	case jobs.TaskReportArchive:
		return jobs.NewReportArchiveTask(jobs.ReportArchivePayload{Period: period})
	default:
		return nil, fmt.Errorf("%w: %s", errUnsupportedJob, name)
	}
}

// Trigger enqueues a supported job by name.
func (c *jobsCLI) Trigger(ctx context.Context, name, period string) (*asynq.TaskInfo, error) {
	task, err := taskFor(name, period)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(jobs.QueueDefault))
}

type queueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Archived  int
}

// Inspect reports the state of both finance queues.
func (c *jobsCLI) Inspect() ([]queueStats, error) {
	out := make([]queueStats, 0, 2)
	for _, queue := range []string{jobs.QueueDefault, jobs.QueueNotifications} {
		info, err := c.inspector.GetQueueInfo(queue)
		if errors.Is(err, asynq.ErrQueueNotFound) {
			out = append(out, queueStats{Queue: queue})
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, queueStats{
			Queue:     queue,
			Pending:   info.Pending,
			Active:    info.Active,
			Scheduled: info.Scheduled,
			Retry:     info.Retry,
			Archived:  info.Archived,
		})
	}
	return out, nil
}

// ListRetry returns tasks waiting for a retry, usually failed remittance emails.
func (c *jobsCLI) ListRetry(queue string, size int) ([]*asynq.TaskInfo, error) {
	if size <= 0 {
		size = 10
	}
	return c.inspector.ListRetryTasks(queue, asynq.PageSize(size), asynq.Page(1))
}
