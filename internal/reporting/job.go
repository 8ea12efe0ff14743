package reporting

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/medconsult-liberia/medconsult/internal/jobs"
	"github.com/medconsult-liberia/medconsult/jobs"
)

// PDFRenderer renders an assembled report to PDF.
type PDFRenderer interface {
	RenderReport(ctx context.Context, r Report) ([]byte, error)
}

// ArchiveStore records archived reports.
type ArchiveStore interface {
	SaveArchive(ctx context.Context, a Archive) error
}

// ArchiveJobConfig wires dependencies required by the archive job.
type ArchiveJobConfig struct {
	Service    *Service
	Renderer   PDFRenderer
	Store      ArchiveStore
	StorageDir string
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// ArchiveJob renders the current report and files it under a period label.
type ArchiveJob struct {
	service    *Service
	renderer   PDFRenderer
	store      ArchiveStore
	storageDir string
	logger     *slog.Logger
	metrics    *jobmetrics.Metrics
}

// NewArchiveJob constructs the job handler.
func NewArchiveJob(cfg ArchiveJobConfig) *ArchiveJob {
	return &ArchiveJob{
		service:    cfg.Service,
		renderer:   cfg.Renderer,
		store:      cfg.Store,
		storageDir: cfg.StorageDir,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
	}
}

// Handle fulfils the asynq.HandlerFunc contract for jobs.TaskReportArchive.
func (j *ArchiveJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.service == nil || j.renderer == nil || j.store == nil {
		return fmt.Errorf("report archive job not configured")
	}
	tracker := j.metrics.Track(jobs.TaskReportArchive)
	var payload jobs.ReportArchivePayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return tracker.End(fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry))
		}
	}
	period := strings.TrimSpace(payload.Period)
	if period == "" {
		period = jobs.MonthlyPeriod(j.service.now())
	}
	if strings.ContainsAny(period, `/\.`) {
		return tracker.End(fmt.Errorf("invalid period %q: %w", period, asynq.SkipRetry))
	}

	report, err := j.service.Generate(ctx)
	if err != nil {
		return tracker.End(err)
	}
	pdf, err := j.renderer.RenderReport(ctx, report)
	if err != nil {
		return tracker.End(err)
	}
	path, err := j.save(period, report, pdf)
	if err != nil {
		return tracker.End(err)
	}
	archive := Archive{
		ID:          report.ID,
		Period:      period,
		Path:        path,
		NetProfit:   report.NetProfit,
		Discrepancy: report.Discrepancy,
		GeneratedAt: report.GeneratedAt,
	}
	if err := j.store.SaveArchive(ctx, archive); err != nil {
		return tracker.End(err)
	}
	if j.logger != nil {
		j.logger.Info("financial report archived",
			slog.String("period", period),
			slog.String("file", path),
			slog.Bool("discrepancy", report.Discrepancy),
			slog.Int64("requested_by", payload.RequestedBy))
	}
	return tracker.End(nil)
}

func (j *ArchiveJob) save(period string, r Report, pdf []byte) (string, error) {
	dir := j.storageDir
	if strings.TrimSpace(dir) == "" {
		dir = filepath.Join(os.TempDir(), "medconsult-reports")
	}
	dir = filepath.Join(dir, period)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("financial-report-%s.pdf", r.ID))
	if err := os.WriteFile(path, pdf, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
