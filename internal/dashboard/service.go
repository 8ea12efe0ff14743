package dashboard

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/medconsult-liberia/medconsult/internal/earnings"
	"github.com/medconsult-liberia/medconsult/internal/ledger"
	"github.com/medconsult-liberia/medconsult/internal/payouts"
	"github.com/medconsult-liberia/medconsult/internal/reporting"
)

// RecentFeedLimit caps the number of feed rows shown on the dashboard.
const RecentFeedLimit = 20

// StatsSource loads headline totals.
type StatsSource interface {
	Stats(ctx context.Context) (reporting.Stats, error)
}

// SummarySource loads the consultant summary.
type SummarySource interface {
	Summary(ctx context.Context) (earnings.Summary, error)
}

// StatusSource loads payee balances.
type StatusSource interface {
	Status(ctx context.Context) (ledger.Snapshot, error)
}

// FeedSource loads the payment feed.
type FeedSource interface {
	Feed(ctx context.Context) (payouts.Feed, error)
}

// Service refreshes dashboard sections.
type Service struct {
	stats   StatsSource
	summary SummarySource
	status  StatusSource
	feed    FeedSource
	logger  *slog.Logger
	now     func() time.Time
}

// NewService constructs the dashboard service.
func NewService(stats StatsSource, summary SummarySource, status StatusSource, feed FeedSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{stats: stats, summary: summary, status: status, feed: feed, logger: logger, now: time.Now}
}

// Refresh reloads the named sections of prev concurrently, or every section when
// none are named. Each section is loaded at most once. A failing section records its error and never cancels the
// others; sections not named keep their previous value.
func (s *Service) Refresh(ctx context.Context, prev State, sections ...SectionName) State {
	if len(sections) == 0 {
		sections = AllSections()
	}
	next := prev
	var g errgroup.Group
	seen := make(map[SectionName]bool, len(sections))
	for _, name := range sections {
		if seen[name] {
			continue
		}
		seen[name] = true
		switch name {
		case SectionStats:
			g.Go(func() error {
				data, err := s.stats.Stats(ctx)
				next.Stats = loaded(data, s.logFailure(name, err), s.now())
				return nil
			})
		case SectionSummary:
			g.Go(func() error {
				data, err := s.summary.Summary(ctx)
				next.Summary = loaded(data, s.logFailure(name, err), s.now())
				return nil
			})
		case SectionPaymentStatus:
			g.Go(func() error {
				data, err := s.status.Status(ctx)
				next.PaymentStatus = loaded(data, s.logFailure(name, err), s.now())
				return nil
			})
		case SectionFeed:
			g.Go(func() error {
				data, err := s.feed.Feed(ctx)
				if err == nil && len(data.Items) > RecentFeedLimit {
					data.Items = data.Items[:RecentFeedLimit]
				}
				next.Feed = loaded(data, s.logFailure(name, err), s.now())
				return nil
			})
		}
	}
	_ = g.Wait()
	return next
}

func (s *Service) logFailure(name SectionName, err error) error {
	if err != nil {
		s.logger.Warn("dashboard section failed", slog.String("section", string(name)), slog.Any("error", err))
	}
	return err
}
