package reporting

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/medconsult-liberia/medconsult/internal/earnings"
	"github.com/medconsult-liberia/medconsult/internal/ledger"
)

// StatsSource loads headline totals.
type StatsSource interface {
	Stats(ctx context.Context) (Stats, error)
}

// SummarySource loads the consultant summary.
type SummarySource interface {
	Summary(ctx context.Context) (earnings.Summary, error)
}

// BalanceSource loads payee balances.
type BalanceSource interface {
	Status(ctx context.Context) (ledger.Snapshot, error)
}

// Service loads report inputs and assembles reports.
type Service struct {
	stats    StatsSource
	summary  SummarySource
	balances BalanceSource
	now      func() time.Time
	newID    func() uuid.UUID
}

// NewService constructs the reporting service.
func NewService(stats StatsSource, summary SummarySource, balances BalanceSource) *Service {
	return &Service{stats: stats, summary: summary, balances: balances, now: time.Now, newID: uuid.New}
}

// WithNow overrides the clock, used in tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// Stats exposes headline totals on their own.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	return s.stats.Stats(ctx)
}

// Load fetches every report input concurrently. Any failure fails the load;
// a report is never produced from partial data.
func (s *Service) Load(ctx context.Context) (Input, error) {
	var in Input
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		in.Stats, err = s.stats.Stats(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		in.Summary, err = s.summary.Summary(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		in.Balances, err = s.balances.Status(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Input{}, err
	}
	return in, nil
}

// Generate loads inputs and assembles a fresh report.
func (s *Service) Generate(ctx context.Context) (Report, error) {
	in, err := s.Load(ctx)
	if err != nil {
		return Report{}, err
	}
	return Assemble(in, s.newID(), s.now()), nil
}
