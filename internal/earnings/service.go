package earnings

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/medconsult-liberia/medconsult/internal/ledger"
	"github.com/medconsult-liberia/medconsult/internal/rbac"
)

// Service serves earnings reads.
type Service struct {
	repo Repository
}

// NewService constructs the earnings service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Entries lists earnings visible to the principal. Consultants only see their own.
func (s *Service) Entries(ctx context.Context, principal rbac.Principal) ([]Entry, error) {
	var consultantID int64
	if principal.Role == rbac.RoleConsultant {
		consultantID = principal.ID
	}
	entries, err := s.repo.ListEntries(ctx, consultantID)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

// Summary aggregates all earnings per consultant. Its fee totals include team
// distributions so they agree with the team balances.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	entries, distributions, err := s.load(ctx)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(entries, distributions), nil
}

// LedgerEarnings returns every earning that feeds payee balances, including
// partnership distributions into the team pool.
func (s *Service) LedgerEarnings(ctx context.Context) ([]ledger.Earning, error) {
	entries, distributions, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return ToLedger(entries, distributions), nil
}

func (s *Service) load(ctx context.Context) ([]Entry, []TeamDistribution, error) {
	var (
		entries       []Entry
		distributions []TeamDistribution
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		entries, err = s.repo.ListEntries(gctx, 0)
		return err
	})
	g.Go(func() error {
		var err error
		distributions, err = s.repo.ListTeamDistributions(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return entries, distributions, nil
}

// ConsultantPayees lists every consultant as a ledger payee.
func (s *Service) ConsultantPayees(ctx context.Context) ([]ledger.Payee, error) {
	consultants, err := s.repo.ListConsultants(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ledger.Payee, 0, len(consultants))
	for _, c := range consultants {
		out = append(out, ledger.ConsultantPayee(c.ID, c.Name, c.Email))
	}
	return out, nil
}

// ConsultantPayee resolves a single consultant payee.
func (s *Service) ConsultantPayee(ctx context.Context, id int64) (ledger.Payee, error) {
	c, err := s.repo.GetConsultant(ctx, id)
	if err != nil {
		return ledger.Payee{}, err
	}
	return ledger.ConsultantPayee(c.ID, c.Name, c.Email), nil
}
