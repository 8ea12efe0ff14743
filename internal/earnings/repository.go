package earnings

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/medconsult-liberia/medconsult/internal/platform/db"
	"github.com/medconsult-liberia/medconsult/internal/revenue"
)

// Repository defines earnings data access.
type Repository interface {
	ListEntries(ctx context.Context, consultantID int64) ([]Entry, error)
	ListTeamDistributions(ctx context.Context) ([]TeamDistribution, error)
	ListConsultants(ctx context.Context) ([]Consultant, error)
	GetConsultant(ctx context.Context, id int64) (Consultant, error)
}

var _ Repository = (*pgRepository)(nil)

type pgRepository struct {
	q db.Querier
}

// NewRepository returns a Postgres-backed Repository.
func NewRepository(q db.Querier) Repository {
	return &pgRepository{q: q}
}

const listEntriesSQL = `SELECT e.id, e.assignment_id, a.title, e.consultant_id, u.name,
	e.amount, e.consultant_share, e.website_fee, e.team_fee, e.created_at
FROM assignment_earnings e
JOIN assignments a ON a.id = e.assignment_id
JOIN users u ON u.id = e.consultant_id
WHERE ($1::bigint = 0 OR e.consultant_id = $1)
ORDER BY e.created_at DESC, e.id DESC`

// ListEntries returns earnings for one consultant, or all when consultantID is 0.
func (r *pgRepository) ListEntries(ctx context.Context, consultantID int64) ([]Entry, error) {
	rows, err := r.q.Query(ctx, listEntriesSQL, consultantID)
	if err != nil {
		return nil, fmt.Errorf("earnings: list entries: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		err := row.Scan(&e.ID, &e.AssignmentID, &e.AssignmentTitle, &e.ConsultantID, &e.ConsultantName,
			&e.Amount, &e.ConsultantShare, &e.WebsiteFee, &e.TeamFee, &e.CreatedAt)
		return e, err
	})
}

func (r *pgRepository) ListTeamDistributions(ctx context.Context) ([]TeamDistribution, error) {
	rows, err := r.q.Query(ctx, `SELECT id, type, amount, transaction_date
FROM transactions
WHERE status = 'completed' AND distribute_to_team AND type <> 'consultation_fee'
ORDER BY transaction_date DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("earnings: list team distributions: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (TeamDistribution, error) {
		var d TeamDistribution
		var typ string
		err := row.Scan(&d.TransactionID, &typ, &d.Amount, &d.Date)
		d.Type = revenue.TransactionType(typ)
		return d, err
	})
}

func (r *pgRepository) ListConsultants(ctx context.Context) ([]Consultant, error) {
	rows, err := r.q.Query(ctx, `SELECT id, name, email FROM users WHERE role = 'consultant' ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("earnings: list consultants: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[Consultant])
}

func (r *pgRepository) GetConsultant(ctx context.Context, id int64) (Consultant, error) {
	var c Consultant
	err := r.q.QueryRow(ctx, `SELECT id, name, email FROM users WHERE id = $1 AND role = 'consultant'`, id).
		Scan(&c.ID, &c.Name, &c.Email)
	if db.IsNoRows(err) {
		return Consultant{}, ErrConsultantNotFound
	}
	if err != nil {
		return Consultant{}, fmt.Errorf("earnings: get consultant: %w", err)
	}
	return c, nil
}
