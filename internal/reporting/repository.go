package reporting

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/medconsult-liberia/medconsult/internal/platform/db"
)

// Archive records a rendered report stored on disk.
type Archive struct {
	ID          uuid.UUID
	Period      string
	Path        string
	NetProfit   decimal.Decimal
	Discrepancy bool
	GeneratedAt time.Time
}

// Repository reads headline totals and records archives.
type Repository interface {
	Stats(ctx context.Context) (Stats, error)
	SaveArchive(ctx context.Context, a Archive) error
}

type pgRepository struct {
	q db.Querier
}

// NewRepository returns a Postgres-backed Repository.
func NewRepository(q db.Querier) Repository {
	return &pgRepository{q: q}
}

func (r *pgRepository) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := r.q.QueryRow(ctx, `SELECT
	COALESCE((SELECT SUM(amount) FROM transactions WHERE status = 'completed'), 0),
	COALESCE((SELECT SUM(amount) FROM expenses WHERE status = 'approved'), 0)`).
		Scan(&s.TotalRevenue, &s.TotalExpenses)
	if err != nil {
		return Stats{}, fmt.Errorf("reporting: stats: %w", err)
	}
	return s, nil
}

func (r *pgRepository) SaveArchive(ctx context.Context, a Archive) error {
	_, err := r.q.Exec(ctx, `INSERT INTO report_archives (id, period, path, net_profit, discrepancy, generated_at)
VALUES ($1, $2, $3, $4, $5, $6)`, a.ID, a.Period, a.Path, a.NetProfit, a.Discrepancy, a.GeneratedAt)
	if err != nil {
		return fmt.Errorf("reporting: save archive: %w", err)
	}
	return nil
}
