package expenses

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medconsult-liberia/medconsult/internal/platform/db"
	"github.com/medconsult-liberia/medconsult/internal/shared"
)

// Repository defines expense data access.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context, filter Filter, page shared.PageRequest) ([]Expense, int, error)
	Get(ctx context.Context, id int64) (Expense, error)
}

// TxRepository defines operations within a transaction.
type TxRepository interface {
	Get(ctx context.Context, id int64) (Expense, error)
	Insert(ctx context.Context, e Expense) (Expense, error)
	Update(ctx context.Context, e Expense) (Expense, error)
	SetStatus(ctx context.Context, id int64, status Status, actorID int64, at time.Time) error
	Delete(ctx context.Context, id int64) error
	RecordAudit(ctx context.Context, log shared.AuditLog) error
}

var (
	_ Repository   = (*pgRepository)(nil)
	_ TxRepository = (*pgTxRepository)(nil)
)

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a Postgres-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{tx: tx})
	})
}

const selectSQL = `SELECT id, category, amount, description, expense_date, status, receipt_url,
	recorded_by, decided_by, decided_at, created_at, updated_at
FROM expenses`

const filterSQL = `
WHERE ($1 = '' OR status = $1)
  AND ($2 = '' OR category = $2)
  AND ($3::date IS NULL OR expense_date >= $3)
  AND ($4::date IS NULL OR expense_date <= $4)`

func scanExpense(row pgx.CollectableRow) (Expense, error) {
	var e Expense
	var status string
	err := row.Scan(&e.ID, &e.Category, &e.Amount, &e.Description, &e.Date, &status, &e.ReceiptURL,
		&e.RecordedBy, &e.DecidedBy, &e.DecidedAt, &e.CreatedAt, &e.UpdatedAt)
	e.Status = Status(status)
	return e, err
}

func (r *pgRepository) List(ctx context.Context, f Filter, page shared.PageRequest) ([]Expense, int, error) {
	args := []any{string(f.Status), f.Category, f.From, f.To}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM expenses`+filterSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("expenses: count: %w", err)
	}
	rows, err := r.pool.Query(ctx, selectSQL+filterSQL+`
ORDER BY expense_date DESC, id DESC
LIMIT $5 OFFSET $6`, append(args, page.Limit(), page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("expenses: list: %w", err)
	}
	items, err := pgx.CollectRows(rows, scanExpense)
	if err != nil {
		return nil, 0, fmt.Errorf("expenses: list: %w", err)
	}
	return items, total, nil
}

func (r *pgRepository) Get(ctx context.Context, id int64) (Expense, error) {
	return get(ctx, r.pool, id, "")
}

func get(ctx context.Context, q db.Querier, id int64, suffix string) (Expense, error) {
	rows, err := q.Query(ctx, selectSQL+` WHERE id = $1`+suffix, id)
	if err != nil {
		return Expense{}, fmt.Errorf("expenses: get: %w", err)
	}
	e, err := pgx.CollectExactlyOneRow(rows, scanExpense)
	if db.IsNoRows(err) {
		return Expense{}, ErrNotFound
	}
	if err != nil {
		return Expense{}, fmt.Errorf("expenses: get: %w", err)
	}
	return e, nil
}

type pgTxRepository struct {
	tx pgx.Tx
}

func (r *pgTxRepository) Get(ctx context.Context, id int64) (Expense, error) {
	return get(ctx, r.tx, id, ` FOR UPDATE`)
}

func (r *pgTxRepository) Insert(ctx context.Context, e Expense) (Expense, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO expenses (category, amount, description, expense_date, status, receipt_url, recorded_by)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, amount, created_at, updated_at`,
		e.Category, e.Amount, e.Description, e.Date, string(e.Status), e.ReceiptURL, e.RecordedBy).
		Scan(&e.ID, &e.Amount, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return Expense{}, fmt.Errorf("expenses: insert: %w", err)
	}
	return e, nil
}

func (r *pgTxRepository) Update(ctx context.Context, e Expense) (Expense, error) {
	err := r.tx.QueryRow(ctx, `UPDATE expenses SET category = $2, amount = $3, description = $4, expense_date = $5,
	receipt_url = $6, updated_at = NOW()
WHERE id = $1
RETURNING amount, updated_at`, e.ID, e.Category, e.Amount, e.Description, e.Date, e.ReceiptURL).Scan(&e.Amount, &e.UpdatedAt)
	if db.IsNoRows(err) {
		return Expense{}, ErrNotFound
	}
	if err != nil {
		return Expense{}, fmt.Errorf("expenses: update: %w", err)
	}
	return e, nil
}

func (r *pgTxRepository) SetStatus(ctx context.Context, id int64, status Status, actorID int64, at time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE expenses SET status = $2, decided_by = $3, decided_at = $4, updated_at = $4 WHERE id = $1`,
		id, string(status), actorID, at)
	if err != nil {
		return fmt.Errorf("expenses: set status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgTxRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("expenses: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgTxRepository) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	return shared.NewAuditLogger(r.tx).Record(ctx, log)
}
