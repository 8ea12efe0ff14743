package transactions

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medconsult-liberia/medconsult/internal/platform/db"
	"github.com/medconsult-liberia/medconsult/internal/revenue"
	"github.com/medconsult-liberia/medconsult/internal/shared"
)

// Repository defines transaction data access.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context, filter Filter, page shared.PageRequest) ([]Transaction, int, error)
	Get(ctx context.Context, id int64) (Transaction, error)
	ConsultantExists(ctx context.Context, id int64) (bool, error)
}

// TxRepository defines operations within a transaction.
type TxRepository interface {
	Insert(ctx context.Context, t Transaction) (Transaction, error)
	Update(ctx context.Context, t Transaction) (Transaction, error)
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (Transaction, error)
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

const selectSQL = `SELECT t.id, t.amount, t.type, t.consultant_id, COALESCE(u.name, ''), t.distribute_to_team,
	t.status, t.transaction_date, t.receipt_url, t.description, t.recorded_by, t.created_at, t.updated_at
FROM transactions t
LEFT JOIN users u ON u.id = t.consultant_id`

const filterSQL = `
WHERE ($1 = '' OR t.type = $1)
  AND ($2 = '' OR t.status = $2)
  AND ($3::date IS NULL OR t.transaction_date >= $3)
  AND ($4::date IS NULL OR t.transaction_date <= $4)
  AND ($5::bigint = 0 OR t.consultant_id = $5)`

func scanTransaction(row pgx.CollectableRow) (Transaction, error) {
	var t Transaction
	var typ, status string
	err := row.Scan(&t.ID, &t.Amount, &typ, &t.ConsultantID, &t.ConsultantName, &t.DistributeToTeam,
		&status, &t.Date, &t.ReceiptURL, &t.Description, &t.RecordedBy, &t.CreatedAt, &t.UpdatedAt)
	t.Type = revenue.TransactionType(typ)
	t.Status = Status(status)
	return t, err
}

func (r *pgRepository) List(ctx context.Context, f Filter, page shared.PageRequest) ([]Transaction, int, error) {
	args := []any{string(f.Type), string(f.Status), f.From, f.To, f.ConsultantID}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transactions t`+filterSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("transactions: count: %w", err)
	}
	rows, err := r.pool.Query(ctx, selectSQL+filterSQL+`
ORDER BY t.transaction_date DESC, t.id DESC
LIMIT $6 OFFSET $7`, append(args, page.Limit(), page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("transactions: list: %w", err)
	}
	items, err := pgx.CollectRows(rows, scanTransaction)
	if err != nil {
		return nil, 0, fmt.Errorf("transactions: list: %w", err)
	}
	return items, total, nil
}

func (r *pgRepository) Get(ctx context.Context, id int64) (Transaction, error) {
	return get(ctx, r.pool, id, "")
}

func (r *pgRepository) ConsultantExists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1 AND role = 'consultant')`, id).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("transactions: consultant lookup: %w", err)
	}
	return ok, nil
}

func get(ctx context.Context, q db.Querier, id int64, suffix string) (Transaction, error) {
	rows, err := q.Query(ctx, selectSQL+` WHERE t.id = $1`+suffix, id)
	if err != nil {
		return Transaction{}, fmt.Errorf("transactions: get: %w", err)
	}
	t, err := pgx.CollectExactlyOneRow(rows, scanTransaction)
	if db.IsNoRows(err) {
		return Transaction{}, ErrNotFound
	}
	if err != nil {
		return Transaction{}, fmt.Errorf("transactions: get: %w", err)
	}
	return t, nil
}

type pgTxRepository struct {
	tx pgx.Tx
}

func (r *pgTxRepository) Get(ctx context.Context, id int64) (Transaction, error) {
	return get(ctx, r.tx, id, ` FOR UPDATE OF t`)
}

func (r *pgTxRepository) Insert(ctx context.Context, t Transaction) (Transaction, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO transactions (amount, type, consultant_id, distribute_to_team, status,
	transaction_date, receipt_url, description, recorded_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id, amount, created_at, updated_at`,
		t.Amount, string(t.Type), t.ConsultantID, t.DistributeToTeam, string(t.Status),
		t.Date, t.ReceiptURL, t.Description, t.RecordedBy).Scan(&t.ID, &t.Amount, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return Transaction{}, fmt.Errorf("transactions: insert: %w", err)
	}
	return t, nil
}

func (r *pgTxRepository) Update(ctx context.Context, t Transaction) (Transaction, error) {
	err := r.tx.QueryRow(ctx, `UPDATE transactions SET amount = $2, type = $3, consultant_id = $4,
	distribute_to_team = $5, status = $6, transaction_date = $7, receipt_url = $8, description = $9, updated_at = NOW()
WHERE id = $1
RETURNING amount, updated_at`,
		t.ID, t.Amount, string(t.Type), t.ConsultantID, t.DistributeToTeam, string(t.Status),
		t.Date, t.ReceiptURL, t.Description).Scan(&t.Amount, &t.UpdatedAt)
	if db.IsNoRows(err) {
		return Transaction{}, ErrNotFound
	}
	if err != nil {
		return Transaction{}, fmt.Errorf("transactions: update: %w", err)
	}
	return t, nil
}

func (r *pgTxRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("transactions: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgTxRepository) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	return shared.NewAuditLogger(r.tx).Record(ctx, log)
}
