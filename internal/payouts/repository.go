package payouts

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medconsult-liberia/medconsult/internal/ledger"
	"github.com/medconsult-liberia/medconsult/internal/platform/db"
	"github.com/medconsult-liberia/medconsult/internal/shared"
)

// Filter narrows payment listings. Zero values match everything.
type Filter struct {
	PaymentType ledger.PayeeType
	RecipientID string
}

// Repository defines payout data access.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListPayments(ctx context.Context, filter Filter) ([]Record, error)
	ListInflows(ctx context.Context) ([]Inflow, error)
}

// TxRepository defines operations within a transaction.
type TxRepository interface {
	ClaimIdempotencyKey(ctx context.Context, key string) error
	InsertPayment(ctx context.Context, rec Record) (Record, error)
	RecordAudit(ctx context.Context, log shared.AuditLog) error
}

const idempotencyModule = "payouts"

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

// WithTx runs fn in a read-committed transaction; the idempotency key, the
// payment row and its audit entry commit together.
func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxOptions(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{tx: tx})
	})
}

const selectPaymentSQL = `SELECT id, payment_type, recipient_id, recipient_name, recipient_email, amount,
	payment_method, payment_reference, notes, period_start, period_end, total_assignments, recorded_by, created_at
FROM payment_records`

func scanRecord(row pgx.CollectableRow) (Record, error) {
	var rec Record
	var typ string
	err := row.Scan(&rec.ID, &typ, &rec.RecipientID, &rec.RecipientName, &rec.RecipientEmail, &rec.Amount,
		&rec.PaymentMethod, &rec.PaymentReference, &rec.Notes, &rec.PeriodStart, &rec.PeriodEnd,
		&rec.TotalAssignments, &rec.RecordedBy, &rec.CreatedAt)
	rec.PaymentType = ledger.PayeeType(typ)
	return rec, err
}

func (r *pgRepository) ListPayments(ctx context.Context, filter Filter) ([]Record, error) {
	rows, err := r.pool.Query(ctx, selectPaymentSQL+`
WHERE ($1 = '' OR payment_type = $1) AND ($2 = '' OR recipient_id = $2)
ORDER BY created_at DESC, id DESC`, string(filter.PaymentType), filter.RecipientID)
	if err != nil {
		return nil, fmt.Errorf("payouts: list payments: %w", err)
	}
	return pgx.CollectRows(rows, scanRecord)
}

func (r *pgRepository) ListInflows(ctx context.Context) ([]Inflow, error) {
	rows, err := r.pool.Query(ctx, `SELECT t.id, t.type, t.amount, t.status, t.description, COALESCE(u.name, ''), t.transaction_date
FROM transactions t
LEFT JOIN users u ON u.id = t.consultant_id
ORDER BY t.transaction_date DESC, t.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("payouts: list inflows: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Inflow, error) {
		var in Inflow
		err := row.Scan(&in.ID, &in.Type, &in.Amount, &in.Status, &in.Description, &in.ConsultantName, &in.Date)
		return in, err
	})
}

type pgTxRepository struct {
	tx pgx.Tx
}

func (r *pgTxRepository) ClaimIdempotencyKey(ctx context.Context, key string) error {
	return shared.NewIdempotencyStore(r.tx).CheckAndInsert(ctx, key, idempotencyModule)
}

func (r *pgTxRepository) InsertPayment(ctx context.Context, rec Record) (Record, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO payment_records (payment_type, recipient_id, recipient_name, recipient_email,
	amount, payment_method, payment_reference, notes, period_start, period_end, total_assignments, recorded_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING id, amount, created_at`,
		string(rec.PaymentType), rec.RecipientID, rec.RecipientName, rec.RecipientEmail, rec.Amount,
		rec.PaymentMethod, rec.PaymentReference, rec.Notes, rec.PeriodStart, rec.PeriodEnd,
		rec.TotalAssignments, rec.RecordedBy).Scan(&rec.ID, &rec.Amount, &rec.CreatedAt)
	if err != nil {
		return Record{}, fmt.Errorf("payouts: insert payment: %w", err)
	}
	return rec, nil
}

func (r *pgTxRepository) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	return shared.NewAuditLogger(r.tx).Record(ctx, log)
}
