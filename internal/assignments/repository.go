package assignments

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medconsult-liberia/medconsult/internal/platform/db"
	"github.com/medconsult-liberia/medconsult/internal/shared"
)

// ListFilter scopes listings to a client or consultant. Zero values match everything.
type ListFilter struct {
	ClientID     int64
	ConsultantID int64
	Status       Status
}

// Repository defines assignment data access.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Assignment, error)
	List(ctx context.Context, filter ListFilter) ([]Assignment, error)
	History(ctx context.Context, id int64) ([]HistoryEntry, error)
	ConsultantExists(ctx context.Context, id int64) (bool, error)
}

// TxRepository defines operations within a transaction.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (Assignment, error)
	Insert(ctx context.Context, a Assignment) (Assignment, error)
	Save(ctx context.Context, a Assignment) error
	AppendHistory(ctx context.Context, assignmentID int64, entry HistoryEntry) error
	InsertEarning(ctx context.Context, e Earning) error
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

const selectSQL = `SELECT id, client_id, consultant_id, title, description, status, price,
	created_at, updated_at, completed_at
FROM assignments`

func scanAssignment(row pgx.CollectableRow) (Assignment, error) {
	var a Assignment
	var status string
	err := row.Scan(&a.ID, &a.ClientID, &a.ConsultantID, &a.Title, &a.Description, &status, &a.Price,
		&a.CreatedAt, &a.UpdatedAt, &a.CompletedAt)
	a.Status = Status(status)
	return a, err
}

func get(ctx context.Context, q db.Querier, id int64, suffix string) (Assignment, error) {
	rows, err := q.Query(ctx, selectSQL+` WHERE id = $1`+suffix, id)
	if err != nil {
		return Assignment{}, fmt.Errorf("assignments: get: %w", err)
	}
	a, err := pgx.CollectExactlyOneRow(rows, scanAssignment)
	if db.IsNoRows(err) {
		return Assignment{}, ErrNotFound
	}
	if err != nil {
		return Assignment{}, fmt.Errorf("assignments: get: %w", err)
	}
	return a, nil
}

func (r *pgRepository) Get(ctx context.Context, id int64) (Assignment, error) {
	return get(ctx, r.pool, id, "")
}

func (r *pgRepository) List(ctx context.Context, f ListFilter) ([]Assignment, error) {
	rows, err := r.pool.Query(ctx, selectSQL+`
WHERE ($1::bigint = 0 OR client_id = $1)
  AND ($2::bigint = 0 OR consultant_id = $2)
  AND ($3 = '' OR status = $3)
ORDER BY updated_at DESC, id DESC`, f.ClientID, f.ConsultantID, string(f.Status))
	if err != nil {
		return nil, fmt.Errorf("assignments: list: %w", err)
	}
	return pgx.CollectRows(rows, scanAssignment)
}

func (r *pgRepository) History(ctx context.Context, id int64) ([]HistoryEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT from_status, to_status, actor_id, note, created_at
FROM assignment_status_history WHERE assignment_id = $1 ORDER BY created_at, id`, id)
	if err != nil {
		return nil, fmt.Errorf("assignments: history: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (HistoryEntry, error) {
		var h HistoryEntry
		var from, to string
		err := row.Scan(&from, &to, &h.ActorID, &h.Note, &h.CreatedAt)
		h.From, h.To = Status(from), Status(to)
		return h, err
	})
}

func (r *pgRepository) ConsultantExists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1 AND role = 'consultant')`, id).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("assignments: consultant lookup: %w", err)
	}
	return ok, nil
}

type pgTxRepository struct {
	tx pgx.Tx
}

func (r *pgTxRepository) GetForUpdate(ctx context.Context, id int64) (Assignment, error) {
	return get(ctx, r.tx, id, ` FOR UPDATE`)
}

func (r *pgTxRepository) Insert(ctx context.Context, a Assignment) (Assignment, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO assignments (client_id, title, description, status)
VALUES ($1, $2, $3, $4)
RETURNING id, created_at, updated_at`, a.ClientID, a.Title, a.Description, string(a.Status)).
		Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return Assignment{}, fmt.Errorf("assignments: insert: %w", err)
	}
	return a, nil
}

func (r *pgTxRepository) Save(ctx context.Context, a Assignment) error {
	_, err := r.tx.Exec(ctx, `UPDATE assignments SET consultant_id = $2, status = $3, price = $4,
	updated_at = $5, completed_at = $6
WHERE id = $1`, a.ID, a.ConsultantID, string(a.Status), a.Price, a.UpdatedAt, a.CompletedAt)
	if err != nil {
		return fmt.Errorf("assignments: save: %w", err)
	}
	return nil
}

func (r *pgTxRepository) AppendHistory(ctx context.Context, assignmentID int64, h HistoryEntry) error {
	at := h.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err := r.tx.Exec(ctx, `INSERT INTO assignment_status_history (assignment_id, from_status, to_status, actor_id, note, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`, assignmentID, string(h.From), string(h.To), h.ActorID, h.Note, at)
	if err != nil {
		return fmt.Errorf("assignments: append history: %w", err)
	}
	return nil
}

func (r *pgTxRepository) InsertEarning(ctx context.Context, e Earning) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO assignment_earnings (assignment_id, consultant_id, amount, consultant_share, website_fee, team_fee)
VALUES ($1, $2, $3, $4, $5, $6)`, e.AssignmentID, e.ConsultantID, e.Amount, e.ConsultantShare, e.WebsiteFee, e.TeamFee)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("assignments: earning already booked: %w", ErrInvalidTransition)
	}
	if err != nil {
		return fmt.Errorf("assignments: insert earning: %w", err)
	}
	return nil
}

func (r *pgTxRepository) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	return shared.NewAuditLogger(r.tx).Record(ctx, log)
}
