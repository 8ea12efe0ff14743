package transactions

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/medconsult-liberia/medconsult/internal/platform/httpx"
	"github.com/medconsult-liberia/medconsult/internal/rbac"
	"github.com/medconsult-liberia/medconsult/internal/revenue"
	"github.com/medconsult-liberia/medconsult/internal/shared"
)

// Service manages transactions.
type Service struct {
	repo      Repository
	validator *httpx.Validator
}

// NewService constructs the service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, validator: httpx.NewValidator()}
}

// Create validates and records a transaction.
func (s *Service) Create(ctx context.Context, actor rbac.Principal, in Input) (Transaction, error) {
	t, err := s.build(ctx, in)
	if err != nil {
		return Transaction{}, err
	}
	t.RecordedBy = actor.ID
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		saved, err := tx.Insert(ctx, t)
		if err != nil {
			return err
		}
		t = saved
		return tx.RecordAudit(ctx, auditEntry(actor, "transaction.created", saved))
	})
	if err != nil {
		return Transaction{}, err
	}
	return t.WithSplit(), nil
}

// Update replaces the editable fields of a transaction.
func (s *Service) Update(ctx context.Context, actor rbac.Principal, id int64, in Input) (Transaction, error) {
	next, err := s.build(ctx, in)
	if err != nil {
		return Transaction{}, err
	}
	var out Transaction
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		next.ID = current.ID
		next.RecordedBy = current.RecordedBy
		next.CreatedAt = current.CreatedAt
		saved, err := tx.Update(ctx, next)
		if err != nil {
			return err
		}
		out = saved
		entry := auditEntry(actor, "transaction.updated", saved)
		entry.Meta["previous_amount"] = current.Amount.String()
		entry.Meta["previous_status"] = string(current.Status)
		return tx.RecordAudit(ctx, entry)
	})
	if err != nil {
		return Transaction{}, err
	}
	return out.WithSplit(), nil
}

// Delete removes a transaction.
func (s *Service) Delete(ctx context.Context, actor rbac.Principal, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.Delete(ctx, id); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, auditEntry(actor, "transaction.deleted", current))
	})
}

// Get returns one transaction.
func (s *Service) Get(ctx context.Context, id int64) (Transaction, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return Transaction{}, err
	}
	return t.WithSplit(), nil
}

// List returns a filtered page of transactions, newest first.
func (s *Service) List(ctx context.Context, filter Filter, page shared.PageRequest) (Page, error) {
	items, total, err := s.repo.List(ctx, filter, page)
	if err != nil {
		return Page{}, err
	}
	out := make([]Transaction, 0, len(items))
	for _, t := range items {
		out = append(out, t.WithSplit())
	}
	return Page{Items: out, Total: total}, nil
}

func (s *Service) build(ctx context.Context, in Input) (Transaction, error) {
	if err := s.validator.Struct(in); err != nil {
		return Transaction{}, err
	}
	if err := checkRules(in); err != nil {
		return Transaction{}, err
	}
	date, err := time.Parse(time.DateOnly, in.Date)
	if err != nil {
		return Transaction{}, httpx.NewValidationError("transaction_date", "must be a date formatted YYYY-MM-DD")
	}
	if in.ConsultantID != nil {
		ok, err := s.repo.ConsultantExists(ctx, *in.ConsultantID)
		if err != nil {
			return Transaction{}, err
		}
		if !ok {
			return Transaction{}, httpx.NewValidationError("consultant_id", "does not reference a consultant")
		}
	}
	status := Status(in.Status)
	if status == "" {
		status = StatusCompleted
	}
	return Transaction{
		Amount:           in.Amount,
		Type:             revenue.TransactionType(in.Type),
		ConsultantID:     in.ConsultantID,
		DistributeToTeam: in.DistributeToTeam,
		Status:           status,
		Date:             date,
		ReceiptURL:       strings.TrimSpace(in.ReceiptURL),
		Description:      strings.TrimSpace(in.Description),
	}, nil
}

func auditEntry(actor rbac.Principal, action string, t Transaction) shared.AuditLog {
	return shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "transactions",
		EntityID: strconv.FormatInt(t.ID, 10),
		Meta: map[string]any{
			"type":   string(t.Type),
			"amount": t.Amount.String(),
			"status": string(t.Status),
		},
	}
}
