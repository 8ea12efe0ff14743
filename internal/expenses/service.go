package expenses

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

// Service manages expenses and their approval.
type Service struct {
	repo      Repository
	validator *httpx.Validator
	now       func() time.Time
}

// NewService constructs the service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, validator: httpx.NewValidator(), now: time.Now}
}

// Create records a pending expense.
func (s *Service) Create(ctx context.Context, actor rbac.Principal, in Input) (Expense, error) {
	e, err := s.build(in)
	if err != nil {
		return Expense{}, err
	}
	e.Status = StatusPending
	e.RecordedBy = actor.ID
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		saved, err := tx.Insert(ctx, e)
		if err != nil {
			return err
		}
		e = saved
		return tx.RecordAudit(ctx, auditEntry(actor, "expense.created", saved))
	})
	if err != nil {
		return Expense{}, err
	}
	return e, nil
}

// Update edits a pending expense.
func (s *Service) Update(ctx context.Context, actor rbac.Principal, id int64, in Input) (Expense, error) {
	next, err := s.build(in)
	if err != nil {
		return Expense{}, err
	}
	var out Expense
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != StatusPending {
			return ErrAlreadyDecided
		}
		next.ID = current.ID
		next.Status = current.Status
		next.RecordedBy = current.RecordedBy
		next.CreatedAt = current.CreatedAt
		saved, err := tx.Update(ctx, next)
		if err != nil {
			return err
		}
		out = saved
		return tx.RecordAudit(ctx, auditEntry(actor, "expense.updated", saved))
	})
	if err != nil {
		return Expense{}, err
	}
	return out, nil
}

// Delete removes an expense. Approved expenses are part of reported figures and stay.
func (s *Service) Delete(ctx context.Context, actor rbac.Principal, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		if current.Status == StatusApproved {
			return ErrAlreadyDecided
		}
		if err := tx.Delete(ctx, id); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, auditEntry(actor, "expense.deleted", current))
	})
}

// Approve marks a pending expense approved.
func (s *Service) Approve(ctx context.Context, actor rbac.Principal, id int64) (Expense, error) {
	return s.decide(ctx, actor, id, StatusApproved)
}

// Reject marks a pending expense rejected.
func (s *Service) Reject(ctx context.Context, actor rbac.Principal, id int64) (Expense, error) {
	return s.decide(ctx, actor, id, StatusRejected)
}

func (s *Service) decide(ctx context.Context, actor rbac.Principal, id int64, status Status) (Expense, error) {
	var out Expense
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != StatusPending {
			return ErrAlreadyDecided
		}
		at := s.now().UTC()
		if err := tx.SetStatus(ctx, id, status, actor.ID, at); err != nil {
			return err
		}
		current.Status = status
		current.DecidedBy = &actor.ID
		current.DecidedAt = &at
		current.UpdatedAt = at
		out = current
		return tx.RecordAudit(ctx, auditEntry(actor, "expense."+string(status), current))
	})
	if err != nil {
		return Expense{}, err
	}
	return out, nil
}

// Get returns one expense.
func (s *Service) Get(ctx context.Context, id int64) (Expense, error) {
	return s.repo.Get(ctx, id)
}

// List returns a filtered page of expenses, newest first.
func (s *Service) List(ctx context.Context, filter Filter, page shared.PageRequest) (Page, error) {
	items, total, err := s.repo.List(ctx, filter, page)
	if err != nil {
		return Page{}, err
	}
	if items == nil {
		items = []Expense{}
	}
	return Page{Items: items, Total: total}, nil
}

func (s *Service) build(in Input) (Expense, error) {
	if err := s.validator.Struct(in); err != nil {
		return Expense{}, err
	}
	if err := revenue.ValidateMoney(in.Amount); err != nil {
		return Expense{}, httpx.NewValidationError("amount", "must be whole cents no greater than "+revenue.MaxMoney.StringFixed(2))
	}
	date, err := time.Parse(time.DateOnly, in.Date)
	if err != nil {
		return Expense{}, httpx.NewValidationError("expense_date", "must be a date formatted YYYY-MM-DD")
	}
	category := strings.TrimSpace(in.Category)
	if category == "" {
		return Expense{}, httpx.NewValidationError("category", "is required")
	}
	return Expense{
		Category:    category,
		Amount:      in.Amount,
		Description: strings.TrimSpace(in.Description),
		Date:        date,
		ReceiptURL:  strings.TrimSpace(in.ReceiptURL),
	}, nil
}

func auditEntry(actor rbac.Principal, action string, e Expense) shared.AuditLog {
	return shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "expenses",
		EntityID: strconv.FormatInt(e.ID, 10),
		Meta: map[string]any{
			"category": e.Category,
			"amount":   e.Amount.String(),
			"status":   string(e.Status),
		},
	}
}
