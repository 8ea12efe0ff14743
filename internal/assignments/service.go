package assignments

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

// Service runs the assignment workflow.
type Service struct {
	repo      Repository
	validator *httpx.Validator
	now       func() time.Time
}

// NewService constructs the service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, validator: httpx.NewValidator(), now: time.Now}
}

// Create opens an assignment for the requesting client.
func (s *Service) Create(ctx context.Context, actor rbac.Principal, in CreateInput) (Assignment, error) {
	if err := s.validator.Struct(in); err != nil {
		return Assignment{}, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Assignment{}, httpx.NewValidationError("title", "is required")
	}
	a := Assignment{
		ClientID:    actor.ID,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Status:      StatusPendingReview,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		saved, err := tx.Insert(ctx, a)
		if err != nil {
			return err
		}
		a = saved
		return tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:  actor.ID,
			Action:   "assignment.created",
			Entity:   "assignments",
			EntityID: strconv.FormatInt(saved.ID, 10),
			Meta:     map[string]any{"title": saved.Title},
		})
	})
	if err != nil {
		return Assignment{}, err
	}
	return a, nil
}

// Get returns an assignment and its history if actor may see it.
func (s *Service) Get(ctx context.Context, actor rbac.Principal, id int64) (Detail, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	if !a.VisibleTo(actor) {
		return Detail{}, ErrNotFound
	}
	history, err := s.repo.History(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	if history == nil {
		history = []HistoryEntry{}
	}
	return Detail{Assignment: a, History: history}, nil
}

// List returns the assignments actor may see.
func (s *Service) List(ctx context.Context, actor rbac.Principal, status Status) ([]Assignment, error) {
	f := ListFilter{Status: status}
	switch actor.Role {
	case rbac.RoleClient:
		f.ClientID = actor.ID
	case rbac.RoleConsultant:
		f.ConsultantID = actor.ID
	}
	items, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []Assignment{}
	}
	return items, nil
}

// Transition moves an assignment to a new status. The status row, its history
// entry and, on completion, the earning split commit together.
func (s *Service) Transition(ctx context.Context, actor rbac.Principal, id int64, in TransitionInput) (Assignment, error) {
	if err := s.validator.Struct(in); err != nil {
		return Assignment{}, err
	}
	target := Status(in.Status)
	if !MayEnter(actor.Role, target) {
		return Assignment{}, ErrTransitionForbidden
	}
	if in.ConsultantID != nil {
		if actor.Role == rbac.RoleClient {
			return Assignment{}, httpx.NewValidationError("consultant_id", "cannot be set by a client")
		}
		ok, err := s.repo.ConsultantExists(ctx, *in.ConsultantID)
		if err != nil {
			return Assignment{}, err
		}
		if !ok {
			return Assignment{}, httpx.NewValidationError("consultant_id", "does not reference a consultant")
		}
	}

	var out Assignment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		a, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if actor.Role == rbac.RoleClient && a.ClientID != actor.ID {
			return ErrNotFound
		}
		if !CanTransition(a.Status, target) {
			return ErrInvalidTransition
		}
		from := a.Status
		now := s.now().UTC()

		if in.ConsultantID != nil {
			a.ConsultantID = in.ConsultantID
		}
		if target == StatusPriceProposed {
			if in.Price == nil || !in.Price.IsPositive() {
				return httpx.NewValidationError("price", "a positive price is required to propose a price")
			}
			price := in.Price.Round(2)
			a.Price = &price
		}
		a.Status = target
		a.UpdatedAt = now

		var earning *Earning
		if target == StatusCompleted {
			if a.ConsultantID == nil {
				return httpx.NewValidationError("consultant_id", "a consultant must be assigned before completion")
			}
			if a.Price == nil || !a.Price.IsPositive() {
				return httpx.NewValidationError("price", "a price must be set before completion")
			}
			a.CompletedAt = &now
			shares := revenue.Split(*a.Price, revenue.KindConsultation)
			earning = &Earning{
				AssignmentID:    a.ID,
				ConsultantID:    *a.ConsultantID,
				Amount:          *a.Price,
				ConsultantShare: shares.Consultant,
				WebsiteFee:      shares.Website,
				TeamFee:         shares.Team,
			}
		}

		if err := tx.Save(ctx, a); err != nil {
			return err
		}
		if err := tx.AppendHistory(ctx, a.ID, HistoryEntry{From: from, To: target, ActorID: actor.ID, Note: strings.TrimSpace(in.Note), CreatedAt: now}); err != nil {
			return err
		}
		meta := map[string]any{"from": string(from), "to": string(target)}
		if earning != nil {
			if err := tx.InsertEarning(ctx, *earning); err != nil {
				return err
			}
			meta["consultant_share"] = earning.ConsultantShare.String()
			meta["website_fee"] = earning.WebsiteFee.String()
			meta["team_fee"] = earning.TeamFee.String()
		}
		out = a
		return tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:  actor.ID,
			Action:   "assignment.status_changed",
			Entity:   "assignments",
			EntityID: strconv.FormatInt(a.ID, 10),
			Meta:     meta,
		})
	})
	if err != nil {
		return Assignment{}, err
	}
	return out, nil
}
