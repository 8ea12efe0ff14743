// Package assignments tracks client consultation requests through pricing,
// payment and delivery. Completing an assignment books its earning split.
package assignments

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/medconsult-liberia/medconsult/internal/platform/httpx"
	"github.com/medconsult-liberia/medconsult/internal/rbac"
)

var (
	// ErrNotFound is returned for an unknown or hidden assignment.
	ErrNotFound = fmt.Errorf("assignments: assignment %w", httpx.ErrNotFound)
	// ErrInvalidTransition rejects a status change the workflow does not allow.
	ErrInvalidTransition = fmt.Errorf("assignments: invalid status transition: %w", httpx.ErrConflict)
	// ErrTransitionForbidden rejects a status change the actor's role may not make.
	ErrTransitionForbidden = fmt.Errorf("assignments: role may not set this status: %w", httpx.ErrForbidden)
)

// Status is a workflow state.
type Status string

const (
	StatusPendingReview   Status = "pending_review"
	StatusPriceProposed   Status = "price_proposed"
	StatusNegotiating     Status = "negotiating"
	StatusPaymentPending  Status = "payment_pending"
	StatusPaymentUploaded Status = "payment_uploaded"
	StatusPaymentVerified Status = "payment_verified"
	StatusInProgress      Status = "in_progress"
	StatusCompleted       Status = "completed"
)

var transitions = map[Status][]Status{
	StatusPendingReview:   {StatusPriceProposed},
	StatusPriceProposed:   {StatusNegotiating, StatusPaymentPending},
	StatusNegotiating:     {StatusPriceProposed, StatusPaymentPending},
	StatusPaymentPending:  {StatusPaymentUploaded},
	StatusPaymentUploaded: {StatusPaymentVerified, StatusPaymentPending},
	StatusPaymentVerified: {StatusInProgress},
	StatusInProgress:      {StatusCompleted},
}

var gates = map[Status][]rbac.Role{
	StatusPriceProposed:   {rbac.RoleAdmin},
	StatusNegotiating:     {rbac.RoleClient},
	StatusPaymentPending:  {rbac.RoleClient, rbac.RoleAdmin},
	StatusPaymentUploaded: {rbac.RoleClient},
	StatusPaymentVerified: {rbac.RoleAdmin, rbac.RoleAccountant},
	StatusInProgress:      {rbac.RoleManagement},
	StatusCompleted:       {rbac.RoleManagement, rbac.RoleAdmin},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// MayEnter reports whether role may move an assignment into status.
func MayEnter(role rbac.Role, status Status) bool {
	for _, r := range gates[status] {
		if r == role {
			return true
		}
	}
	return false
}

// Assignment is a consultation request.
type Assignment struct {
	ID           int64            `json:"id"`
	ClientID     int64            `json:"client_id"`
	ConsultantID *int64           `json:"consultant_id,omitempty"`
	Title        string           `json:"title"`
	Description  string           `json:"description"`
	Status       Status           `json:"status"`
	Price        *decimal.Decimal `json:"price,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
}

// VisibleTo reports whether p may read a.
func (a Assignment) VisibleTo(p rbac.Principal) bool {
	switch p.Role {
	case rbac.RoleClient:
		return a.ClientID == p.ID
	case rbac.RoleConsultant:
		return a.ConsultantID != nil && *a.ConsultantID == p.ID
	default:
		return true
	}
}

// HistoryEntry is one recorded status change.
type HistoryEntry struct {
	From      Status    `json:"from_status"`
	To        Status    `json:"to_status"`
	ActorID   int64     `json:"actor_id"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Earning is the split booked when an assignment completes.
type Earning struct {
	AssignmentID    int64
	ConsultantID    int64
	Amount          decimal.Decimal
	ConsultantShare decimal.Decimal
	WebsiteFee      decimal.Decimal
	TeamFee         decimal.Decimal
}

// CreateInput is the request body for a new assignment.
type CreateInput struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=5000"`
}

// TransitionInput is the request body for a status change.
type TransitionInput struct {
	Status       string           `json:"status" validate:"required,oneof=price_proposed negotiating payment_pending payment_uploaded payment_verified in_progress completed"`
	Price        *decimal.Decimal `json:"price" validate:"omitempty,gt=0"`
	ConsultantID *int64           `json:"consultant_id" validate:"omitempty,gt=0"`
	Note         string           `json:"note" validate:"max=2000"`
}

// Detail is an assignment with its status history.
type Detail struct {
	Assignment
	History []HistoryEntry `json:"history"`
}
