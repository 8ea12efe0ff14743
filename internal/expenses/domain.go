// Package expenses records operating costs. Only approved expenses reduce
// reported profit.
package expenses

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/medconsult-liberia/medconsult/internal/platform/httpx"
)

var (
	// ErrNotFound is returned for an unknown expense id.
	ErrNotFound = fmt.Errorf("expenses: expense %w", httpx.ErrNotFound)
	// ErrAlreadyDecided rejects edits or decisions on an expense that is no longer pending.
	ErrAlreadyDecided = fmt.Errorf("expenses: expense already decided: %w", httpx.ErrConflict)
)

// Status is the approval state of an expense.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Expense is a recorded cost.
type Expense struct {
	ID          int64           `json:"id"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Date        time.Time       `json:"expense_date"`
	Status      Status          `json:"status"`
	ReceiptURL  string          `json:"receipt_url,omitempty"`
	RecordedBy  int64           `json:"recorded_by"`
	DecidedBy   *int64          `json:"decided_by,omitempty"`
	DecidedAt   *time.Time      `json:"decided_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Input is the create and update request body.
type Input struct {
	Category    string          `json:"category" validate:"required,max=100"`
	Amount      decimal.Decimal `json:"amount" validate:"required,gt=0"`
	Description string          `json:"description" validate:"max=2000"`
	Date        string          `json:"expense_date" validate:"required,datetime=2006-01-02"`
	ReceiptURL  string          `json:"receipt_url" validate:"omitempty,url,max=500"`
}

// Filter narrows listings. Zero values match everything.
type Filter struct {
	Status   Status
	Category string
	From     *time.Time
	To       *time.Time
}

// Page is one window of a listing.
type Page struct {
	Items []Expense `json:"items"`
	Total int       `json:"total"`
}
