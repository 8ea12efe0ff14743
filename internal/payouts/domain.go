// Package payouts records disbursements to consultants and team roles and
// reports what each payee is still owed.
package payouts

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/medconsult-liberia/medconsult/internal/ledger"
	"github.com/medconsult-liberia/medconsult/internal/platform/httpx"
)

var (
	// ErrOverpayment rejects an amount larger than the payee's unpaid balance.
	ErrOverpayment = fmt.Errorf("payouts: amount exceeds unpaid balance: %w", httpx.ErrConflict)
	// ErrDuplicateSubmission rejects a replayed Idempotency-Key.
	ErrDuplicateSubmission = fmt.Errorf("payouts: payment already submitted: %w", httpx.ErrConflict)
	// ErrPayeeBusy is returned while another payment for the same payee is being written.
	ErrPayeeBusy = fmt.Errorf("payouts: another payment for this payee is in progress: %w", httpx.ErrConflict)
)

// OverpaymentSlack absorbs cent rounding when comparing against the unpaid balance.
var OverpaymentSlack = decimal.RequireFromString("0.01")

// Record is an append-only disbursement.
type Record struct {
	ID               int64            `json:"id"`
	PaymentType      ledger.PayeeType `json:"payment_type"`
	RecipientID      string           `json:"recipient_id"`
	RecipientName    string           `json:"recipient_name"`
	RecipientEmail   string           `json:"recipient_email,omitempty"`
	Amount           decimal.Decimal  `json:"amount"`
	PaymentMethod    string           `json:"payment_method"`
	PaymentReference string           `json:"payment_reference"`
	Notes            string           `json:"notes,omitempty"`
	PeriodStart      *time.Time       `json:"period_start,omitempty"`
	PeriodEnd        *time.Time       `json:"period_end,omitempty"`
	TotalAssignments int              `json:"total_assignments"`
	RecordedBy       int64            `json:"recorded_by"`
	CreatedAt        time.Time        `json:"created_at"`
}

// LedgerPayment projects the record for balance computation.
func (r Record) LedgerPayment() ledger.Payment {
	return ledger.Payment{PayeeType: r.PaymentType, RecipientID: r.RecipientID, Amount: r.Amount}
}

// CreateInput is the make-payment request body.
type CreateInput struct {
	PaymentType      string          `json:"payment_type" validate:"required,oneof=consultant team"`
	RecipientID      string          `json:"recipient_id" validate:"required,max=64"`
	RecipientName    string          `json:"recipient_name" validate:"max=200"`
	RecipientEmail   string          `json:"recipient_email" validate:"omitempty,email"`
	Amount           decimal.Decimal `json:"amount" validate:"required,gt=0"`
	PeriodStart      string          `json:"period_start" validate:"omitempty,datetime=2006-01-02"`
	PeriodEnd        string          `json:"period_end" validate:"omitempty,datetime=2006-01-02"`
	TotalAssignments int             `json:"total_assignments" validate:"gte=0"`
	PaymentMethod    string          `json:"payment_method" validate:"required,max=64"`
	PaymentReference string          `json:"payment_reference" validate:"max=128"`
	Notes            string          `json:"notes" validate:"max=2000"`
}

// Receipt is returned after a payment is recorded.
type Receipt struct {
	Payment Record         `json:"payment"`
	Balance ledger.Balance `json:"balance"`
}

// History is the payment history of one payee with its current balance.
type History struct {
	Balance  ledger.Balance `json:"balance"`
	Payments []Record       `json:"payments"`
}

// Inflow is a transaction shown in the all-payments feed.
type Inflow struct {
	ID             int64           `json:"id"`
	Type           string          `json:"type"`
	Amount         decimal.Decimal `json:"amount"`
	Status         string          `json:"status"`
	Description    string          `json:"description"`
	ConsultantName string          `json:"consultant_name,omitempty"`
	Date           time.Time       `json:"date"`
}

// FeedDirection tells inflows from outflows.
type FeedDirection string

const (
	DirectionIn  FeedDirection = "in"
	DirectionOut FeedDirection = "out"
)

// FeedItem is one row of the merged feed.
type FeedItem struct {
	Direction   FeedDirection   `json:"direction"`
	ID          int64           `json:"id"`
	Kind        string          `json:"kind"`
	Party       string          `json:"party"`
	Amount      decimal.Decimal `json:"amount"`
	Status      string          `json:"status,omitempty"`
	Description string          `json:"description,omitempty"`
	Reference   string          `json:"reference,omitempty"`
	Date        time.Time       `json:"date"`
}

// FeedSummary totals the feed.
type FeedSummary struct {
	TotalIn          decimal.Decimal `json:"total_in"`
	TotalOut         decimal.Decimal `json:"total_out"`
	Net              decimal.Decimal `json:"net"`
	PaymentCount     int             `json:"payment_count"`
	TransactionCount int             `json:"transaction_count"`
}

// Feed is the all-payments response.
type Feed struct {
	Items   []FeedItem  `json:"items"`
	Summary FeedSummary `json:"summary"`
}
