// Package transactions records money received by MedConsult: consultation fees,
// partnership payments, grants and other income.
package transactions

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/medconsult-liberia/medconsult/internal/platform/httpx"
	"github.com/medconsult-liberia/medconsult/internal/revenue"
)

// ErrNotFound is returned for an unknown transaction id.
var ErrNotFound = fmt.Errorf("transactions: transaction %w", httpx.ErrNotFound)

// Status of an inflow. Only completed transactions count toward revenue.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusPending   Status = "pending"
)

// Transaction is a recorded inflow.
type Transaction struct {
	ID               int64                   `json:"id"`
	Amount           decimal.Decimal         `json:"amount"`
	Type             revenue.TransactionType `json:"type"`
	ConsultantID     *int64                  `json:"consultant_id,omitempty"`
	ConsultantName   string                  `json:"consultant_name,omitempty"`
	DistributeToTeam bool                    `json:"distribute_to_team"`
	Status           Status                  `json:"status"`
	Date             time.Time               `json:"transaction_date"`
	ReceiptURL       string                  `json:"receipt_url,omitempty"`
	Description      string                  `json:"description"`
	RecordedBy       int64                   `json:"recorded_by"`
	CreatedAt        time.Time               `json:"created_at"`
	UpdatedAt        time.Time               `json:"updated_at"`
	Split            revenue.Shares          `json:"split"`
}

// WithSplit fills Split from the amount, type and distribution flag.
func (t Transaction) WithSplit() Transaction {
	t.Split = revenue.Split(t.Amount, revenue.KindFor(t.Type, t.DistributeToTeam))
	return t
}

// Input is the create and update request body.
type Input struct {
	Amount           decimal.Decimal `json:"amount" validate:"required,gt=0"`
	Type             string          `json:"type" validate:"required,oneof=consultation_fee partnership_payment grant other"`
	ConsultantID     *int64          `json:"consultant_id"`
	DistributeToTeam bool            `json:"distribute_to_team"`
	Status           string          `json:"status" validate:"omitempty,oneof=completed pending"`
	Date             string          `json:"transaction_date" validate:"required,datetime=2006-01-02"`
	ReceiptURL       string          `json:"receipt_url" validate:"omitempty,url,max=500"`
	Description      string          `json:"description" validate:"max=2000"`
}

// checkRules enforces the cross-field rules the struct tags cannot express.
func checkRules(in Input) error {
	fields := map[string]string{}
	typ := revenue.TransactionType(in.Type)
	if typ == revenue.TypeConsultationFee {
		if in.ConsultantID == nil || *in.ConsultantID <= 0 {
			fields["consultant_id"] = "is required for consultation fees"
		}
		if in.DistributeToTeam {
			fields["distribute_to_team"] = "is not allowed for consultation fees"
		}
	} else if in.ConsultantID != nil {
		fields["consultant_id"] = "is only allowed for consultation fees"
	}
	if err := revenue.ValidateMoney(in.Amount); err != nil {
		fields["amount"] = "must be whole cents no greater than " + revenue.MaxMoney.StringFixed(2)
	}
	if len(fields) > 0 {
		return &httpx.ValidationError{Fields: fields}
	}
	return nil
}

// Filter narrows listings. Zero values match everything.
type Filter struct {
	Type         revenue.TransactionType
	Status       Status
	From         *time.Time
	To           *time.Time
	ConsultantID int64
}

// Page is one window of a listing.
type Page struct {
	Items []Transaction `json:"items"`
	Total int           `json:"total"`
}
