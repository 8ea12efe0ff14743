// Package ledger reconciles what each payee earned against what they were paid.
// Balances are recomputed from the raw rows on every call and never cached.
package ledger

import (
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/medconsult-liberia/medconsult/internal/revenue"
)

// PayeeType distinguishes consultants from team roles.
type PayeeType string

const (
	PayeeConsultant PayeeType = "consultant"
	PayeeTeam       PayeeType = "team"
)

// Valid reports whether t is a known payee type.
func (t PayeeType) Valid() bool {
	return t == PayeeConsultant || t == PayeeTeam
}

// Status summarises a balance.
type Status string

const (
	StatusPaid    Status = "paid"
	StatusPartial Status = "partial"
	StatusUnpaid  Status = "unpaid"
)

// Payee identifies who a balance belongs to. Consultants are keyed by
// ConsultantID, team payees by Role.
type Payee struct {
	Type         PayeeType
	ConsultantID int64
	Role         revenue.Role
	Name         string
	Email        string
}

// ConsultantPayee builds a consultant payee.
func ConsultantPayee(id int64, name, email string) Payee {
	return Payee{Type: PayeeConsultant, ConsultantID: id, Name: name, Email: email}
}

// TeamPayee builds a team role payee.
func TeamPayee(role revenue.Role) Payee {
	return Payee{Type: PayeeTeam, Role: role, Name: role.Label()}
}

// RecipientID is the identifier stored on payment records for this payee.
func (p Payee) RecipientID() string {
	if p.Type == PayeeTeam {
		return string(p.Role)
	}
	return strconv.FormatInt(p.ConsultantID, 10)
}

// Earning is one revenue event that feeds balances. Team-only earnings from
// partnership distributions carry a zero ConsultantID and ConsultantShare.
type Earning struct {
	ConsultantID    int64
	Amount          decimal.Decimal
	ConsultantShare decimal.Decimal
	WebsiteFee      decimal.Decimal
	TeamFee         decimal.Decimal
}

// Payment is a disbursement already made to a payee.
type Payment struct {
	PayeeType   PayeeType
	RecipientID string
	Amount      decimal.Decimal
}

// Balance is the derived position of a payee.
type Balance struct {
	PayeeType        PayeeType       `json:"payee_type"`
	RecipientID      string          `json:"recipient_id"`
	Name             string          `json:"name"`
	Email            string          `json:"email,omitempty"`
	Role             revenue.Role    `json:"role,omitempty"`
	TotalAssignments int             `json:"total_assignments"`
	TotalEarned      decimal.Decimal `json:"total_earned"`
	TotalPaid        decimal.Decimal `json:"total_paid"`
	Unpaid           decimal.Decimal `json:"unpaid"`
	Status           Status          `json:"status"`
}

// Outstanding returns the unpaid amount clamped at zero. Overpayments count as settled.
func (b Balance) Outstanding() decimal.Decimal {
	if b.Unpaid.IsPositive() {
		return b.Unpaid
	}
	return decimal.Zero
}

// ComputeBalance derives a payee's balance from every earning and payment row.
// Consultants earn their own consultant_share; team roles earn weight/95 of
// the team fee of every earning in the system.
func ComputeBalance(payee Payee, earnings []Earning, payments []Payment) Balance {
	earned := decimal.Zero
	assignments := 0
	for _, e := range earnings {
		switch payee.Type {
		case PayeeConsultant:
			if e.ConsultantID != 0 && e.ConsultantID == payee.ConsultantID {
				earned = earned.Add(e.ConsultantShare)
				assignments++
			}
		case PayeeTeam:
			earned = earned.Add(revenue.RoleShare(e.TeamFee, payee.Role))
		}
	}

	recipient := payee.RecipientID()
	paid := decimal.Zero
	for _, p := range payments {
		if p.PayeeType == payee.Type && p.RecipientID == recipient {
			paid = paid.Add(p.Amount)
		}
	}

	unpaid := earned.Sub(paid)
	b := Balance{
		PayeeType:        payee.Type,
		RecipientID:      recipient,
		Name:             payee.Name,
		Email:            payee.Email,
		TotalAssignments: assignments,
		TotalEarned:      earned,
		TotalPaid:        paid,
		Unpaid:           unpaid,
		Status:           StatusFor(paid, unpaid),
	}
	if payee.Type == PayeeTeam {
		b.Role = payee.Role
	}
	return b
}

// StatusFor classifies a balance from its paid and unpaid amounts.
func StatusFor(paid, unpaid decimal.Decimal) Status {
	switch {
	case !unpaid.IsPositive():
		return StatusPaid
	case paid.IsPositive():
		return StatusPartial
	default:
		return StatusUnpaid
	}
}

// BalancesForConsultants computes a balance per consultant, preserving order.
func BalancesForConsultants(consultants []Payee, earnings []Earning, payments []Payment) []Balance {
	out := make([]Balance, 0, len(consultants))
	for _, c := range consultants {
		out = append(out, ComputeBalance(c, earnings, payments))
	}
	return out
}

// BalancesForTeam computes a balance for every team role.
func BalancesForTeam(earnings []Earning, payments []Payment) []Balance {
	roles := revenue.Roles()
	out := make([]Balance, 0, len(roles))
	for _, role := range roles {
		out = append(out, ComputeBalance(TeamPayee(role), earnings, payments))
	}
	return out
}

// Snapshot is the payment status of every payee at one read.
type Snapshot struct {
	Consultants []Balance `json:"consultants"`
	Team        []Balance `json:"team"`
}

// Totals aggregates a group of balances.
type Totals struct {
	Earned      decimal.Decimal `json:"total_earned"`
	Paid        decimal.Decimal `json:"total_paid"`
	Outstanding decimal.Decimal `json:"total_outstanding"`
}

// Sum totals balances. Outstanding ignores overpaid payees.
func Sum(balances []Balance) Totals {
	t := Totals{Earned: decimal.Zero, Paid: decimal.Zero, Outstanding: decimal.Zero}
	for _, b := range balances {
		t.Earned = t.Earned.Add(b.TotalEarned)
		t.Paid = t.Paid.Add(b.TotalPaid)
		t.Outstanding = t.Outstanding.Add(b.Outstanding())
	}
	return t
}

// FromShares turns a revenue split into a ledger earning.
func FromShares(consultantID int64, amount decimal.Decimal, s revenue.Shares) Earning {
	return Earning{
		ConsultantID:    consultantID,
		Amount:          amount,
		ConsultantShare: s.Consultant,
		WebsiteFee:      s.Website,
		TeamFee:         s.Team,
	}
}
