// Package reporting assembles the point-in-time financial report shared by the
// accountant dashboard and the printable document.
package reporting

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/medconsult-liberia/medconsult/internal/earnings"
	"github.com/medconsult-liberia/medconsult/internal/ledger"
	"github.com/medconsult-liberia/medconsult/internal/revenue"
)

// DiscrepancyTolerance is how far net profit may drift from the website fee
// before the report carries a warning.
var DiscrepancyTolerance = decimal.NewFromInt(1)

// DiscrepancyWarning is the advisory message attached to mismatching reports.
const DiscrepancyWarning = "discrepancy detected: net profit does not match total website fee"

// Stats are the headline totals: completed transactions and approved expenses.
type Stats struct {
	TotalRevenue  decimal.Decimal `json:"totalRevenue"`
	TotalExpenses decimal.Decimal `json:"totalExpenses"`
}

// Input is everything the assembler needs, already loaded.
type Input struct {
	Stats    Stats
	Summary  earnings.Summary
	Balances ledger.Snapshot
}

// Report is an immutable snapshot ready for rendering.
type Report struct {
	ID          uuid.UUID `json:"id"`
	GeneratedAt time.Time `json:"generated_at"`

	Stats                Stats                        `json:"stats"`
	Consultants          []earnings.ConsultantSummary `json:"consultants"`
	TotalConsultantShare decimal.Decimal              `json:"total_consultant_share"`
	TotalTeamFee         decimal.Decimal              `json:"total_team_fee"`
	TotalWebsiteFee      decimal.Decimal              `json:"total_website_fee"`
	TeamRoleShares       revenue.TeamShares           `json:"team_role_shares"`

	NetProfit      decimal.Decimal `json:"net_profit"`
	Discrepancy    bool            `json:"discrepancy"`
	DiscrepancyGap decimal.Decimal `json:"discrepancy_gap"`
	Warning        string          `json:"warning,omitempty"`

	ConsultantBalances []ledger.Balance `json:"consultant_balances"`
	TeamBalances       []ledger.Balance `json:"team_balances"`
	ConsultantTotals   ledger.Totals    `json:"consultant_totals"`
	TeamTotals         ledger.Totals    `json:"team_totals"`
}

// NetProfit is revenue minus expenses, consultant shares and the team fee.
func NetProfit(stats Stats, consultantShare, teamFee decimal.Decimal) decimal.Decimal {
	return stats.TotalRevenue.Sub(stats.TotalExpenses).Sub(consultantShare).Sub(teamFee)
}

// CheckDiscrepancy compares net profit against the website fee and returns the
// absolute gap and whether it exceeds DiscrepancyTolerance.
func CheckDiscrepancy(netProfit, websiteFee decimal.Decimal) (decimal.Decimal, bool) {
	gap := netProfit.Sub(websiteFee).Abs()
	return gap, gap.GreaterThan(DiscrepancyTolerance)
}

// Headline is the profit figure and its advisory check, shared by the report
// and the dashboard.
type Headline struct {
	TotalConsultantShare decimal.Decimal `json:"total_consultant_share"`
	NetProfit            decimal.Decimal `json:"net_profit"`
	Discrepancy          bool            `json:"discrepancy"`
	DiscrepancyGap       decimal.Decimal `json:"discrepancy_gap"`
	Warning              string          `json:"warning,omitempty"`
}

// ComputeHeadline derives net profit from stats and the consultant summary.
func ComputeHeadline(stats Stats, summary earnings.Summary) Headline {
	consultantShare := decimal.Zero
	for _, c := range summary.Consultants {
		consultantShare = consultantShare.Add(c.ConsultantShare)
	}
	net := NetProfit(stats, consultantShare, summary.TotalTeamFee)
	gap, flagged := CheckDiscrepancy(net, summary.TotalWebsiteFee)
	h := Headline{
		TotalConsultantShare: consultantShare,
		NetProfit:            net,
		Discrepancy:          flagged,
		DiscrepancyGap:       gap,
	}
	if flagged {
		h.Warning = DiscrepancyWarning
	}
	return h
}

// Assemble builds the report. It never fails: a discrepancy only adds a warning.
func Assemble(in Input, id uuid.UUID, at time.Time) Report {
	h := ComputeHeadline(in.Stats, in.Summary)
	return Report{
		ID:                   id,
		GeneratedAt:          at.UTC(),
		Stats:                in.Stats,
		Consultants:          append([]earnings.ConsultantSummary{}, in.Summary.Consultants...),
		TotalConsultantShare: h.TotalConsultantShare,
		TotalTeamFee:         in.Summary.TotalTeamFee,
		TotalWebsiteFee:      in.Summary.TotalWebsiteFee,
		TeamRoleShares:       revenue.RoleSplit(in.Summary.TotalTeamFee),
		NetProfit:            h.NetProfit,
		Discrepancy:          h.Discrepancy,
		DiscrepancyGap:       h.DiscrepancyGap,
		Warning:              h.Warning,
		ConsultantBalances:   append([]ledger.Balance{}, in.Balances.Consultants...),
		TeamBalances:         append([]ledger.Balance{}, in.Balances.Team...),
		ConsultantTotals:     ledger.Sum(in.Balances.Consultants),
		TeamTotals:           ledger.Sum(in.Balances.Team),
	}
}
