// Package earnings exposes assignment earnings and the per-consultant summary
// the ledger and reports are built from.
package earnings

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/medconsult-liberia/medconsult/internal/ledger"
	"github.com/medconsult-liberia/medconsult/internal/platform/httpx"
	"github.com/medconsult-liberia/medconsult/internal/revenue"
)

// ErrConsultantNotFound is returned when a consultant id does not resolve.
var ErrConsultantNotFound = fmt.Errorf("earnings: consultant %w", httpx.ErrNotFound)

// Entry is one assignment earning flattened with its assignment and consultant.
type Entry struct {
	ID              int64           `json:"id"`
	AssignmentID    int64           `json:"assignment_id"`
	AssignmentTitle string          `json:"assignment_title"`
	ConsultantID    int64           `json:"consultant_id"`
	ConsultantName  string          `json:"consultant_name"`
	Amount          decimal.Decimal `json:"amount"`
	ConsultantShare decimal.Decimal `json:"consultant_share"`
	WebsiteFee      decimal.Decimal `json:"website_fee"`
	TeamFee         decimal.Decimal `json:"team_fee"`
	CreatedAt       time.Time       `json:"created_at"`
}

// TeamDistribution is a completed non-consultation transaction whose amount was
// opted into the team pool.
type TeamDistribution struct {
	TransactionID int64                   `json:"transaction_id"`
	Type          revenue.TransactionType `json:"type"`
	Amount        decimal.Decimal         `json:"amount"`
	Date          time.Time               `json:"date"`
}

// Shares returns the split applied to the distribution.
func (d TeamDistribution) Shares() revenue.Shares {
	return revenue.Split(d.Amount, revenue.KindFor(d.Type, true))
}

// Consultant is a user who can be assigned work and paid.
type Consultant struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ConsultantSummary aggregates the earnings of one consultant.
type ConsultantSummary struct {
	ConsultantID     int64           `json:"consultant_id"`
	ConsultantName   string          `json:"consultant_name"`
	TotalAssignments int             `json:"total_assignments"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	ConsultantShare  decimal.Decimal `json:"consultant_share"`
	WebsiteFee       decimal.Decimal `json:"website_fee"`
	TeamFee          decimal.Decimal `json:"team_fee"`
}

// Summary is the consultant-summary response. Consultants only lists assignment
// earnings; the fee totals also include team distributions.
type Summary struct {
	Consultants            []ConsultantSummary `json:"consultants"`
	TotalTeamFee           decimal.Decimal     `json:"totalTeamFee"`
	TotalWebsiteFee        decimal.Decimal     `json:"totalWebsiteFee"`
	TotalConsultantShare   decimal.Decimal     `json:"totalConsultantShare"`
	DistributionTeamFee    decimal.Decimal     `json:"distributionTeamFee"`
	DistributionWebsiteFee decimal.Decimal     `json:"distributionWebsiteFee"`
}

// Summarize groups entries per consultant, largest total first, and adds the
// team and website shares of every distribution to the fee totals.
func Summarize(entries []Entry, distributions []TeamDistribution) Summary {
	byID := make(map[int64]*ConsultantSummary)
	order := make([]int64, 0)
	sum := Summary{
		Consultants:            []ConsultantSummary{},
		TotalTeamFee:           decimal.Zero,
		TotalWebsiteFee:        decimal.Zero,
		TotalConsultantShare:   decimal.Zero,
		DistributionTeamFee:    decimal.Zero,
		DistributionWebsiteFee: decimal.Zero,
	}
	for _, e := range entries {
		cs, ok := byID[e.ConsultantID]
		if !ok {
			cs = &ConsultantSummary{
				ConsultantID:    e.ConsultantID,
				ConsultantName:  e.ConsultantName,
				TotalAmount:     decimal.Zero,
				ConsultantShare: decimal.Zero,
				WebsiteFee:      decimal.Zero,
				TeamFee:         decimal.Zero,
			}
			byID[e.ConsultantID] = cs
			order = append(order, e.ConsultantID)
		}
		cs.TotalAssignments++
		cs.TotalAmount = cs.TotalAmount.Add(e.Amount)
		cs.ConsultantShare = cs.ConsultantShare.Add(e.ConsultantShare)
		cs.WebsiteFee = cs.WebsiteFee.Add(e.WebsiteFee)
		cs.TeamFee = cs.TeamFee.Add(e.TeamFee)

		sum.TotalTeamFee = sum.TotalTeamFee.Add(e.TeamFee)
		sum.TotalWebsiteFee = sum.TotalWebsiteFee.Add(e.WebsiteFee)
		sum.TotalConsultantShare = sum.TotalConsultantShare.Add(e.ConsultantShare)
	}
	for _, d := range distributions {
		shares := d.Shares()
		sum.DistributionTeamFee = sum.DistributionTeamFee.Add(shares.Team)
		sum.DistributionWebsiteFee = sum.DistributionWebsiteFee.Add(shares.Website)
	}
	sum.TotalTeamFee = sum.TotalTeamFee.Add(sum.DistributionTeamFee)
	sum.TotalWebsiteFee = sum.TotalWebsiteFee.Add(sum.DistributionWebsiteFee)
	for _, id := range order {
		sum.Consultants = append(sum.Consultants, *byID[id])
	}
	sort.SliceStable(sum.Consultants, func(i, j int) bool {
		return sum.Consultants[i].TotalAmount.GreaterThan(sum.Consultants[j].TotalAmount)
	})
	return sum
}

// ToLedger converts entries and team distributions into ledger earnings.
func ToLedger(entries []Entry, distributions []TeamDistribution) []ledger.Earning {
	out := make([]ledger.Earning, 0, len(entries)+len(distributions))
	for _, e := range entries {
		out = append(out, ledger.Earning{
			ConsultantID:    e.ConsultantID,
			Amount:          e.Amount,
			ConsultantShare: e.ConsultantShare,
			WebsiteFee:      e.WebsiteFee,
			TeamFee:         e.TeamFee,
		})
	}
	for _, d := range distributions {
		out = append(out, ledger.FromShares(0, d.Amount, d.Shares()))
	}
	return out
}
