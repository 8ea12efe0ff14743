// Package revenue derives revenue shares for consultants, the website and the team.
package revenue

import (
	"github.com/shopspring/decimal"
)

// Kind selects the split applied to a gross amount.
type Kind string

const (
	// KindConsultation splits consultant 75 / website 10 / team 15.
	KindConsultation Kind = "consultation"
	// KindPartnership splits team 95 / website 5; no consultant is involved.
	KindPartnership Kind = "partnership"
	// KindDirect keeps the whole amount as website revenue.
	KindDirect Kind = "direct"
)

// Role names a team member bucket that receives a slice of the team share.
type Role string

const (
	RoleCEO          Role = "ceo"
	RoleITSpecialist Role = "it_specialist"
	RoleAccountant   Role = "accountant"
	RoleOtherTeam    Role = "other_team"
)

// TeamDenominator is the base the role weights are expressed against. The weights
// sum to 95, mirroring the partnership team percentage, not 100.
const TeamDenominator = 95

var (
	consultantRate  = decimal.RequireFromString("0.75")
	websiteRate     = decimal.RequireFromString("0.10")
	teamRate        = decimal.RequireFromString("0.15")
	partnerTeamRate = decimal.RequireFromString("0.95")
	partnerWebRate  = decimal.RequireFromString("0.05")
	denominator     = decimal.NewFromInt(TeamDenominator)
)

var roleWeights = map[Role]int64{
	RoleCEO:          40,
	RoleITSpecialist: 25,
	RoleAccountant:   15,
	RoleOtherTeam:    15,
}

// Roles lists team roles in display order.
func Roles() []Role {
	return []Role{RoleCEO, RoleITSpecialist, RoleAccountant, RoleOtherTeam}
}

// Weight returns the role weight over TeamDenominator and whether the role exists.
func Weight(role Role) (int64, bool) {
	w, ok := roleWeights[role]
	return w, ok
}

// Valid reports whether r is a known team role.
func (r Role) Valid() bool {
	_, ok := roleWeights[r]
	return ok
}

// Label returns a human readable role name.
func (r Role) Label() string {
	switch r {
	case RoleCEO:
		return "CEO"
	case RoleITSpecialist:
		return "IT Specialist"
	case RoleAccountant:
		return "Accountant"
	case RoleOtherTeam:
		return "Other Team Members"
	default:
		return string(r)
	}
}

// Shares holds the three-way result of a split. Consultant is zero for
// partnership and direct splits.
type Shares struct {
	Consultant decimal.Decimal `json:"consultant_share"`
	Website    decimal.Decimal `json:"website_fee"`
	Team       decimal.Decimal `json:"team_fee"`
}

// Total returns the sum of all shares.
func (s Shares) Total() decimal.Decimal {
	return s.Consultant.Add(s.Website).Add(s.Team)
}

// Split divides amount according to kind. Callers validate the amount first;
// Split itself never fails.
func Split(amount decimal.Decimal, kind Kind) Shares {
	switch kind {
	case KindConsultation:
		return Shares{
			Consultant: amount.Mul(consultantRate),
			Website:    amount.Mul(websiteRate),
			Team:       amount.Mul(teamRate),
		}
	case KindPartnership:
		return Shares{
			Consultant: decimal.Zero,
			Website:    amount.Mul(partnerWebRate),
			Team:       amount.Mul(partnerTeamRate),
		}
	default:
		return Shares{Consultant: decimal.Zero, Website: amount, Team: decimal.Zero}
	}
}

// RoleShare returns team × weight/95 for the role, or zero for an unknown role.
func RoleShare(team decimal.Decimal, role Role) decimal.Decimal {
	w, ok := roleWeights[role]
	if !ok {
		return decimal.Zero
	}
	return team.Mul(decimal.NewFromInt(w)).Div(denominator)
}

// TeamShares is the per-role breakdown of a team share.
type TeamShares struct {
	CEO          decimal.Decimal `json:"ceo"`
	ITSpecialist decimal.Decimal `json:"it_specialist"`
	Accountant   decimal.Decimal `json:"accountant"`
	OtherTeam    decimal.Decimal `json:"other_team"`
}

// Sum adds the role shares back together.
func (t TeamShares) Sum() decimal.Decimal {
	return t.CEO.Add(t.ITSpecialist).Add(t.Accountant).Add(t.OtherTeam)
}

// Get returns the share for a role.
func (t TeamShares) Get(role Role) decimal.Decimal {
	switch role {
	case RoleCEO:
		return t.CEO
	case RoleITSpecialist:
		return t.ITSpecialist
	case RoleAccountant:
		return t.Accountant
	case RoleOtherTeam:
		return t.OtherTeam
	default:
		return decimal.Zero
	}
}

// RoleSplit divides a team share between all roles.
func RoleSplit(team decimal.Decimal) TeamShares {
	return TeamShares{
		CEO:          RoleShare(team, RoleCEO),
		ITSpecialist: RoleShare(team, RoleITSpecialist),
		Accountant:   RoleShare(team, RoleAccountant),
		OtherTeam:    RoleShare(team, RoleOtherTeam),
	}
}

// Round2 rounds to cents.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
