// Package dashboard loads the accountant dashboard as independently failing
// sections and derives its headline figures with the same calculations as the
// printable report.
package dashboard

import (
	"time"

	"github.com/medconsult-liberia/medconsult/internal/earnings"
	"github.com/medconsult-liberia/medconsult/internal/ledger"
	"github.com/medconsult-liberia/medconsult/internal/payouts"
	"github.com/medconsult-liberia/medconsult/internal/reporting"
	"github.com/medconsult-liberia/medconsult/internal/revenue"
)

// SectionName identifies a dashboard section.
type SectionName string

const (
	SectionStats         SectionName = "stats"
	SectionSummary       SectionName = "summary"
	SectionPaymentStatus SectionName = "payment_status"
	SectionFeed          SectionName = "feed"
)

// AllSections lists every section in load order.
func AllSections() []SectionName {
	return []SectionName{SectionStats, SectionSummary, SectionPaymentStatus, SectionFeed}
}

// Valid reports whether n names a section.
func (n SectionName) Valid() bool {
	switch n {
	case SectionStats, SectionSummary, SectionPaymentStatus, SectionFeed:
		return true
	}
	return false
}

// Section is one named query result. A failed load leaves Data at its zero
// value and Error set.
type Section[T any] struct {
	Data     T         `json:"data"`
	LoadedAt time.Time `json:"loaded_at"`
	Error    string    `json:"error,omitempty"`
}

// OK reports whether the section loaded successfully.
func (s Section[T]) OK() bool {
	return !s.LoadedAt.IsZero() && s.Error == ""
}

func loaded[T any](data T, err error, at time.Time) Section[T] {
	if err != nil {
		var zero T
		return Section[T]{Data: zero, LoadedAt: at, Error: err.Error()}
	}
	return Section[T]{Data: data, LoadedAt: at}
}

// State is the full dashboard.
type State struct {
	Stats         Section[reporting.Stats] `json:"stats"`
	Summary       Section[earnings.Summary] `json:"summary"`
	PaymentStatus Section[ledger.Snapshot]  `json:"payment_status"`
	Feed          Section[payouts.Feed]     `json:"feed"`
}

// Derived holds figures computed from State. Headline is only present when
// both stats and summary loaded.
type Derived struct {
	Headline         *reporting.Headline `json:"headline,omitempty"`
	TeamRoleShares   *revenue.TeamShares `json:"team_role_shares,omitempty"`
	ConsultantTotals *ledger.Totals      `json:"consultant_totals,omitempty"`
	TeamTotals       *ledger.Totals      `json:"team_totals,omitempty"`
	Degraded         []SectionName       `json:"degraded"`
}

// Derive computes headline figures from whichever sections loaded. It is pure.
func Derive(s State) Derived {
	d := Derived{Degraded: []SectionName{}}
	if s.Stats.OK() && s.Summary.OK() {
		h := reporting.ComputeHeadline(s.Stats.Data, s.Summary.Data)
		d.Headline = &h
	}
	if s.Summary.OK() {
		shares := revenue.RoleSplit(s.Summary.Data.TotalTeamFee)
		d.TeamRoleShares = &shares
	}
	if s.PaymentStatus.OK() {
		c := ledger.Sum(s.PaymentStatus.Data.Consultants)
		t := ledger.Sum(s.PaymentStatus.Data.Team)
		d.ConsultantTotals, d.TeamTotals = &c, &t
	}
	for _, sec := range []struct {
		name SectionName
		err  string
	}{
		{SectionStats, s.Stats.Error},
		{SectionSummary, s.Summary.Error},
		{SectionPaymentStatus, s.PaymentStatus.Error},
		{SectionFeed, s.Feed.Error},
	} {
		if sec.err != "" {
			d.Degraded = append(d.Degraded, sec.name)
		}
	}
	return d
}
