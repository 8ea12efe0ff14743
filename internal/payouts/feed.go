package payouts

import (
	"sort"

	"github.com/shopspring/decimal"
)

// BuildFeed merges inflows and payment records newest first. Only completed
// inflows count toward total_in.
func BuildFeed(inflows []Inflow, payments []Record) Feed {
	items := make([]FeedItem, 0, len(inflows)+len(payments))
	summary := FeedSummary{TotalIn: decimal.Zero, TotalOut: decimal.Zero}

	for _, in := range inflows {
		items = append(items, FeedItem{
			Direction:   DirectionIn,
			ID:          in.ID,
			Kind:        in.Type,
			Party:       in.ConsultantName,
			Amount:      in.Amount,
			Status:      in.Status,
			Description: in.Description,
			Date:        in.Date,
		})
		if in.Status == "completed" {
			summary.TotalIn = summary.TotalIn.Add(in.Amount)
		}
		summary.TransactionCount++
	}
	for _, p := range payments {
		items = append(items, FeedItem{
			Direction:   DirectionOut,
			ID:          p.ID,
			Kind:        string(p.PaymentType),
			Party:       p.RecipientName,
			Amount:      p.Amount,
			Description: p.Notes,
			Reference:   p.PaymentReference,
			Date:        p.CreatedAt,
		})
		summary.TotalOut = summary.TotalOut.Add(p.Amount)
		summary.PaymentCount++
	}
	summary.Net = summary.TotalIn.Sub(summary.TotalOut)

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Date.Equal(items[j].Date) {
			return items[i].Direction == DirectionOut && items[j].Direction == DirectionIn
		}
		return items[i].Date.After(items[j].Date)
	})
	return Feed{Items: items, Summary: summary}
}
