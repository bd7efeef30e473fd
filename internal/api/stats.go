package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"slipdash/internal/core"
)

type StatsCards struct {
	TotalExpenses     decimal.Decimal  `json:"total_expenses"`
	TopCategory       core.CategoryTag `json:"top_category"`
	TopBank           string           `json:"top_bank"`
	TotalTransactions int64            `json:"total_transactions"`
}

// SeriesPoint is one bucket of the expenses-over-time series. Label is X, or
// the month name when the range is a year.
type SeriesPoint struct {
	X     string          `json:"x"`
	Label string          `json:"label"`
	Total decimal.Decimal `json:"total"`
}

type BankTotal struct {
	Bank  string          `json:"bank"`
	Total decimal.Decimal `json:"total"`
}

type Stats struct {
	Cards            StatsCards      `json:"cards"`
	ExpensesOverTime []SeriesPoint   `json:"expenses_over_time"`
	BankDistribution []BankTotal     `json:"bank_distribution"`
	CategoryExpenses []CategoryTotal `json:"category_expenses"`
}

type statsWire struct {
	Cards struct {
		TotalExpenses     decimal.Decimal `json:"total_expenses"`
		TopCategory       string          `json:"top_category"`
		TopBank           string          `json:"top_bank"`
		TotalTransactions decimal.Decimal `json:"total_transactions"`
	} `json:"cards"`
	ExpensesOverTime []struct {
		X     flexString      `json:"x"`
		Total decimal.Decimal `json:"total"`
	} `json:"expenses_over_time"`
	BankDistribution []struct {
		Bank  string          `json:"bank"`
		Total decimal.Decimal `json:"total"`
	} `json:"bank_distribution"`
	CategoryExpenses []struct {
		Category string          `json:"category"`
		Total    decimal.Decimal `json:"total"`
	} `json:"category_expenses"`
}

// Stats fetches /stats for the given range. Banks with a zero or negative
// total are dropped from the distribution.
func (c *Client) Stats(ctx context.Context, token string, q RangeQuery) (Stats, error) {
	if err := q.Validate(); err != nil {
		return Stats{}, err
	}
	var w statsWire
	if err := c.do(ctx, request{method: http.MethodGet, path: "/stats", query: q.Values(), token: token}, &w); err != nil {
		return Stats{}, err
	}

	s := Stats{
		Cards: StatsCards{
			TotalExpenses:     w.Cards.TotalExpenses,
			TopCategory:       normalizeCategory(w.Cards.TopCategory),
			TopBank:           orDash(w.Cards.TopBank),
			TotalTransactions: w.Cards.TotalTransactions.IntPart(),
		},
		ExpensesOverTime: make([]SeriesPoint, 0, len(w.ExpensesOverTime)),
		BankDistribution: make([]BankTotal, 0, len(w.BankDistribution)),
		CategoryExpenses: make([]CategoryTotal, 0, len(w.CategoryExpenses)),
	}
	for _, p := range w.ExpensesOverTime {
		x := p.X.String()
		s.ExpensesOverTime = append(s.ExpensesOverTime, SeriesPoint{X: x, Label: seriesLabel(q.kind(), x), Total: p.Total})
	}
	for _, b := range w.BankDistribution {
		if !b.Total.IsPositive() {
			continue
		}
		s.BankDistribution = append(s.BankDistribution, BankTotal{Bank: orDash(b.Bank), Total: b.Total})
	}
	for _, ce := range w.CategoryExpenses {
		s.CategoryExpenses = append(s.CategoryExpenses, CategoryTotal{Category: normalizeCategory(ce.Category), Total: ce.Total})
	}
	return s, nil
}

func seriesLabel(kind RangeKind, x string) string {
	if kind != RangeYear {
		return x
	}
	if n, err := strconv.Atoi(x); err == nil && n >= 1 && n <= 12 {
		return time.Month(n).String()
	}
	return x
}
