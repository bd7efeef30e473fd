package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"slipdash/internal/core"
)

type Metric struct {
	Value decimal.Decimal `json:"value"`
	Pct   float64         `json:"pct"`
}

type TopCategoryMetric struct {
	Category core.CategoryTag `json:"category"`
	Value    decimal.Decimal  `json:"value"`
	Pct      float64          `json:"pct"`
}

type DashboardCards struct {
	AveragePerDay       Metric            `json:"average_per_day"`
	TotalMonthlyExpense Metric            `json:"total_monthly_expense"`
	TotalTransactions   Metric            `json:"total_transactions"`
	TopSpendingCategory TopCategoryMetric `json:"top_spending_category"`
}

type CategoryTotal struct {
	Category core.CategoryTag `json:"category"`
	Total    decimal.Decimal  `json:"total"`
}

type RecentTransaction struct {
	ID       string           `json:"id"`
	Bank     string           `json:"bank"`
	Amount   decimal.Decimal  `json:"amount"`
	Date     string           `json:"date"`
	Time     string           `json:"time"`
	Category core.CategoryTag `json:"category"`
	FileURL  string           `json:"file_url,omitempty"`
}

// Dashboard is the home screen summary. ExpenseByCategory always holds the
// five categories in display order.
type Dashboard struct {
	Cards              DashboardCards      `json:"cards"`
	ExpenseByCategory  []CategoryTotal     `json:"expense_by_category"`
	RecentTransactions []RecentTransaction `json:"recent_transactions"`
}

type dashboardWire struct {
	Cards *struct {
		AveragePerDay       *Metric `json:"average_per_day"`
		TotalMonthlyExpense *Metric `json:"total_monthly_expense"`
		TotalTransactions   *Metric `json:"total_transactions"`
		TopSpendingCategory *struct {
			Category string          `json:"category"`
			Value    decimal.Decimal `json:"value"`
			Pct      float64         `json:"pct"`
		} `json:"top_spending_category"`
	} `json:"cards"`
	ExpenseByCategory struct {
		Items []struct {
			Category string          `json:"category"`
			Total    decimal.Decimal `json:"total"`
		} `json:"items"`
	} `json:"expense_by_category"`
	RecentTransactions []struct {
		ID       flexString      `json:"id"`
		Bank     string          `json:"bank"`
		Amount   decimal.Decimal `json:"amount"`
		Date     flexString      `json:"date"`
		Time     flexString      `json:"time"`
		Category string          `json:"category"`
		FileURL  string          `json:"file_url"`
	} `json:"recent_transactions"`
}

// Dashboard fetches /dashboard/?view=<kind>.
func (c *Client) Dashboard(ctx context.Context, token string, view RangeKind) (Dashboard, error) {
	if view == "" {
		view = RangeMonth
	}
	if _, err := ParseRangeKind(string(view)); err != nil {
		return Dashboard{}, err
	}
	var wire dashboardWire
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/dashboard/",
		query:  url.Values{"view": {string(view)}},
		token:  token,
	}, &wire)
	if err != nil {
		return Dashboard{}, err
	}
	return c.normalizeDashboard(wire), nil
}

func (c *Client) normalizeDashboard(w dashboardWire) Dashboard {
	d := Dashboard{
		Cards: DashboardCards{TopSpendingCategory: TopCategoryMetric{Category: core.Others}},
	}
	if w.Cards != nil {
		if w.Cards.AveragePerDay != nil {
			d.Cards.AveragePerDay = *w.Cards.AveragePerDay
		}
		if w.Cards.TotalMonthlyExpense != nil {
			d.Cards.TotalMonthlyExpense = *w.Cards.TotalMonthlyExpense
		}
		if w.Cards.TotalTransactions != nil {
			d.Cards.TotalTransactions = *w.Cards.TotalTransactions
		}
		if top := w.Cards.TopSpendingCategory; top != nil {
			d.Cards.TopSpendingCategory = TopCategoryMetric{
				Category: normalizeCategory(top.Category),
				Value:    top.Value,
				Pct:      top.Pct,
			}
		}
	}

	totals := make(map[core.CategoryTag]decimal.Decimal)
	for _, it := range w.ExpenseByCategory.Items {
		tag := normalizeCategory(it.Category)
		totals[tag] = totals[tag].Add(it.Total)
	}
	for _, tag := range core.Categories() {
		d.ExpenseByCategory = append(d.ExpenseByCategory, CategoryTotal{Category: tag, Total: totals[tag]})
	}

	d.RecentTransactions = make([]RecentTransaction, 0, len(w.RecentTransactions))
	for _, r := range w.RecentTransactions {
		d.RecentTransactions = append(d.RecentTransactions, RecentTransaction{
			ID:       r.ID.String(),
			Bank:     orDash(r.Bank),
			Amount:   r.Amount,
			Date:     orDash(r.Date.String()),
			Time:     orDash(r.Time.String()),
			Category: normalizeCategory(r.Category),
			FileURL:  c.AbsoluteURL(r.FileURL),
		})
	}
	return d
}
