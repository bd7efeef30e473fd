package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"slipdash/internal/core"
)

const defaultPageSize = 100

type TransactionQuery struct {
	Range    RangeQuery
	Bank     string
	Page     int
	PageSize int
}

func (q TransactionQuery) values() (url.Values, error) {
	if err := q.Range.Validate(); err != nil {
		return nil, err
	}
	v := q.Range.Values()
	if b := strings.TrimSpace(q.Bank); b != "" {
		v.Set("bank", b)
	}
	page, size := q.Page, q.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	v.Set("page", strconv.Itoa(page))
	v.Set("page_size", strconv.Itoa(size))
	return v, nil
}

// Transaction is one normalized row of the transaction list.
type Transaction struct {
	ID       string           `json:"id"`
	QR       string           `json:"qr"`
	Bank     string           `json:"bank"`
	Amount   decimal.Decimal  `json:"amount"`
	Date     string           `json:"date"`
	Time     string           `json:"time"`
	Category core.CategoryTag `json:"category"`
}

type transactionWire struct {
	ID       flexString      `json:"id"`
	QR       string          `json:"qr"`
	Bank     string          `json:"bank"`
	Amount   decimal.Decimal `json:"amount"`
	Date     flexString      `json:"date"`
	Time     flexString      `json:"time"`
	Category string          `json:"category"`
}

// ListTransactions fetches one page of transactions. QR links come back
// absolute, and blank bank, date and time fields are shown as "-".
func (c *Client) ListTransactions(ctx context.Context, token string, q TransactionQuery) ([]Transaction, error) {
	query, err := q.values()
	if err != nil {
		return nil, err
	}
	var wire struct {
		Rows []transactionWire `json:"rows"`
	}
	if err := c.do(ctx, request{method: http.MethodGet, path: "/transactions/", query: query, token: token}, &wire); err != nil {
		return nil, err
	}
	out := make([]Transaction, 0, len(wire.Rows))
	for _, r := range wire.Rows {
		out = append(out, Transaction{
			ID:       r.ID.String(),
			QR:       c.AbsoluteURL(r.QR),
			Bank:     orDash(r.Bank),
			Amount:   r.Amount,
			Date:     orDash(r.Date.String()),
			Time:     orDash(r.Time.String()),
			Category: normalizeCategory(r.Category),
		})
	}
	return out, nil
}

// normalizeCategory maps known spellings onto their tag, keeps unknown
// backend values verbatim and turns blanks into Others.
func normalizeCategory(s string) core.CategoryTag {
	if strings.TrimSpace(s) == "" {
		return core.Others
	}
	if tag, err := core.ParseCategory(s); err == nil {
		return tag
	}
	return core.CategoryTag(s)
}
