package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slipdash/internal/core"
)

func newTestClient(t *testing.T, h http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, WithRetries(2, time.Millisecond))
	require.NoError(t, err)
	return c, srv
}

func TestNewRejectsRelativeBase(t *testing.T) {
	_, err := New("localhost:8000")
	assert.Error(t, err)
	_, err = New("/api")
	assert.Error(t, err)
	c, err := New("http://localhost:8000/")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000", c.BaseURL())
}

func TestAbsoluteURL(t *testing.T) {
	c, err := New("http://api.local:8000")
	require.NoError(t, err)
	assert.Equal(t, "", c.AbsoluteURL(""))
	assert.Equal(t, "https://cdn/x.png", c.AbsoluteURL("https://cdn/x.png"))
	assert.Equal(t, "http://api.local:8000/files/a.png", c.AbsoluteURL("/files/a.png"))
	assert.Equal(t, "http://api.local:8000/files/a.png", c.AbsoluteURL("files/a.png"))
}

func TestLogin(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/login", r.URL.Path)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("password") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"detail":"Incorrect username or password"}`)
			return
		}
		assert.Equal(t, "alice", r.PostForm.Get("username"))
		_, _ = io.WriteString(w, `{"access_token":"tok-1","token_type":"bearer"}`)
	}))

	res, err := c.Login(context.Background(), "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", res.AccessToken)

	_, err = c.Login(context.Background(), "alice", "wrong")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "Incorrect username or password", apiErr.Error())
}

func TestLoginWithoutToken(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"token_type":"bearer"}`)
	}))
	_, err := c.Login(context.Background(), "a", "b")
	assert.ErrorIs(t, err, ErrNoAccessToken)
}

func TestRegisterSendsJSON(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/register", r.URL.Path)
		var body RegisterRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, RegisterRequest{Username: "bob", Email: "b@x.io", Password: "pw"}, body)
		w.WriteHeader(http.StatusCreated)
	}))
	require.NoError(t, c.Register(context.Background(), RegisterRequest{Username: "bob", Email: "b@x.io", Password: "pw"}))
}

func TestErrorMessageFallbacks(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"detail", 400, `{"detail":"bad slip"}`, "bad slip"},
		{"message", 400, `{"message":"nope"}`, "nope"},
		{"detail list falls back to raw", 422, `{"detail":[{"msg":"x"}]}`, `{"detail":[{"msg":"x"}]}`},
		{"plain text", 500, "boom", "boom"},
		{"empty", 503, "", "HTTP 503"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, errorMessage(tc.status, []byte(tc.body)))
		})
	}
}

func TestUploadSlip(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/upload/", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "slip.png", hdr.Filename)
		assert.Equal(t, "PNGDATA", string(data))
		_, _ = io.WriteString(w, `{
			"extracted": {"bank":"KBank","date":"11/01/26","time":"9:05","amount":1290.5,
			              "text":"coffee","lines":["a","b"],"memo":"inner","suggested_category":"Transport"},
			"memo": "outer",
			"suggested_category": null,
			"category_required": true,
			"transaction_id": 42
		}`)
	}))

	res, err := c.UploadSlip(context.Background(), "tok", "slip.png", "image/png", stringsReader("PNGDATA"))
	require.NoError(t, err)
	assert.Equal(t, "42", res.TransactionID)
	assert.Equal(t, "42", res.OCR.TransactionID)
	assert.Equal(t, "KBank", res.OCR.Bank)
	assert.Equal(t, "1290.5", res.OCR.Amount)
	assert.Equal(t, "outer", res.OCR.Memo)
	assert.Equal(t, "Transport", res.OCR.SuggestedCategory, "null top-level keeps the extracted value")
	assert.True(t, res.OCR.CategoryRequired)
	assert.Equal(t, []string{"a", "b"}, res.OCR.Lines)
}

func TestUploadSlipNoTokenAndStringID(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"extracted":{},"transaction_id":"tx-9"}`)
	}))
	res, err := c.UploadSlip(context.Background(), "", "a.jpg", "", stringsReader("x"))
	require.NoError(t, err)
	assert.Equal(t, "tx-9", res.TransactionID)
}

func TestUploadSlipMalformedAndNotRetried(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			_, _ = io.WriteString(w, `not json`)
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	_, err := c.UploadSlip(context.Background(), "", "a.jpg", "", stringsReader("x"))
	assert.ErrorIs(t, err, ErrMalformedResponse)

	_, err = c.UploadSlip(context.Background(), "", "a.jpg", "", stringsReader("x"))
	assert.Equal(t, http.StatusBadGateway, StatusOf(err))
	assert.Equal(t, int32(2), calls.Load(), "mutations are never retried")
}

func TestUpdateTransaction(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/transactions/42", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Shopping", body["category"])
		assert.Nil(t, body["transferred_at"])
		w.WriteHeader(http.StatusOK)
	}))
	p := core.TransactionUpdatePayload{Category: core.Shopping}
	require.NoError(t, c.UpdateTransaction(context.Background(), "tok", "42", p))

	assert.ErrorIs(t, c.UpdateTransaction(context.Background(), "", "42", p), core.ErrNotAuthenticated)
	assert.ErrorIs(t, c.UpdateTransaction(context.Background(), "tok", "", p), core.ErrMissingTransactionID)
}

func TestGetRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"cards":{}}`)
	}))
	_, err := c.Stats(context.Background(), "tok", RangeQuery{Kind: RangeAll})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"detail":"Not authenticated"}`)
	}))
	_, err := c.ListTransactions(context.Background(), "", TransactionQuery{})
	assert.Equal(t, http.StatusUnauthorized, StatusOf(err))
	assert.EqualError(t, err, "Not authenticated")
	assert.Equal(t, int32(1), calls.Load())
}

func TestUnreachableBackend(t *testing.T) {
	c, srv := newTestClient(t, http.NotFoundHandler())
	srv.Close()

	err := c.UpdateTransaction(context.Background(), "tok", "42", core.TransactionUpdatePayload{Category: core.Transport})
	require.ErrorIs(t, err, ErrBackendUnavailable)
	assert.Zero(t, StatusOf(err))

	_, err = c.ListTransactions(context.Background(), "tok", TransactionQuery{Range: RangeQuery{Kind: RangeAll}})
	assert.ErrorIs(t, err, ErrBackendUnavailable, "reads give up after their retries")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = c.UpdateTransaction(ctx, "tok", "42", core.TransactionUpdatePayload{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBackendUnavailable)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestListTransactionsNormalizesRows(t *testing.T) {
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "month", q.Get("range"))
		assert.Equal(t, "2026", q.Get("year"))
		assert.Equal(t, "1", q.Get("month"))
		assert.Equal(t, "SCB", q.Get("bank"))
		assert.Equal(t, "1", q.Get("page"))
		assert.Equal(t, "100", q.Get("page_size"))
		_, _ = io.WriteString(w, `{"rows":[
			{"id":7,"qr":"/slips/7.png","bank":"SCB","amount":"1290.00","date":"2026-01-11","time":"09:05","category":"food & drink"},
			{"id":"8","qr":"","bank":null,"amount":null,"category":""}
		]}`)
	}))
	rows, err := c.ListTransactions(context.Background(), "tok", TransactionQuery{
		Range: RangeQuery{Kind: RangeMonth, Year: 2026, Month: 1},
		Bank:  " SCB ",
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, srv.URL+"/slips/7.png", rows[0].QR)
	assert.Equal(t, core.FoodAndDrink, rows[0].Category)
	assert.True(t, rows[0].Amount.Equal(decimal.NewFromInt(1290)))
	assert.Equal(t, Transaction{ID: "8", Bank: "-", Date: "-", Time: "-", Category: core.Others}, rows[1])
}

func TestRangeQuery(t *testing.T) {
	assert.NoError(t, RangeQuery{}.Validate())
	assert.ErrorIs(t, RangeQuery{Kind: RangeMonth, Year: 2026, Month: 13}.Validate(), ErrInvalidRange)
	assert.ErrorIs(t, RangeQuery{Kind: RangeYear}.Validate(), ErrInvalidRange)
	assert.Equal(t, "month=3&range=month&year=2026", RangeQuery{Kind: RangeMonth, Year: 2026, Month: 3}.Values().Encode())
	assert.Equal(t, "range=all", RangeQuery{Year: 2026, Month: 3}.Values().Encode())

	k, err := ParseRangeKind(" YEAR ")
	require.NoError(t, err)
	assert.Equal(t, RangeYear, k)
	_, err = ParseRangeKind("week")
	assert.True(t, errors.Is(err, ErrInvalidRange))
}

func TestDashboardFillsCategoryOrder(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/dashboard/", r.URL.Path)
		assert.Equal(t, "year", r.URL.Query().Get("view"))
		_, _ = io.WriteString(w, `{
			"cards":{"average_per_day":{"value":12.5,"pct":3}},
			"expense_by_category":{"items":[
				{"category":"Shopping","total":100},
				{"category":"Transport","total":20},
				{"category":"Shopping","total":5},
				{"total":1}
			]},
			"recent_transactions":[{"id":1,"amount":50,"file_url":"/f/1.png"}]
		}`)
	}))
	d, err := c.Dashboard(context.Background(), "tok", RangeYear)
	require.NoError(t, err)

	require.Len(t, d.ExpenseByCategory, 5)
	got := map[core.CategoryTag]string{}
	for i, ct := range d.ExpenseByCategory {
		assert.Equal(t, core.Categories()[i], ct.Category)
		got[ct.Category] = ct.Total.String()
	}
	assert.Equal(t, "105", got[core.Shopping])
	assert.Equal(t, "20", got[core.Transport])
	assert.Equal(t, "1", got[core.Others])
	assert.Equal(t, "0", got[core.FoodAndDrink])

	assert.Equal(t, core.Others, d.Cards.TopSpendingCategory.Category)
	assert.Equal(t, "12.5", d.Cards.AveragePerDay.Value.String())
	require.Len(t, d.RecentTransactions, 1)
	assert.Equal(t, "-", d.RecentTransactions[0].Bank)
	assert.Equal(t, c.BaseURL()+"/f/1.png", d.RecentTransactions[0].FileURL)
}

func TestDashboardEmptyBody(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	d, err := c.Dashboard(context.Background(), "", "")
	require.NoError(t, err)
	assert.Len(t, d.ExpenseByCategory, 5)
	assert.Empty(t, d.RecentTransactions)
}

func TestStats(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stats", r.URL.Path)
		assert.Equal(t, "year", r.URL.Query().Get("range"))
		assert.Empty(t, r.URL.Query().Get("month"))
		_, _ = io.WriteString(w, `{
			"cards":{"total_expenses":"1500.25","top_bank":"","total_transactions":9},
			"expenses_over_time":[{"x":1,"total":10},{"x":"13","total":1}],
			"bank_distribution":[{"bank":"KBank","total":10},{"bank":"SCB","total":0}],
			"category_expenses":[{"category":"Utilities","total":3}]
		}`)
	}))
	s, err := c.Stats(context.Background(), "tok", RangeQuery{Kind: RangeYear, Year: 2026})
	require.NoError(t, err)
	assert.Equal(t, "-", s.Cards.TopBank)
	assert.Equal(t, core.Others, s.Cards.TopCategory)
	assert.Equal(t, int64(9), s.Cards.TotalTransactions)
	assert.Equal(t, "January", s.ExpensesOverTime[0].Label)
	assert.Equal(t, "13", s.ExpensesOverTime[1].Label)
	require.Len(t, s.BankDistribution, 1)
	assert.Equal(t, "KBank", s.BankDistribution[0].Bank)
	assert.Equal(t, core.Utilities, s.CategoryExpenses[0].Category)

	_, err = c.Stats(context.Background(), "tok", RangeQuery{Kind: RangeMonth, Year: 2026})
	assert.ErrorIs(t, err, ErrInvalidRange)
}
