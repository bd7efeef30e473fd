// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data:
// range selectors, paging and JSON bodies.

package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"slipdash/internal/api"
)

const maxJSONBody = 64 << 10

// ParseRangeQuery reads range, year and month from query parameters. A month
// or year range with no year uses now's year; a month range with no month
// uses now's month. Malformed numbers are rejected rather than ignored.
func ParseRangeQuery(query url.Values, now time.Time) (api.RangeQuery, error) {
	kind, err := api.ParseRangeKind(query.Get("range"))
	if err != nil {
		return api.RangeQuery{}, err
	}
	q := api.RangeQuery{Kind: kind}
	if kind == api.RangeAll {
		return q, nil
	}

	q.Year, err = intParam(query, "year", now.Year())
	if err != nil {
		return api.RangeQuery{}, err
	}
	if kind == api.RangeMonth {
		q.Month, err = intParam(query, "month", int(now.Month()))
		if err != nil {
			return api.RangeQuery{}, err
		}
	}
	if err := q.Validate(); err != nil {
		return api.RangeQuery{}, err
	}
	return q, nil
}

// ParseTransactionQuery adds bank and paging to ParseRangeQuery. Page and
// page size default to zero, which the client turns into its own defaults.
func ParseTransactionQuery(query url.Values, now time.Time) (api.TransactionQuery, error) {
	rq, err := ParseRangeQuery(query, now)
	if err != nil {
		return api.TransactionQuery{}, err
	}
	tq := api.TransactionQuery{Range: rq, Bank: sanitizeInput(query.Get("bank"))}
	if tq.Page, err = intParam(query, "page", 0); err != nil {
		return api.TransactionQuery{}, err
	}
	if tq.PageSize, err = intParam(query, "page_size", 0); err != nil {
		return api.TransactionQuery{}, err
	}
	if tq.Page < 0 || tq.PageSize < 0 || tq.PageSize > 200 {
		return api.TransactionQuery{}, fmt.Errorf("%w: page and page_size must be positive, page_size at most 200", errBadRequest)
	}
	return tq, nil
}

// ParseDashboardView reads the dashboard's "view" parameter, falling back to
// "range" so the aggregate endpoints share one query shape.
func ParseDashboardView(query url.Values) (api.RangeKind, error) {
	v := query.Get("view")
	if v == "" {
		v = query.Get("range")
	}
	return api.ParseRangeKind(v)
}

func intParam(query url.Values, key string, def int) (int, error) {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number, got %q", errBadRequest, key, v)
	}
	return n, nil
}

// DecodeJSON reads one JSON object from r's body into dst. Unknown fields are
// rejected so a misspelt edit is not silently dropped.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return nil
}

// FormValue returns a sanitized form or query value.
func FormValue(r *http.Request, key string) string {
	return sanitizeInput(r.FormValue(key))
}

// FormBool accepts the usual checkbox spellings.
func FormBool(r *http.Request, key string) bool {
	switch strings.ToLower(strings.TrimSpace(r.FormValue(key))) {
	case "1", "true", "on", "yes":
		return true
	default:
		return false
	}
}
