package api

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// RangeKind selects the period the backend aggregates over.
type RangeKind string

const (
	RangeAll   RangeKind = "all"
	RangeMonth RangeKind = "month"
	RangeYear  RangeKind = "year"
)

var ErrInvalidRange = errors.New("invalid range")

// ParseRangeKind accepts all, month or year. Empty means all.
func ParseRangeKind(s string) (RangeKind, error) {
	switch k := RangeKind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return RangeAll, nil
	case RangeAll, RangeMonth, RangeYear:
		return k, nil
	default:
		return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidRange, s)
	}
}

// RangeQuery is the range/year/month selector shared by the aggregate
// endpoints. Year is required for month and year ranges, Month for month.
type RangeQuery struct {
	Kind  RangeKind
	Year  int
	Month int
}

func (q RangeQuery) kind() RangeKind {
	if q.Kind == "" {
		return RangeAll
	}
	return q.Kind
}

func (q RangeQuery) Validate() error {
	switch q.kind() {
	case RangeAll:
		return nil
	case RangeYear:
		if q.Year <= 0 {
			return fmt.Errorf("%w: year is required", ErrInvalidRange)
		}
		return nil
	case RangeMonth:
		if q.Year <= 0 {
			return fmt.Errorf("%w: year is required", ErrInvalidRange)
		}
		if q.Month < 1 || q.Month > 12 {
			return fmt.Errorf("%w: month %d out of 1-12", ErrInvalidRange, q.Month)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidRange, q.Kind)
	}
}

// Values encodes the query. The month has no leading zero.
func (q RangeQuery) Values() url.Values {
	v := url.Values{}
	v.Set("range", string(q.kind()))
	switch q.kind() {
	case RangeMonth:
		v.Set("year", strconv.Itoa(q.Year))
		v.Set("month", strconv.Itoa(q.Month))
	case RangeYear:
		v.Set("year", strconv.Itoa(q.Year))
	}
	return v
}
