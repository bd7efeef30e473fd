package core

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	isoDatePattern   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	slashDatePattern = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{2}|\d{4})$`)
	clockPattern     = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
)

// SlipDate is a calendar date normalized to YYYY-MM-DD.
type SlipDate string

// SlipClock is a wall-clock time normalized to HH:MM.
type SlipClock string

// ParseSlipDate accepts YYYY-MM-DD as-is, or DD/MM/YY and DD/MM/YYYY. Two
// digit years are read as 20YY. Only the textual shape is checked.
func ParseSlipDate(s string) (SlipDate, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if isoDatePattern.MatchString(s) {
		return SlipDate(s), true
	}
	m := slashDatePattern.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	day, month, year := pad2(m[1]), pad2(m[2]), m[3]
	if len(year) == 2 {
		year = "20" + year
	}
	return SlipDate(fmt.Sprintf("%s-%s-%s", year, month, day)), true
}

// ParseSlipTime accepts H:MM or HH:MM. Minutes must have two digits.
func ParseSlipTime(s string) (SlipClock, bool) {
	m := clockPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return "", false
	}
	return SlipClock(pad2(m[1]) + ":" + m[2]), true
}

// CombineTransferredAt builds a local ISO-8601 timestamp (YYYY-MM-DDTHH:MM:00).
// It reports false if either part is missing or malformed; no component is
// ever filled in.
func CombineTransferredAt(date, clock string) (string, bool) {
	d, ok := ParseSlipDate(date)
	if !ok {
		return "", false
	}
	c, ok := ParseSlipTime(clock)
	if !ok {
		return "", false
	}
	return string(d) + "T" + string(c) + ":00", true
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}
