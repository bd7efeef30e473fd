package core

import "testing"

func TestParseSlipDate(t *testing.T) {
	cases := []struct {
		in   string
		want SlipDate
		ok   bool
	}{
		{"11/01/26", "2026-01-11", true},
		{"1/2/26", "2026-02-01", true},
		{"11/01/2026", "2026-01-11", true},
		{"2026-01-11", "2026-01-11", true},
		{" 2026-01-11 ", "2026-01-11", true},
		{"2026/01/11", "", false},
		{"11/01/226", "", false},
		{"", "", false},
		{"yesterday", "", false},
	}
	for _, tc := range cases {
		got, ok := ParseSlipDate(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("ParseSlipDate(%q) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestParseSlipTime(t *testing.T) {
	cases := []struct {
		in   string
		want SlipClock
		ok   bool
	}{
		{"09:05", "09:05", true},
		{"9:05", "09:05", true},
		{"9:5", "", false},
		{"109:05", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := ParseSlipTime(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("ParseSlipTime(%q) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestCombineTransferredAt(t *testing.T) {
	cases := []struct {
		date, clock string
		want        string
		ok          bool
	}{
		{"2026-01-11", "09:05", "2026-01-11T09:05:00", true},
		{"11/01/26", "9:05", "2026-01-11T09:05:00", true},
		{"2026-01-11", "9:5", "", false},
		{"2026/01/11", "09:05", "", false},
		{"", "09:05", "", false},
		{"2026-01-11", "", "", false},
	}
	for _, tc := range cases {
		got, ok := CombineTransferredAt(tc.date, tc.clock)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("CombineTransferredAt(%q, %q) = (%q, %v), want (%q, %v)", tc.date, tc.clock, got, ok, tc.want, tc.ok)
		}
	}
}
