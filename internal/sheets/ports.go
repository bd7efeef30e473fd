package sheets

import (
	"context"
	"strings"
	"time"

	"slipdash/internal/core"
)

// ReviewWriter is the outbound port the sync worker exports saved reviews to.
type ReviewWriter interface {
	// Append writes one row for r and returns a reference to where it landed.
	Append(ctx context.Context, r core.SavedReview) (rowRef string, err error)
}

// Header is the column layout every writer uses.
var Header = []string{
	"Date", "Time", "Bank", "Amount", "Category", "Memo", "Transaction ID", "Category Source", "Saved At",
}

// Row renders r in Header order. Absent values become empty cells.
func Row(r core.SavedReview) []string {
	date, clock := splitTransferredAt(r.TransferredAt)
	amount := ""
	if r.Amount.Valid {
		amount = r.Amount.Decimal.StringFixed(2)
	}
	category := r.Category
	if category == "" {
		category = core.Others
	}
	savedAt := ""
	if !r.SavedAt.IsZero() {
		savedAt = r.SavedAt.UTC().Format(time.RFC3339)
	}
	return []string{
		date,
		clock,
		r.Bank,
		amount,
		category.Label(),
		r.Memo,
		r.TransactionID,
		string(r.CategorySource),
		savedAt,
	}
}

// splitTransferredAt turns "2026-01-11T09:05:00" into ("2026-01-11", "09:05").
func splitTransferredAt(s string) (string, string) {
	date, clock, ok := strings.Cut(s, "T")
	if !ok {
		return s, ""
	}
	if len(clock) >= 5 {
		clock = clock[:5]
	}
	return date, clock
}
