package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type (
	// OcrResult is what the backend extracted from a slip image. It is
	// read-only once received; the review form copies what it needs.
	OcrResult struct {
		Bank              string
		Date              string
		Time              string
		Amount            string
		Text              string
		RawText           string
		Lines             []string
		Memo              string
		Category          string
		SuggestedCategory string
		CategoryRequired  bool
		TransactionID     string
	}

	// SavedReview is the local record of a review the backend accepted.
	SavedReview struct {
		ID             int64
		TransactionID  string
		Bank           string
		Amount         decimal.NullDecimal
		Memo           string
		Category       CategoryTag
		CategorySource CategorySource
		TransferredAt  string
		SavedAt        time.Time
	}
)

var (
	ErrUnknownCategory      = errors.New("unknown category")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrMissingTransactionID = errors.New("missing transaction id: upload the slip again so the backend returns one")
	ErrNotAuthenticated     = errors.New("no token found: please login first")
)

// CombinedText joins every non-empty text fragment of the result with a
// single space: primary text, raw text, lines, then memo.
func (o OcrResult) CombinedText() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{o.Text, o.RawText, strings.Join(o.Lines, " "), o.Memo} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// IsPrecondition reports whether err blocks an action before any network call.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrMissingTransactionID) || errors.Is(err, ErrNotAuthenticated)
}
