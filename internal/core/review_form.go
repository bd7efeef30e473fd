package core

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// ReviewForm is the editable projection of an OcrResult. Every field is
// set independently; nothing here resets another field.
type ReviewForm struct {
	Bank         string
	Date         string
	Time         string
	Amount       string
	DetectedText string
	Category     CategoryDecision
}

// NewReviewForm seeds a form from an OCR result. The keyword matcher only runs
// when the result carries neither category nor suggested category.
func NewReviewForm(ocr OcrResult) *ReviewForm {
	return &ReviewForm{
		Bank:         ocr.Bank,
		Date:         ocr.Date,
		Time:         ocr.Time,
		Amount:       ocr.Amount,
		DetectedText: ocr.CombinedText(),
		Category:     ResolveCategory(ocr),
	}
}

func (f *ReviewForm) SetBank(v string)         { f.Bank = v }
func (f *ReviewForm) SetDate(v string)         { f.Date = v }
func (f *ReviewForm) SetTime(v string)         { f.Time = v }
func (f *ReviewForm) SetAmount(v string)       { f.Amount = v }
func (f *ReviewForm) SetDetectedText(v string) { f.DetectedText = v }

// SelectCategory records an explicit user choice. It always replaces the
// current decision, whatever its source.
func (f *ReviewForm) SelectCategory(tag CategoryTag) error {
	if !tag.Valid() {
		return ErrUnknownCategory
	}
	f.Category = Selected(tag)
	return nil
}

// TransferredAt is the combined timestamp, if both date and time are usable.
func (f *ReviewForm) TransferredAt() (string, bool) {
	return CombineTransferredAt(f.Date, f.Time)
}

// Validate checks the preconditions for saving. A missing token is reported
// before a missing transaction id.
func (f *ReviewForm) Validate(transactionID, token string) error {
	if strings.TrimSpace(token) == "" {
		return ErrNotAuthenticated
	}
	if strings.TrimSpace(transactionID) == "" {
		return ErrMissingTransactionID
	}
	return nil
}

// BuildPayload produces the update body. The memo is the edited detected
// text, never the original OCR fragments.
func (f *ReviewForm) BuildPayload() (TransactionUpdatePayload, error) {
	amount, err := NormalizeAmount(f.Amount)
	if err != nil {
		return TransactionUpdatePayload{}, err
	}
	p := TransactionUpdatePayload{
		Bank:     f.Bank,
		Amount:   amount,
		Memo:     f.DetectedText,
		Category: f.Category.Tag,
	}
	if !p.Category.Valid() {
		p.Category = Others
	}
	if ts, ok := f.TransferredAt(); ok {
		p.TransferredAt = ts
	}
	return p, nil
}

// TransactionUpdatePayload is the partial update sent to
// PATCH /transactions/{id}. Empty strings and an invalid amount go out as null.
type TransactionUpdatePayload struct {
	Bank          string
	Amount        decimal.NullDecimal
	Memo          string
	Category      CategoryTag
	TransferredAt string
}

type payloadWire struct {
	Bank          *string      `json:"bank"`
	Amount        *json.Number `json:"amount"`
	Memo          *string      `json:"memo"`
	Category      string       `json:"category"`
	TransferredAt *string      `json:"transferred_at"`
}

func (p TransactionUpdatePayload) MarshalJSON() ([]byte, error) {
	w := payloadWire{
		Bank:          nullable(p.Bank),
		Memo:          nullable(p.Memo),
		Category:      string(p.Category),
		TransferredAt: nullable(p.TransferredAt),
	}
	if w.Category == "" {
		w.Category = string(Others)
	}
	if p.Amount.Valid {
		n := json.Number(p.Amount.Decimal.String())
		w.Amount = &n
	}
	return json.Marshal(w)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
