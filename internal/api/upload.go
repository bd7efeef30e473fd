package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"slipdash/internal/core"
)

// UploadResult pairs the OCR extraction with the transaction the backend
// created for the slip. TransactionID may be empty if the backend did not
// persist one.
type UploadResult struct {
	OCR           core.OcrResult
	TransactionID string
}

type extractedWire struct {
	Bank              flexString `json:"bank"`
	Date              flexString `json:"date"`
	Time              flexString `json:"time"`
	Amount            flexString `json:"amount"`
	Text              string     `json:"text"`
	RawText           string     `json:"raw_text"`
	RawTextAlt        string     `json:"rawText"`
	Lines             []string   `json:"lines"`
	Memo              *string    `json:"memo"`
	Category          flexString `json:"category"`
	SuggestedCategory *string    `json:"suggested_category"`
	CategoryRequired  *bool      `json:"category_required"`
	TransactionID     flexString `json:"transaction_id"`
}

type uploadWire struct {
	Extracted         *extractedWire `json:"extracted"`
	Memo              *string        `json:"memo"`
	SuggestedCategory *string        `json:"suggested_category"`
	CategoryRequired  *bool          `json:"category_required"`
	TransactionID     flexString     `json:"transaction_id"`
}

// UploadSlip sends one slip image as multipart field "file" to /upload/. The
// token is optional.
func (c *Client) UploadSlip(ctx context.Context, token, filename, contentType string, r io.Reader) (UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(filename)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return UploadResult{}, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return UploadResult{}, fmt.Errorf("read slip: %w", err)
	}
	if err := mw.Close(); err != nil {
		return UploadResult{}, err
	}

	var wire uploadWire
	err = c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/upload/",
		token:       token,
		body:        buf.Bytes(),
		contentType: mw.FormDataContentType(),
	}, &wire)
	if err != nil {
		return UploadResult{}, err
	}
	return wire.result(), nil
}

// result flattens the response. Top-level memo, suggested_category and
// category_required take precedence over the copies inside extracted.
func (w uploadWire) result() UploadResult {
	var ex extractedWire
	if w.Extracted != nil {
		ex = *w.Extracted
	}
	ocr := core.OcrResult{
		Bank:          ex.Bank.String(),
		Date:          ex.Date.String(),
		Time:          ex.Time.String(),
		Amount:        ex.Amount.String(),
		Text:          ex.Text,
		RawText:       firstNonEmpty(ex.RawText, ex.RawTextAlt),
		Lines:         ex.Lines,
		Category:      ex.Category.String(),
		TransactionID: firstNonEmpty(w.TransactionID.String(), ex.TransactionID.String()),
	}
	ocr.Memo = derefFirst(w.Memo, ex.Memo)
	ocr.SuggestedCategory = derefFirst(w.SuggestedCategory, ex.SuggestedCategory)
	switch {
	case w.CategoryRequired != nil:
		ocr.CategoryRequired = *w.CategoryRequired
	case ex.CategoryRequired != nil:
		ocr.CategoryRequired = *ex.CategoryRequired
	}
	return UploadResult{OCR: ocr, TransactionID: ocr.TransactionID}
}

// UpdateTransaction applies a review to an existing transaction.
func (c *Client) UpdateTransaction(ctx context.Context, token, id string, p core.TransactionUpdatePayload) error {
	if err := bearerRequired(token); err != nil {
		return err
	}
	if strings.TrimSpace(id) == "" {
		return core.ErrMissingTransactionID
	}
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.do(ctx, request{
		method:      http.MethodPatch,
		path:        "/transactions/" + url.PathEscape(id),
		token:       token,
		body:        body,
		contentType: "application/json",
	}, nil)
}

func derefFirst(ptrs ...*string) string {
	for _, p := range ptrs {
		if p != nil {
			return *p
		}
	}
	return ""
}

func escapeQuotes(s string) string {
	return strings.NewReplacer("\\", "\\\\", `"`, "\\\"").Replace(s)
}
