// Package google exports saved reviews to a Google Sheets spreadsheet.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"slipdash/internal/core"
	"slipdash/internal/log"
	ports "slipdash/internal/sheets"
)

const defaultSheetName = "Slips"

var ErrNoCredentials = errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")

// Config selects the spreadsheet and the service account used to write it.
// SheetName is a base name; rows land in "<year> <SheetName>" for the year
// the review was saved.
type Config struct {
	SpreadsheetID      string
	SheetName          string
	ServiceAccountJSON string
	ServiceAccountFile string
}

type Exporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string
	logger        *log.Logger
	now           func() time.Time
}

var _ ports.ReviewWriter = (*Exporter)(nil)

func NewExporter(ctx context.Context, cfg Config, logger *log.Logger) (*Exporter, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	creds, err := credentialsJSON(cfg)
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return newExporter(svc, cfg, logger), nil
}

func newExporter(svc *gsheet.Service, cfg Config, logger *log.Logger) *Exporter {
	if logger == nil {
		logger = log.Discard()
	}
	base := strings.TrimSpace(cfg.SheetName)
	if base == "" {
		base = defaultSheetName
	}
	return &Exporter{
		svc:           svc,
		spreadsheetID: strings.TrimSpace(cfg.SpreadsheetID),
		sheetBase:     base,
		logger:        logger.WithComponent(log.ComponentSheets),
		now:           time.Now,
	}
}

// credentialsJSON resolves inline JSON first, then a file path, then the
// standard GOOGLE_APPLICATION_CREDENTIALS variable.
func credentialsJSON(cfg Config) ([]byte, error) {
	if j := strings.TrimSpace(cfg.ServiceAccountJSON); j != "" {
		return []byte(j), nil
	}
	path := strings.TrimSpace(cfg.ServiceAccountFile)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if path == "" {
		return nil, ErrNoCredentials
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return data, nil
}

// Append adds r as a new row after the last populated row of the year's sheet.
func (e *Exporter) Append(ctx context.Context, r core.SavedReview) (string, error) {
	if e.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if r.TransactionID == "" {
		return "", errors.New("review has no transaction id")
	}

	year := r.SavedAt.Year()
	if r.SavedAt.IsZero() {
		year = e.now().Year()
	}
	sheet := yearPrefixedName(e.sheetBase, year)
	rng := fmt.Sprintf("'%s'!A:%s", sheet, lastColumn())

	cells := ports.Row(r)
	row := make([]any, len(cells))
	for i, c := range cells {
		row[i] = c
	}

	resp, err := e.svc.Spreadsheets.Values.Append(e.spreadsheetID, rng, &gsheet.ValueRange{Values: [][]any{row}}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", sheet, err)
	}

	ref := rng
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	e.logger.DebugContext(ctx, "Appended review row",
		log.FieldTransactionID, r.TransactionID, "range", ref)
	return ref, nil
}

func lastColumn() string {
	return string(rune('A' + len(ports.Header) - 1))
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
