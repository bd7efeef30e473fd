package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"slipdash/internal/core"
	"slipdash/internal/log"
)

// MaxSyncAttempts bounds how often an export is retried before the row is
// left in the error state for good.
const MaxSyncAttempts = 5

var ErrReviewNotFound = errors.New("saved review not found")

type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
	SyncError   SyncStatus = "error"
)

// LedgerEntry is a saved review together with its export state.
type LedgerEntry struct {
	Review    core.SavedReview
	Version   int64
	Status    SyncStatus
	Attempts  int
	LastError string
}

// PendingReview is the minimal data the sync queue carries.
type PendingReview struct {
	ID      int64
	Version int64
	SavedAt time.Time
}

// Ledger records reviews the backend accepted and tracks their export.
type Ledger interface {
	Record(ctx context.Context, r core.SavedReview) (int64, error)
	Get(ctx context.Context, id int64) (LedgerEntry, error)
	Pending(ctx context.Context, limit int) ([]PendingReview, error)
	MarkSynced(ctx context.Context, id int64) error
	MarkSyncError(ctx context.Context, id int64, cause error) error
}

var _ Ledger = (*SQLiteRepository)(nil)

// Record inserts r as pending and returns its id.
func (r *SQLiteRepository) Record(ctx context.Context, rev core.SavedReview) (int64, error) {
	var amount any
	if rev.Amount.Valid {
		amount = rev.Amount.Decimal.String()
	}
	var transferredAt any
	if rev.TransferredAt != "" {
		transferredAt = rev.TransferredAt
	}
	savedAt := rev.SavedAt
	if savedAt.IsZero() {
		savedAt = r.now()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO saved_reviews
			(transaction_id, bank, amount, memo, category, category_source, transferred_at, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rev.TransactionID, rev.Bank, amount, rev.Memo, string(rev.Category), string(rev.CategorySource),
		transferredAt, formatTime(savedAt))
	if err != nil {
		return 0, fmt.Errorf("insert saved review: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("saved review id: %w", err)
	}
	r.logger.InfoContext(ctx, "Saved review recorded",
		log.FieldReviewID, id, log.FieldTransactionID, rev.TransactionID, log.FieldCategory, string(rev.Category))
	return id, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id int64) (LedgerEntry, error) {
	var (
		e             LedgerEntry
		amount        sql.NullString
		transferredAt sql.NullString
		category      string
		source        string
		savedAt       string
		status        string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, transaction_id, bank, amount, memo, category, category_source,
		       transferred_at, saved_at, version, sync_status, sync_attempts, sync_error
		FROM saved_reviews WHERE id = ?`, id).Scan(
		&e.Review.ID, &e.Review.TransactionID, &e.Review.Bank, &amount, &e.Review.Memo,
		&category, &source, &transferredAt, &savedAt, &e.Version, &status, &e.Attempts, &e.LastError)
	if errors.Is(err, sql.ErrNoRows) {
		return LedgerEntry{}, fmt.Errorf("%w: id %d", ErrReviewNotFound, id)
	}
	if err != nil {
		return LedgerEntry{}, fmt.Errorf("get saved review: %w", err)
	}
	if amount.Valid {
		d, err := decimal.NewFromString(amount.String)
		if err != nil {
			return LedgerEntry{}, fmt.Errorf("saved review %d amount: %w", id, err)
		}
		e.Review.Amount = decimal.NewNullDecimal(d)
	}
	e.Review.Category = core.CategoryTag(category)
	e.Review.CategorySource = core.CategorySource(source)
	e.Review.TransferredAt = transferredAt.String
	e.Review.SavedAt = parseTime(savedAt)
	e.Status = SyncStatus(status)
	return e, nil
}

// Pending lists reviews still to be exported, oldest first. Rows that failed
// fewer than MaxSyncAttempts times are included.
func (r *SQLiteRepository) Pending(ctx context.Context, limit int) ([]PendingReview, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, version, saved_at FROM saved_reviews
		WHERE sync_status = 'pending' OR (sync_status = 'error' AND sync_attempts < ?)
		ORDER BY id
		LIMIT ?`, MaxSyncAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending reviews: %w", err)
	}
	defer rows.Close()

	var out []PendingReview
	for rows.Next() {
		var p PendingReview
		var savedAt string
		if err := rows.Scan(&p.ID, &p.Version, &savedAt); err != nil {
			return nil, fmt.Errorf("scan pending review: %w", err)
		}
		p.SavedAt = parseTime(savedAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE saved_reviews
		SET sync_status = 'synced', sync_error = '', synced_at = ?, sync_attempts = sync_attempts + 1
		WHERE id = ?`, formatTime(r.now()), id)
	if err != nil {
		return fmt.Errorf("mark review synced: %w", err)
	}
	return expectRow(res, id)
}

func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id int64, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE saved_reviews
		SET sync_status = 'error', sync_error = ?, sync_attempts = sync_attempts + 1
		WHERE id = ?`, msg, id)
	if err != nil {
		return fmt.Errorf("mark review sync error: %w", err)
	}
	r.logger.WarnContext(ctx, "Review export failed", log.FieldReviewID, id, log.FieldError, msg)
	return expectRow(res, id)
}

func expectRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: id %d", ErrReviewNotFound, id)
	}
	return nil
}
