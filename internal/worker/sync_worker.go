// Package worker exports saved reviews from the local ledger to the
// spreadsheet.
package worker

import (
	"context"
	"errors"
	"fmt"

	"slipdash/internal/amqp"
	"slipdash/internal/log"
	"slipdash/internal/sheets"
	"slipdash/internal/storage"
)

const defaultBatchSize = 25

// SyncWorker handles synchronization of saved reviews from the ledger to Google Sheets
type SyncWorker struct {
	ledger    storage.Ledger
	writer    sheets.ReviewWriter
	batchSize int
	logger    *log.Logger
}

func NewSyncWorker(ledger storage.Ledger, writer sheets.ReviewWriter, batchSize int, logger *log.Logger) *SyncWorker {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &SyncWorker{
		ledger:    ledger,
		writer:    writer,
		batchSize: batchSize,
		logger:    logger.WithComponent(log.ComponentWorker),
	}
}

// HandleSyncMessage processes a single review sync message from AMQP. A
// returned error asks the broker to redeliver.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.ReviewSyncMessage) error {
	w.logger.InfoContext(ctx, "Processing sync message",
		log.FieldReviewID, msg.ID,
		"version", msg.Version)

	entry, err := w.ledger.Get(ctx, msg.ID)
	if errors.Is(err, storage.ErrReviewNotFound) {
		w.logger.WarnContext(ctx, "Sync message for unknown review, dropping", log.FieldReviewID, msg.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get review from ledger: %w", err)
	}

	switch {
	case msg.Version < entry.Version:
		w.logger.InfoContext(ctx, "Stale sync message, dropping",
			log.FieldReviewID, msg.ID, "version", msg.Version, "current", entry.Version)
		return nil
	case entry.Status == storage.SyncSynced:
		w.logger.DebugContext(ctx, "Review already synced", log.FieldReviewID, msg.ID)
		return nil
	case entry.Status == storage.SyncError && entry.Attempts >= storage.MaxSyncAttempts:
		w.logger.WarnContext(ctx, "Review exhausted its sync attempts, dropping message",
			log.FieldReviewID, msg.ID, log.FieldAttempt, entry.Attempts)
		return nil
	}

	if err := w.syncReview(ctx, entry); err != nil {
		return fmt.Errorf("sync review to sheets: %w", err)
	}
	return nil
}

// ProcessPending exports one batch of reviews that are still pending. It is
// the backup path for lost AMQP messages.
func (w *SyncWorker) ProcessPending(ctx context.Context) (int, error) {
	synced, _, err := w.processBatch(ctx, w.batchSize)
	return synced, err
}

// StartupSyncCheck runs a larger sweep once when the worker starts, to
// recover from missed messages or worker downtime.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	synced, failed, err := w.processBatch(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("startup sync check: %w", err)
	}
	if synced+failed == 0 {
		w.logger.InfoContext(ctx, "No pending reviews found on startup")
		return nil
	}
	w.logger.InfoContext(ctx, "Startup sync completed",
		"total", synced+failed,
		"synced", synced,
		"errors", failed)
	return nil
}

func (w *SyncWorker) processBatch(ctx context.Context, limit int) (synced, failed int, err error) {
	pending, err := w.ledger.Pending(ctx, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("get pending reviews: %w", err)
	}
	if len(pending) == 0 {
		return 0, 0, nil
	}

	w.logger.InfoContext(ctx, "Processing pending reviews", "count", len(pending))

	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return synced, failed, err
		}
		entry, err := w.ledger.Get(ctx, p.ID)
		if err != nil {
			w.logger.ErrorContext(ctx, "Failed to get review", log.FieldReviewID, p.ID, log.FieldError, err.Error())
			failed++
			continue
		}
		if err := w.syncReview(ctx, entry); err != nil {
			w.logger.ErrorContext(ctx, "Failed to sync review", log.FieldReviewID, p.ID, log.FieldError, err.Error())
			failed++
			continue
		}
		synced++
	}
	return synced, failed, nil
}

func (w *SyncWorker) syncReview(ctx context.Context, entry storage.LedgerEntry) error {
	id := entry.Review.ID

	ref, err := w.writer.Append(ctx, entry.Review)
	if err != nil {
		if markErr := w.ledger.MarkSyncError(ctx, id, err); markErr != nil {
			w.logger.ErrorContext(ctx, "Failed to mark sync error", log.FieldReviewID, id, log.FieldError, markErr.Error())
		}
		return fmt.Errorf("append to sheets: %w", err)
	}

	// the row is written; a failed mark only means a possible duplicate later
	if err := w.ledger.MarkSynced(ctx, id); err != nil {
		w.logger.ErrorContext(ctx, "Failed to mark as synced", log.FieldReviewID, id, log.FieldError, err.Error())
	}

	w.logger.InfoContext(ctx, "Successfully synced review",
		log.FieldReviewID, id,
		log.FieldTransactionID, entry.Review.TransactionID,
		"sheets_ref", ref)
	return nil
}
