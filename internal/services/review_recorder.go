// Package services orchestrates what happens around a saved review: the
// local ledger write, the sync notification and the periodic sync sweep.
package services

import (
	"context"
	"errors"
	"fmt"

	"slipdash/internal/core"
	"slipdash/internal/log"
	"slipdash/internal/review"
	"slipdash/internal/storage"
)

// Publisher announces a newly recorded review to the sync worker.
type Publisher interface {
	PublishReviewSync(ctx context.Context, id, version int64) error
	Close() error
}

// ReviewRecorder stores every review the backend accepted and notifies the
// sync worker about it.
type ReviewRecorder struct {
	ledger    storage.Ledger
	publisher Publisher
	logger    *log.Logger
}

var _ review.SaveObserver = (*ReviewRecorder)(nil)

// NewReviewRecorder wires the ledger and an optional publisher. A nil
// publisher leaves syncing to the periodic sweep.
func NewReviewRecorder(ledger storage.Ledger, publisher Publisher, logger *log.Logger) *ReviewRecorder {
	if logger == nil {
		logger = log.Discard()
	}
	return &ReviewRecorder{
		ledger:    ledger,
		publisher: publisher,
		logger:    logger.WithComponent(log.ComponentStorage),
	}
}

// ReviewSaved records r locally, then publishes a sync message. Only the
// ledger write can fail the call; the ledger row stays pending if the
// publish is lost.
func (s *ReviewRecorder) ReviewSaved(ctx context.Context, r core.SavedReview) error {
	if s.ledger == nil {
		return errors.New("review recorder has no ledger")
	}
	id, err := s.ledger.Record(ctx, r)
	if err != nil {
		return fmt.Errorf("record review: %w", err)
	}

	if err := s.publishSyncMessage(ctx, id, 1); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish sync message",
			log.FieldReviewID, id, log.FieldError, err.Error())
	}
	return nil
}

func (s *ReviewRecorder) publishSyncMessage(ctx context.Context, id, version int64) error {
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "AMQP publisher not available, leaving review for the sync sweep",
			log.FieldReviewID, id)
		return nil
	}
	return s.publisher.PublishReviewSync(ctx, id, version)
}

// Close closes the publisher. The ledger belongs to the backend that built it.
func (s *ReviewRecorder) Close() error {
	if s.publisher == nil {
		return nil
	}
	if err := s.publisher.Close(); err != nil {
		return fmt.Errorf("close publisher: %w", err)
	}
	return nil
}
