package review

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"slipdash/internal/api"
	"slipdash/internal/core"
	"slipdash/internal/log"
	"slipdash/internal/preview"
	"slipdash/internal/session"
)

// Uploader sends a slip image for OCR.
type Uploader interface {
	UploadSlip(ctx context.Context, token, filename, contentType string, r io.Reader) (api.UploadResult, error)
}

// Updater applies a finished review to its transaction.
type Updater interface {
	UpdateTransaction(ctx context.Context, token, id string, p core.TransactionUpdatePayload) error
}

// Backend is everything the review flow needs from the expense API.
type Backend interface {
	Uploader
	Updater
}

// SaveObserver is told about every review the backend accepted. Its error is
// logged and never fails the save.
type SaveObserver interface {
	ReviewSaved(ctx context.Context, r core.SavedReview) error
}

// SlipFile is one image chosen for upload.
type SlipFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// Handoff turns an uploaded slip into an open review Screen.
type Handoff struct {
	backend  Backend
	previews *preview.Store
	observer SaveObserver
	logger   *log.Logger
	maxBytes int64

	mu       sync.Mutex
	inFlight map[string]struct{}
}

type HandoffOption func(*Handoff)

func WithObserver(o SaveObserver) HandoffOption { return func(h *Handoff) { h.observer = o } }

func WithMaxBytes(n int64) HandoffOption { return func(h *Handoff) { h.maxBytes = n } }

func WithLogger(l *log.Logger) HandoffOption {
	return func(h *Handoff) { h.logger = l.WithComponent(log.ComponentReview) }
}

func NewHandoff(backend Backend, previews *preview.Store, opts ...HandoffOption) *Handoff {
	h := &Handoff{
		backend:  backend,
		previews: previews,
		logger:   log.Discard(),
		inFlight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Upload sends f and opens a review screen for the result. Only one upload
// per session key runs at a time; a second one is rejected, not queued. The
// preview is acquired only after the backend answered successfully.
func (h *Handoff) Upload(ctx context.Context, sess *session.Session, f *SlipFile) (*Screen, error) {
	if f == nil || len(f.Data) == 0 {
		return nil, ErrNoFileSelected
	}
	if h.maxBytes > 0 && int64(len(f.Data)) > h.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes, limit is %d", ErrFileTooLarge, len(f.Data), h.maxBytes)
	}

	key := ""
	if sess != nil {
		key = sess.Key
	}
	if !h.begin(key) {
		return nil, ErrUploadInProgress
	}
	defer h.end(key)

	res, err := h.backend.UploadSlip(ctx, sess.Token(), f.Name, f.ContentType, bytes.NewReader(f.Data))
	if err != nil {
		h.logger.WarnContext(ctx, "Slip upload failed",
			log.FieldOperation, log.OpUpload, log.FieldUploadBytes, len(f.Data), log.FieldError, err.Error())
		return nil, err
	}

	handle := h.previews.Acquire(f.ContentType, f.Data)
	s := newScreen(key, res, handle, h.backend, h.observer, h.logger)
	h.logger.InfoContext(ctx, "Slip uploaded",
		log.FieldSlipID, s.ID(), log.FieldTransactionID, res.TransactionID,
		log.FieldCategory, string(s.form.Category.Tag), log.FieldCategorySource, string(s.form.Category.Source))
	return s, nil
}

// Uploading reports whether an upload for key is in flight.
func (h *Handoff) Uploading(key string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.inFlight[key]
	return ok
}

func (h *Handoff) begin(key string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, busy := h.inFlight[key]; busy {
		return false
	}
	h.inFlight[key] = struct{}{}
	return true
}

func (h *Handoff) end(key string) {
	h.mu.Lock()
	delete(h.inFlight, key)
	h.mu.Unlock()
}
