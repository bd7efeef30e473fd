package review

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"slipdash/internal/api"
	"slipdash/internal/core"
	"slipdash/internal/log"
	"slipdash/internal/preview"
	"slipdash/internal/session"
)

// ExitReason records how a screen was left.
type ExitReason string

const (
	ExitSaved    ExitReason = "saved"
	ExitCancel   ExitReason = "cancel"
	ExitBack     ExitReason = "back"
	ExitReplaced ExitReason = "replaced"
	ExitExpired  ExitReason = "expired"
	ExitEvicted  ExitReason = "evicted"
	ExitShutdown ExitReason = "shutdown"
)

// Screen owns one review: the editable form, the transaction it belongs to
// and the image preview. Closing it releases the preview exactly once.
type Screen struct {
	id       string
	owner    string
	ocr      core.OcrResult
	txID     string
	preview  *preview.Handle
	backend  Updater
	observer SaveObserver
	logger   *log.Logger
	now      func() time.Time

	mu      sync.Mutex
	form    *core.ReviewForm
	saving  bool
	closed  bool
	exit    ExitReason
	onClose []func(*Screen)
}

func newScreen(owner string, res api.UploadResult, h *preview.Handle, backend Updater, obs SaveObserver, logger *log.Logger) *Screen {
	return &Screen{
		id:       uuid.NewString(),
		owner:    owner,
		ocr:      res.OCR,
		txID:     res.TransactionID,
		preview:  h,
		backend:  backend,
		observer: obs,
		logger:   logger,
		now:      time.Now,
		form:     core.NewReviewForm(res.OCR),
	}
}

func (s *Screen) ID() string            { return s.id }
func (s *Screen) Owner() string         { return s.owner }
func (s *Screen) TransactionID() string { return s.txID }
func (s *Screen) PreviewID() string     { return s.preview.ID() }

// Edits is a partial form update; nil fields are left alone.
type Edits struct {
	Bank         *string `json:"bank,omitempty"`
	Date         *string `json:"date,omitempty"`
	Time         *string `json:"time,omitempty"`
	Amount       *string `json:"amount,omitempty"`
	DetectedText *string `json:"detected_text,omitempty"`
}

// Apply sets each non-nil field of e independently.
func (s *Screen) Apply(e Edits) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrScreenClosed
	}
	if e.Bank != nil {
		s.form.SetBank(*e.Bank)
	}
	if e.Date != nil {
		s.form.SetDate(*e.Date)
	}
	if e.Time != nil {
		s.form.SetTime(*e.Time)
	}
	if e.Amount != nil {
		s.form.SetAmount(*e.Amount)
	}
	if e.DetectedText != nil {
		s.form.SetDetectedText(*e.DetectedText)
	}
	return nil
}

// SelectCategory records the user's choice, replacing any guess.
func (s *Screen) SelectCategory(tag core.CategoryTag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrScreenClosed
	}
	return s.form.SelectCategory(tag)
}

// CanSave reports why Save would be refused right now, or nil.
func (s *Screen) CanSave(sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkLocked(sess)
}

func (s *Screen) checkLocked(sess *session.Session) error {
	if s.closed {
		return ErrScreenClosed
	}
	if err := s.form.Validate(s.txID, sess.Token()); err != nil {
		return err
	}
	if s.saving {
		return ErrSaveInProgress
	}
	return nil
}

// Save sends the review to the backend. Preconditions are checked before any
// network call, and a second Save while one is in flight is rejected. On
// failure the form is left as it was so the user can retry. On success the
// observer is notified and the screen closes.
func (s *Screen) Save(ctx context.Context, sess *session.Session) error {
	s.mu.Lock()
	if err := s.checkLocked(sess); err != nil {
		s.mu.Unlock()
		return err
	}
	payload, err := s.form.BuildPayload()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	source := s.form.Category.Source
	s.saving = true
	s.mu.Unlock()

	err = s.backend.UpdateTransaction(ctx, sess.Token(), s.txID, payload)

	s.mu.Lock()
	s.saving = false
	s.mu.Unlock()
	if err != nil {
		s.logger.WarnContext(ctx, "Review save failed",
			log.FieldSlipID, s.id, log.FieldTransactionID, s.txID, log.FieldError, err.Error())
		return err
	}

	log.NewStructuredLogger(s.logger).LogReviewSaved(ctx, s.txID, payload.Bank, string(payload.Category), string(source))
	if s.observer != nil {
		rec := core.SavedReview{
			TransactionID:  s.txID,
			Bank:           payload.Bank,
			Amount:         payload.Amount,
			Memo:           payload.Memo,
			Category:       payload.Category,
			CategorySource: source,
			TransferredAt:  payload.TransferredAt,
			SavedAt:        s.now().UTC(),
		}
		if err := s.observer.ReviewSaved(ctx, rec); err != nil {
			s.logger.ErrorContext(ctx, "Recording saved review failed",
				log.FieldTransactionID, s.txID, log.FieldError, err.Error())
		}
	}
	s.Close(ExitSaved)
	return nil
}

// Cancel leaves the screen without saving.
func (s *Screen) Cancel() { s.Close(ExitCancel) }

// Back navigates away without saving.
func (s *Screen) Back() { s.Close(ExitBack) }

// Close tears the screen down. The first call releases the preview and runs
// the close hooks; later calls do nothing and return false.
func (s *Screen) Close(reason ExitReason) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.closed = true
	s.exit = reason
	hooks := s.onClose
	s.onClose = nil
	s.mu.Unlock()

	s.preview.Release()
	for _, fn := range hooks {
		fn(s)
	}
	s.logger.Debug("Review screen closed", log.FieldSlipID, s.id, "reason", string(reason))
	return true
}

func (s *Screen) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// ExitReason is empty while the screen is open.
func (s *Screen) ExitReason() ExitReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exit
}

func (s *Screen) addCloseHook(fn func(*Screen)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClose = append(s.onClose, fn)
}

// View is a read-only snapshot of the screen for rendering.
type View struct {
	ID               string                         `json:"id"`
	TransactionID    string                         `json:"transaction_id"`
	PreviewID        string                         `json:"preview_id"`
	Bank             string                         `json:"bank"`
	Date             string                         `json:"date"`
	Time             string                         `json:"time"`
	Amount           string                         `json:"amount"`
	DetectedText     string                         `json:"detected_text"`
	Category         core.CategoryTag               `json:"category"`
	CategoryLabel    string                         `json:"category_label"`
	CategorySource   core.CategorySource            `json:"category_source"`
	CategoryRequired bool                           `json:"category_required"`
	TransferredAt    *string                        `json:"transferred_at"`
	Payload          *core.TransactionUpdatePayload `json:"payload,omitempty"`
	PayloadError     string                         `json:"payload_error,omitempty"`
	Saving           bool                           `json:"saving"`
	Closed           bool                           `json:"closed"`
	CanSave          bool                           `json:"can_save"`
	SaveBlockedBy    string                         `json:"save_blocked_by,omitempty"`
}

// View renders the current state for sess.
func (s *Screen) View(sess *session.Session) View {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.form
	v := View{
		ID:               s.id,
		TransactionID:    s.txID,
		PreviewID:        s.preview.ID(),
		Bank:             f.Bank,
		Date:             f.Date,
		Time:             f.Time,
		Amount:           f.Amount,
		DetectedText:     f.DetectedText,
		Category:         f.Category.Tag,
		CategoryLabel:    f.Category.Tag.Label(),
		CategorySource:   f.Category.Source,
		CategoryRequired: s.ocr.CategoryRequired,
		Saving:           s.saving,
		Closed:           s.closed,
	}
	if ts, ok := f.TransferredAt(); ok {
		v.TransferredAt = &ts
	}
	if p, err := f.BuildPayload(); err != nil {
		v.PayloadError = err.Error()
	} else {
		v.Payload = &p
	}
	if err := s.checkLocked(sess); err != nil {
		v.SaveBlockedBy = err.Error()
	} else {
		v.CanSave = true
	}
	return v
}
