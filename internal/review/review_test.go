package review

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slipdash/internal/api"
	"slipdash/internal/core"
	"slipdash/internal/preview"
	"slipdash/internal/session"
)

type fakeBackend struct {
	mu          sync.Mutex
	uploads     int
	updates     int
	uploadRes   api.UploadResult
	uploadErr   error
	updateErr   error
	lastPayload core.TransactionUpdatePayload
	lastToken   string

	// when set, calls block until release is closed
	entered chan struct{}
	release chan struct{}
}

func (f *fakeBackend) wait() {
	if f.release != nil {
		f.entered <- struct{}{}
		<-f.release
	}
}

func (f *fakeBackend) UploadSlip(_ context.Context, token, _, _ string, r io.Reader) (api.UploadResult, error) {
	_, _ = io.ReadAll(r)
	f.mu.Lock()
	f.uploads++
	f.mu.Unlock()
	f.wait()
	return f.uploadRes, f.uploadErr
}

func (f *fakeBackend) UpdateTransaction(_ context.Context, token, _ string, p core.TransactionUpdatePayload) error {
	f.mu.Lock()
	f.updates++
	f.lastPayload = p
	f.lastToken = token
	err := f.updateErr
	f.mu.Unlock()
	f.wait()
	return err
}

func (f *fakeBackend) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploads, f.updates
}

type recordingObserver struct {
	mu    sync.Mutex
	saved []core.SavedReview
	err   error
}

func (o *recordingObserver) ReviewSaved(_ context.Context, r core.SavedReview) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.saved = append(o.saved, r)
	return o.err
}

var (
	signedIn  = &session.Session{Key: "k1", Credentials: session.Credentials{Token: "tok"}}
	signedOut = &session.Session{Key: "k1"}
	slip      = &SlipFile{Name: "slip.png", ContentType: "image/png", Data: []byte("png-bytes")}
)

func okUpload() api.UploadResult {
	return api.UploadResult{
		TransactionID: "42",
		OCR: core.OcrResult{
			Bank: "KBank", Date: "11/01/26", Time: "9:05", Amount: "1,290.00",
			Text: "coffee and grab ride", TransactionID: "42",
		},
	}
}

func setup(t *testing.T) (*fakeBackend, *preview.Store, *recordingObserver, *Handoff) {
	t.Helper()
	be := &fakeBackend{uploadRes: okUpload()}
	ps := preview.NewStore()
	obs := &recordingObserver{}
	return be, ps, obs, NewHandoff(be, ps, WithObserver(obs), WithMaxBytes(1024))
}

func TestUploadWithoutFileMakesNoCall(t *testing.T) {
	be, ps, _, h := setup(t)
	_, err := h.Upload(context.Background(), signedIn, nil)
	assert.ErrorIs(t, err, ErrNoFileSelected)
	_, err = h.Upload(context.Background(), signedIn, &SlipFile{Name: "empty.png"})
	assert.ErrorIs(t, err, ErrNoFileSelected)
	assert.True(t, IsPrecondition(err))

	uploads, _ := be.counts()
	assert.Zero(t, uploads)
	assert.Zero(t, ps.Live())
}

func TestUploadTooLarge(t *testing.T) {
	be, _, _, h := setup(t)
	_, err := h.Upload(context.Background(), signedIn, &SlipFile{Name: "big", Data: make([]byte, 2048)})
	assert.ErrorIs(t, err, ErrFileTooLarge)
	uploads, _ := be.counts()
	assert.Zero(t, uploads)
}

func TestUploadFailureCreatesNoPreview(t *testing.T) {
	be, ps, _, h := setup(t)
	be.uploadErr = &api.APIError{Status: 500, Message: "ocr failed"}
	s, err := h.Upload(context.Background(), signedIn, slip)
	assert.Nil(t, s)
	assert.EqualError(t, err, "ocr failed")
	assert.Zero(t, ps.Live())
	assert.False(t, h.Uploading("k1"), "a failed upload can be retried")
}

func TestUploadSeedsScreen(t *testing.T) {
	_, ps, _, h := setup(t)
	s, err := h.Upload(context.Background(), signedOut, slip)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ps.Live())

	_, data, err := ps.Get(s.PreviewID())
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	v := s.View(signedOut)
	assert.Equal(t, "42", v.TransactionID)
	assert.Equal(t, core.FoodAndDrink, v.Category)
	assert.Equal(t, core.SourceGuessed, v.CategorySource)
	require.NotNil(t, v.TransferredAt)
	assert.Equal(t, "2026-01-11T09:05:00", *v.TransferredAt)
	assert.False(t, v.CanSave)
	assert.Equal(t, core.ErrNotAuthenticated.Error(), v.SaveBlockedBy)
}

func TestConcurrentUploadRejected(t *testing.T) {
	be, _, _, h := setup(t)
	be.entered = make(chan struct{})
	be.release = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := h.Upload(context.Background(), signedIn, slip)
		done <- err
	}()
	<-be.entered

	_, err := h.Upload(context.Background(), signedIn, slip)
	assert.ErrorIs(t, err, ErrUploadInProgress)
	assert.True(t, IsInFlight(err))

	close(be.release)
	require.NoError(t, <-done)
	uploads, _ := be.counts()
	assert.Equal(t, 1, uploads)
}

func TestSavePreconditions(t *testing.T) {
	be, ps, _, h := setup(t)

	be.uploadRes.TransactionID = ""
	s, err := h.Upload(context.Background(), signedIn, slip)
	require.NoError(t, err)
	err = s.Save(context.Background(), signedIn)
	assert.ErrorIs(t, err, core.ErrMissingTransactionID)

	be.uploadRes.TransactionID = "42"
	s2, err := h.Upload(context.Background(), signedOut, slip)
	require.NoError(t, err)
	assert.ErrorIs(t, s2.Save(context.Background(), signedOut), core.ErrNotAuthenticated)

	_, updates := be.counts()
	assert.Zero(t, updates, "no network call before preconditions hold")
	assert.False(t, s.Closed())
	assert.Equal(t, int64(2), ps.Live())
}

func TestSaveInvalidAmountIsValidationError(t *testing.T) {
	be, _, _, h := setup(t)
	s, err := h.Upload(context.Background(), signedIn, slip)
	require.NoError(t, err)
	bad := "12abc"
	require.NoError(t, s.Apply(Edits{Amount: &bad}))
	err = s.Save(context.Background(), signedIn)
	assert.True(t, IsValidation(err))
	_, updates := be.counts()
	assert.Zero(t, updates)
}

func TestSaveSuccess(t *testing.T) {
	be, ps, obs, h := setup(t)
	s, err := h.Upload(context.Background(), signedIn, slip)
	require.NoError(t, err)

	bank, memo := "SCB", "taxi home"
	require.NoError(t, s.Apply(Edits{Bank: &bank, DetectedText: &memo}))
	require.NoError(t, s.SelectCategory(core.Utilities))
	require.NoError(t, s.CanSave(signedIn))
	require.NoError(t, s.Save(context.Background(), signedIn))

	assert.Equal(t, "tok", be.lastToken)
	assert.Equal(t, core.Utilities, be.lastPayload.Category)
	assert.Equal(t, "SCB", be.lastPayload.Bank)
	assert.Equal(t, "taxi home", be.lastPayload.Memo)
	assert.Equal(t, "2026-01-11T09:05:00", be.lastPayload.TransferredAt)

	require.Len(t, obs.saved, 1)
	assert.Equal(t, "42", obs.saved[0].TransactionID)
	assert.Equal(t, core.SourceSelected, obs.saved[0].CategorySource)

	assert.True(t, s.Closed())
	assert.Equal(t, ExitSaved, s.ExitReason())
	assert.Zero(t, ps.Live())
	assert.ErrorIs(t, s.Save(context.Background(), signedIn), ErrScreenClosed)
	assert.ErrorIs(t, s.Apply(Edits{}), ErrScreenClosed)
}

func TestObserverErrorDoesNotFailSave(t *testing.T) {
	_, ps, obs, h := setup(t)
	obs.err = errors.New("ledger down")
	s, err := h.Upload(context.Background(), signedIn, slip)
	require.NoError(t, err)
	require.NoError(t, s.Save(context.Background(), signedIn))
	assert.Zero(t, ps.Live())
}

func TestSaveFailureKeepsFormForRetry(t *testing.T) {
	be, ps, obs, h := setup(t)
	s, err := h.Upload(context.Background(), signedIn, slip)
	require.NoError(t, err)
	bank := "KTB"
	require.NoError(t, s.Apply(Edits{Bank: &bank}))

	be.updateErr = &api.APIError{Status: 502, Message: "Bad Gateway"}
	err = s.Save(context.Background(), signedIn)
	assert.EqualError(t, err, "Bad Gateway")
	assert.False(t, s.Closed())
	assert.Equal(t, "KTB", s.View(signedIn).Bank)
	assert.Equal(t, int64(1), ps.Live())
	assert.Empty(t, obs.saved)

	be.updateErr = nil
	require.NoError(t, s.Save(context.Background(), signedIn))
	_, updates := be.counts()
	assert.Equal(t, 2, updates)
	assert.Zero(t, ps.Live())
}

func TestConcurrentSaveRejected(t *testing.T) {
	be, _, _, h := setup(t)
	s, err := h.Upload(context.Background(), signedIn, slip)
	require.NoError(t, err)

	be.entered = make(chan struct{})
	be.release = make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- s.Save(context.Background(), signedIn) }()
	<-be.entered

	assert.ErrorIs(t, s.Save(context.Background(), signedIn), ErrSaveInProgress)
	assert.ErrorIs(t, s.CanSave(signedIn), ErrSaveInProgress)
	assert.True(t, s.View(signedIn).Saving)

	close(be.release)
	require.NoError(t, <-done)
	_, updates := be.counts()
	assert.Equal(t, 1, updates)
}

func TestEveryExitReleasesPreviewOnce(t *testing.T) {
	exits := map[string]func(*Screen){
		"cancel": func(s *Screen) { s.Cancel() },
		"back":   func(s *Screen) { s.Back() },
		"close":  func(s *Screen) { s.Close(ExitShutdown) },
	}
	for name, exit := range exits {
		t.Run(name, func(t *testing.T) {
			_, ps, _, h := setup(t)
			s, err := h.Upload(context.Background(), signedIn, slip)
			require.NoError(t, err)
			exit(s)
			exit(s)
			assert.False(t, s.Close(ExitCancel))
			assert.True(t, s.Closed())
			assert.Zero(t, ps.Live())
		})
	}
}

func TestRegistryReplacesOwnersScreen(t *testing.T) {
	_, ps, _, h := setup(t)
	reg := NewRegistry(10, time.Minute, nil)

	first, err := h.Upload(context.Background(), signedIn, slip)
	require.NoError(t, err)
	reg.Add(first)
	second, err := h.Upload(context.Background(), signedIn, slip)
	require.NoError(t, err)
	reg.Add(second)

	assert.True(t, first.Closed())
	assert.Equal(t, ExitReplaced, first.ExitReason())
	assert.Equal(t, int64(1), ps.Live())

	_, err = reg.Get(first.ID())
	assert.ErrorIs(t, err, ErrScreenNotFound)
	cur, err := reg.Current("k1")
	require.NoError(t, err)
	assert.Same(t, second, cur)

	second.Cancel()
	assert.Zero(t, reg.Len())
	_, err = reg.Current("k1")
	assert.ErrorIs(t, err, ErrScreenNotFound)
	assert.Zero(t, ps.Live())
}

func TestRegistryCapacityAndShutdownClose(t *testing.T) {
	_, ps, _, h := setup(t)
	reg := NewRegistry(1, time.Minute, nil)

	a, err := h.Upload(context.Background(), &session.Session{Key: "a"}, slip)
	require.NoError(t, err)
	reg.Add(a)
	b, err := h.Upload(context.Background(), &session.Session{Key: "b"}, slip)
	require.NoError(t, err)
	reg.Add(b)

	assert.True(t, a.Closed())
	assert.Equal(t, ExitEvicted, a.ExitReason())
	assert.Equal(t, 1, reg.CloseAll())
	assert.Equal(t, ExitShutdown, b.ExitReason())
	assert.Zero(t, ps.Live())
}

func TestRegistryExpiry(t *testing.T) {
	_, ps, _, h := setup(t)
	reg := NewRegistry(10, 10*time.Millisecond, nil)
	s, err := h.Upload(context.Background(), signedIn, slip)
	require.NoError(t, err)
	reg.Add(s)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, reg.CleanExpired())
	assert.True(t, s.Closed())
	assert.Zero(t, ps.Live())
}
