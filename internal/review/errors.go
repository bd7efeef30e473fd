// Package review implements the upload-to-review handoff and the review
// screen that edits and saves one slip.
package review

import (
	"errors"

	"slipdash/internal/core"
)

var (
	ErrNoFileSelected   = errors.New("please select a file first")
	ErrFileTooLarge     = errors.New("file is too large")
	ErrUploadInProgress = errors.New("an upload is already in progress")
	ErrSaveInProgress   = errors.New("a save is already in progress")
	ErrScreenClosed     = errors.New("review screen is closed")
	ErrScreenNotFound   = errors.New("review screen not found")
)

// IsPrecondition reports errors raised before any network call because
// something the action needs is missing.
func IsPrecondition(err error) bool {
	return core.IsPrecondition(err) || errors.Is(err, ErrNoFileSelected)
}

// IsInFlight reports a duplicate submission that was rejected.
func IsInFlight(err error) bool {
	return errors.Is(err, ErrUploadInProgress) || errors.Is(err, ErrSaveInProgress)
}

// IsValidation reports a form value that cannot be sent.
func IsValidation(err error) bool {
	return errors.Is(err, core.ErrInvalidAmount) ||
		errors.Is(err, core.ErrUnknownCategory) ||
		errors.Is(err, ErrFileTooLarge)
}
