package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"slipdash/internal/core"
	"slipdash/internal/review"
	"slipdash/internal/session"
)

const multipartMemory = 1 << 20

// handleUpload sends the multipart "file" for OCR and opens a review screen,
// replacing the caller's previous one.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	key := s.sessionKey(w, r)
	sess, err := s.sessions.Session(r.Context(), key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	file, err := s.readSlipFile(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	scr, err := s.handoff.Upload(r.Context(), sess, file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.screens.Add(scr)

	NewResponse().
		Status(http.StatusCreated).
		Header("Location", "/slips/"+scr.ID()).
		JSON(scr.View(sess)).
		Write(w)
}

func (s *Server) readSlipFile(r *http.Request) (*review.SlipFile, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: expected a multipart upload: %v", errBadRequest, err)
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	f, hdr, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, review.ErrNoFileSelected
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, s.config.MaxUploadBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > s.config.MaxUploadBytes {
		return nil, fmt.Errorf("%w: limit is %d bytes", review.ErrFileTooLarge, s.config.MaxUploadBytes)
	}
	contentType := hdr.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	return &review.SlipFile{
		Name:        sanitizeInput(hdr.Filename),
		ContentType: contentType,
		Data:        data,
	}, nil
}

// screenFor resolves the {id} screen for the caller. A screen owned by
// another session is reported as not found.
func (s *Server) screenFor(w http.ResponseWriter, r *http.Request) (*review.Screen, *session.Session, error) {
	key := s.sessionKey(w, r)
	scr, err := s.screens.Get(r.PathValue("id"))
	if err != nil {
		return nil, nil, err
	}
	if scr.Owner() != key {
		return nil, nil, review.ErrScreenNotFound
	}
	sess, err := s.sessions.Session(r.Context(), key)
	if err != nil {
		return nil, nil, err
	}
	return scr, sess, nil
}

func (s *Server) handleGetSlip(w http.ResponseWriter, r *http.Request) {
	scr, sess, err := s.screenFor(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().JSON(scr.View(sess)).Write(w)
}

// handleCurrentSlip returns the caller's open screen, if any.
func (s *Server) handleCurrentSlip(w http.ResponseWriter, r *http.Request) {
	key := s.sessionKey(w, r)
	scr, err := s.screens.Current(key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := s.sessions.Session(r.Context(), key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().JSON(scr.View(sess)).Write(w)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	scr, _, err := s.screenFor(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	contentType, data, err := s.previews.Get(scr.PreviewID())
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleEditSlip applies a partial update; absent fields are left alone.
func (s *Server) handleEditSlip(w http.ResponseWriter, r *http.Request) {
	scr, sess, err := s.screenFor(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var edits review.Edits
	if err := DecodeJSON(r, &edits); err != nil {
		writeError(w, r, err)
		return
	}
	if err := scr.Apply(edits); err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().JSON(scr.View(sess)).Write(w)
}

type categoryRequest struct {
	Category string `json:"category"`
}

func (s *Server) handleSelectCategory(w http.ResponseWriter, r *http.Request) {
	scr, sess, err := s.screenFor(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req categoryRequest
	if err := DecodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	tag, err := core.ParseCategory(req.Category)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := scr.SelectCategory(tag); err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().JSON(scr.View(sess)).Write(w)
}

// handleSaveSlip sends the review to the backend. The screen closes on
// success; on failure it stays open with the form intact.
func (s *Server) handleSaveSlip(w http.ResponseWriter, r *http.Request) {
	scr, sess, err := s.screenFor(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := scr.Save(r.Context(), sess); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCancelSlip(w http.ResponseWriter, r *http.Request) {
	scr, _, err := s.screenFor(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	scr.Cancel()
	w.WriteHeader(http.StatusNoContent)
}
