package http

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"slipdash/internal/api"
	"slipdash/internal/log"
	"slipdash/internal/review"
	"slipdash/internal/session"
)

type authResponse struct {
	Username string `json:"username"`
	Tier     string `json:"tier,omitempty"`
}

// handleLogin exchanges form credentials for a backend token. With remember
// set the token goes to the persistent tier and the cookie outlives the
// browser session.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	username := FormValue(r, "username")
	password := r.FormValue("password")
	if username == "" || password == "" {
		BadRequestError("username and password are required").Write(w)
		return
	}
	remember := FormBool(r, "remember")

	res, err := s.api.Login(r.Context(), username, password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	key, ok := cookieKey(r)
	if !ok {
		key = uuid.NewString()
	}
	tier, err := s.sessions.Login(r.Context(), key, session.Credentials{Token: res.AccessToken, Username: username}, remember)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.setSessionCookie(w, r, key, remember)

	log.FromContext(r.Context()).WithComponent(log.ComponentSession).InfoContext(r.Context(), "User logged in",
		"username", username, "tier", tier.String())
	NewResponse().JSON(authResponse{Username: username, Tier: tier.String()}).Write(w)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	req := api.RegisterRequest{
		Username: FormValue(r, "username"),
		Email:    FormValue(r, "email"),
		Password: r.FormValue("password"),
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		BadRequestError("username, email and password are required").Write(w)
		return
	}
	if err := s.api.Register(r.Context(), req); err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Status(http.StatusCreated).JSON(authResponse{Username: req.Username}).Write(w)
}

// handleLogout clears both credential tiers and leaves any open review.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if key, ok := cookieKey(r); ok {
		if err := s.sessions.Logout(r.Context(), key); err != nil {
			writeError(w, r, err)
			return
		}
		if scr, err := s.screens.Current(key); err == nil {
			scr.Close(review.ExitBack)
		}
	}
	s.clearSessionCookie(w, r)
	w.WriteHeader(http.StatusNoContent)
}
