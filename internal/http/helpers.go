package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// SessionCookie carries the opaque key credentials and screens are stored under.
	SessionCookie = "slipdash_session"

	rememberFor = 30 * 24 * time.Hour
)

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// cookieKey returns the session key the request carries, if it is well formed.
func cookieKey(r *http.Request) (string, bool) {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return "", false
	}
	if _, err := uuid.Parse(c.Value); err != nil {
		return "", false
	}
	return c.Value, true
}

// sessionKey returns the caller's session key, issuing a new cookie when the
// request has none or an unparseable one.
func (s *Server) sessionKey(w http.ResponseWriter, r *http.Request) string {
	if key, ok := cookieKey(r); ok {
		return key
	}
	key := uuid.NewString()
	s.setSessionCookie(w, r, key, false)
	return key
}

// setSessionCookie writes the session cookie. A remembered session outlives
// the browser session.
func (s *Server) setSessionCookie(w http.ResponseWriter, r *http.Request, key string, remember bool) {
	c := &http.Cookie{
		Name:     SessionCookie,
		Value:    key,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.config.SecureCookies || r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	}
	if remember {
		c.MaxAge = int(rememberFor / time.Second)
		c.Expires = time.Now().Add(rememberFor)
	}
	http.SetCookie(w, c)
}

func (s *Server) clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.config.SecureCookies || r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}
