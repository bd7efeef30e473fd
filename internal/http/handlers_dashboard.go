package http

import (
	"net/http"

	"golang.org/x/sync/errgroup"

	"slipdash/internal/api"
)

// token returns the caller's bearer token or core.ErrNotAuthenticated.
func (s *Server) token(w http.ResponseWriter, r *http.Request) (string, error) {
	sess, err := s.sessions.Session(r.Context(), s.sessionKey(w, r))
	if err != nil {
		return "", err
	}
	return sess.RequireToken()
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	view, err := ParseDashboardView(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	token, err := s.token(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := s.api.Dashboard(r.Context(), token, view)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().JSON(d).Write(w)
}

type transactionsResponse struct {
	Items []api.Transaction `json:"items"`
	Page  int               `json:"page"`
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	q, err := ParseTransactionQuery(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	token, err := s.token(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	items, err := s.api.ListTransactions(r.Context(), token, q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []api.Transaction{}
	}
	page := q.Page
	if page < 1 {
		page = 1
	}
	NewResponse().JSON(transactionsResponse{Items: items, Page: page}).Write(w)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	q, err := ParseRangeQuery(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	token, err := s.token(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	st, err := s.api.Stats(r.Context(), token, q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().JSON(st).Write(w)
}

type overviewResponse struct {
	Range     api.RangeQuery `json:"range"`
	Dashboard api.Dashboard  `json:"dashboard"`
	Stats     api.Stats      `json:"stats"`
}

// handleOverview fetches the dashboard and stats for one range concurrently.
// The first failure cancels the other call.
func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	q, err := ParseRangeQuery(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	token, err := s.token(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := overviewResponse{Range: q}
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		d, err := s.api.Dashboard(ctx, token, q.Kind)
		out.Dashboard = d
		return err
	})
	g.Go(func() error {
		st, err := s.api.Stats(ctx, token, q)
		out.Stats = st
		return err
	})
	if err := g.Wait(); err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().JSON(out).Write(w)
}
