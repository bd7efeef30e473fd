// Package memory is an in-process ReviewWriter used when no spreadsheet is
// configured and in tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"slipdash/internal/core"
	ports "slipdash/internal/sheets"
)

var _ ports.ReviewWriter = (*Store)(nil)

type Store struct {
	mu   sync.Mutex
	rows [][]string
	fail error
}

func New() *Store {
	return &Store{}
}

// Append stores the rendered row and returns a synthetic row reference.
func (s *Store) Append(ctx context.Context, r core.SavedReview) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if r.TransactionID == "" {
		return "", errors.New("review has no transaction id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return "", s.fail
	}
	s.rows = append(s.rows, ports.Row(r))
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// FailWith makes later appends return err until called with nil.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	s.fail = err
	s.mu.Unlock()
}

// Rows returns a copy of every appended row.
func (s *Store) Rows() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.rows))
	for i, row := range s.rows {
		out[i] = append([]string(nil), row...)
	}
	return out
}
