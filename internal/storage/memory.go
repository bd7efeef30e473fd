package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"slipdash/internal/core"
)

// MemoryLedger is the Ledger used by the memory backend and in tests. Its
// contents are lost on exit.
type MemoryLedger struct {
	mu      sync.Mutex
	nextID  int64
	entries map[int64]*LedgerEntry
	now     func() time.Time
}

var _ Ledger = (*MemoryLedger)(nil)

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[int64]*LedgerEntry), now: time.Now}
}

func (m *MemoryLedger) Record(_ context.Context, r core.SavedReview) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	r.ID = m.nextID
	if r.SavedAt.IsZero() {
		r.SavedAt = m.now().UTC()
	}
	m.entries[r.ID] = &LedgerEntry{Review: r, Version: 1, Status: SyncPending}
	return r.ID, nil
}

func (m *MemoryLedger) Get(_ context.Context, id int64) (LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return LedgerEntry{}, fmt.Errorf("%w: id %d", ErrReviewNotFound, id)
	}
	return *e, nil
}

func (m *MemoryLedger) Pending(_ context.Context, limit int) ([]PendingReview, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	ids := make([]int64, 0, len(m.entries))
	for id, e := range m.entries {
		if e.Status == SyncPending || (e.Status == SyncError && e.Attempts < MaxSyncAttempts) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]PendingReview, 0, len(ids))
	for _, id := range ids {
		e := m.entries[id]
		out = append(out, PendingReview{ID: id, Version: e.Version, SavedAt: e.Review.SavedAt})
	}
	return out, nil
}

func (m *MemoryLedger) MarkSynced(_ context.Context, id int64) error {
	return m.update(id, func(e *LedgerEntry) {
		e.Status = SyncSynced
		e.LastError = ""
		e.Attempts++
	})
}

func (m *MemoryLedger) MarkSyncError(_ context.Context, id int64, cause error) error {
	return m.update(id, func(e *LedgerEntry) {
		e.Status = SyncError
		if cause != nil {
			e.LastError = cause.Error()
		}
		e.Attempts++
	})
}

func (m *MemoryLedger) update(id int64, fn func(*LedgerEntry)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrReviewNotFound, id)
	}
	fn(e)
	return nil
}
