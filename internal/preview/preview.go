// Package preview keeps uploaded slip images addressable while their review
// screen is open. Every acquired preview is released exactly once.
package preview

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("preview not found")

type image struct {
	contentType string
	data        []byte
}

// Store holds preview images keyed by a random id.
type Store struct {
	mu     sync.RWMutex
	images map[string]image
	live   atomic.Int64
}

func NewStore() *Store {
	return &Store{images: make(map[string]image)}
}

// Acquire copies data into the store and returns the handle that owns it.
func (s *Store) Acquire(contentType string, data []byte) *Handle {
	id := uuid.NewString()
	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	s.images[id] = image{contentType: contentType, data: buf}
	s.mu.Unlock()
	s.live.Add(1)

	return &Handle{id: id, store: s}
}

// Get returns the bytes of a preview that has not been released.
func (s *Store) Get(id string) (contentType string, data []byte, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	img, ok := s.images[id]
	if !ok {
		return "", nil, ErrNotFound
	}
	return img.contentType, img.data, nil
}

// Live is the number of acquired previews not yet released.
func (s *Store) Live() int64 { return s.live.Load() }

func (s *Store) release(id string) {
	s.mu.Lock()
	delete(s.images, id)
	s.mu.Unlock()
	s.live.Add(-1)
}

// Handle is the revocable reference to one preview.
type Handle struct {
	id       string
	store    *Store
	once     sync.Once
	released atomic.Bool
}

func (h *Handle) ID() string { return h.id }

// Release revokes the preview. Only the first call has an effect; it reports
// whether this call was the one that released it.
func (h *Handle) Release() bool {
	first := false
	h.once.Do(func() {
		h.store.release(h.id)
		h.released.Store(true)
		first = true
	})
	return first
}

func (h *Handle) Released() bool { return h.released.Load() }
