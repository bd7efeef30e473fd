package review

import (
	"sync"
	"time"

	"slipdash/internal/cache"
	"slipdash/internal/log"
)

// Registry tracks the open screens of a server. Each owner has at most one
// open screen; opening another replaces it. Screens idle for longer than the
// TTL, or pushed out by the size bound, are closed.
type Registry struct {
	screens *cache.LRUCache[*Screen]
	logger  *log.Logger

	mu      sync.Mutex
	byOwner map[string]string
}

func NewRegistry(maxScreens int, ttl time.Duration, logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.Discard()
	}
	r := &Registry{
		screens: cache.NewLRUCache[*Screen](maxScreens, ttl),
		logger:  logger.WithComponent(log.ComponentReview),
		byOwner: make(map[string]string),
	}
	r.screens.OnEvict(func(id string, s *Screen, reason cache.EvictReason) {
		exit := ExitExpired
		switch reason {
		case cache.EvictCapacity:
			exit = ExitEvicted
		case cache.EvictPurge:
			exit = ExitShutdown
		}
		r.logger.Info("Closing review screen", log.FieldSlipID, id, "reason", reason.String())
		s.Close(exit)
	})
	return r
}

// Add registers s, closing the owner's previous screen if there is one.
func (r *Registry) Add(s *Screen) {
	r.mu.Lock()
	prevID, hadPrev := r.byOwner[s.Owner()]
	r.byOwner[s.Owner()] = s.ID()
	r.mu.Unlock()

	s.addCloseHook(r.forget)
	r.screens.Set(s.ID(), s)

	if hadPrev && prevID != s.ID() {
		if prev, ok := r.screens.Take(prevID); ok {
			prev.Close(ExitReplaced)
		}
	}
}

// Get returns the open screen with id and extends its idle timeout.
func (r *Registry) Get(id string) (*Screen, error) {
	s, ok := r.screens.Get(id)
	if !ok || s.Closed() {
		return nil, ErrScreenNotFound
	}
	r.screens.Touch(id)
	return s, nil
}

// Current returns the owner's open screen.
func (r *Registry) Current(owner string) (*Screen, error) {
	r.mu.Lock()
	id, ok := r.byOwner[owner]
	r.mu.Unlock()
	if !ok {
		return nil, ErrScreenNotFound
	}
	return r.Get(id)
}

// CleanExpired closes idle screens. It lets a cache.Manager sweep the registry.
func (r *Registry) CleanExpired() int { return r.screens.CleanExpired() }

// Len is the number of screens held.
func (r *Registry) Len() int { return r.screens.Size() }

// CloseAll shuts every open screen, for server shutdown.
func (r *Registry) CloseAll() int { return r.screens.Purge() }

// forget runs when a screen closes for any reason.
func (r *Registry) forget(s *Screen) {
	r.screens.Delete(s.ID())
	r.mu.Lock()
	if r.byOwner[s.Owner()] == s.ID() {
		delete(r.byOwner, s.Owner())
	}
	r.mu.Unlock()
}
