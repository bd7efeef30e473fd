// Package ratelimit caps how many requests each client may make per window.
package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Limiter counts requests per client key in fixed windows. Idle keys are
// swept in the background until Stop is called.
type Limiter struct {
	mu       sync.Mutex
	windows  map[string]*window
	limit    int
	period   time.Duration
	idle     time.Duration
	rejected atomic.Int64
	now      func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

type window struct {
	start time.Time
	seen  time.Time
	count int
}

type Config struct {
	RequestsPerMinute int
	// IdleTimeout is how long a client is remembered after its last request.
	IdleTimeout   time.Duration
	SweepInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		IdleTimeout:       10 * time.Minute,
		SweepInterval:     5 * time.Minute,
	}
}

func NewLimiter(cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = def.RequestsPerMinute
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}

	l := &Limiter{
		windows: make(map[string]*window),
		limit:   cfg.RequestsPerMinute,
		period:  time.Minute,
		idle:    cfg.IdleTimeout,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go l.sweepEvery(cfg.SweepInterval)
	return l
}

// Allow counts one request for key. When the window is already full it
// returns false and how long until the window resets.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.period {
		l.windows[key] = &window{start: now, seen: now, count: 1}
		return true, 0
	}
	w.seen = now
	if w.count >= l.limit {
		l.rejected.Add(1)
		return false, w.start.Add(l.period).Sub(now)
	}
	w.count++
	return true, 0
}

func (l *Limiter) sweepEvery(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			l.sweep()
		case <-l.stop:
			return
		}
	}
}

// sweep forgets clients idle for longer than the idle timeout and returns how
// many were dropped.
func (l *Limiter) sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.idle)
	n := 0
	for key, w := range l.windows {
		if w.seen.Before(cutoff) {
			delete(l.windows, key)
			n++
		}
	}
	return n
}

func (l *Limiter) ActiveClients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Stop ends the background sweep. Safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

type Stats struct {
	Rejected int64
	Clients  int64
}

func (l *Limiter) Stats() Stats {
	return Stats{
		Rejected: l.rejected.Load(),
		Clients:  int64(l.ActiveClients()),
	}
}

// Middleware limits requests for which applies returns true; a nil applies
// limits every request. Refused requests carry Retry-After in whole seconds.
func (l *Limiter) Middleware(clientKey func(*http.Request) string, applies func(*http.Request) bool, onLimit func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if applies != nil && !applies(r) {
				next.ServeHTTP(w, r)
				return
			}
			ok, wait := l.Allow(clientKey(r))
			if ok {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Retry-After", strconv.Itoa(retrySeconds(wait)))
			if onLimit != nil {
				onLimit(w, r)
				return
			}
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
		})
	}
}

func retrySeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

// Mutating reports whether r changes state. Uploads and saves are limited,
// dashboard reads are not.
func Mutating(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	default:
		return true
	}
}
