// Package session holds the bearer token and identity of a signed-in user.
// Credentials live in one of two tiers: a short-lived session tier and a
// persistent "remember me" tier.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"

	"slipdash/internal/core"
)

// Tier is the lifetime of stored credentials.
type Tier int

const (
	TierSession Tier = iota
	TierPersistent
)

func (t Tier) String() string {
	if t == TierPersistent {
		return "persistent"
	}
	return "session"
}

// ErrNotFound is returned by Store.Load when nothing is stored under a key.
var ErrNotFound = errors.New("credentials not found")

type Credentials struct {
	Token    string
	Username string
}

// Store is one credential tier, keyed by an opaque session key (a cookie
// value or a CLI profile name).
type Store interface {
	Load(ctx context.Context, key string) (Credentials, error)
	Save(ctx context.Context, key string, c Credentials) error
	Clear(ctx context.Context, key string) error
}

// MemoryStore keeps credentials for the life of the process.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]Credentials
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]Credentials)}
}

func (m *MemoryStore) Load(_ context.Context, key string) (Credentials, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.items[key]
	if !ok {
		return Credentials{}, ErrNotFound
	}
	return c, nil
}

func (m *MemoryStore) Save(_ context.Context, key string, c Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = c
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

// Manager reads and writes credentials across both tiers.
type Manager struct {
	session    Store
	persistent Store
}

func NewManager(sessionTier, persistentTier Store) *Manager {
	return &Manager{session: sessionTier, persistent: persistentTier}
}

// Login stores creds in the tier chosen by remember and clears the other one,
// so a key never has credentials in both tiers.
func (m *Manager) Login(ctx context.Context, key string, creds Credentials, remember bool) (Tier, error) {
	if strings.TrimSpace(creds.Token) == "" {
		return 0, core.ErrNotAuthenticated
	}
	target, other, tier := m.session, m.persistent, TierSession
	if remember {
		target, other, tier = m.persistent, m.session, TierPersistent
	}
	if err := target.Save(ctx, key, creds); err != nil {
		return 0, err
	}
	if err := other.Clear(ctx, key); err != nil {
		return 0, err
	}
	return tier, nil
}

// Credentials returns what is stored for key, looking at the persistent tier
// first. It returns ErrNotFound when neither tier holds a token.
func (m *Manager) Credentials(ctx context.Context, key string) (Credentials, Tier, error) {
	for _, t := range []struct {
		store Store
		tier  Tier
	}{{m.persistent, TierPersistent}, {m.session, TierSession}} {
		c, err := t.store.Load(ctx, key)
		switch {
		case errors.Is(err, ErrNotFound):
			continue
		case err != nil:
			return Credentials{}, 0, err
		case c.Token != "":
			return c, t.tier, nil
		}
	}
	return Credentials{}, 0, ErrNotFound
}

// Token returns the bearer token for key, or "" when signed out.
func (m *Manager) Token(ctx context.Context, key string) (string, error) {
	c, _, err := m.Credentials(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return c.Token, err
}

// Logout clears both tiers.
func (m *Manager) Logout(ctx context.Context, key string) error {
	return errors.Join(m.persistent.Clear(ctx, key), m.session.Clear(ctx, key))
}

// Session resolves key into an explicit Session value. A signed-out key
// yields an anonymous session, not an error.
func (m *Manager) Session(ctx context.Context, key string) (*Session, error) {
	c, tier, err := m.Credentials(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return &Session{Key: key}, nil
	}
	if err != nil {
		return nil, err
	}
	return &Session{Key: key, Credentials: c, Tier: tier}, nil
}

// Session is the per-request view of who is signed in. It is passed to
// whatever needs the token instead of reading shared state.
type Session struct {
	Key         string
	Credentials Credentials
	Tier        Tier
}

func (s *Session) Token() string {
	if s == nil {
		return ""
	}
	return s.Credentials.Token
}

func (s *Session) Authenticated() bool { return s.Token() != "" }

// RequireToken returns the token or ErrNotAuthenticated.
func (s *Session) RequireToken() (string, error) {
	if t := s.Token(); t != "" {
		return t, nil
	}
	return "", core.ErrNotAuthenticated
}
