package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slipdash/internal/core"
	"slipdash/internal/session"
)

const (
	testEncKey  = "0123456789abcdef0123456789abcdef"
	testSignKey = "fedcba9876543210fedcba9876543210"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "slipdash.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestSealerRoundTrip(t *testing.T) {
	s, err := NewSealer(testEncKey, testSignKey)
	require.NoError(t, err)

	sealed, err := s.Seal([]byte("token-123"))
	require.NoError(t, err)
	assert.NotContains(t, sealed, "token-123")
	assert.Equal(t, 1, strings.Count(sealed, "."))

	plain, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "token-123", string(plain))

	other, err := NewSealer(testEncKey, testEncKey)
	require.NoError(t, err)
	_, err = other.Open(sealed)
	assert.ErrorIs(t, err, ErrSignatureMismatch)

	_, err = s.Open("garbage")
	assert.Error(t, err)
}

func TestSealerRejectsShortKeys(t *testing.T) {
	_, err := NewSealer("short", testSignKey)
	assert.Error(t, err)
	k, err := NewRandomKey()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(k), 32)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.db")
	repo, err := NewSQLiteRepository(path, nil)
	require.NoError(t, err)
	require.NoError(t, repo.Close())
	version, err := RunMigrations(path)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)

	repo, err = NewSQLiteRepository(path, nil)
	require.NoError(t, err)
	defer repo.Close()
	require.NoError(t, repo.Ping(context.Background()))
}

func TestCredentialStore(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	sealer, err := NewSealer(testEncKey, testSignKey)
	require.NoError(t, err)
	store := NewCredentialStore(repo, sealer)

	_, err = store.Load(ctx, "default")
	assert.ErrorIs(t, err, session.ErrNotFound)

	require.NoError(t, store.Save(ctx, "default", session.Credentials{Token: "t1", Username: "alice"}))
	require.NoError(t, store.Save(ctx, "default", session.Credentials{Token: "t2", Username: "alice"}))
	c, err := store.Load(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, session.Credentials{Token: "t2", Username: "alice"}, c)

	var raw string
	require.NoError(t, repo.db.QueryRow(`SELECT token_enc FROM credentials WHERE session_key = 'default'`).Scan(&raw))
	assert.NotContains(t, raw, "t2")

	require.NoError(t, store.Clear(ctx, "default"))
	_, err = store.Load(ctx, "default")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestCredentialStoreDropsRowsSealedWithOtherKeys(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	a, _ := NewSealer(testEncKey, testSignKey)
	b, _ := NewSealer(testSignKey, testEncKey)

	require.NoError(t, NewCredentialStore(repo, a).Save(ctx, "k", session.Credentials{Token: "t"}))
	_, err := NewCredentialStore(repo, b).Load(ctx, "k")
	assert.ErrorIs(t, err, session.ErrNotFound)
	_, err = NewCredentialStore(repo, a).Load(ctx, "k")
	assert.ErrorIs(t, err, session.ErrNotFound, "unreadable row was removed")
}

func TestCredentialStoreAsPersistentTier(t *testing.T) {
	ctx := context.Background()
	sealer, _ := NewSealer(testEncKey, testSignKey)
	m := session.NewManager(session.NewMemoryStore(), NewCredentialStore(newTestRepo(t), sealer))

	_, err := m.Login(ctx, "default", session.Credentials{Token: "abc", Username: "bob"}, true)
	require.NoError(t, err)
	s, err := m.Session(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, session.TierPersistent, s.Tier)
	assert.Equal(t, "abc", s.Token())
}

func sampleReview() core.SavedReview {
	return core.SavedReview{
		TransactionID:  "42",
		Bank:           "KBank",
		Amount:         decimal.NewNullDecimal(decimal.RequireFromString("1290.50")),
		Memo:           "coffee",
		Category:       core.FoodAndDrink,
		CategorySource: core.SourceGuessed,
		TransferredAt:  "2026-01-11T09:05:00",
		SavedAt:        time.Date(2026, 1, 11, 2, 5, 0, 0, time.UTC),
	}
}

func TestLedgerContract(t *testing.T) {
	ledgers := map[string]func(t *testing.T) Ledger{
		"sqlite": func(t *testing.T) Ledger { return newTestRepo(t) },
		"memory": func(t *testing.T) Ledger { return NewMemoryLedger() },
	}
	for name, mk := range ledgers {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			l := mk(t)

			id, err := l.Record(ctx, sampleReview())
			require.NoError(t, err)
			nullID, err := l.Record(ctx, core.SavedReview{TransactionID: "43", Category: core.Others, CategorySource: core.SourceSelected})
			require.NoError(t, err)

			e, err := l.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, id, e.Review.ID)
			assert.Equal(t, SyncPending, e.Status)
			assert.Equal(t, "1290.5", e.Review.Amount.Decimal.String())
			assert.True(t, e.Review.SavedAt.Equal(sampleReview().SavedAt))
			assert.Equal(t, core.FoodAndDrink, e.Review.Category)

			n, err := l.Get(ctx, nullID)
			require.NoError(t, err)
			assert.False(t, n.Review.Amount.Valid)
			assert.Empty(t, n.Review.TransferredAt)
			assert.False(t, n.Review.SavedAt.IsZero())

			pending, err := l.Pending(ctx, 10)
			require.NoError(t, err)
			require.Len(t, pending, 2)
			assert.Equal(t, id, pending[0].ID)

			require.NoError(t, l.MarkSynced(ctx, id))
			for i := 0; i < MaxSyncAttempts-1; i++ {
				require.NoError(t, l.MarkSyncError(ctx, nullID, errors.New("sheet locked")))
				pending, err = l.Pending(ctx, 10)
				require.NoError(t, err)
				require.Len(t, pending, 1, "errored rows are retried")
			}
			require.NoError(t, l.MarkSyncError(ctx, nullID, errors.New("sheet locked")))
			pending, err = l.Pending(ctx, 10)
			require.NoError(t, err)
			assert.Empty(t, pending, "rows past the attempt limit stop being retried")

			n, err = l.Get(ctx, nullID)
			require.NoError(t, err)
			assert.Equal(t, SyncError, n.Status)
			assert.Equal(t, "sheet locked", n.LastError)
			assert.Equal(t, MaxSyncAttempts, n.Attempts)

			_, err = l.Get(ctx, 999)
			assert.ErrorIs(t, err, ErrReviewNotFound)
			assert.ErrorIs(t, l.MarkSynced(ctx, 999), ErrReviewNotFound)
		})
	}
}
