package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"slipdash/internal/session"
)

// CredentialStore is the persistent session tier. Tokens are sealed before
// they reach the database.
type CredentialStore struct {
	repo   *SQLiteRepository
	sealer *Sealer
}

var _ session.Store = (*CredentialStore)(nil)

func NewCredentialStore(repo *SQLiteRepository, sealer *Sealer) *CredentialStore {
	return &CredentialStore{repo: repo, sealer: sealer}
}

func (s *CredentialStore) Load(ctx context.Context, key string) (session.Credentials, error) {
	var username, sealed string
	err := s.repo.db.QueryRowContext(ctx,
		`SELECT username, token_enc FROM credentials WHERE session_key = ?`, key).
		Scan(&username, &sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Credentials{}, session.ErrNotFound
	}
	if err != nil {
		return session.Credentials{}, fmt.Errorf("load credentials: %w", err)
	}
	token, err := s.sealer.Open(sealed)
	if err != nil {
		// A value sealed with rotated keys is unusable; treat it as signed out.
		s.repo.logger.WarnContext(ctx, "Discarding unreadable stored credentials", "error", err.Error())
		_ = s.Clear(ctx, key)
		return session.Credentials{}, session.ErrNotFound
	}
	return session.Credentials{Token: string(token), Username: username}, nil
}

func (s *CredentialStore) Save(ctx context.Context, key string, c session.Credentials) error {
	sealed, err := s.sealer.Seal([]byte(c.Token))
	if err != nil {
		return fmt.Errorf("seal token: %w", err)
	}
	_, err = s.repo.db.ExecContext(ctx, `
		INSERT INTO credentials (session_key, username, token_enc, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_key) DO UPDATE SET
			username = excluded.username,
			token_enc = excluded.token_enc,
			updated_at = excluded.updated_at`,
		key, c.Username, sealed, formatTime(s.repo.now()))
	if err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

func (s *CredentialStore) Clear(ctx context.Context, key string) error {
	if _, err := s.repo.db.ExecContext(ctx, `DELETE FROM credentials WHERE session_key = ?`, key); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}
