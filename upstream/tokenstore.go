package upstream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TokenStore persists upstream tokens so they survive restarts and can be
// shared by every replica.
type TokenStore interface {
	// Latest returns the newest token or ErrNoToken.
	Latest(ctx context.Context) (CachedToken, error)
	Save(ctx context.Context, token CachedToken) (CachedToken, error)
	DeleteAll(ctx context.Context) error
}

// PGTokenStore keeps tokens in the upstream_tokens table.
type PGTokenStore struct {
	pool *pgxpool.Pool
}

// NewPGTokenStore creates a PostgreSQL-backed token store.
func NewPGTokenStore(pool *pgxpool.Pool) *PGTokenStore {
	return &PGTokenStore{pool: pool}
}

func (s *PGTokenStore) Latest(ctx context.Context) (CachedToken, error) {
	const query = `
		SELECT id::text, access_token, refresh_token, expires_at, created_at
		FROM upstream_tokens
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	var t CachedToken
	err := s.pool.QueryRow(ctx, query).Scan(&t.ID, &t.AccessToken, &t.RefreshToken, &t.ExpiresAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CachedToken{}, ErrNoToken
		}
		return CachedToken{}, fmt.Errorf("upstream: latest token: %w", err)
	}
	return t, nil
}

// Save inserts token and drops rows that have already expired.
func (s *PGTokenStore) Save(ctx context.Context, token CachedToken) (CachedToken, error) {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return CachedToken{}, fmt.Errorf("upstream: begin save token: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM upstream_tokens WHERE expires_at <= $1`, token.CreatedAt); err != nil {
		return CachedToken{}, fmt.Errorf("upstream: prune tokens: %w", err)
	}

	const insert = `
		INSERT INTO upstream_tokens (id, access_token, refresh_token, expires_at, created_at)
		VALUES ($1::uuid, $2, $3, $4, $5)
	`
	if _, err := tx.Exec(ctx, insert, token.ID, token.AccessToken, token.RefreshToken, token.ExpiresAt, token.CreatedAt); err != nil {
		return CachedToken{}, fmt.Errorf("upstream: insert token: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return CachedToken{}, fmt.Errorf("upstream: commit token: %w", err)
	}
	return token, nil
}

func (s *PGTokenStore) DeleteAll(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM upstream_tokens`); err != nil {
		return fmt.Errorf("upstream: delete tokens: %w", err)
	}
	return nil
}
