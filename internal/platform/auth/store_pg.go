package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthassist/healthassist/internal/platform/db"
)

// PGTokenStore keeps refresh token digests in auth_tokens.
type PGTokenStore struct {
	pool *pgxpool.Pool
}

func NewPGTokenStore(pool *pgxpool.Pool) *PGTokenStore {
	return &PGTokenStore{pool: pool}
}

func (s *PGTokenStore) Upsert(ctx context.Context, userID, tokenHash string, expiresOn time.Time) error {
	const query = `INSERT INTO auth_tokens (id, user_id, token_hash, expires_on)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id) DO UPDATE SET token_hash = EXCLUDED.token_hash,
                                    expires_on = EXCLUDED.expires_on,
                                    updated_at = NOW()`

	if _, err := db.Conn(ctx, s.pool).Exec(ctx, query, uuid.New(), userID, tokenHash, expiresOn); err != nil {
		return fmt.Errorf("upsert auth token: %w", err)
	}
	return nil
}

func (s *PGTokenStore) Get(ctx context.Context, userID string) (*AuthToken, error) {
	const query = `SELECT id, user_id, token_hash, expires_on, created_at, updated_at
FROM auth_tokens WHERE user_id = $1`

	var t AuthToken
	var id, uid uuid.UUID
	err := db.Conn(ctx, s.pool).QueryRow(ctx, query, userID).
		Scan(&id, &uid, &t.TokenHash, &t.ExpiresOn, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get auth token: %w", err)
	}
	t.ID, t.UserID = id.String(), uid.String()
	return &t, nil
}

func (s *PGTokenStore) Delete(ctx context.Context, userID string) error {
	if _, err := db.Conn(ctx, s.pool).Exec(ctx, `DELETE FROM auth_tokens WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete auth token: %w", err)
	}
	return nil
}
