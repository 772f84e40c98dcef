package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/talentbase/session-registry/internal/core/domain"
)

// PgxSessionRepository implements domain.SessionRepository using pgxpool.
// The session slot is three nullable columns on the users row, so every
// mutation is a single-row UPDATE and cannot interleave with a concurrent
// writer into a half-written state.
type PgxSessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new PgxSessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *PgxSessionRepository {
	return &PgxSessionRepository{pool: pool}
}

// Get returns the session slot for the given user.
// Returns (nil, nil) when the user does not exist.
func (r *PgxSessionRepository) Get(ctx context.Context, userID string) (*domain.SessionRecord, error) {
	query := `
		SELECT id, session_token, session_issued_at, session_expires_at
		FROM users
		WHERE id = $1
	`

	var (
		rec       domain.SessionRecord
		token     *string
		issuedAt  *time.Time
		expiresAt *time.Time
	)
	err := r.pool.QueryRow(ctx, query, userID).Scan(&rec.UserID, &token, &issuedAt, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if token != nil {
		rec.Token = *token
	}
	if issuedAt != nil {
		rec.IssuedAt = *issuedAt
	}
	if expiresAt != nil {
		rec.ExpiresAt = *expiresAt
	}

	return &rec, nil
}

// Replace unconditionally overwrites the user's session slot.
// Returns false when the user does not exist.
func (r *PgxSessionRepository) Replace(ctx context.Context, userID, token string, issuedAt, expiresAt time.Time) (bool, error) {
	query := `
		UPDATE users
		SET session_token = $2, session_issued_at = $3, session_expires_at = $4
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, userID, token, issuedAt, expiresAt)
	if err != nil {
		return false, err
	}

	return tag.RowsAffected() > 0, nil
}

// Clear nulls the user's session slot. A no-op for unknown users and
// already-empty slots.
func (r *PgxSessionRepository) Clear(ctx context.Context, userID string) error {
	query := `
		UPDATE users
		SET session_token = NULL, session_issued_at = NULL, session_expires_at = NULL
		WHERE id = $1
	`

	_, err := r.pool.Exec(ctx, query, userID)
	return err
}

// ExtendIfMatch sets a new expiry only when the stored token matches.
func (r *PgxSessionRepository) ExtendIfMatch(ctx context.Context, userID, token string, expiresAt time.Time) (bool, error) {
	query := `
		UPDATE users
		SET session_expires_at = $3
		WHERE id = $1 AND session_token = $2
	`

	tag, err := r.pool.Exec(ctx, query, userID, token, expiresAt)
	if err != nil {
		return false, err
	}

	return tag.RowsAffected() > 0, nil
}

// ClearExpired nulls every slot whose expiry has passed and returns the
// number of rows cleared.
func (r *PgxSessionRepository) ClearExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE users
		SET session_token = NULL, session_issued_at = NULL, session_expires_at = NULL
		WHERE session_expires_at < $1
	`

	tag, err := r.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, err
	}

	return tag.RowsAffected(), nil
}
