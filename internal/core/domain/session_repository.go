package domain

import (
	"context"
	"time"
)

// SessionRecord is the session slot stored on a user record. A user has at
// most one slot; an empty Token means no active session.
type SessionRecord struct {
	UserID    string
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// SessionRepository defines the data-access contract for the per-user session
// slot. Implementations live in internal/core/repository (Core layer).
//
// The session fields on the user record are owned exclusively by this
// contract; no other part of the system writes them.
type SessionRepository interface {
	// Get returns the session slot for the given user, including empty
	// slots. Returns (nil, nil) when the user does not exist.
	Get(ctx context.Context, userID string) (*SessionRecord, error)

	// Replace unconditionally overwrites the user's session slot with the
	// given token and timestamps in a single atomic per-record write.
	// Returns false when the user does not exist; nothing is written.
	Replace(ctx context.Context, userID, token string, issuedAt, expiresAt time.Time) (bool, error)

	// Clear nulls the user's session slot. Clearing an already-empty slot
	// is a no-op, not an error.
	Clear(ctx context.Context, userID string) error

	// ExtendIfMatch sets a new expiry only when the stored token equals
	// token (compare-and-set). Returns false without mutating when the
	// token does not match or the slot is empty.
	ExtendIfMatch(ctx context.Context, userID, token string, expiresAt time.Time) (bool, error)

	// ClearExpired nulls every slot whose expiry is before now and returns
	// the number of slots cleared. Slots with a future expiry are never
	// touched.
	ClearExpired(ctx context.Context, now time.Time) (int64, error)
}
