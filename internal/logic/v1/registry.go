package v1

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/talentbase/session-registry/internal/core/domain"
	"github.com/talentbase/session-registry/middleware"
)

// Validation reasons returned by ValidateSession. These are normal outcomes
// of stale or unauthenticated traffic and drive 401 responses; they are never
// shown verbatim to clients.
const (
	ReasonNoActiveSession = "no_active_session"
	ReasonTokenMismatch   = "token_mismatch"
	ReasonExpired         = "expired"
)

// Validation is the result of checking a presented session token.
type Validation struct {
	Valid  bool
	Reason string
}

// Session is a freshly issued session credential.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

// SessionRegistry is the single source of truth for "is this presented token
// currently the one valid session for this user". Each user has exactly one
// session slot; issuing a new session atomically supersedes the previous one,
// so a user can only ever be logged in from one place.
//
// All mutation of the stored session fields flows through this type.
type SessionRegistry struct {
	users    domain.UserRepository
	sessions domain.SessionRepository
	ttl      time.Duration

	// now is the clock, injectable for tests.
	now func() time.Time
}

// NewSessionRegistry creates a SessionRegistry with the given repositories
// and session lifetime.
func NewSessionRegistry(users domain.UserRepository, sessions domain.SessionRepository, ttl time.Duration) *SessionRegistry {
	return &SessionRegistry{
		users:    users,
		sessions: sessions,
		ttl:      ttl,
		now:      time.Now,
	}
}

// newToken returns 256 bits of crypto randomness, hex-encoded.
func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random token bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// CreateSession issues a fresh session for the given user, unconditionally
// replacing any previous one. The old token stops validating immediately,
// even if its original expiry has not passed. Returns ErrUserNotFound when
// the principal does not exist; nothing is persisted in that case.
//
// Two near-simultaneous logins race last-write-wins: the loser's token is
// superseded the moment the winner's write lands. That is the intended
// single-session behavior, and the repository guarantees the write is one
// atomic per-record update.
func (r *SessionRegistry) CreateSession(ctx context.Context, userID string) (*Session, error) {
	ctx, span := middleware.StartSpan(ctx, "session.create", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("user.id", userID),
	))
	defer span.End()

	token, err := newToken()
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	issuedAt := r.now()
	expiresAt := issuedAt.Add(r.ttl)

	replaced, err := r.sessions.Replace(ctx, userID, token, issuedAt, expiresAt)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("replace session for user %q: %w (%w)", userID, err, ErrStorageUnavailable)
	}
	if !replaced {
		span.SetAttributes(attribute.Bool("session.issued", false))
		return nil, fmt.Errorf("create session for user %q: %w", userID, ErrUserNotFound)
	}

	middleware.SessionsIssued.Inc()
	span.SetAttributes(attribute.Bool("session.issued", true))
	span.AddEvent("session.issued")

	return &Session{Token: token, ExpiresAt: expiresAt}, nil
}

// ValidateSession reports whether token is currently the one valid session
// for the user. A pure read: it never mutates state, takes no lock, and is
// safe under arbitrary concurrent callers. Invalid outcomes are returned
// values, not errors; only infrastructure failure returns an error.
func (r *SessionRegistry) ValidateSession(ctx context.Context, userID, token string) (Validation, error) {
	ctx, span := middleware.StartSpan(ctx, "session.validate", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("user.id", userID),
	))
	defer span.End()

	rec, err := r.sessions.Get(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return Validation{}, fmt.Errorf("load session for user %q: %w (%w)", userID, err, ErrStorageUnavailable)
	}

	v := r.evaluate(rec, token)
	if v.Valid {
		middleware.SessionValidations.WithLabelValues("valid").Inc()
	} else {
		middleware.SessionValidations.WithLabelValues(v.Reason).Inc()
	}

	span.SetAttributes(attribute.Bool("session.valid", v.Valid))
	if !v.Valid {
		span.SetAttributes(attribute.String("session.reason", v.Reason))
	}

	return v, nil
}

func (r *SessionRegistry) evaluate(rec *domain.SessionRecord, token string) Validation {
	// A missing user and an empty slot both mean no active session; the
	// distinction is not observable to callers.
	if rec == nil || rec.Token == "" {
		return Validation{Reason: ReasonNoActiveSession}
	}
	if rec.Token != token {
		// Covers both "never held this token" and "superseded by a
		// later login".
		return Validation{Reason: ReasonTokenMismatch}
	}
	if rec.ExpiresAt.Before(r.now()) {
		return Validation{Reason: ReasonExpired}
	}
	return Validation{Valid: true}
}

// InvalidateSession nulls the user's session slot. Idempotent: invalidating
// an absent session is a no-op.
func (r *SessionRegistry) InvalidateSession(ctx context.Context, userID string) error {
	ctx, span := middleware.StartSpan(ctx, "session.invalidate", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("user.id", userID),
	))
	defer span.End()

	if err := r.sessions.Clear(ctx, userID); err != nil {
		span.RecordError(err)
		return fmt.Errorf("clear session for user %q: %w (%w)", userID, err, ErrStorageUnavailable)
	}

	span.AddEvent("session.invalidated")
	return nil
}

// ExtendSession pushes the expiry of the user's current session out to
// now + TTL, leaving the token unchanged. The extend only succeeds when the
// presented token is still the stored one; a superseded or invalidated token
// cannot resurrect itself. Returns ErrStaleToken (no mutation) otherwise.
func (r *SessionRegistry) ExtendSession(ctx context.Context, userID, token string) (*Session, error) {
	ctx, span := middleware.StartSpan(ctx, "session.extend", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("user.id", userID),
	))
	defer span.End()

	expiresAt := r.now().Add(r.ttl)

	extended, err := r.sessions.ExtendIfMatch(ctx, userID, token, expiresAt)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("extend session for user %q: %w (%w)", userID, err, ErrStorageUnavailable)
	}
	if !extended {
		span.SetAttributes(attribute.Bool("session.extended", false))
		return nil, fmt.Errorf("extend session for user %q: %w", userID, ErrStaleToken)
	}

	span.SetAttributes(attribute.Bool("session.extended", true))
	return &Session{Token: token, ExpiresAt: expiresAt}, nil
}

// CleanupExpired bulk-nulls every session slot whose expiry has passed and
// returns the number of slots cleared. Pure maintenance: validation already
// rejects expired tokens, so correctness never depends on this running. It
// bounds stale-token storage and keeps "currently active sessions" auditable.
func (r *SessionRegistry) CleanupExpired(ctx context.Context) (int64, error) {
	ctx, span := middleware.StartSpan(ctx, "session.cleanup", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	count, err := r.sessions.ClearExpired(ctx, r.now())
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("clear expired sessions: %w (%w)", err, ErrStorageUnavailable)
	}

	middleware.SessionsCleaned.Add(float64(count))
	span.SetAttributes(attribute.Int64("session.cleaned", count))

	return count, nil
}
