package v1

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentbase/session-registry/internal/core/domain"
)

// fakeStore is an in-memory implementation of both repository contracts with
// injectable failures, used across the logic-layer tests.
type fakeStore struct {
	mu    sync.Mutex
	users map[string]*domain.UserRow
	slots map[string]*domain.SessionRecord

	// failNext makes every operation fail until reset.
	failNext error

	writes int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users: make(map[string]*domain.UserRow),
		slots: make(map[string]*domain.SessionRecord),
	}
}

func (f *fakeStore) addUser(id, email, passwordHash string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[id] = &domain.UserRow{ID: id, Email: email, PasswordHash: passwordHash}
	f.slots[id] = &domain.SessionRecord{UserID: id}
}

func (f *fakeStore) GetByEmail(ctx context.Context, email string) (*domain.UserRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext != nil {
		return nil, f.failNext
	}
	for _, u := range f.users {
		if u.Email == email {
			row := *u
			return &row, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetByID(ctx context.Context, userID string) (*domain.UserRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext != nil {
		return nil, f.failNext
	}
	u, ok := f.users[userID]
	if !ok {
		return nil, nil
	}
	row := *u
	return &row, nil
}

func (f *fakeStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext != nil {
		return false, f.failNext
	}
	for _, u := range f.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) Create(ctx context.Context, email, passwordHash string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext != nil {
		return "", f.failNext
	}
	id := "user-" + email
	f.users[id] = &domain.UserRow{ID: id, Email: email, PasswordHash: passwordHash}
	f.slots[id] = &domain.SessionRecord{UserID: id}
	return id, nil
}

func (f *fakeStore) UpdateLastLogin(ctx context.Context, userID string) error {
	return nil
}

func (f *fakeStore) Get(ctx context.Context, userID string) (*domain.SessionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext != nil {
		return nil, f.failNext
	}
	rec, ok := f.slots[userID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeStore) Replace(ctx context.Context, userID, token string, issuedAt, expiresAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext != nil {
		return false, f.failNext
	}
	if _, ok := f.slots[userID]; !ok {
		return false, nil
	}
	f.writes++
	f.slots[userID] = &domain.SessionRecord{
		UserID:    userID,
		Token:     token,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}
	return true, nil
}

func (f *fakeStore) Clear(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext != nil {
		return f.failNext
	}
	if _, ok := f.slots[userID]; !ok {
		return nil
	}
	f.writes++
	f.slots[userID] = &domain.SessionRecord{UserID: userID}
	return nil
}

func (f *fakeStore) ExtendIfMatch(ctx context.Context, userID, token string, expiresAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext != nil {
		return false, f.failNext
	}
	rec, ok := f.slots[userID]
	if !ok || rec.Token == "" || rec.Token != token {
		return false, nil
	}
	f.writes++
	rec.ExpiresAt = expiresAt
	return true, nil
}

func (f *fakeStore) ClearExpired(ctx context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext != nil {
		return 0, f.failNext
	}
	var count int64
	for id, rec := range f.slots {
		if rec.Token != "" && rec.ExpiresAt.Before(now) {
			f.writes++
			f.slots[id] = &domain.SessionRecord{UserID: id}
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) slot(userID string) domain.SessionRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.slots[userID]
}

// fakeClock is a settable clock for expiry tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRegistry(t *testing.T) (*SessionRegistry, *fakeStore, *fakeClock) {
	t.Helper()
	store := newFakeStore()
	clock := &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	registry := NewSessionRegistry(store, store, 24*time.Hour)
	registry.now = clock.Now
	return registry, store, clock
}

func TestCreateSessionThenValidate(t *testing.T) {
	registry, store, clock := newTestRegistry(t)
	store.addUser("alice", "alice@example.com", "")
	ctx := context.Background()

	session, err := registry.CreateSession(ctx, "alice")
	require.NoError(t, err)
	require.NotEmpty(t, session.Token)
	assert.Len(t, session.Token, 64) // 256 bits, hex-encoded
	assert.Equal(t, clock.Now().Add(24*time.Hour), session.ExpiresAt)

	v, err := registry.ValidateSession(ctx, "alice", session.Token)
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.Empty(t, v.Reason)
}

func TestCreateSessionSupersedesPrevious(t *testing.T) {
	registry, store, _ := newTestRegistry(t)
	store.addUser("alice", "alice@example.com", "")
	ctx := context.Background()

	first, err := registry.CreateSession(ctx, "alice")
	require.NoError(t, err)
	second, err := registry.CreateSession(ctx, "alice")
	require.NoError(t, err)
	require.NotEqual(t, first.Token, second.Token)

	v, err := registry.ValidateSession(ctx, "alice", first.Token)
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.Equal(t, ReasonTokenMismatch, v.Reason)

	v, err = registry.ValidateSession(ctx, "alice", second.Token)
	require.NoError(t, err)
	assert.True(t, v.Valid)
}

func TestCreateSessionUnknownUser(t *testing.T) {
	registry, store, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := registry.CreateSession(ctx, "ghost")
	require.ErrorIs(t, err, ErrUserNotFound)
	assert.Zero(t, store.writes, "nothing may be persisted for an unknown user")
}

func TestValidateSessionNeverLoggedIn(t *testing.T) {
	registry, store, _ := newTestRegistry(t)
	store.addUser("bob", "bob@example.com", "")
	ctx := context.Background()

	v, err := registry.ValidateSession(ctx, "bob", "anything")
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.Equal(t, ReasonNoActiveSession, v.Reason)

	// Unknown users are indistinguishable from never-logged-in ones.
	v, err = registry.ValidateSession(ctx, "ghost", "anything")
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.Equal(t, ReasonNoActiveSession, v.Reason)
}

func TestValidateSessionIsPureRead(t *testing.T) {
	registry, store, _ := newTestRegistry(t)
	store.addUser("alice", "alice@example.com", "")
	ctx := context.Background()

	session, err := registry.CreateSession(ctx, "alice")
	require.NoError(t, err)
	writesAfterCreate := store.writes

	for range 10 {
		_, err := registry.ValidateSession(ctx, "alice", session.Token)
		require.NoError(t, err)
	}
	assert.Equal(t, writesAfterCreate, store.writes, "validation must not mutate state")
}

func TestValidateSessionExpiry(t *testing.T) {
	registry, store, clock := newTestRegistry(t)
	store.addUser("carol", "carol@example.com", "")
	ctx := context.Background()

	session, err := registry.CreateSession(ctx, "carol")
	require.NoError(t, err)

	clock.Advance(24*time.Hour - time.Second)
	v, err := registry.ValidateSession(ctx, "carol", session.Token)
	require.NoError(t, err)
	assert.True(t, v.Valid, "still valid just before expiry")

	clock.Advance(2 * time.Second)
	v, err = registry.ValidateSession(ctx, "carol", session.Token)
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.Equal(t, ReasonExpired, v.Reason)
}

func TestInvalidateSession(t *testing.T) {
	registry, store, _ := newTestRegistry(t)
	store.addUser("alice", "alice@example.com", "")
	ctx := context.Background()

	session, err := registry.CreateSession(ctx, "alice")
	require.NoError(t, err)

	require.NoError(t, registry.InvalidateSession(ctx, "alice"))

	v, err := registry.ValidateSession(ctx, "alice", session.Token)
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.Equal(t, ReasonNoActiveSession, v.Reason)

	// Idempotent: a second invalidation is a no-op, not an error.
	require.NoError(t, registry.InvalidateSession(ctx, "alice"))
	require.NoError(t, registry.InvalidateSession(ctx, "ghost"))
}

func TestExtendSession(t *testing.T) {
	registry, store, clock := newTestRegistry(t)
	store.addUser("alice", "alice@example.com", "")
	ctx := context.Background()

	session, err := registry.CreateSession(ctx, "alice")
	require.NoError(t, err)

	clock.Advance(10 * time.Hour)
	extended, err := registry.ExtendSession(ctx, "alice", session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.Token, extended.Token, "extend must not rotate the token")
	assert.Equal(t, clock.Now().Add(24*time.Hour), extended.ExpiresAt)

	v, err := registry.ValidateSession(ctx, "alice", session.Token)
	require.NoError(t, err)
	assert.True(t, v.Valid)
}

func TestExtendSessionStaleToken(t *testing.T) {
	registry, store, _ := newTestRegistry(t)
	store.addUser("alice", "alice@example.com", "")
	ctx := context.Background()

	first, err := registry.CreateSession(ctx, "alice")
	require.NoError(t, err)
	second, err := registry.CreateSession(ctx, "alice")
	require.NoError(t, err)

	before := store.slot("alice")
	_, err = registry.ExtendSession(ctx, "alice", first.Token)
	require.ErrorIs(t, err, ErrStaleToken)
	assert.Equal(t, before, store.slot("alice"), "a failed extend must not mutate the slot")

	v, err := registry.ValidateSession(ctx, "alice", second.Token)
	require.NoError(t, err)
	assert.True(t, v.Valid, "the current session survives a stale extend attempt")
}

func TestCleanupExpired(t *testing.T) {
	registry, store, clock := newTestRegistry(t)
	store.addUser("carol", "carol@example.com", "")
	store.addUser("dave", "dave@example.com", "")
	ctx := context.Background()

	_, err := registry.CreateSession(ctx, "carol")
	require.NoError(t, err)

	clock.Advance(25 * time.Hour)
	fresh, err := registry.CreateSession(ctx, "dave")
	require.NoError(t, err)

	count, err := registry.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	assert.Empty(t, store.slot("carol").Token, "expired slot is nulled")
	assert.Equal(t, fresh.Token, store.slot("dave").Token, "live slot is untouched")

	// Idempotent: a second sweep finds nothing.
	count, err = registry.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestStorageFailurePropagates(t *testing.T) {
	registry, store, _ := newTestRegistry(t)
	store.addUser("alice", "alice@example.com", "")
	ctx := context.Background()

	session, err := registry.CreateSession(ctx, "alice")
	require.NoError(t, err)

	store.failNext = errors.New("connection refused")
	defer func() { store.failNext = nil }()

	_, err = registry.ValidateSession(ctx, "alice", session.Token)
	require.ErrorIs(t, err, ErrStorageUnavailable,
		"infrastructure failure must be distinguishable from an invalid session")

	_, err = registry.CreateSession(ctx, "alice")
	require.ErrorIs(t, err, ErrStorageUnavailable)

	err = registry.InvalidateSession(ctx, "alice")
	require.ErrorIs(t, err, ErrStorageUnavailable)

	_, err = registry.ExtendSession(ctx, "alice", session.Token)
	require.ErrorIs(t, err, ErrStorageUnavailable)

	_, err = registry.CleanupExpired(ctx)
	require.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestConcurrentLoginsLastWriteWins(t *testing.T) {
	registry, store, _ := newTestRegistry(t)
	store.addUser("alice", "alice@example.com", "")
	ctx := context.Background()

	const logins = 16
	tokens := make([]string, logins)
	var wg sync.WaitGroup
	for i := range logins {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := registry.CreateSession(ctx, "alice")
			if err == nil {
				tokens[i] = s.Token
			}
		}()
	}
	wg.Wait()

	// Exactly one of the issued tokens validates; the others are superseded.
	var valid int
	for _, token := range tokens {
		require.NotEmpty(t, token)
		v, err := registry.ValidateSession(ctx, "alice", token)
		require.NoError(t, err)
		if v.Valid {
			valid++
		}
	}
	assert.Equal(t, 1, valid)
}
