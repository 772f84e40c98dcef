package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/talentbase/session-registry/internal/core/domain"
)

var (
	usersBucket      = []byte("users")
	emailIndexBucket = []byte("users_by_email")
)

// boltUser is the JSON record stored per user. The session slot lives on the
// same record; bbolt serializes writers, so every read-modify-write below is
// one atomic per-record update.
type boltUser struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	PasswordHash     string     `json:"password_hash"`
	LastLogin        *time.Time `json:"last_login,omitempty"`
	SessionToken     string     `json:"session_token,omitempty"`
	SessionIssuedAt  *time.Time `json:"session_issued_at,omitempty"`
	SessionExpiresAt *time.Time `json:"session_expires_at,omitempty"`
}

// BoltStore implements domain.UserRepository and domain.SessionRepository on
// an embedded bbolt database, for single-binary deployments.
type BoltStore struct {
	db *bbolt.DB
}

var (
	_ domain.UserRepository    = (*BoltStore)(nil)
	_ domain.SessionRepository = (*BoltStore)(nil)
)

// NewBoltStore opens the database at path and creates the buckets.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(usersBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(emailIndexBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func getBoltUser(tx *bbolt.Tx, userID string) (*boltUser, error) {
	data := tx.Bucket(usersBucket).Get([]byte(userID))
	if data == nil {
		return nil, nil
	}

	var u boltUser
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", userID, err)
	}
	return &u, nil
}

func putBoltUser(tx *bbolt.Tx, u *boltUser) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return tx.Bucket(usersBucket).Put([]byte(u.ID), data)
}

// GetByEmail returns the user matching the given email.
// Returns (nil, nil) when no user is found.
func (s *BoltStore) GetByEmail(ctx context.Context, email string) (*domain.UserRow, error) {
	var row *domain.UserRow
	err := s.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(emailIndexBucket).Get([]byte(email))
		if id == nil {
			return nil
		}
		u, err := getBoltUser(tx, string(id))
		if err != nil || u == nil {
			return err
		}
		row = &domain.UserRow{ID: u.ID, Email: u.Email, PasswordHash: u.PasswordHash}
		return nil
	})
	return row, err
}

// GetByID returns the user with the given id.
// Returns (nil, nil) when no user is found.
func (s *BoltStore) GetByID(ctx context.Context, userID string) (*domain.UserRow, error) {
	var row *domain.UserRow
	err := s.db.View(func(tx *bbolt.Tx) error {
		u, err := getBoltUser(tx, userID)
		if err != nil || u == nil {
			return err
		}
		row = &domain.UserRow{ID: u.ID, Email: u.Email, PasswordHash: u.PasswordHash}
		return nil
	})
	return row, err
}

// ExistsByEmail returns true when a user with the given email already exists.
func (s *BoltStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		exists = tx.Bucket(emailIndexBucket).Get([]byte(email)) != nil
		return nil
	})
	return exists, err
}

// Create inserts a new user and returns the generated user ID.
func (s *BoltStore) Create(ctx context.Context, email, passwordHash string) (string, error) {
	userID := uuid.NewString()
	err := s.db.Update(func(tx *bbolt.Tx) error {
		idx := tx.Bucket(emailIndexBucket)
		if idx.Get([]byte(email)) != nil {
			return fmt.Errorf("user with email %q already exists", email)
		}
		if err := idx.Put([]byte(email), []byte(userID)); err != nil {
			return err
		}
		return putBoltUser(tx, &boltUser{ID: userID, Email: email, PasswordHash: passwordHash})
	})
	if err != nil {
		return "", err
	}
	return userID, nil
}

// UpdateLastLogin sets the last_login timestamp to now for the given user.
func (s *BoltStore) UpdateLastLogin(ctx context.Context, userID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		u, err := getBoltUser(tx, userID)
		if err != nil || u == nil {
			return err
		}
		now := time.Now()
		u.LastLogin = &now
		return putBoltUser(tx, u)
	})
}

// Get returns the session slot for the given user.
// Returns (nil, nil) when the user does not exist.
func (s *BoltStore) Get(ctx context.Context, userID string) (*domain.SessionRecord, error) {
	var rec *domain.SessionRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		u, err := getBoltUser(tx, userID)
		if err != nil || u == nil {
			return err
		}
		rec = &domain.SessionRecord{UserID: u.ID, Token: u.SessionToken}
		if u.SessionIssuedAt != nil {
			rec.IssuedAt = *u.SessionIssuedAt
		}
		if u.SessionExpiresAt != nil {
			rec.ExpiresAt = *u.SessionExpiresAt
		}
		return nil
	})
	return rec, err
}

// Replace unconditionally overwrites the user's session slot.
// Returns false when the user does not exist.
func (s *BoltStore) Replace(ctx context.Context, userID, token string, issuedAt, expiresAt time.Time) (bool, error) {
	var found bool
	err := s.db.Update(func(tx *bbolt.Tx) error {
		u, err := getBoltUser(tx, userID)
		if err != nil || u == nil {
			return err
		}
		found = true
		u.SessionToken = token
		u.SessionIssuedAt = &issuedAt
		u.SessionExpiresAt = &expiresAt
		return putBoltUser(tx, u)
	})
	return found, err
}

// Clear nulls the user's session slot. A no-op for unknown users and
// already-empty slots.
func (s *BoltStore) Clear(ctx context.Context, userID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		u, err := getBoltUser(tx, userID)
		if err != nil || u == nil {
			return err
		}
		u.SessionToken = ""
		u.SessionIssuedAt = nil
		u.SessionExpiresAt = nil
		return putBoltUser(tx, u)
	})
}

// ExtendIfMatch sets a new expiry only when the stored token matches.
func (s *BoltStore) ExtendIfMatch(ctx context.Context, userID, token string, expiresAt time.Time) (bool, error) {
	var extended bool
	err := s.db.Update(func(tx *bbolt.Tx) error {
		u, err := getBoltUser(tx, userID)
		if err != nil || u == nil {
			return err
		}
		if u.SessionToken == "" || u.SessionToken != token {
			return nil
		}
		extended = true
		u.SessionExpiresAt = &expiresAt
		return putBoltUser(tx, u)
	})
	return extended, err
}

// ClearExpired nulls every slot whose expiry has passed and returns the
// number of records cleared.
func (s *BoltStore) ClearExpired(ctx context.Context, now time.Time) (int64, error) {
	var cleared int64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		// Collect first; mutating a bucket invalidates its cursor.
		var stale []boltUser
		c := tx.Bucket(usersBucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var u boltUser
			if err := json.Unmarshal(v, &u); err != nil {
				return fmt.Errorf("decode user %s: %w", k, err)
			}
			if u.SessionExpiresAt != nil && u.SessionExpiresAt.Before(now) {
				stale = append(stale, u)
			}
		}

		for i := range stale {
			u := &stale[i]
			u.SessionToken = ""
			u.SessionIssuedAt = nil
			u.SessionExpiresAt = nil
			if err := putBoltUser(tx, u); err != nil {
				return err
			}
			cleared++
		}
		return nil
	})
	return cleared, err
}
