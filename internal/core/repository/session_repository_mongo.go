package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/talentbase/session-registry/internal/core/domain"
)

// MongoSessionRepository implements domain.SessionRepository with the session
// slot embedded in the users collection document. MongoDB applies each
// single-document update atomically, which gives the per-record atomicity the
// slot contract requires.
type MongoSessionRepository struct {
	db *mongo.Database
}

// NewMongoSessionRepository creates a new MongoSessionRepository.
func NewMongoSessionRepository(db *mongo.Database) *MongoSessionRepository {
	return &MongoSessionRepository{db: db}
}

type mongoSessionSlot struct {
	ID        bson.ObjectID `bson:"_id"`
	Token     *string       `bson:"session_token,omitempty"`
	IssuedAt  *time.Time    `bson:"session_issued_at,omitempty"`
	ExpiresAt *time.Time    `bson:"session_expires_at,omitempty"`
}

// Get returns the session slot for the given user.
// Returns (nil, nil) when the user does not exist.
func (r *MongoSessionRepository) Get(ctx context.Context, userID string) (*domain.SessionRecord, error) {
	objectID, err := bson.ObjectIDFromHex(userID)
	if err != nil {
		// Malformed ids cannot reference any user.
		return nil, nil
	}

	var doc mongoSessionSlot
	err = r.db.Collection(userCollection).FindOne(ctx, bson.M{"_id": objectID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}

	rec := domain.SessionRecord{UserID: doc.ID.Hex()}
	if doc.Token != nil {
		rec.Token = *doc.Token
	}
	if doc.IssuedAt != nil {
		rec.IssuedAt = *doc.IssuedAt
	}
	if doc.ExpiresAt != nil {
		rec.ExpiresAt = *doc.ExpiresAt
	}

	return &rec, nil
}

// Replace unconditionally overwrites the user's session slot.
// Returns false when the user does not exist.
func (r *MongoSessionRepository) Replace(ctx context.Context, userID, token string, issuedAt, expiresAt time.Time) (bool, error) {
	objectID, err := bson.ObjectIDFromHex(userID)
	if err != nil {
		return false, nil
	}

	result, err := r.db.Collection(userCollection).UpdateByID(ctx, objectID, bson.M{
		"$set": bson.M{
			"session_token":      token,
			"session_issued_at":  issuedAt,
			"session_expires_at": expiresAt,
		},
	})
	if err != nil {
		return false, err
	}

	return result.MatchedCount > 0, nil
}

// Clear nulls the user's session slot. A no-op for unknown users and
// already-empty slots.
func (r *MongoSessionRepository) Clear(ctx context.Context, userID string) error {
	objectID, err := bson.ObjectIDFromHex(userID)
	if err != nil {
		return nil
	}

	_, err = r.db.Collection(userCollection).UpdateByID(ctx, objectID, bson.M{
		"$unset": bson.M{
			"session_token":      "",
			"session_issued_at":  "",
			"session_expires_at": "",
		},
	})
	return err
}

// ExtendIfMatch sets a new expiry only when the stored token matches.
func (r *MongoSessionRepository) ExtendIfMatch(ctx context.Context, userID, token string, expiresAt time.Time) (bool, error) {
	objectID, err := bson.ObjectIDFromHex(userID)
	if err != nil {
		return false, nil
	}

	result, err := r.db.Collection(userCollection).UpdateOne(ctx,
		bson.M{"_id": objectID, "session_token": token},
		bson.M{"$set": bson.M{"session_expires_at": expiresAt}},
	)
	if err != nil {
		return false, err
	}

	return result.MatchedCount > 0, nil
}

// ClearExpired nulls every slot whose expiry has passed and returns the
// number of documents cleared.
func (r *MongoSessionRepository) ClearExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.Collection(userCollection).UpdateMany(ctx,
		bson.M{"session_expires_at": bson.M{"$lt": now}},
		bson.M{"$unset": bson.M{
			"session_token":      "",
			"session_issued_at":  "",
			"session_expires_at": "",
		}},
	)
	if err != nil {
		return 0, err
	}

	return result.ModifiedCount, nil
}
