package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/talentbase/session-registry/internal/core/domain"
)

const userCollection = "users"

// MongoUserRepository implements domain.UserRepository on a MongoDB users
// collection.
type MongoUserRepository struct {
	db *mongo.Database
}

// NewMongoUserRepository creates the repository and ensures the unique email
// index exists.
func NewMongoUserRepository(ctx context.Context, db *mongo.Database) (*MongoUserRepository, error) {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	if _, err := db.Collection(userCollection).Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, fmt.Errorf("create user indexes: %w", err)
	}

	return &MongoUserRepository{db: db}, nil
}

type mongoUser struct {
	ID           bson.ObjectID `bson:"_id,omitempty"`
	Email        string        `bson:"email"`
	PasswordHash string        `bson:"password_hash"`
	CreatedAt    time.Time     `bson:"created_at"`
}

// GetByEmail returns the user matching the given email.
// Returns (nil, nil) when no user is found.
func (r *MongoUserRepository) GetByEmail(ctx context.Context, email string) (*domain.UserRow, error) {
	var doc mongoUser
	err := r.db.Collection(userCollection).FindOne(ctx, bson.M{"email": email}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}

	return &domain.UserRow{
		ID:           doc.ID.Hex(),
		Email:        doc.Email,
		PasswordHash: doc.PasswordHash,
	}, nil
}

// GetByID returns the user with the given id.
// Returns (nil, nil) when no user is found.
func (r *MongoUserRepository) GetByID(ctx context.Context, userID string) (*domain.UserRow, error) {
	objectID, err := bson.ObjectIDFromHex(userID)
	if err != nil {
		return nil, nil
	}

	var doc mongoUser
	err = r.db.Collection(userCollection).FindOne(ctx, bson.M{"_id": objectID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}

	return &domain.UserRow{
		ID:           doc.ID.Hex(),
		Email:        doc.Email,
		PasswordHash: doc.PasswordHash,
	}, nil
}

// ExistsByEmail returns true when a user with the given email already exists.
func (r *MongoUserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	count, err := r.db.Collection(userCollection).CountDocuments(ctx, bson.M{"email": email})
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// Create inserts a new user and returns the generated user ID.
func (r *MongoUserRepository) Create(ctx context.Context, email, passwordHash string) (string, error) {
	doc := mongoUser{
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}

	result, err := r.db.Collection(userCollection).InsertOne(ctx, doc)
	if err != nil {
		return "", err
	}

	objectID, ok := result.InsertedID.(bson.ObjectID)
	if !ok {
		return "", errors.New("failed to convert inserted ID to ObjectID")
	}

	return objectID.Hex(), nil
}

// UpdateLastLogin sets the last_login timestamp to now for the given user.
func (r *MongoUserRepository) UpdateLastLogin(ctx context.Context, userID string) error {
	objectID, err := bson.ObjectIDFromHex(userID)
	if err != nil {
		return err
	}

	_, err = r.db.Collection(userCollection).UpdateByID(ctx, objectID, bson.M{
		"$set": bson.M{"last_login": time.Now()},
	})
	return err
}
