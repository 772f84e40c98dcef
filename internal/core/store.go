// Package core wires the configured storage backend and exposes the
// repository implementations behind the domain contracts.
package core

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/talentbase/session-registry/config"
	"github.com/talentbase/session-registry/internal/core/domain"
	"github.com/talentbase/session-registry/internal/core/repository"
)

// Store bundles the repositories for the selected backend together with the
// handles main needs for shutdown.
type Store struct {
	Users    domain.UserRepository
	Sessions domain.SessionRepository

	pool  *pgxpool.Pool
	mongo *mongo.Client
	bolt  *repository.BoltStore
}

// Connect opens the backend named by cfg.Storage.Backend and verifies
// connectivity before returning.
func Connect(ctx context.Context, cfg *config.Config) (*Store, error) {
	switch cfg.Storage.Backend {
	case "postgres":
		return connectPostgres(ctx, cfg.Storage.PostgresURL)
	case "mongo":
		return connectMongo(ctx, cfg.Storage.MongoURI, cfg.Storage.MongoDatabase)
	case "bolt":
		return openBolt(cfg.Storage.BoltPath)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func connectPostgres(ctx context.Context, url string) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Store{
		Users:    repository.NewUserRepository(pool),
		Sessions: repository.NewSessionRepository(pool),
		pool:     pool,
	}, nil
}

func connectMongo(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	users, err := repository.NewMongoUserRepository(ctx, db)
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return &Store{
		Users:    users,
		Sessions: repository.NewMongoSessionRepository(db),
		mongo:    client,
	}, nil
}

func openBolt(path string) (*Store, error) {
	store, err := repository.NewBoltStore(path)
	if err != nil {
		return nil, err
	}

	return &Store{
		Users:    store,
		Sessions: store,
		bolt:     store,
	}, nil
}

// Close releases the backend's resources.
func (s *Store) Close(ctx context.Context) error {
	switch {
	case s.pool != nil:
		s.pool.Close()
		return nil
	case s.mongo != nil:
		return s.mongo.Disconnect(ctx)
	case s.bolt != nil:
		return s.bolt.Close()
	}
	return nil
}
