package v1

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"

	"github.com/talentbase/session-registry/internal/auth"
	"github.com/talentbase/session-registry/internal/core/domain"
	"github.com/talentbase/session-registry/middleware"
)

// AuthService implements the login, registration and logout flows on top of
// the SessionRegistry. It depends on repository interfaces (injected via
// constructor) and MUST NOT access the database directly.
type AuthService struct {
	users    domain.UserRepository
	registry *SessionRegistry
	jwt      auth.JWTAuthenticator
}

// NewAuthService creates a new AuthService with the given dependencies.
func NewAuthService(users domain.UserRepository, registry *SessionRegistry, jwt auth.JWTAuthenticator) *AuthService {
	return &AuthService{
		users:    users,
		registry: registry,
		jwt:      jwt,
	}
}

// Login verifies credentials, issues a fresh session (superseding any prior
// one for this user) and returns the signed bearer credential.
func (s *AuthService) Login(ctx context.Context, req domain.LoginRequest) (*domain.AuthResponse, error) {
	ctx, span := middleware.StartSpan(ctx, "auth.login", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	row, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query user by email: %w (%w)", err, ErrStorageUnavailable)
	}
	if row == nil {
		span.SetAttributes(attribute.Bool("auth.success", false))
		span.AddEvent("authentication.failed")
		return nil, fmt.Errorf("authenticate user: %w", ErrUserNotFound)
	}

	err = bcrypt.CompareHashAndPassword([]byte(row.PasswordHash), []byte(req.Password))
	if err != nil {
		span.SetAttributes(attribute.Bool("auth.success", false))
		span.AddEvent("authentication.failed")
		return nil, fmt.Errorf("authenticate user %q: %w", row.ID, ErrInvalidCredentials)
	}

	// Best-effort; a failed timestamp update must not fail the login.
	if updateErr := s.users.UpdateLastLogin(ctx, row.ID); updateErr != nil {
		span.RecordError(fmt.Errorf("update last_login: %w", updateErr))
	}

	return s.issueCredential(ctx, span, row)
}

// Register creates a new user, issues their first session and returns the
// signed bearer credential.
func (s *AuthService) Register(ctx context.Context, req domain.RegisterRequest) (*domain.AuthResponse, error) {
	ctx, span := middleware.StartSpan(ctx, "auth.register", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("hash password: %w", err)
	}

	exists, err := s.users.ExistsByEmail(ctx, req.Email)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("check existing user: %w (%w)", err, ErrStorageUnavailable)
	}
	if exists {
		span.SetAttributes(attribute.Bool("registration.success", false))
		return nil, fmt.Errorf("register user: %w", ErrUserExists)
	}

	userID, err := s.users.Create(ctx, req.Email, string(passwordHash))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("insert user: %w (%w)", err, ErrStorageUnavailable)
	}

	span.SetAttributes(attribute.Bool("registration.success", true))
	span.AddEvent("user.registered")

	return s.issueCredential(ctx, span, &domain.UserRow{ID: userID, Email: req.Email})
}

func (s *AuthService) issueCredential(ctx context.Context, span trace.Span, row *domain.UserRow) (*domain.AuthResponse, error) {
	session, err := s.registry.CreateSession(ctx, row.ID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("issue session: %w", err)
	}

	signed, err := s.jwt.Sign(row.ID, session.Token, session.ExpiresAt)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("sign credential: %w", err)
	}

	span.SetAttributes(
		attribute.String("user.id", row.ID),
		attribute.Bool("auth.success", true),
	)
	span.AddEvent("user.authenticated")

	return &domain.AuthResponse{
		Token:     signed,
		ExpiresAt: session.ExpiresAt,
		User:      domain.User{ID: row.ID, Email: row.Email},
	}, nil
}

// GetUser returns the public user record for an authenticated principal.
func (s *AuthService) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	row, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("query user %q: %w (%w)", userID, err, ErrStorageUnavailable)
	}
	if row == nil {
		return nil, fmt.Errorf("lookup user %q: %w", userID, ErrUserNotFound)
	}
	return &domain.User{ID: row.ID, Email: row.Email}, nil
}

// Logout invalidates the user's current session. Idempotent.
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	return s.registry.InvalidateSession(ctx, userID)
}

// Extend pushes the current session's expiry out and returns a re-signed
// credential carrying the unchanged session token.
func (s *AuthService) Extend(ctx context.Context, userID, sessionToken string) (*domain.AuthResponse, error) {
	ctx, span := middleware.StartSpan(ctx, "auth.extend", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("user.id", userID),
	))
	defer span.End()

	session, err := s.registry.ExtendSession(ctx, userID, sessionToken)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	signed, err := s.jwt.Sign(userID, session.Token, session.ExpiresAt)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("sign credential: %w", err)
	}

	return &domain.AuthResponse{
		Token:     signed,
		ExpiresAt: session.ExpiresAt,
		User:      domain.User{ID: userID},
	}, nil
}
