// Package v1 provides session-registry and authentication business logic for
// API version 1.
//
// Error Handling:
// This package defines sentinel errors that represent common failures.
// These errors should be wrapped with context using fmt.Errorf("%w") when returned
// from business logic methods.
//
// Example Usage:
//
//	if user == nil {
//	    return nil, fmt.Errorf("create session for user %q: %w", userID, ErrUserNotFound)
//	}
//
// Error Checking (in handlers):
//
//	switch {
//	case errors.Is(err, logicv1.ErrUserNotFound):
//	    c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
//	case errors.Is(err, logicv1.ErrStorageUnavailable):
//	    c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service unavailable"})
//	default:
//	    c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
//	}
//
// An invalid session is NOT an error: validation returns a Validation value
// with a reason, because stale and superseded tokens are routine traffic.
package v1

import "errors"

// Sentinel errors for registry and authentication operations.
// These errors should be wrapped with context using fmt.Errorf("%w") when returned.
var (
	// ErrInvalidCredentials indicates the provided credentials are incorrect.
	// HTTP Status: 401 Unauthorized
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUserNotFound indicates the user does not exist in the system.
	// A session can never be issued for an unknown principal.
	// HTTP Status: 401 Unauthorized (don't reveal user existence)
	ErrUserNotFound = errors.New("user not found")

	// ErrUserExists indicates the email already exists in the system.
	// HTTP Status: 409 Conflict
	ErrUserExists = errors.New("user already exists")

	// ErrStorageUnavailable indicates the persistence layer failed. Callers
	// must surface this as a retryable 5xx, never as "unauthenticated".
	// HTTP Status: 503 Service Unavailable
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrStaleToken indicates an extend was attempted with a token that is
	// no longer the user's current session.
	// HTTP Status: 401 Unauthorized
	ErrStaleToken = errors.New("stale session token")
)
