package v1

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/talentbase/session-registry/internal/auth"
	"github.com/talentbase/session-registry/internal/logger"
	logicv1 "github.com/talentbase/session-registry/internal/logic/v1"
)

// Gin context keys set by RequireSession for downstream handlers.
const (
	ContextUserID       = "user_id"
	ContextSessionToken = "session_token"
)

// RequireSession authenticates a request. The bearer JWT is verified for
// signature and expiry first, then the embedded session token is checked
// against the registry. Enforcement is strict: a superseded, logged-out or
// expired session is rejected even when the JWT itself still verifies —
// otherwise server-side invalidation would be meaningless. The registry's
// reason goes to the log only; clients always see the same generic body.
func RequireSession(registry *logicv1.SessionRegistry, jwtAuth auth.JWTAuthenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.FromContext(c.Request.Context())

		claims, ok := bearerClaims(c, jwtAuth)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		validation, err := registry.ValidateSession(c.Request.Context(), claims.UserID, claims.SessionToken)
		if err != nil {
			// Storage failure is retryable, not "unauthenticated".
			log.Error().Err(err).Msg("Session validation unavailable")
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Service unavailable"})
			return
		}
		if !validation.Valid {
			log.Debug().
				Str("user_id", claims.UserID).
				Str("reason", validation.Reason).
				Msg("Session rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextSessionToken, claims.SessionToken)
		c.Next()
	}
}

func bearerClaims(c *gin.Context, jwtAuth auth.JWTAuthenticator) (*auth.SessionClaims, bool) {
	log := logger.FromContext(c.Request.Context())

	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return nil, false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return nil, false
	}

	claims, err := jwtAuth.Verify(parts[1])
	if err != nil {
		log.Debug().Err(err).Msg("Bearer credential rejected")
		return nil, false
	}

	return claims, true
}

// currentUserID returns the authenticated user id set by RequireSession.
func currentUserID(c *gin.Context) (string, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

func currentSessionToken(c *gin.Context) (string, bool) {
	v, ok := c.Get(ContextSessionToken)
	if !ok {
		return "", false
	}
	token, ok := v.(string)
	return token, ok && token != ""
}

// writeAuthError maps logic-layer errors onto HTTP responses without leaking
// which precondition failed.
func writeAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, logicv1.ErrInvalidCredentials),
		errors.Is(err, logicv1.ErrUserNotFound),
		errors.Is(err, logicv1.ErrStaleToken):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
	case errors.Is(err, logicv1.ErrUserExists):
		c.JSON(http.StatusConflict, gin.H{"error": "Email already registered"})
	case errors.Is(err, logicv1.ErrStorageUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
