package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/talentbase/session-registry/internal/auth"
	"github.com/talentbase/session-registry/internal/core/domain"
	"github.com/talentbase/session-registry/internal/logger"
	logicv1 "github.com/talentbase/session-registry/internal/logic/v1"
	"github.com/talentbase/session-registry/middleware"
)

// Handler groups HTTP handlers for the auth API v1.
// Dependencies are injected via the constructor — no global state.
type Handler struct {
	auth     *logicv1.AuthService
	registry *logicv1.SessionRegistry
	jwt      auth.JWTAuthenticator
}

// NewHandler creates a new Handler.
func NewHandler(authSvc *logicv1.AuthService, registry *logicv1.SessionRegistry, jwtAuth auth.JWTAuthenticator) *Handler {
	return &Handler{auth: authSvc, registry: registry, jwt: jwtAuth}
}

// RegisterRoutes registers all auth API v1 routes on the given router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/auth/login", h.Login)
	rg.POST("/auth/register", h.Register)

	authed := rg.Group("", RequireSession(h.registry, h.jwt))
	authed.GET("/auth/me", h.GetMe)
	authed.POST("/auth/logout", h.Logout)
	authed.POST("/auth/session/extend", h.ExtendSession)
}

// RegisterInternalRoutes registers operator-only routes. These are expected
// to be reachable only from inside the deployment.
func (h *Handler) RegisterInternalRoutes(rg *gin.RouterGroup) {
	rg.POST("/sessions/cleanup", h.CleanupSessions)
}

// Login handles HTTP request for user login.
func (h *Handler) Login(c *gin.Context) {
	ctx, span := middleware.StartSpan(c.Request.Context(), "http.request", trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("path", c.Request.URL.Path),
	))
	defer span.End()

	log := logger.FromContext(ctx)

	var req domain.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetAttributes(attribute.Bool("request.valid", false))
		span.RecordError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	span.SetAttributes(attribute.Bool("request.valid", true))

	response, err := h.auth.Login(ctx, req)
	if err != nil {
		span.RecordError(err)
		// Routine at volume; warn, not error.
		log.Warn().Err(err).Msg("Login failed")
		writeAuthError(c, err)
		return
	}

	log.Info().Str("user_id", response.User.ID).Msg("Login successful")
	c.JSON(http.StatusOK, response)
}

// Register handles HTTP request for user registration.
func (h *Handler) Register(c *gin.Context) {
	ctx, span := middleware.StartSpan(c.Request.Context(), "http.request", trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("path", c.Request.URL.Path),
	))
	defer span.End()

	log := logger.FromContext(ctx)

	var req domain.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetAttributes(attribute.Bool("request.valid", false))
		span.RecordError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	span.SetAttributes(attribute.Bool("request.valid", true))

	response, err := h.auth.Register(ctx, req)
	if err != nil {
		span.RecordError(err)
		log.Warn().Err(err).Msg("Registration failed")
		writeAuthError(c, err)
		return
	}

	log.Info().Str("user_id", response.User.ID).Msg("Registration successful")
	c.JSON(http.StatusCreated, response)
}

// GetMe returns the authenticated user.
// GET /api/v1/auth/me
// Authorization: Bearer <token>
func (h *Handler) GetMe(c *gin.Context) {
	ctx, span := middleware.StartSpan(c.Request.Context(), "http.request", trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("path", c.Request.URL.Path),
	))
	defer span.End()

	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	user, err := h.auth.GetUser(ctx, userID)
	if err != nil {
		span.RecordError(err)
		logger.FromContext(ctx).Warn().Err(err).Msg("User lookup failed")
		writeAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// Logout invalidates the caller's session. The bearer credential stops
// validating immediately, even though its signature is still intact.
func (h *Handler) Logout(c *gin.Context) {
	ctx, span := middleware.StartSpan(c.Request.Context(), "http.request", trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("path", c.Request.URL.Path),
	))
	defer span.End()

	log := logger.FromContext(ctx)

	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	if err := h.auth.Logout(ctx, userID); err != nil {
		span.RecordError(err)
		log.Error().Err(err).Msg("Logout failed")
		writeAuthError(c, err)
		return
	}

	log.Info().Str("user_id", userID).Msg("Logged out")
	c.Status(http.StatusNoContent)
}

// ExtendSession pushes the caller's session expiry out by one TTL and
// returns a re-signed credential. The session token itself never changes.
func (h *Handler) ExtendSession(c *gin.Context) {
	ctx, span := middleware.StartSpan(c.Request.Context(), "http.request", trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("path", c.Request.URL.Path),
	))
	defer span.End()

	log := logger.FromContext(ctx)

	userID, ok := currentUserID(c)
	token, tokenOK := currentSessionToken(c)
	if !ok || !tokenOK {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	response, err := h.auth.Extend(ctx, userID, token)
	if err != nil {
		span.RecordError(err)
		log.Warn().Err(err).Str("user_id", userID).Msg("Session extend failed")
		writeAuthError(c, err)
		return
	}

	log.Info().
		Str("user_id", userID).
		Time("expires_at", response.ExpiresAt).
		Msg("Session extended")
	c.JSON(http.StatusOK, response)
}

// CleanupSessions runs the expired-session sweep and reports the count.
// POST /internal/sessions/cleanup
func (h *Handler) CleanupSessions(c *gin.Context) {
	ctx, span := middleware.StartSpan(c.Request.Context(), "http.request", trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("path", c.Request.URL.Path),
	))
	defer span.End()

	log := logger.FromContext(ctx)

	count, err := h.registry.CleanupExpired(ctx)
	if err != nil {
		span.RecordError(err)
		log.Error().Err(err).Msg("Session cleanup failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service unavailable"})
		return
	}

	log.Info().Int64("cleaned", count).Msg("Session cleanup complete")
	c.JSON(http.StatusOK, gin.H{"cleaned": count})
}
