// Package auth signs and verifies the bearer credential issued to clients.
// The credential is a JWT whose payload carries the user id and the raw
// session token; the signature check proves integrity before the session
// registry is consulted for server-side validity.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims is the payload of the bearer credential.
type SessionClaims struct {
	UserID       string `json:"uid"`
	SessionToken string `json:"st"`
	jwt.RegisteredClaims
}

// JWTAuthenticator signs and verifies session-bearing JWTs with HS256.
type JWTAuthenticator struct {
	secret   string
	issuer   string
	audience string
}

// NewJWTAuthenticator creates a new JWTAuthenticator instance.
func NewJWTAuthenticator(secret, issuer, audience string) JWTAuthenticator {
	return JWTAuthenticator{
		secret:   secret,
		issuer:   issuer,
		audience: audience,
	}
}

// Sign produces a bearer credential for the given user and session token.
// The JWT expiry mirrors the session expiry; the registry remains the
// authority on validity regardless.
func (a *JWTAuthenticator) Sign(userID, sessionToken string, expiresAt time.Time) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		UserID:       userID,
		SessionToken: sessionToken,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    a.issuer,
			Audience:  jwt.ClaimStrings{a.audience},
			Subject:   userID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.secret))
}

// Verify checks the credential's signature and registered claims and returns
// the embedded session claims.
func (a *JWTAuthenticator) Verify(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(a.secret), nil
	},
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(a.issuer),
		jwt.WithAudience(a.audience),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
	)
	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.UserID == "" || claims.SessionToken == "" {
		return nil, errors.New("credential missing session claims")
	}

	return claims, nil
}
