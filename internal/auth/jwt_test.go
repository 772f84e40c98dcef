package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	a := NewJWTAuthenticator("secret", "issuer", "audience")

	signed, err := a.Sign("user-1", "tok-abc", time.Now().Add(time.Hour))
	require.NoError(t, err)

	claims, err := a.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "tok-abc", claims.SessionToken)
	assert.Equal(t, "user-1", claims.Subject)
}

func TestVerifyWrongSecret(t *testing.T) {
	a := NewJWTAuthenticator("secret", "issuer", "audience")
	b := NewJWTAuthenticator("other-secret", "issuer", "audience")

	signed, err := a.Sign("user-1", "tok-abc", time.Now().Add(time.Hour))
	require.NoError(t, err)

	_, err = b.Verify(signed)
	require.Error(t, err)
}

func TestVerifyWrongIssuer(t *testing.T) {
	a := NewJWTAuthenticator("secret", "issuer-a", "audience")
	b := NewJWTAuthenticator("secret", "issuer-b", "audience")

	signed, err := a.Sign("user-1", "tok-abc", time.Now().Add(time.Hour))
	require.NoError(t, err)

	_, err = b.Verify(signed)
	require.Error(t, err)
}

func TestVerifyExpiredCredential(t *testing.T) {
	a := NewJWTAuthenticator("secret", "issuer", "audience")

	signed, err := a.Sign("user-1", "tok-abc", time.Now().Add(-time.Minute))
	require.NoError(t, err)

	_, err = a.Verify(signed)
	require.Error(t, err)
}

func TestVerifyGarbage(t *testing.T) {
	a := NewJWTAuthenticator("secret", "issuer", "audience")

	_, err := a.Verify("not-a-jwt")
	require.Error(t, err)
}
