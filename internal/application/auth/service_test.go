package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_Authenticate(t *testing.T) {
	ctx := context.Background()
	svc := NewService("test-secret", "lending-hub", zerolog.Nop())

	t.Run("valid token", func(t *testing.T) {
		token, err := svc.Issue("user-42", time.Hour)
		require.NoError(t, err)

		actor, err := svc.Authenticate(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "user-42", actor.UserID)
		require.NotNil(t, actor.ExpiresAt)
	})

	t.Run("legacy user id claim", func(t *testing.T) {
		claims := Claims{
			User:             &LegacyUser{ID: "legacy-7"},
			RegisteredClaims: jwt.RegisteredClaims{Issuer: "lending-hub"},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
		require.NoError(t, err)

		actor, err := svc.Authenticate(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "legacy-7", actor.UserID)
	})

	t.Run("missing token", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "  ")
		assert.ErrorIs(t, err, ErrMissingToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewService("other-secret", "lending-hub", zerolog.Nop())
		token, err := other.Issue("user-42", time.Hour)
		require.NoError(t, err)

		_, err = svc.Authenticate(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		token, err := svc.Issue("user-42", -time.Minute)
		require.NoError(t, err)

		_, err = svc.Authenticate(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewService("test-secret", "someone-else", zerolog.Nop())
		token, err := other.Issue("user-42", time.Hour)
		require.NoError(t, err)

		_, err = svc.Authenticate(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("no subject", func(t *testing.T) {
		token, err := svc.Issue("", time.Hour)
		require.NoError(t, err)

		_, err = svc.Authenticate(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unsigned token", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "user-42"}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = svc.Authenticate(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unconfigured secret", func(t *testing.T) {
		empty := NewService("", "", zerolog.Nop())
		_, err := empty.Authenticate(ctx, "abc")
		assert.ErrorIs(t, err, ErrNoSecret)
	})
}
