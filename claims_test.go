package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"

	auth "github.com/nidohq/nido-auth"
)

func sampleClaims() *auth.JWTClaims {
	now := time.Now()
	return &auth.JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "9f2c7d10-0000-0000-0000-000000000001",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(15 * time.Minute)),
		},
		UserEmail: "host@example.com",
		RoleSet:   []string{auth.RoleHost, auth.RoleRenter},
	}
}

func TestJWTClaims(t *testing.T) {
	t.Run("accessors", func(t *testing.T) {
		claims := sampleClaims()

		assert.Equal(t, "9f2c7d10-0000-0000-0000-000000000001", claims.Subject())
		assert.Equal(t, claims.Subject(), claims.UserID())
		assert.Equal(t, "host@example.com", claims.Email())
		assert.Equal(t, auth.RoleHost, claims.Role())
		assert.Equal(t, []string{auth.RoleHost, auth.RoleRenter}, claims.Roles())
	})

	t.Run("uid overrides subject for user id", func(t *testing.T) {
		claims := sampleClaims()
		claims.UID = "override-id"

		assert.Equal(t, "override-id", claims.UserID())
		assert.NotEqual(t, claims.UserID(), claims.Subject())
	})

	t.Run("role membership", func(t *testing.T) {
		claims := sampleClaims()

		assert.True(t, claims.HasRole(auth.RoleHost))
		assert.True(t, claims.HasRole(auth.RoleRenter))
		assert.False(t, claims.HasRole(auth.RoleAdmin))
	})

	t.Run("empty role set", func(t *testing.T) {
		claims := &auth.JWTClaims{}

		assert.Empty(t, claims.Role())
		assert.False(t, claims.HasRole(auth.RoleRenter))
	})

	t.Run("timestamps tolerate missing claims", func(t *testing.T) {
		claims := sampleClaims()
		assert.False(t, claims.Expires().IsZero())
		assert.False(t, claims.IssuedAt().IsZero())

		bare := &auth.JWTClaims{}
		assert.True(t, bare.Expires().IsZero())
		assert.True(t, bare.IssuedAt().IsZero())
	})
}

func TestClaimsContext(t *testing.T) {
	t.Run("claims round trip through context", func(t *testing.T) {
		claims := sampleClaims()
		ctx := auth.WithClaimsContext(context.Background(), claims)

		got, ok := auth.GetClaims(ctx)
		assert.True(t, ok)
		assert.Equal(t, claims.Subject(), got.Subject())
	})

	t.Run("missing claims", func(t *testing.T) {
		_, ok := auth.GetClaims(context.Background())
		assert.False(t, ok)
		assert.False(t, auth.HasRole(context.Background(), auth.RoleAdmin))
	})

	t.Run("role check from context", func(t *testing.T) {
		ctx := auth.WithClaimsContext(context.Background(), sampleClaims())

		assert.True(t, auth.HasRole(ctx, auth.RoleHost))
		assert.False(t, auth.HasRole(ctx, auth.RoleAdmin))
	})

	t.Run("user round trip through context", func(t *testing.T) {
		user := &auth.User{Email: "host@example.com"}
		ctx := auth.WithContext(context.Background(), user)

		got, ok := auth.FromContext(ctx)
		assert.True(t, ok)
		assert.Equal(t, user.Email, got.Email)

		_, ok = auth.FromContext(context.Background())
		assert.False(t, ok)
	})
}
