package auth_test

import (
	"context"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/nidohq/nido-auth"
)

func activeUser(t *testing.T, password string) *auth.User {
	t.Helper()

	hash, err := auth.HashPassword(password)
	require.NoError(t, err)

	return &auth.User{
		ID:           uuid.New(),
		Email:        "renter@example.com",
		Role:         auth.RoleRenter,
		Status:       auth.UserStatusActive,
		PasswordHash: hash,
	}
}

func TestVerifyIdentity(t *testing.T) {
	ctx := context.Background()

	t.Run("correct password yields the identity", func(t *testing.T) {
		store := &MockUserTracker{}
		provider := auth.NewUserProvider(store)

		user := activeUser(t, "password123")

		store.On("GetByIdentifier", ctx, user.Email).Return(user, nil).Once()
		store.On("TrackSuccessfulLogin", ctx, user).Return(nil).Once()

		identity, err := provider.VerifyIdentity(ctx, user.Email, "password123")

		require.NoError(t, err)
		require.NotNil(t, identity)
		assert.Equal(t, user.ID.String(), identity.ID())
		assert.Equal(t, user.Email, identity.Email())
		assert.Equal(t, auth.RoleRenter, identity.Role())
		store.AssertExpectations(t)
	})

	t.Run("wrong password is tracked and rejected", func(t *testing.T) {
		store := &MockUserTracker{}
		provider := auth.NewUserProvider(store)

		user := activeUser(t, "password123")

		store.On("GetByIdentifier", ctx, user.Email).Return(user, nil).Once()
		store.On("TrackAttemptedLogin", ctx, user).Return(nil).Once()

		identity, err := provider.VerifyIdentity(ctx, user.Email, "nope")

		assert.Nil(t, identity)
		assert.ErrorIs(t, err, auth.ErrMismatchedHashAndPassword)
		store.AssertExpectations(t)
	})

	t.Run("unknown email gets the same rejection as a bad password", func(t *testing.T) {
		store := &MockUserTracker{}
		provider := auth.NewUserProvider(store)

		store.On("GetByIdentifier", ctx, "ghost@example.com").
			Return(nil, repository.NewRecordNotFound()).Once()

		identity, err := provider.VerifyIdentity(ctx, "ghost@example.com", "whatever")

		assert.Nil(t, identity)
		assert.ErrorIs(t, err, auth.ErrMismatchedHashAndPassword)
	})

	t.Run("too many attempts triggers the cooldown", func(t *testing.T) {
		store := &MockUserTracker{}
		provider := auth.NewUserProvider(store)

		user := activeUser(t, "password123")
		now := time.Now()
		user.LoginAttempts = auth.MaxLoginAttempts + 1
		user.LoginAttemptAt = &now

		store.On("GetByIdentifier", ctx, user.Email).Return(user, nil).Once()

		identity, err := provider.VerifyIdentity(ctx, user.Email, "password123")

		assert.Nil(t, identity)
		assert.ErrorIs(t, err, auth.ErrTooManyLoginAttempts)
	})

	t.Run("stale attempt counter resets after the cooldown", func(t *testing.T) {
		store := &MockUserTracker{}
		provider := auth.NewUserProvider(store)

		user := activeUser(t, "password123")
		stale := time.Now().Add(-48 * time.Hour)
		user.LoginAttempts = auth.MaxLoginAttempts + 3
		user.LoginAttemptAt = &stale

		store.On("GetByIdentifier", ctx, user.Email).Return(user, nil).Once()
		store.On("TrackSuccessfulLogin", ctx, user).Return(nil).Once()

		identity, err := provider.VerifyIdentity(ctx, user.Email, "password123")

		require.NoError(t, err)
		assert.NotNil(t, identity)
	})

	t.Run("suspended account is refused even with the right password", func(t *testing.T) {
		store := &MockUserTracker{}
		provider := auth.NewUserProvider(store)

		user := activeUser(t, "password123")
		user.Status = auth.UserStatusSuspended

		store.On("GetByIdentifier", ctx, user.Email).Return(user, nil).Once()

		identity, err := provider.VerifyIdentity(ctx, user.Email, "password123")

		assert.Nil(t, identity)
		require.Error(t, err)

		var richErr *goerrors.Error
		require.True(t, goerrors.As(err, &richErr))
		assert.Equal(t, "ACCOUNT_SUSPENDED", richErr.TextCode)
	})

	t.Run("suspended account with a wrong password reveals nothing", func(t *testing.T) {
		store := &MockUserTracker{}
		provider := auth.NewUserProvider(store)

		user := activeUser(t, "password123")
		user.Status = auth.UserStatusSuspended

		store.On("GetByIdentifier", ctx, user.Email).Return(user, nil).Once()
		store.On("TrackAttemptedLogin", ctx, user).Return(nil).Once()

		identity, err := provider.VerifyIdentity(ctx, user.Email, "nope")

		assert.Nil(t, identity)
		assert.ErrorIs(t, err, auth.ErrMismatchedHashAndPassword)
	})

	t.Run("invalid role fails validation", func(t *testing.T) {
		store := &MockUserTracker{}
		provider := auth.NewUserProvider(store)

		user := activeUser(t, "password123")
		user.Role = "superuser"

		store.On("GetByIdentifier", ctx, user.Email).Return(user, nil).Once()
		store.On("TrackSuccessfulLogin", ctx, user).Return(nil).Once()

		identity, err := provider.VerifyIdentity(ctx, user.Email, "password123")

		assert.Nil(t, identity)
		require.Error(t, err)

		var richErr *goerrors.Error
		require.True(t, goerrors.As(err, &richErr))
		assert.Equal(t, "INVALID_ROLE", richErr.TextCode)
	})

	t.Run("custom validator overrides the default", func(t *testing.T) {
		store := &MockUserTracker{}
		provider := auth.NewUserProvider(store)
		provider.Validator = func(u *auth.User) error { return nil }

		user := activeUser(t, "password123")
		user.Role = "superuser"

		store.On("GetByIdentifier", ctx, user.Email).Return(user, nil).Once()
		store.On("TrackSuccessfulLogin", ctx, user).Return(nil).Once()

		identity, err := provider.VerifyIdentity(ctx, user.Email, "password123")

		require.NoError(t, err)
		assert.NotNil(t, identity)
	})
}

func TestFindIdentityByIdentifier(t *testing.T) {
	ctx := context.Background()

	t.Run("resolves without a password", func(t *testing.T) {
		store := &MockUserTracker{}
		provider := auth.NewUserProvider(store)

		user := activeUser(t, "irrelevant")

		store.On("GetByIdentifier", ctx, user.ID.String()).Return(user, nil).Once()

		identity, err := provider.FindIdentityByIdentifier(ctx, user.ID.String())

		require.NoError(t, err)
		assert.Equal(t, user.Email, identity.Email())
	})

	t.Run("missing user surfaces the store error", func(t *testing.T) {
		store := &MockUserTracker{}
		provider := auth.NewUserProvider(store)

		store.On("GetByIdentifier", ctx, "missing").
			Return(nil, repository.NewRecordNotFound()).Once()

		identity, err := provider.FindIdentityByIdentifier(ctx, "missing")

		assert.Nil(t, identity)
		assert.Error(t, err)
	})
}
