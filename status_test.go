package auth_test

import (
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/nidohq/nido-auth"
)

func TestStatusAuthError(t *testing.T) {
	t.Run("active accounts pass", func(t *testing.T) {
		assert.NoError(t, auth.StatusAuthError(auth.UserStatusActive))
	})

	cases := []struct {
		status   auth.UserStatus
		textCode string
	}{
		{auth.UserStatusSuspended, "ACCOUNT_SUSPENDED"},
		{auth.UserStatusDeleted, "ACCOUNT_DELETED"},
		{auth.UserStatusBanned, "ACCOUNT_BANNED"},
	}

	for _, tc := range cases {
		t.Run("status "+tc.status+" is rejected with its reason", func(t *testing.T) {
			err := auth.StatusAuthError(tc.status)
			require.Error(t, err)

			var richErr *goerrors.Error
			require.True(t, goerrors.As(err, &richErr))
			assert.Equal(t, tc.textCode, richErr.TextCode)
			assert.Equal(t, goerrors.CodeForbidden, richErr.Code)
		})
	}

	t.Run("unrecognized status fails closed", func(t *testing.T) {
		err := auth.StatusAuthError("limbo")
		require.Error(t, err)

		var richErr *goerrors.Error
		require.True(t, goerrors.As(err, &richErr))
		assert.Equal(t, "INVALID_ACCOUNT_STATE", richErr.TextCode)
	})
}

func TestCanTransitionStatus(t *testing.T) {
	allowed := []struct{ from, to auth.UserStatus }{
		{auth.UserStatusActive, auth.UserStatusSuspended},
		{auth.UserStatusActive, auth.UserStatusDeleted},
		{auth.UserStatusActive, auth.UserStatusBanned},
		{auth.UserStatusSuspended, auth.UserStatusActive},
		{auth.UserStatusSuspended, auth.UserStatusDeleted},
		{auth.UserStatusSuspended, auth.UserStatusBanned},
		{auth.UserStatusBanned, auth.UserStatusActive},
	}
	for _, tc := range allowed {
		assert.True(t, auth.CanTransitionStatus(tc.from, tc.to), "%s -> %s should be allowed", tc.from, tc.to)
	}

	denied := []struct{ from, to auth.UserStatus }{
		{auth.UserStatusDeleted, auth.UserStatusActive},
		{auth.UserStatusDeleted, auth.UserStatusSuspended},
		{auth.UserStatusBanned, auth.UserStatusSuspended},
		{"limbo", auth.UserStatusActive},
	}
	for _, tc := range denied {
		assert.False(t, auth.CanTransitionStatus(tc.from, tc.to), "%s -> %s should be denied", tc.from, tc.to)
	}
}
