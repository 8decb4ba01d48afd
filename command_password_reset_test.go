package auth_test

import (
	"context"
	"strings"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	auth "github.com/nidohq/nido-auth"
	"github.com/nidohq/nido-auth/cryptotoken"
)

// captureMailer hands each outgoing body to the test through a channel so
// the detached delivery goroutine can be awaited.
type captureMailer struct {
	sent chan string
}

func newCaptureMailer() *captureMailer {
	return &captureMailer{sent: make(chan string, 1)}
}

func (m *captureMailer) Send(ctx context.Context, to, subject, body string) error {
	m.sent <- body
	return nil
}

func (m *captureMailer) awaitToken(t *testing.T) string {
	t.Helper()
	select {
	case body := <-m.sent:
		idx := strings.LastIndex(body, "/")
		require.GreaterOrEqual(t, idx, 0, "mail body carries no reset link: %q", body)
		return body[idx+1:]
	case <-time.After(5 * time.Second):
		t.Fatal("reset email never dispatched")
		return ""
	}
}

func TestPasswordResetFlow(t *testing.T) {
	ctx := context.Background()

	newFlow := func(t *testing.T) (auth.RepositoryManager, *bun.DB, *cryptotoken.Cipher, *captureMailer, *auth.User) {
		t.Helper()

		db := setupTestDB(t)
		repo := auth.NewRepositoryManager(db)

		cipher, err := cryptotoken.New("reset-cipher-secret")
		require.NoError(t, err)

		hash, err := auth.HashPassword("oldPassword123!")
		require.NoError(t, err)

		user := &auth.User{
			ID:           uuid.New(),
			Email:        "renter@example.com",
			Role:         auth.RoleRenter,
			Status:       auth.UserStatusActive,
			PasswordHash: hash,
		}
		_, err = db.NewInsert().Model(user).Exec(ctx)
		require.NoError(t, err)

		return repo, db, cipher, newCaptureMailer(), user
	}

	t.Run("full reset changes the password and orphans sessions", func(t *testing.T) {
		repo, _, cipher, mailer, user := newFlow(t)

		refreshRaw := uuid.NewString()
		_, err := repo.RefreshTokens().Create(ctx, user.ID, refreshRaw, time.Now().Add(time.Hour))
		require.NoError(t, err)

		initialize := auth.NewInitializePasswordResetHandler(repo, cipher, mailer).
			WithResetURL("https://app.example.com/reset")

		var resp *auth.InitializePasswordResetResponse
		err = initialize.Execute(ctx, auth.InitializePasswordResetMessage{
			Email:      user.Email,
			OnResponse: func(r *auth.InitializePasswordResetResponse) { resp = r },
		})
		require.NoError(t, err)
		require.NotNil(t, resp)
		assert.True(t, resp.Success)
		require.NotNil(t, resp.Reset)
		assert.Equal(t, auth.ResetRequestedStatus, resp.Reset.Status)

		token := mailer.awaitToken(t)

		finalize := auth.NewFinalizePasswordResetHandler(repo, cipher)
		err = finalize.Execute(ctx, auth.FinalizePasswordResetMessage{
			Token:    token,
			Password: "newPassword456!",
		})
		require.NoError(t, err)

		updated, err := repo.Users().GetByIdentifier(ctx, user.ID.String())
		require.NoError(t, err)
		assert.NoError(t, auth.ComparePasswordAndHash("newPassword456!", updated.PasswordHash))
		assert.Error(t, auth.ComparePasswordAndHash("oldPassword123!", updated.PasswordHash))

		_, err = repo.RefreshTokens().Validate(ctx, refreshRaw)
		assert.ErrorIs(t, err, auth.ErrInvalidRefresh)
	})

	t.Run("a finished reset cannot be replayed", func(t *testing.T) {
		repo, _, cipher, mailer, user := newFlow(t)

		initialize := auth.NewInitializePasswordResetHandler(repo, cipher, mailer).
			WithResetURL("https://app.example.com/reset")
		require.NoError(t, initialize.Execute(ctx, auth.InitializePasswordResetMessage{Email: user.Email}))

		token := mailer.awaitToken(t)

		finalize := auth.NewFinalizePasswordResetHandler(repo, cipher)
		require.NoError(t, finalize.Execute(ctx, auth.FinalizePasswordResetMessage{
			Token:    token,
			Password: "newPassword456!",
		}))

		err := finalize.Execute(ctx, auth.FinalizePasswordResetMessage{
			Token:    token,
			Password: "anotherPassword789!",
		})
		require.Error(t, err)

		var richErr *goerrors.Error
		require.True(t, goerrors.As(err, &richErr))
		assert.Equal(t, "TOKEN_ALREADY_USED", richErr.TextCode)
	})

	t.Run("unknown email answers the same as a known one", func(t *testing.T) {
		repo, _, cipher, mailer, _ := newFlow(t)

		initialize := auth.NewInitializePasswordResetHandler(repo, cipher, mailer)

		var resp *auth.InitializePasswordResetResponse
		err := initialize.Execute(ctx, auth.InitializePasswordResetMessage{
			Email:      "ghost@example.com",
			OnResponse: func(r *auth.InitializePasswordResetResponse) { resp = r },
		})

		require.NoError(t, err)
		require.NotNil(t, resp)
		assert.True(t, resp.Success)
		assert.Nil(t, resp.Reset)

		select {
		case <-mailer.sent:
			t.Fatal("no email should go to an address without an account")
		case <-time.After(100 * time.Millisecond):
		}
	})

	t.Run("expired link is rejected before touching the record", func(t *testing.T) {
		repo, _, cipher, mailer, user := newFlow(t)

		initialize := auth.NewInitializePasswordResetHandler(repo, cipher, mailer).
			WithResetTTL(time.Nanosecond)
		require.NoError(t, initialize.Execute(ctx, auth.InitializePasswordResetMessage{Email: user.Email}))

		token := mailer.awaitToken(t)

		finalize := auth.NewFinalizePasswordResetHandler(repo, cipher)
		err := finalize.Execute(ctx, auth.FinalizePasswordResetMessage{
			Token:    token,
			Password: "newPassword456!",
		})

		assert.ErrorIs(t, err, cryptotoken.ErrPayloadExpired)
	})

	t.Run("record expired server side rejects a still-valid link", func(t *testing.T) {
		repo, db, cipher, mailer, user := newFlow(t)

		initialize := auth.NewInitializePasswordResetHandler(repo, cipher, mailer).
			WithResetURL("https://app.example.com/reset")
		require.NoError(t, initialize.Execute(ctx, auth.InitializePasswordResetMessage{Email: user.Email}))

		token := mailer.awaitToken(t)

		_, err := db.NewUpdate().
			Model((*auth.PasswordReset)(nil)).
			Set("expires_at = ?", time.Now().Add(-time.Minute)).
			Where("user_id = ?", user.ID).
			Exec(ctx)
		require.NoError(t, err)

		finalize := auth.NewFinalizePasswordResetHandler(repo, cipher)
		err = finalize.Execute(ctx, auth.FinalizePasswordResetMessage{
			Token:    token,
			Password: "newPassword456!",
		})

		require.Error(t, err)
		assert.NotErrorIs(t, err, cryptotoken.ErrPayloadExpired)

		var richErr *goerrors.Error
		require.True(t, goerrors.As(err, &richErr))
		assert.Equal(t, "TOKEN_EXPIRED", richErr.TextCode)

		updated, err := repo.Users().GetByIdentifier(ctx, user.ID.String())
		require.NoError(t, err)
		assert.NoError(t, auth.ComparePasswordAndHash("oldPassword123!", updated.PasswordHash))
	})
}
