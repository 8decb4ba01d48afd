package auth

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/nidohq/nido-auth/cryptotoken"
)

// DefaultPasswordResetTTL is how long a reset link stays valid. The same
// deadline is embedded in the link payload and stored on the server record.
const DefaultPasswordResetTTL = 24 * time.Hour

type InitializePasswordResetMessage struct {
	Email      string `json:"email" example:"pepe.rone@example.com" doc:"Account email."`
	OnResponse func(resp *InitializePasswordResetResponse)
}

func (p InitializePasswordResetMessage) Type() string { return "user.password_reset" }

type InitializePasswordResetResponse struct {
	Reset   *PasswordReset
	Success bool
}

// InitializePasswordResetHandler creates the reset record and mails the
// encrypted link. Unknown emails complete without error so the endpoint
// cannot be used to probe which addresses have accounts.
type InitializePasswordResetHandler struct {
	repo     RepositoryManager
	cipher   *cryptotoken.Cipher
	mailer   Mailer
	activity ActivitySink
	logger   Logger
	ttl      time.Duration
	resetURL string
}

func NewInitializePasswordResetHandler(repo RepositoryManager, cipher *cryptotoken.Cipher, mailer Mailer) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{
		repo:     repo,
		cipher:   cipher,
		mailer:   mailer,
		activity: noopActivitySink{},
		logger:   defLogger{},
		ttl:      DefaultPasswordResetTTL,
	}
}

// WithResetTTL overrides the reset link lifetime.
func (h *InitializePasswordResetHandler) WithResetTTL(ttl time.Duration) *InitializePasswordResetHandler {
	if ttl > 0 {
		h.ttl = ttl
	}
	return h
}

// WithResetURL sets the base URL the emailed link points to.
func (h *InitializePasswordResetHandler) WithResetURL(url string) *InitializePasswordResetHandler {
	h.resetURL = url
	return h
}

func (h *InitializePasswordResetHandler) WithActivitySink(sink ActivitySink) *InitializePasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	resp := &InitializePasswordResetResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	var user *User
	var token string

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		user, err = h.repo.Users().GetByIdentifierTx(ctx, tx, event.Email)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				// no account, nothing to do, same outward answer
				return nil
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for password reset")
		}

		expiresAt := time.Now().Add(h.ttl)

		reset := &PasswordReset{
			UserID:    &user.ID,
			Email:     event.Email,
			Status:    ResetRequestedStatus,
			ExpiresAt: expiresAt,
		}

		created, err := h.repo.PasswordResets().CreateTx(ctx, tx, reset)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create password reset record")
		}
		resp.Reset = created

		token, err = h.cipher.EncryptResetPayload(cryptotoken.ResetPayload{
			UserID:    user.ID.String(),
			ResetID:   created.ID.String(),
			Email:     event.Email,
			ExpiresAt: expiresAt,
		})
		if err != nil {
			return err
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to initialize password reset")
	}

	if user != nil && token != "" {
		h.dispatchEmail(event.Email, token)
		h.recordActivity(ctx, user)
	}

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

// dispatchEmail sends the link on a detached goroutine. The client already
// got its answer; delivery failures are an operational concern, not theirs.
func (h *InitializePasswordResetHandler) dispatchEmail(email, token string) {
	link := fmt.Sprintf("%s/%s", h.resetURL, token)
	logger := h.logger

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*30)
		defer cancel()

		body := fmt.Sprintf("Use the following link to reset your password: %s", link)
		if err := h.mailer.Send(ctx, email, "Reset your password", body); err != nil {
			logger.Error("password reset email delivery failed", "error", err, "email", email)
		}
	}()
}

func (h *InitializePasswordResetHandler) recordActivity(ctx context.Context, user *User) {
	event := ActivityEvent{
		EventType: ActivityEventPasswordResetRequest,
		Actor: ActorRef{
			ID:   user.ID.String(),
			Type: "user",
		},
		UserID:     user.ID.String(),
		Metadata:   map[string]any{},
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during password reset request: %v", err)
	}
}
