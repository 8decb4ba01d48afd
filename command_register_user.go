package auth

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"

	"github.com/nidohq/nido-auth/cryptotoken"
)

// DefaultVerificationTTL bounds how long an emailed verification link works.
const DefaultVerificationTTL = 48 * time.Hour

type RegisterUserMessage struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Role      string `json:"role"`
	Password  string `json:"password"`
	UseHashid bool
}

func (e RegisterUserMessage) Type() string { return "user.register" }

// RegisterUserHandler creates the account unverified and mails an encrypted
// verification link. The record stays is_email_verified false until the
// link is followed.
type RegisterUserHandler struct {
	repo      RepositoryManager
	cipher    *cryptotoken.Cipher
	mailer    Mailer
	logger    Logger
	ttl       time.Duration
	verifyURL string
}

func NewRegisterUserHandler(repo RepositoryManager, cipher *cryptotoken.Cipher, mailer Mailer) *RegisterUserHandler {
	return &RegisterUserHandler{
		repo:   repo,
		cipher: cipher,
		mailer: mailer,
		logger: defLogger{},
		ttl:    DefaultVerificationTTL,
	}
}

func (h *RegisterUserHandler) WithLogger(logger Logger) *RegisterUserHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// WithVerifyURL sets the base URL the emailed verification link points to.
func (h *RegisterUserHandler) WithVerifyURL(url string) *RegisterUserHandler {
	h.verifyURL = url
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	user := &User{}
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		hash, err := HashPassword(event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		user.PasswordHash = hash
		user.Email = event.Email
		user.Phone = event.Phone
		user.FirstName = event.FirstName
		user.LastName = event.LastName
		user.Role = event.Role
		if event.UseHashid {
			if id, err := hashid.NewUUID(event.Email); err == nil {
				user.ID = id
			}
		}

		if user, err = h.repo.Users().RegisterTx(ctx, tx, user); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}

		return goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	if h.cipher != nil && h.mailer != nil {
		h.dispatchVerificationEmail(user)
	}

	return nil
}

func (h *RegisterUserHandler) dispatchVerificationEmail(user *User) {
	token, err := h.cipher.EncryptResetPayload(cryptotoken.ResetPayload{
		UserID:    user.ID.String(),
		Email:     user.Email,
		ExpiresAt: time.Now().Add(h.ttl),
	})
	if err != nil {
		h.logger.Error("failed to mint verification token", "error", err, "user_id", user.ID)
		return
	}

	link := fmt.Sprintf("%s/%s", h.verifyURL, token)
	logger := h.logger
	email := user.Email

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*30)
		defer cancel()

		body := fmt.Sprintf("Welcome to Nido. Confirm your email using the following link: %s", link)
		if err := h.mailer.Send(ctx, email, "Confirm your email", body); err != nil {
			logger.Error("verification email delivery failed", "error", err, "email", email)
		}
	}()
}
