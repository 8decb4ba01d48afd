package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/nidohq/nido-auth/cryptotoken"
)

type VerifyEmailMessage struct {
	Token      string `json:"token" doc:"Encrypted verification token from the emailed link."`
	OnResponse func(resp *VerifyEmailResponse)
}

func (e VerifyEmailMessage) Type() string { return "user.verify_email" }

type VerifyEmailResponse struct {
	// ExchangeToken is a one-shot handoff token the browser redeems for a
	// credential pair, so following the link logs the user straight in.
	ExchangeToken string
	User          *User
	Success       bool
}

// VerifyEmailHandler confirms ownership of an address and bridges into a
// live session via a session exchange token.
type VerifyEmailHandler struct {
	repo      RepositoryManager
	cipher    *cryptotoken.Cipher
	exchanger *SessionExchanger
	activity  ActivitySink
	logger    Logger
}

func NewVerifyEmailHandler(repo RepositoryManager, cipher *cryptotoken.Cipher, exchanger *SessionExchanger) *VerifyEmailHandler {
	return &VerifyEmailHandler{
		repo:      repo,
		cipher:    cipher,
		exchanger: exchanger,
		activity:  noopActivitySink{},
		logger:    defLogger{},
	}
}

func (h *VerifyEmailHandler) WithActivitySink(sink ActivitySink) *VerifyEmailHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *VerifyEmailHandler) WithLogger(logger Logger) *VerifyEmailHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *VerifyEmailHandler) Execute(ctx context.Context, event VerifyEmailMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during email verification")
	default:
		return h.execute(ctx, event)
	}
}

func (h *VerifyEmailHandler) execute(ctx context.Context, event VerifyEmailMessage) error {
	resp := &VerifyEmailResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	payload, err := h.cipher.DecryptResetPayload(event.Token, time.Now())
	if err != nil {
		return err
	}

	userID, err := uuid.Parse(payload.UserID)
	if err != nil {
		return ErrTokenMalformed
	}

	var user *User

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err = h.repo.Users().GetByIdentifierTx(ctx, tx, payload.UserID)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return goerrors.New("verification link does not match an account", goerrors.CategoryNotFound).
					WithCode(goerrors.CodeNotFound)
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for email verification")
		}

		if user.Email != payload.Email {
			return ErrTokenMalformed
		}

		if !user.EmailValidated {
			if err = h.repo.Users().MarkEmailVerifiedTx(ctx, tx, userID); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mark email as verified")
			}
			user.EmailValidated = true
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to verify email")
	}

	if h.exchanger != nil {
		token, err := h.exchanger.Issue(ctx, userID)
		if err != nil {
			// verification already stuck, the user can still log in manually
			h.logger.Warn("failed to issue session exchange after verification", "error", err, "user_id", userID)
		} else {
			resp.ExchangeToken = token
		}
	}

	resp.User = user
	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
