package auth

import (
	"context"
	"errors"
	"reflect"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Auther composes the identity provider, the status gate, and the credential
// issuer into full login, refresh, and logout flows.
type Auther struct {
	provider     IdentityProvider
	repo         RepositoryManager
	tokenService *TokenServiceImpl
	logger       Logger
	activitySink ActivitySink
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(provider IdentityProvider, repo RepositoryManager, cfg Config) *Auther {
	tokenService := NewTokenService(
		[]byte(cfg.GetSigningKey()),
		cfg,
		repo.RefreshTokens(),
		defLogger{},
	)

	return &Auther{
		provider:     provider,
		repo:         repo,
		tokenService: tokenService,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		s.logger = logger
		s.tokenService.logger = logger
	}
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

var _ Authenticator = (*Auther)(nil)

// Login runs the password flow: verify identity, gate on account status,
// then issue an access/refresh pair. Wrong password and unknown email share
// one error and one latency profile.
func (s *Auther) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	identity, err := s.provider.VerifyIdentity(ctx, identifier, password)
	if err != nil {
		s.logger.Error("Login verify identity error", "error", err)
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"identifier": identifier,
			"error":      err.Error(),
		})
		return nil, loginError(err)
	}

	if identity == nil || reflect.ValueOf(identity).IsZero() {
		s.logger.Error("Login identity is nil or zero value")
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"identifier": identifier,
			"error":      ErrIdentityNotFound.Error(),
		})
		return nil, ErrInvalidCredentials
	}

	if status, err := s.ensureIdentityActive(ctx, identity); err != nil {
		s.logger.Warn("Login blocked due to user status", "status", status, "error", err)
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, s.actorFromIdentity(identity), identity.ID(), map[string]any{
			"identifier": identifier,
			"error":      err.Error(),
			"status":     status,
		})
		return nil, err
	}

	result, err := s.IssueCredentials(ctx, identity)
	if err != nil {
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, s.actorFromIdentity(identity), identity.ID(), map[string]any{
			"identifier": identifier,
			"error":      err.Error(),
		})
		return nil, err
	}

	s.emitAuthEvent(ctx, ActivityEventLoginSuccess, s.actorFromIdentity(identity), identity.ID(), map[string]any{
		"identifier": identifier,
	})

	return result, nil
}

// Refresh validates a refresh credential against the directory, gates on the
// owner's status, and rotates the credential: the new token is persisted and
// the old one retired in a single transaction.
func (s *Auther) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	validation, err := s.repo.RefreshTokens().Validate(ctx, refreshToken)
	if err != nil {
		s.logger.Warn("Refresh token rejected", "error", err)
		s.emitAuthEvent(ctx, ActivityEventRefreshFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"error": err.Error(),
		})
		if errors.Is(err, ErrInvalidRefresh) {
			return nil, err
		}
		return nil, ErrUpstream
	}

	user := validation.User
	identity := identityFromUser(user)

	if status, err := s.ensureIdentityActive(ctx, identity); err != nil {
		s.logger.Warn("Refresh blocked due to user status", "status", status, "error", err)
		s.emitAuthEvent(ctx, ActivityEventRefreshFailure, s.actorFromIdentity(identity), identity.ID(), map[string]any{
			"error":  err.Error(),
			"status": status,
		})
		return nil, err
	}

	accessToken, err := s.tokenService.IssueAccess(identity)
	if err != nil {
		return nil, err
	}

	var issued *IssuedRefresh
	err = s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if issued, err = s.tokenService.IssueRefreshTx(ctx, tx, user.ID); err != nil {
			return err
		}

		if _, err = s.repo.RefreshTokens().RevokeTx(ctx, tx, user.ID, &refreshToken); err != nil {
			return err
		}

		return nil
	})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to rotate refresh token")
	}

	s.emitAuthEvent(ctx, ActivityEventRefreshSuccess, s.actorFromIdentity(identity), identity.ID(), nil)

	return s.buildResult(accessToken, issued, user.Summary()), nil
}

// Logout revokes a single device's refresh credential, or every credential
// for the user when refreshToken is nil.
func (s *Auther) Logout(ctx context.Context, userID uuid.UUID, refreshToken *string) (int, error) {
	revoked, err := s.repo.RefreshTokens().Revoke(ctx, userID, refreshToken)
	if err != nil {
		s.logger.Error("Logout revoke error", "error", err, "user_id", userID)
		return 0, err
	}

	s.emitAuthEvent(ctx, ActivityEventLogout, ActorRef{ID: userID.String(), Type: "user"}, userID.String(), map[string]any{
		"revoked":     revoked,
		"all_devices": refreshToken == nil,
	})

	return revoked, nil
}

// IssueCredentials mints the access/refresh pair for an already gated
// identity. Shared by the password, OAuth, and session-exchange flows.
func (s *Auther) IssueCredentials(ctx context.Context, identity Identity) (*LoginResult, error) {
	accessToken, err := s.tokenService.IssueAccess(identity)
	if err != nil {
		return nil, err
	}

	userID, err := uuid.Parse(identity.ID())
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "identity has a malformed user id")
	}

	issued, err := s.tokenService.IssueRefresh(ctx, userID)
	if err != nil {
		return nil, err
	}

	summary := &UserSummary{
		ID:    identity.ID(),
		Email: identity.Email(),
		Role:  identity.Role(),
	}
	if user, err := s.repo.Users().GetByIdentifier(ctx, identity.ID()); err == nil {
		summary = user.Summary()
	}

	return s.buildResult(accessToken, issued, summary), nil
}

func (s *Auther) buildResult(accessToken string, issued *IssuedRefresh, summary *UserSummary) *LoginResult {
	return &LoginResult{
		AccessToken:      accessToken,
		TokenType:        "Bearer",
		ExpiresIn:        int64(s.tokenService.AccessTokenTTL() / time.Second),
		RefreshToken:     issued.Token,
		RefreshExpiresAt: issued.ExpiresAt,
		User:             summary,
	}
}

func (s *Auther) emitAuthEvent(ctx context.Context, eventType ActivityEventType, actor ActorRef, userID string, metadata map[string]any) {
	sink := normalizeActivitySink(s.activitySink)
	event := ActivityEvent{
		EventType: eventType,
		Actor:     actor,
		UserID:    userID,
		Metadata:  metadata,
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	if err := sink.Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error: %v", err)
	}
}

func (s *Auther) actorFromIdentity(identity Identity) ActorRef {
	if identity == nil {
		return ActorRef{Type: "unknown"}
	}

	return ActorRef{
		ID:   identity.ID(),
		Type: "user",
	}
}

type statusAwareIdentity interface {
	Status() UserStatus
}

// ensureIdentityActive gates a login or refresh on account status. An
// identity that does not report its own status is resolved against the
// directory; when neither source can establish a status the gate fails
// closed.
func (s *Auther) ensureIdentityActive(ctx context.Context, identity Identity) (UserStatus, error) {
	status, ok := identityStatus(identity)
	if !ok {
		user, err := s.repo.Users().GetByIdentifier(ctx, identity.ID())
		if err != nil {
			s.logger.Warn("could not resolve account status", "error", err, "user_id", identity.ID())
			return "", goerrors.New("account status could not be established", goerrors.CategoryAuthz).
				WithTextCode(TextCodeInvalidAccountState).
				WithCode(goerrors.CodeForbidden)
		}
		user.EnsureStatus()
		status = user.Status
	}

	if err := statusAuthError(status); err != nil {
		return status, err
	}

	return status, nil
}

func identityStatus(identity Identity) (UserStatus, bool) {
	if identity == nil {
		return "", false
	}

	if sa, ok := identity.(statusAwareIdentity); ok {
		return sa.Status(), true
	}

	return "", false
}

// loginError hides credential-compare detail behind one generic failure but
// lets authorization (status) and throttling errors through untouched.
func loginError(err error) error {
	if errors.Is(err, ErrMismatchedHashAndPassword) || errors.Is(err, ErrIdentityNotFound) {
		return ErrInvalidCredentials
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		switch richErr.Category {
		case goerrors.CategoryAuthz, goerrors.CategoryRateLimit:
			return err
		}
	}

	if errors.Is(err, ErrTooManyLoginAttempts) {
		return err
	}

	return ErrInvalidCredentials
}
