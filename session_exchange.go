package auth

import (
	"context"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// DefaultSessionExchangeTTL bounds the window between minting a handoff
// token and the client redeeming it.
const DefaultSessionExchangeTTL = 2 * time.Minute

// SessionExchanger mints and redeems single-use handoff tokens. A token is
// issued after an out-of-band flow (email verification, OAuth callback) and
// traded exactly once for a full credential pair.
type SessionExchanger struct {
	repo         RepositoryManager
	auther       *Auther
	ttl          time.Duration
	logger       Logger
	activitySink ActivitySink
	now          func() time.Time
}

func NewSessionExchanger(repo RepositoryManager, auther *Auther, cfg Config) *SessionExchanger {
	ttl := DefaultSessionExchangeTTL
	if cfg != nil && cfg.GetSessionExchangeTTL() > 0 {
		ttl = cfg.GetSessionExchangeTTL()
	}

	return &SessionExchanger{
		repo:         repo,
		auther:       auther,
		ttl:          ttl,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		now:          time.Now,
	}
}

func (s *SessionExchanger) WithLogger(logger Logger) *SessionExchanger {
	if logger != nil {
		s.logger = logger
	}
	return s
}

func (s *SessionExchanger) WithActivitySink(sink ActivitySink) *SessionExchanger {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// WithClock overrides the time source, used by tests to step past the
// redemption window.
func (s *SessionExchanger) WithClock(now func() time.Time) *SessionExchanger {
	if now != nil {
		s.now = now
	}
	return s
}

// Issue mints an opaque token bound to the user. Only a digest is stored;
// the raw value is returned once and never recoverable afterwards.
func (s *SessionExchanger) Issue(ctx context.Context, userID uuid.UUID) (string, error) {
	raw := uuid.NewString()
	expiresAt := s.now().Add(s.ttl)

	if _, err := s.repo.SessionExchanges().Create(ctx, userID, raw, expiresAt); err != nil {
		return "", err
	}

	s.logger.Debug("session exchange token issued", "user_id", userID, "expires_at", expiresAt)

	return raw, nil
}

// Redeem trades a handoff token for a credential pair. The claim is atomic:
// concurrent redemptions of the same token yield exactly one winner, every
// other caller gets ErrInvalidSessionToken.
func (s *SessionExchanger) Redeem(ctx context.Context, rawToken string) (*LoginResult, error) {
	record, err := s.repo.SessionExchanges().Claim(ctx, rawToken)
	if err != nil {
		if errors.Is(err, ErrInvalidSessionToken) {
			s.emit(ctx, ActivityEventSessionReplay, ActorRef{Type: "unknown"}, "", map[string]any{
				"error": err.Error(),
			})
			return nil, err
		}
		return nil, err
	}

	user, err := s.repo.Users().GetByIdentifier(ctx, record.UserID.String())
	if err != nil {
		s.logger.Error("session exchange owner lookup failed", "error", err, "user_id", record.UserID)
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load session exchange owner")
	}

	if err := ensureAuthenticatableUser(user); err != nil {
		s.logger.Warn("session exchange blocked due to user status", "status", user.Status, "user_id", user.ID)
		return nil, err
	}

	result, err := s.auther.IssueCredentials(ctx, identityFromUser(user))
	if err != nil {
		return nil, err
	}

	s.emit(ctx, ActivityEventSessionRedeemed, ActorRef{ID: user.ID.String(), Type: "user"}, user.ID.String(), nil)

	return result, nil
}

func (s *SessionExchanger) emit(ctx context.Context, eventType ActivityEventType, actor ActorRef, userID string, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		Actor:      actor,
		UserID:     userID,
		Metadata:   metadata,
		OccurredAt: s.now(),
	}
	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if err := normalizeActivitySink(s.activitySink).Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error: %v", err)
	}
}
