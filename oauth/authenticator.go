package oauth

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"

	auth "github.com/nidohq/nido-auth"
)

// Authenticator completes a provider login: verify the identity token, find
// or provision the local account, gate on its status, and hand out the same
// credential pair a password login would.
type Authenticator struct {
	verifier     *Verifier
	users        auth.Users
	auther       *auth.Auther
	logger       auth.Logger
	activitySink auth.ActivitySink
}

func NewAuthenticator(verifier *Verifier, users auth.Users, auther *auth.Auther) *Authenticator {
	return &Authenticator{
		verifier:     verifier,
		users:        users,
		auther:       auther,
		logger:       auth.DefaultLogger(),
		activitySink: auth.ActivitySinkFunc(func(context.Context, auth.ActivityEvent) error { return nil }),
	}
}

func (a *Authenticator) WithLogger(logger auth.Logger) *Authenticator {
	if logger != nil {
		a.logger = logger
	}
	return a
}

func (a *Authenticator) WithActivitySink(sink auth.ActivitySink) *Authenticator {
	if sink != nil {
		a.activitySink = sink
	}
	return a
}

// Login exchanges a provider identity token for local credentials.
func (a *Authenticator) Login(ctx context.Context, identityToken string) (*auth.LoginResult, error) {
	profile, err := a.verifier.Verify(identityToken)
	if err != nil {
		a.logger.Warn("provider token verification failed", "error", err)
		return nil, err
	}

	if !profile.EmailVerified {
		return nil, goerrors.New("provider has not verified this email", goerrors.CategoryAuth).
			WithTextCode("EMAIL_NOT_VERIFIED").
			WithCode(goerrors.CodeUnauthorized)
	}

	user, err := a.findOrProvision(ctx, profile)
	if err != nil {
		return nil, err
	}

	user.EnsureStatus()
	if err := auth.StatusAuthError(user.Status); err != nil {
		a.logger.Warn("provider login blocked due to user status", "status", user.Status, "user_id", user.ID)
		return nil, err
	}

	result, err := a.auther.IssueCredentials(ctx, auth.IdentityFromUser(user))
	if err != nil {
		return nil, err
	}

	if err := a.activitySink.Record(ctx, auth.ActivityEvent{
		EventType:  auth.ActivityEventOAuthLogin,
		Actor:      auth.ActorRef{ID: user.ID.String(), Type: "user"},
		UserID:     user.ID.String(),
		OccurredAt: time.Now(),
		Metadata: map[string]any{
			"provider": profile.Provider,
			"subject":  profile.Subject,
		},
	}); err != nil {
		a.logger.Warn("activity sink record error: %v", err)
	}

	return result, nil
}

// findOrProvision resolves the profile to a local account. New accounts get
// a deterministic id derived from the email so repeated provider logins and
// a later password registration converge on one record.
func (a *Authenticator) findOrProvision(ctx context.Context, profile *Profile) (*auth.User, error) {
	first, last := splitName(profile.Name)
	record := &auth.User{
		Email:          profile.Email,
		FirstName:      first,
		LastName:       last,
		EmailValidated: true,
	}

	if id, err := hashid.NewUUID(profile.Email); err == nil {
		record.ID = id
	}

	user, err := a.users.GetOrCreate(ctx, record)
	if err != nil {
		a.logger.Error("provider login provisioning failed", "error", err, "email", profile.Email)
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve provider account")
	}

	return user, nil
}

func splitName(full string) (string, string) {
	parts := strings.SplitN(strings.TrimSpace(full), " ", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return parts[0], ""
}
