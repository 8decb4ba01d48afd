package auth_test

import (
	"context"
	"database/sql"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"

	auth "github.com/nidohq/nido-auth"
)

// TestIdentity is a simple implementation of Identity interface for testing
type TestIdentity struct {
	id     string
	email  string
	role   string
	status auth.UserStatus
}

func (t TestIdentity) ID() string    { return t.id }
func (t TestIdentity) Email() string { return t.email }
func (t TestIdentity) Role() string  { return t.role }
func (t TestIdentity) Status() auth.UserStatus {
	if t.status == "" {
		return auth.UserStatusActive
	}
	return t.status
}

// MockIdentityProvider implements auth.IdentityProvider for testing
type MockIdentityProvider struct {
	mock.Mock
}

func (m *MockIdentityProvider) VerifyIdentity(ctx context.Context, identifier, password string) (auth.Identity, error) {
	args := m.Called(ctx, identifier, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(auth.Identity), args.Error(1)
}

func (m *MockIdentityProvider) FindIdentityByIdentifier(ctx context.Context, identifier string) (auth.Identity, error) {
	args := m.Called(ctx, identifier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(auth.Identity), args.Error(1)
}

// MockUserTracker implements auth.UserTracker for testing
type MockUserTracker struct {
	mock.Mock
}

func (m *MockUserTracker) GetByIdentifier(ctx context.Context, identifier string) (*auth.User, error) {
	args := m.Called(ctx, identifier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.User), args.Error(1)
}

func (m *MockUserTracker) TrackAttemptedLogin(ctx context.Context, user *auth.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserTracker) TrackSuccessfulLogin(ctx context.Context, user *auth.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

// MockRefreshTokens implements auth.RefreshTokens for testing
type MockRefreshTokens struct {
	mock.Mock
}

func (m *MockRefreshTokens) Create(ctx context.Context, userID uuid.UUID, rawToken string, expiresAt time.Time) (*auth.RefreshToken, error) {
	args := m.Called(ctx, userID, rawToken, expiresAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.RefreshToken), args.Error(1)
}

func (m *MockRefreshTokens) CreateTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, rawToken string, expiresAt time.Time) (*auth.RefreshToken, error) {
	args := m.Called(ctx, tx, userID, rawToken, expiresAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.RefreshToken), args.Error(1)
}

func (m *MockRefreshTokens) Validate(ctx context.Context, rawToken string) (*auth.RefreshValidation, error) {
	args := m.Called(ctx, rawToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.RefreshValidation), args.Error(1)
}

func (m *MockRefreshTokens) Revoke(ctx context.Context, userID uuid.UUID, rawToken *string) (int, error) {
	args := m.Called(ctx, userID, rawToken)
	return args.Int(0), args.Error(1)
}

func (m *MockRefreshTokens) RevokeTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, rawToken *string) (int, error) {
	args := m.Called(ctx, tx, userID, rawToken)
	return args.Int(0), args.Error(1)
}

func (m *MockRefreshTokens) PurgeExpired(ctx context.Context, olderThan time.Time) (int, error) {
	args := m.Called(ctx, olderThan)
	return args.Int(0), args.Error(1)
}

// MockSessionExchanges implements auth.SessionExchanges for testing
type MockSessionExchanges struct {
	mock.Mock
}

func (m *MockSessionExchanges) Create(ctx context.Context, userID uuid.UUID, rawToken string, expiresAt time.Time) (*auth.SessionExchange, error) {
	args := m.Called(ctx, userID, rawToken, expiresAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.SessionExchange), args.Error(1)
}

func (m *MockSessionExchanges) CreateTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, rawToken string, expiresAt time.Time) (*auth.SessionExchange, error) {
	args := m.Called(ctx, tx, userID, rawToken, expiresAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.SessionExchange), args.Error(1)
}

func (m *MockSessionExchanges) Claim(ctx context.Context, rawToken string) (*auth.SessionExchange, error) {
	args := m.Called(ctx, rawToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.SessionExchange), args.Error(1)
}

func (m *MockSessionExchanges) PurgeExpired(ctx context.Context, olderThan time.Time) (int, error) {
	args := m.Called(ctx, olderThan)
	return args.Int(0), args.Error(1)
}

// MockUsers implements auth.Users for testing. The embedded interface covers
// the generic repository surface; only the methods tests exercise are wired.
type MockUsers struct {
	mock.Mock
	auth.Users
}

func (m *MockUsers) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*auth.User, error) {
	args := m.Called(ctx, identifier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.User), args.Error(1)
}

// MockRepositoryManager implements auth.RepositoryManager for testing.
// RunInTx executes the callback with a zero bun.Tx so transactional flows can
// be exercised against mocks.
type MockRepositoryManager struct {
	mock.Mock
	users            *MockUsers
	refreshTokens    *MockRefreshTokens
	sessionExchanges *MockSessionExchanges
}

func NewMockRepositoryManager() *MockRepositoryManager {
	return &MockRepositoryManager{
		users:            &MockUsers{},
		refreshTokens:    &MockRefreshTokens{},
		sessionExchanges: &MockSessionExchanges{},
	}
}

func (m *MockRepositoryManager) Validate() error { return nil }

func (m *MockRepositoryManager) MustValidate() {}

func (m *MockRepositoryManager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	return f(ctx, bun.Tx{})
}

func (m *MockRepositoryManager) Users() auth.Users { return m.users }

func (m *MockRepositoryManager) RefreshTokens() auth.RefreshTokens { return m.refreshTokens }

func (m *MockRepositoryManager) SessionExchanges() auth.SessionExchanges { return m.sessionExchanges }

func (m *MockRepositoryManager) PasswordResets() repository.Repository[*auth.PasswordReset] {
	return nil
}

// MockActivitySink captures events for inspection
type MockActivitySink struct {
	Events []auth.ActivityEvent
}

func (m *MockActivitySink) Record(ctx context.Context, event auth.ActivityEvent) error {
	m.Events = append(m.Events, event)
	return nil
}

type testConfig struct {
	auth.SimpleConfig
}

func newTestConfig() *testConfig {
	return &testConfig{
		SimpleConfig: auth.SimpleConfig{
			SigningKey: "test-signing-key",
			Issuer:     "test-issuer",
			Audience:   []string{"test:audience"},
		},
	}
}
