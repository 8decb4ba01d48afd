package auth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DefaultAccessTokenTTL bounds the life of a stateless access token. There is
// no server-side revocation for access tokens, only expiry.
const DefaultAccessTokenTTL = 15 * time.Minute

// DefaultRefreshTokenTTL bounds the life of a refresh credential.
const DefaultRefreshTokenTTL = 90 * 24 * time.Hour

// TokenDigest maps a raw opaque token to the form persisted by the directory.
// The raw value itself is never stored.
func TokenDigest(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// TokenServiceImpl implements the TokenService interface
type TokenServiceImpl struct {
	signingKey   []byte
	accessTTL    time.Duration
	refreshTTL   time.Duration
	issuer       string
	audience     jwt.ClaimStrings
	refreshStore RefreshTokens
	logger       Logger
	now          func() time.Time
}

// NewTokenService creates a new TokenService instance. The refresh store is
// the only party that ever sees the digest of an issued refresh token.
func NewTokenService(signingKey []byte, cfg Config, refreshStore RefreshTokens, logger Logger) *TokenServiceImpl {
	if logger == nil {
		logger = defLogger{}
	}

	accessTTL := DefaultAccessTokenTTL
	refreshTTL := DefaultRefreshTokenTTL
	var issuer string
	var audience jwt.ClaimStrings
	if cfg != nil {
		if d := cfg.GetAccessTokenTTL(); d > 0 {
			accessTTL = d
		}
		if d := cfg.GetRefreshTokenTTL(); d > 0 {
			refreshTTL = d
		}
		issuer = cfg.GetIssuer()
		audience = cfg.GetAudience()
	}

	return &TokenServiceImpl{
		signingKey:   signingKey,
		accessTTL:    accessTTL,
		refreshTTL:   refreshTTL,
		issuer:       issuer,
		audience:     audience,
		refreshStore: refreshStore,
		logger:       logger,
		now:          time.Now,
	}
}

// WithClock injects a custom clock (useful for tests).
func (ts *TokenServiceImpl) WithClock(clock func() time.Time) *TokenServiceImpl {
	if clock != nil {
		ts.now = clock
	}
	return ts
}

// AccessTokenTTL exposes the configured access token lifetime.
func (ts *TokenServiceImpl) AccessTokenTTL() time.Duration {
	return ts.accessTTL
}

// IssueAccess creates a signed, time-boxed access token for the identity.
// Pure function of identity, secret, and clock; no I/O.
func (ts *TokenServiceImpl) IssueAccess(identity Identity) (string, error) {
	if identity == nil {
		return "", errors.New("identity must not be nil", errors.CategoryInternal)
	}

	now := ts.now()
	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   identity.ID(),
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.accessTTL)),
		},
		UID:       identity.ID(),
		UserEmail: identity.Email(),
		RoleSet:   []string{identity.Role()},
	}

	ensureTokenID(&claims.RegisteredClaims)

	return ts.SignClaims(claims)
}

// SignClaims signs arbitrary JWT claims using the configured signing key.
func (ts *TokenServiceImpl) SignClaims(claims *JWTClaims) (string, error) {
	if claims == nil {
		return "", errors.New("claims must not be nil", errors.CategoryInternal)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, nil
}

// IssueRefresh generates a new opaque refresh credential and delegates
// persistence to the refresh store. The raw token is returned exactly once.
func (ts *TokenServiceImpl) IssueRefresh(ctx context.Context, userID uuid.UUID) (*IssuedRefresh, error) {
	if ts.refreshStore == nil {
		return nil, errors.New("refresh store is not configured", errors.CategoryInternal)
	}

	raw := uuid.NewString()
	expiresAt := ts.now().Add(ts.refreshTTL)

	if _, err := ts.refreshStore.Create(ctx, userID, raw, expiresAt); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to persist refresh token")
	}

	return &IssuedRefresh{Token: raw, ExpiresAt: expiresAt}, nil
}

// IssueRefreshTx is the transactional variant used when a refresh credential
// must be minted and another one retired in the same unit of work.
func (ts *TokenServiceImpl) IssueRefreshTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*IssuedRefresh, error) {
	if ts.refreshStore == nil {
		return nil, errors.New("refresh store is not configured", errors.CategoryInternal)
	}

	raw := uuid.NewString()
	expiresAt := ts.now().Add(ts.refreshTTL)

	if _, err := ts.refreshStore.CreateTx(ctx, tx, userID, raw, expiresAt); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to persist refresh token")
	}

	return &IssuedRefresh{Token: raw, ExpiresAt: expiresAt}, nil
}

// Validate parses and validates an access token, returning structured claims.
// Validation is local: signature and registered-claim checks only, no I/O.
func (ts *TokenServiceImpl) Validate(tokenString string) (AuthClaims, error) {
	parserOptions := make([]jwt.ParserOption, 0, 2)
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("TokenService validate encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, errors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).WithTextCode(ErrTokenMalformed.TextCode)
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}

	ts.logger.Error("TokenService validate could not decode or validate claims")
	return nil, ErrTokenMalformed
}
