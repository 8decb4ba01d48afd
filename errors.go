package auth

import (
	"errors"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
)

// Text codes surfaced alongside rich errors so API clients can branch
// without string matching.
const (
	TextCodeTokenExpired        = "TOKEN_EXPIRED"
	TextCodeTokenMalformed      = "TOKEN_MALFORMED"
	TextCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	TextCodeInvalidRefresh      = "INVALID_REFRESH_TOKEN"
	TextCodeInvalidSessionToken = "INVALID_SESSION_TOKEN"
	TextCodeAccountSuspended    = "ACCOUNT_SUSPENDED"
	TextCodeAccountDeleted      = "ACCOUNT_DELETED"
	TextCodeAccountBanned       = "ACCOUNT_BANNED"
	TextCodeInvalidAccountState = "INVALID_ACCOUNT_STATE"
	TextCodeTooManyAttempts     = "TOO_MANY_LOGIN_ATTEMPTS"
	TextCodeUpstream            = "UPSTREAM_UNAVAILABLE"
)

// ErrTokenExpired is returned for structurally valid but expired access tokens.
var ErrTokenExpired = goerrors.New("authentication token expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformed is returned when an access token cannot be parsed or its
// signature does not verify.
var ErrTokenMalformed = goerrors.New("invalid authentication token", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidCredentials is the single client-facing login failure. Unknown
// email and wrong password are deliberately indistinguishable.
var ErrInvalidCredentials = goerrors.New("invalid credentials", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidRefresh collapses not-found, expired, and revoked refresh tokens
// into one answer so error granularity cannot be used to enumerate accounts.
var ErrInvalidRefresh = goerrors.New("invalid or expired refresh token", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidRefresh).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidSessionToken is returned when a session-exchange token is
// unknown, expired, or already redeemed.
var ErrInvalidSessionToken = goerrors.New("invalid or expired session token", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidSessionToken).
	WithCode(goerrors.CodeUnauthorized)

// ErrTooManyLoginAttempts signals the login cooldown window is active.
var ErrTooManyLoginAttempts = goerrors.New("too many login attempts", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyAttempts)

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = errors.New("identity not found")

// ErrNoEmptyString rejects empty password input before hashing
var ErrNoEmptyString = errors.New("password must not be empty")

// ErrMismatchedHashAndPassword is the internal password-compare failure; it
// is mapped to ErrInvalidCredentials before leaving the package.
var ErrMismatchedHashAndPassword = errors.New("mismatched hash and password")

// ErrUpstream is returned when the user directory or an identity provider is
// unreachable; details stay in logs.
var ErrUpstream = goerrors.New("service temporarily unavailable, try again", goerrors.CategoryInternal).
	WithTextCode(TextCodeUpstream).
	WithCode(goerrors.CodeInternal)

// IsRecordNotFound reports whether err is a missing-record error from the
// persistence layer.
func IsRecordNotFound(err error) bool {
	return repository.IsRecordNotFound(err)
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "token is expired") ||
		strings.Contains(err.Error(), "token expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}
