package auth

import (
	goerrors "github.com/goliatone/go-errors"
)

// UserStatus is the single source of truth for an account's lifecycle state.
// Transitions happen out of band (admin tooling, SQL); this core reads and
// gates on the value.
type UserStatus = string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
	UserStatusDeleted   UserStatus = "deleted"
	UserStatusBanned    UserStatus = "banned"
)

// statusTransitions is the graph admin tooling is allowed to walk. Banned and
// deleted are terminal except for an explicit reinstate of banned accounts.
var statusTransitions = map[UserStatus]map[UserStatus]struct{}{
	UserStatusActive: {
		UserStatusSuspended: {},
		UserStatusDeleted:   {},
		UserStatusBanned:    {},
	},
	UserStatusSuspended: {
		UserStatusActive:  {},
		UserStatusDeleted: {},
		UserStatusBanned:  {},
	},
	UserStatusBanned: {
		UserStatusActive: {},
	},
}

// CanTransitionStatus reports whether admin tooling may move an account from
// one status to another.
func CanTransitionStatus(from, to UserStatus) bool {
	allowed, ok := statusTransitions[from]
	if !ok {
		return false
	}
	_, ok = allowed[to]
	return ok
}

// statusAuthError gates credential issuance on account state. Active is the
// only status that yields tokens; anything unrecognized fails closed. The
// reasons are specific because the caller is already identified.
func statusAuthError(status UserStatus) error {
	switch status {
	case UserStatusActive:
		return nil
	case UserStatusSuspended:
		return goerrors.New("account suspended", goerrors.CategoryAuthz).
			WithTextCode(TextCodeAccountSuspended).
			WithCode(goerrors.CodeForbidden)
	case UserStatusDeleted:
		return goerrors.New("account deleted", goerrors.CategoryAuthz).
			WithTextCode(TextCodeAccountDeleted).
			WithCode(goerrors.CodeForbidden)
	case UserStatusBanned:
		return goerrors.New("account banned", goerrors.CategoryAuthz).
			WithTextCode(TextCodeAccountBanned).
			WithCode(goerrors.CodeForbidden)
	default:
		return goerrors.New("invalid account state", goerrors.CategoryAuthz).
			WithTextCode(TextCodeInvalidAccountState).
			WithCode(goerrors.CodeForbidden).
			WithMetadata(map[string]any{"status": status})
	}
}

// StatusAuthError is the exported form of the account status gate, used by
// companion packages (oauth, webhook) that sit outside this package.
func StatusAuthError(status UserStatus) error {
	return statusAuthError(status)
}
