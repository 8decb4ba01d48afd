// Package auth implements the authentication and secure-token lifecycle core
// of the Nido rental marketplace: short-lived access credentials, revocable
// refresh credentials, one-time session-exchange tokens, encrypted
// password-reset links, and account lifecycle gating.
//
// Credential lifecycle:
//   - TokenService mints stateless HS256 access tokens (15 minute default)
//     and opaque refresh tokens whose only source of truth is the user
//     directory. Access tokens are never stored; refresh tokens are persisted
//     as SHA-256 digests and revoked per device or in bulk.
//   - SessionExchanger issues short-lived single-use handoff tokens after
//     email verification. Redemption claims the token atomically at the
//     storage layer so a replayed or concurrent redeem always fails.
//
// Account gating:
//   - Users carry a UserStatus (active, suspended, deleted, banned) persisted
//     via Bun. Every issuance path runs the status gate before returning
//     credentials; unknown statuses fail closed.
//
// Companion packages:
//   - cryptotoken seals small JSON payloads with AES-256-GCM under a
//     PBKDF2-derived key for URL-borne tokens.
//   - webhook authenticates inbound KYC provider callbacks (dual HMAC
//     schemes, 300 second replay window).
//   - oauth verifies third-party identity tokens against the provider's JWKS
//     and maps them onto local accounts.
package auth
