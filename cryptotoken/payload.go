package cryptotoken

import (
	"encoding/json"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// ErrPayloadExpired reports a token whose embedded deadline has passed even
// though decryption succeeded.
var ErrPayloadExpired = goerrors.New("token payload expired", goerrors.CategoryAuth).
	WithTextCode("TOKEN_EXPIRED").
	WithCode(goerrors.CodeUnauthorized)

// ResetPayload is the plaintext carried inside a password reset link. The
// embedded expiry is the first of two checks, the reset record in the
// database is the second, so a leaked cipher secret alone cannot revive a
// finished reset.
type ResetPayload struct {
	UserID    string    `json:"user_id"`
	ResetID   string    `json:"reset_id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// EncryptResetPayload seals a reset payload into a link-safe token.
func (c *Cipher) EncryptResetPayload(payload ResetPayload) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode reset payload")
	}
	return c.Encrypt(raw)
}

// DecryptResetPayload opens a reset token and enforces the embedded expiry.
func (c *Cipher) DecryptResetPayload(token string, now time.Time) (*ResetPayload, error) {
	raw, err := c.Decrypt(token)
	if err != nil {
		return nil, err
	}

	payload := &ResetPayload{}
	if err := json.Unmarshal(raw, payload); err != nil {
		return nil, ErrDecryption
	}

	if !payload.ExpiresAt.After(now) {
		return nil, ErrPayloadExpired
	}

	return payload, nil
}
