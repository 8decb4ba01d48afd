package cryptotoken_test

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nidohq/nido-auth/cryptotoken"
)

func TestCipherRoundTrip(t *testing.T) {
	cipher, err := cryptotoken.New("super-secret-value")
	require.NoError(t, err)

	t.Run("decrypt recovers the plaintext", func(t *testing.T) {
		token, err := cipher.Encrypt([]byte(`{"user_id":"abc"}`))
		require.NoError(t, err)

		plaintext, err := cipher.Decrypt(token)
		require.NoError(t, err)
		assert.Equal(t, `{"user_id":"abc"}`, string(plaintext))
	})

	t.Run("same plaintext yields different tokens", func(t *testing.T) {
		first, err := cipher.Encrypt([]byte("payload"))
		require.NoError(t, err)
		second, err := cipher.Encrypt([]byte("payload"))
		require.NoError(t, err)

		assert.NotEqual(t, first, second)
	})

	t.Run("tokens are url safe", func(t *testing.T) {
		token, err := cipher.Encrypt([]byte("payload with spaces and ünïcode"))
		require.NoError(t, err)

		_, err = base64.RawURLEncoding.DecodeString(token)
		assert.NoError(t, err)
	})

	t.Run("empty plaintext round trips", func(t *testing.T) {
		token, err := cipher.Encrypt(nil)
		require.NoError(t, err)

		plaintext, err := cipher.Decrypt(token)
		require.NoError(t, err)
		assert.Empty(t, plaintext)
	})
}

func TestCipherRejects(t *testing.T) {
	cipher, err := cryptotoken.New("super-secret-value")
	require.NoError(t, err)

	token, err := cipher.Encrypt([]byte("payload"))
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		other, err := cryptotoken.New("a-different-secret")
		require.NoError(t, err)

		_, err = other.Decrypt(token)
		assert.ErrorIs(t, err, cryptotoken.ErrDecryption)
	})

	t.Run("any flipped byte of the envelope", func(t *testing.T) {
		envelope, err := base64.RawURLEncoding.DecodeString(token)
		require.NoError(t, err)

		// One probe per envelope section: salt, nonce, ciphertext, tag.
		for _, pos := range []int{0, 16, 28, len(envelope) - 1} {
			damaged := make([]byte, len(envelope))
			copy(damaged, envelope)
			damaged[pos] ^= 0x01

			_, err := cipher.Decrypt(base64.RawURLEncoding.EncodeToString(damaged))
			assert.ErrorIs(t, err, cryptotoken.ErrDecryption, "byte %d", pos)
		}
	})

	t.Run("truncated token", func(t *testing.T) {
		_, err := cipher.Decrypt(token[:len(token)/2])
		assert.ErrorIs(t, err, cryptotoken.ErrDecryption)
	})

	t.Run("garbage input", func(t *testing.T) {
		for _, input := range []string{"", "not base64 at all!!", "AAAA"} {
			_, err := cipher.Decrypt(input)
			assert.ErrorIs(t, err, cryptotoken.ErrDecryption)
		}
	})

	t.Run("empty secret is refused", func(t *testing.T) {
		_, err := cryptotoken.New("")
		assert.Error(t, err)
	})
}

func TestResetPayload(t *testing.T) {
	cipher, err := cryptotoken.New("super-secret-value")
	require.NoError(t, err)

	now := time.Now()
	payload := cryptotoken.ResetPayload{
		UserID:    "3f1b5ac0-0000-0000-0000-000000000001",
		ResetID:   "3f1b5ac0-0000-0000-0000-000000000002",
		Email:     "renter@example.com",
		ExpiresAt: now.Add(time.Hour),
	}

	t.Run("round trip", func(t *testing.T) {
		token, err := cipher.EncryptResetPayload(payload)
		require.NoError(t, err)

		got, err := cipher.DecryptResetPayload(token, now)
		require.NoError(t, err)
		assert.Equal(t, payload.UserID, got.UserID)
		assert.Equal(t, payload.ResetID, got.ResetID)
		assert.Equal(t, payload.Email, got.Email)
	})

	t.Run("embedded deadline is enforced even though decryption succeeds", func(t *testing.T) {
		token, err := cipher.EncryptResetPayload(payload)
		require.NoError(t, err)

		_, err = cipher.DecryptResetPayload(token, now.Add(2*time.Hour))
		assert.ErrorIs(t, err, cryptotoken.ErrPayloadExpired)
	})

	t.Run("deadline boundary is exclusive", func(t *testing.T) {
		token, err := cipher.EncryptResetPayload(payload)
		require.NoError(t, err)

		_, err = cipher.DecryptResetPayload(token, payload.ExpiresAt)
		assert.ErrorIs(t, err, cryptotoken.ErrPayloadExpired)
	})
}
