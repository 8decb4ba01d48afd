// Package cryptotoken encrypts small payloads into URL-safe opaque tokens.
// Each token carries its own random salt and nonce so the same plaintext
// never produces the same token twice, and any tampering with any byte of
// the envelope fails decryption.
package cryptotoken

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize  = 16
	nonceSize = 12
	keySize   = 32
	// PBKDF2 iteration count. Tokens are minted and checked server side so
	// the stretch cost is paid rarely, not per request.
	keyIterations = 120_000
)

// ErrDecryption is returned for every failed decrypt: wrong secret, damaged
// envelope, truncated token. Callers get no hint which byte was wrong.
var ErrDecryption = goerrors.New("token decryption failed", goerrors.CategoryAuth).
	WithTextCode("TOKEN_DECRYPTION_FAILED").
	WithCode(goerrors.CodeUnauthorized)

// Cipher derives a fresh AES-256-GCM key per token from a shared secret and
// a random salt. Envelope layout is salt, nonce, then ciphertext with the
// GCM tag appended, base64 URL encoded without padding.
type Cipher struct {
	secret []byte
}

func New(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, goerrors.New("cipher secret cannot be empty", goerrors.CategoryBadInput)
	}
	return &Cipher{secret: []byte(secret)}, nil
}

// Encrypt seals plaintext into a URL-safe token.
func (c *Cipher) Encrypt(plaintext []byte) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate salt")
	}

	aead, err := c.aead(salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate nonce")
	}

	envelope := make([]byte, 0, saltSize+nonceSize+len(plaintext)+aead.Overhead())
	envelope = append(envelope, salt...)
	envelope = append(envelope, nonce...)
	envelope = aead.Seal(envelope, nonce, plaintext, nil)

	return base64.RawURLEncoding.EncodeToString(envelope), nil
}

// Decrypt opens a token produced by Encrypt. Every failure mode collapses
// into ErrDecryption.
func (c *Cipher) Decrypt(token string) ([]byte, error) {
	envelope, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrDecryption
	}

	if len(envelope) < saltSize+nonceSize {
		return nil, ErrDecryption
	}

	salt := envelope[:saltSize]
	nonce := envelope[saltSize : saltSize+nonceSize]
	ciphertext := envelope[saltSize+nonceSize:]

	aead, err := c.aead(salt)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryption
	}

	return plaintext, nil
}

func (c *Cipher) aead(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(c.secret, salt, keyIterations, keySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to initialize cipher")
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to initialize aead")
	}

	return aead, nil
}
