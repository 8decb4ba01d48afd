// Package webhook authenticates callbacks from the identity verification
// provider. Two signature schemes are accepted during the provider's
// migration: a canonical-JSON HMAC over the full body, and a legacy HMAC
// over a colon-joined field subset. Either valid signature admits the
// request, both are bound to a timestamp replay window.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Header names the provider sets on every delivery.
const (
	HeaderTimestamp       = "X-Webhook-Timestamp"
	HeaderSignatureV2     = "X-Webhook-Signature-V2"
	HeaderSignatureSimple = "X-Webhook-Signature"
)

// DefaultReplayWindow bounds how stale a delivery timestamp may be, in
// either direction, before the request is rejected outright.
const DefaultReplayWindow = 5 * time.Minute

var (
	ErrInvalidSignature = goerrors.New("webhook signature verification failed", goerrors.CategoryAuth).
				WithTextCode("INVALID_WEBHOOK_SIGNATURE").
				WithCode(goerrors.CodeUnauthorized)

	ErrReplayWindow = goerrors.New("webhook timestamp outside accepted window", goerrors.CategoryAuth).
			WithTextCode("WEBHOOK_REPLAY_REJECTED").
			WithCode(goerrors.CodeUnauthorized)
)

// Headers carries the authentication material stripped from the HTTP
// request. A delivery may set one or both signature headers.
type Headers struct {
	Timestamp       string
	SignatureV2     string
	SignatureSimple string
}

// Verifier checks deliveries against a shared secret.
type Verifier struct {
	secret []byte
	window time.Duration
	now    func() time.Time
}

func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, goerrors.New("webhook secret cannot be empty", goerrors.CategoryBadInput)
	}

	return &Verifier{
		secret: []byte(secret),
		window: DefaultReplayWindow,
		now:    time.Now,
	}, nil
}

// WithReplayWindow overrides the accepted timestamp skew.
func (v *Verifier) WithReplayWindow(window time.Duration) *Verifier {
	if window > 0 {
		v.window = window
	}
	return v
}

// WithClock overrides the time source, used by tests to probe the window
// boundary.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	if now != nil {
		v.now = now
	}
	return v
}

// Verify authenticates a delivery. The timestamp window is checked first so
// a replayed request is rejected even when its signature is genuine. Exactly
// one valid signature, under either scheme, admits the body.
func (v *Verifier) Verify(body []byte, headers Headers) error {
	ts, err := parseTimestamp(headers.Timestamp)
	if err != nil {
		return err
	}

	age := v.now().Sub(ts)
	if age > v.window || age < -v.window {
		return ErrReplayWindow
	}

	if headers.SignatureV2 != "" {
		canonical, err := CanonicalJSON(body)
		if err != nil {
			return ErrInvalidSignature
		}
		if v.signatureMatches(canonical, headers.SignatureV2) {
			return nil
		}
	}

	if headers.SignatureSimple != "" {
		event, err := ParseEvent(body)
		if err != nil {
			return ErrInvalidSignature
		}
		if v.signatureMatches([]byte(event.SimpleSigningString()), headers.SignatureSimple) {
			return nil
		}
	}

	return ErrInvalidSignature
}

// Sign computes the canonical-scheme signature for a body. Used by tests
// and by outbound deliveries to partners that verify the same way.
func (v *Verifier) Sign(body []byte) (string, error) {
	canonical, err := CanonicalJSON(body)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to canonicalize webhook body")
	}
	return v.mac(canonical), nil
}

// SignSimple computes the legacy-scheme signature for an event.
func (v *Verifier) SignSimple(event *Event) string {
	return v.mac([]byte(event.SimpleSigningString()))
}

func (v *Verifier) signatureMatches(message []byte, provided string) bool {
	expected := v.mac(message)
	return hmac.Equal([]byte(expected), []byte(provided))
}

func (v *Verifier) mac(message []byte) string {
	h := hmac.New(sha256.New, v.secret)
	h.Write(message)
	return hex.EncodeToString(h.Sum(nil))
}

func parseTimestamp(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, ErrReplayWindow
	}

	unix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, ErrReplayWindow
	}

	return time.Unix(unix, 0), nil
}
