// Package oauth validates identity tokens issued by external providers and
// maps them onto local accounts. Provider keys are fetched from the JWKS
// endpoint and refreshed in the background.
package oauth

import (
	"errors"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"

	auth "github.com/nidohq/nido-auth"
)

// Profile is the subset of provider claims we act on.
type Profile struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Provider      string
}

type providerClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

// VerifierConfig identifies one upstream provider.
type VerifierConfig struct {
	Name     string
	JWKSURL  string
	Issuer   string
	Audience string
}

// Verifier checks provider-issued identity tokens: signature against the
// provider's published keys, then issuer, audience, and expiry.
type Verifier struct {
	cfg    VerifierConfig
	jwks   *keyfunc.JWKS
	logger auth.Logger
}

func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	if cfg.JWKSURL == "" {
		return nil, goerrors.New("provider JWKS URL cannot be empty", goerrors.CategoryBadInput)
	}

	logger := auth.DefaultLogger()

	jwks, err := keyfunc.Get(cfg.JWKSURL, keyfunc.Options{
		RefreshErrorHandler: func(err error) {
			logger.Warn("jwks background refresh failed: %v", err)
		},
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  time.Minute * 5,
		RefreshTimeout:    time.Second * 10,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to fetch provider JWKS")
	}

	return &Verifier{cfg: cfg, jwks: jwks, logger: logger}, nil
}

func (v *Verifier) WithLogger(logger auth.Logger) *Verifier {
	if logger != nil {
		v.logger = logger
	}
	return v
}

// Verify parses and validates an identity token, returning the profile it
// asserts. All parse and claim failures map to the same malformed-token
// error; only expiry gets its own answer.
func (v *Verifier) Verify(identityToken string) (*Profile, error) {
	claims := &providerClaims{}

	opts := []jwt.ParserOption{
		jwt.WithExpirationRequired(),
	}
	if v.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.cfg.Issuer))
	}
	if v.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.cfg.Audience))
	}

	token, err := jwt.ParseWithClaims(identityToken, claims, v.jwks.Keyfunc, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, auth.ErrTokenExpired
		}
		v.logger.Debug("provider token rejected: %v", err)
		return nil, auth.ErrTokenMalformed
	}

	if !token.Valid {
		return nil, auth.ErrTokenMalformed
	}

	if claims.Subject == "" || claims.Email == "" {
		return nil, auth.ErrTokenMalformed
	}

	return &Profile{
		Subject:       claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
		Provider:      v.cfg.Name,
	}, nil
}

// Close stops the background JWKS refresh.
func (v *Verifier) Close() {
	if v.jwks != nil {
		v.jwks.EndBackground()
	}
}
