package auth

import (
	"os"
	"strings"
	"time"
)

// SimpleConfig is a plain-struct Config for tests and embedding hosts.
type SimpleConfig struct {
	SigningKey         string
	SigningMethod      string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	SessionExchangeTTL time.Duration
	PasswordResetTTL   time.Duration
	Issuer             string
	Audience           []string
}

var _ Config = (*SimpleConfig)(nil)

func (c *SimpleConfig) GetSigningKey() string { return c.SigningKey }

func (c *SimpleConfig) GetSigningMethod() string {
	if c.SigningMethod == "" {
		return "HS256"
	}
	return c.SigningMethod
}

func (c *SimpleConfig) GetAccessTokenTTL() time.Duration {
	if c.AccessTokenTTL <= 0 {
		return DefaultAccessTokenTTL
	}
	return c.AccessTokenTTL
}

func (c *SimpleConfig) GetRefreshTokenTTL() time.Duration {
	if c.RefreshTokenTTL <= 0 {
		return DefaultRefreshTokenTTL
	}
	return c.RefreshTokenTTL
}

func (c *SimpleConfig) GetSessionExchangeTTL() time.Duration {
	if c.SessionExchangeTTL <= 0 {
		return DefaultSessionExchangeTTL
	}
	return c.SessionExchangeTTL
}

func (c *SimpleConfig) GetPasswordResetTTL() time.Duration {
	if c.PasswordResetTTL <= 0 {
		return DefaultPasswordResetTTL
	}
	return c.PasswordResetTTL
}

func (c *SimpleConfig) GetIssuer() string { return c.Issuer }

func (c *SimpleConfig) GetAudience() []string { return c.Audience }

// EnvConfig reads auth options from the process environment, with the same
// defaults SimpleConfig falls back to.
type EnvConfig struct{}

var _ Config = (*EnvConfig)(nil)

func (EnvConfig) GetSigningKey() string { return getEnv("AUTH_SIGNING_KEY", "") }

func (EnvConfig) GetSigningMethod() string { return getEnv("AUTH_SIGNING_METHOD", "HS256") }

func (EnvConfig) GetAccessTokenTTL() time.Duration {
	return getEnvDuration("AUTH_ACCESS_TOKEN_TTL", DefaultAccessTokenTTL)
}

func (EnvConfig) GetRefreshTokenTTL() time.Duration {
	return getEnvDuration("AUTH_REFRESH_TOKEN_TTL", DefaultRefreshTokenTTL)
}

func (EnvConfig) GetSessionExchangeTTL() time.Duration {
	return getEnvDuration("AUTH_SESSION_EXCHANGE_TTL", DefaultSessionExchangeTTL)
}

func (EnvConfig) GetPasswordResetTTL() time.Duration {
	return getEnvDuration("AUTH_PASSWORD_RESET_TTL", DefaultPasswordResetTTL)
}

func (EnvConfig) GetIssuer() string { return getEnv("AUTH_ISSUER", "nido") }

func (EnvConfig) GetAudience() []string {
	raw := getEnv("AUTH_AUDIENCE", "")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
