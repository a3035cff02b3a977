package config

import (
	"fmt"
	"os"
	"time"
)

// JWTConfig configures bearer-token verification against the identity provider's JWKS.
type JWTConfig struct {
	Issuer   string
	Audience string
	JWKSURL  string

	// ClockSkew is tolerated on exp and nbf.
	ClockSkew time.Duration
	// JWKSRefreshInterval re-fetches the key set in the background so rotated keys are picked up.
	JWKSRefreshInterval time.Duration
	// JWKSMinRefreshInterval rate-limits refreshes triggered by tokens with an unknown kid.
	JWKSMinRefreshInterval time.Duration

	HTTPTimeout time.Duration
}

// LoadJWTConfigFromEnv reads JWT_ISSUER, JWT_AUDIENCE and JWT_JWKS_URL (all required) and the
// optional JWT_CLOCK_SKEW, JWT_JWKS_REFRESH_INTERVAL, JWT_JWKS_MIN_REFRESH_INTERVAL and
// JWT_HTTP_TIMEOUT durations.
func LoadJWTConfigFromEnv() (JWTConfig, error) {
	cfg := JWTConfig{
		Issuer:                 os.Getenv("JWT_ISSUER"),
		Audience:               os.Getenv("JWT_AUDIENCE"),
		JWKSURL:                os.Getenv("JWT_JWKS_URL"),
		ClockSkew:              30 * time.Second,
		JWKSRefreshInterval:    5 * time.Minute,
		JWKSMinRefreshInterval: 10 * time.Second,
		HTTPTimeout:            5 * time.Second,
	}
	if cfg.Issuer == "" || cfg.Audience == "" || cfg.JWKSURL == "" {
		return JWTConfig{}, fmt.Errorf("missing required env vars: JWT_ISSUER, JWT_AUDIENCE, JWT_JWKS_URL")
	}

	for _, d := range []struct {
		key string
		dst *time.Duration
	}{
		{"JWT_CLOCK_SKEW", &cfg.ClockSkew},
		{"JWT_JWKS_REFRESH_INTERVAL", &cfg.JWKSRefreshInterval},
		{"JWT_JWKS_MIN_REFRESH_INTERVAL", &cfg.JWKSMinRefreshInterval},
		{"JWT_HTTP_TIMEOUT", &cfg.HTTPTimeout},
	} {
		if err := durationEnv(d.key, d.dst); err != nil {
			return JWTConfig{}, err
		}
	}
	return cfg, nil
}
