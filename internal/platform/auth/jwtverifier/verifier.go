package jwtverifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"

	"github.com/conference-site/schedule-api/internal/platform/config"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
)

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Verifier validates RS256 bearer tokens against a JWKS endpoint.
//
// Keys are refreshed in the background every JWKSRefreshInterval and on demand when a
// token presents an unknown kid, no more often than JWKSMinRefreshInterval.
type Verifier struct {
	cfg    config.JWTConfig
	clock  Clock
	jwks   *keyfunc.JWKS
	parser *jwt.Parser
}

func New(cfg config.JWTConfig) (*Verifier, error) {
	return NewWithOptions(cfg, nil, nil)
}

func NewWithOptions(cfg config.JWTConfig, httpClient *http.Client, clock Clock) (*Verifier, error) {
	const op = "jwtverifier.New"

	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	if clock == nil {
		clock = realClock{}
	}

	jwks, err := keyfunc.Get(cfg.JWKSURL, keyfunc.Options{
		Client:            httpClient,
		RefreshInterval:   cfg.JWKSRefreshInterval,
		RefreshRateLimit:  cfg.JWKSMinRefreshInterval,
		RefreshTimeout:    cfg.HTTPTimeout,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Verifier{
		cfg:   cfg,
		clock: clock,
		jwks:  jwks,
		// Claims are checked against the injected clock, not jwt.TimeFunc.
		parser: jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}), jwt.WithoutClaimsValidation()),
	}, nil
}

// Close stops the background JWKS refresh.
func (v *Verifier) Close() {
	v.jwks.EndBackground()
}

// Verify verifies a JWT and returns the authenticated subject from the `sub` claim.
//
// Verification:
// - RS256 signature using keys fetched from JWKS
// - iss, aud, exp, and nbf (when present)
func (v *Verifier) Verify(ctx context.Context, token string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var claims jwt.RegisteredClaims
	parsed, err := v.parser.ParseWithClaims(token, &claims, v.jwks.Keyfunc)
	if err != nil || !parsed.Valid {
		return "", ErrUnauthorized
	}
	if kid, _ := parsed.Header["kid"].(string); kid == "" {
		return "", ErrUnauthorized
	}
	if err := v.validateClaims(&claims); err != nil {
		return "", ErrUnauthorized
	}
	if claims.Subject == "" {
		return "", ErrUnauthorized
	}
	return claims.Subject, nil
}

func (v *Verifier) validateClaims(c *jwt.RegisteredClaims) error {
	now := v.clock.Now()
	skew := v.cfg.ClockSkew

	if !c.VerifyIssuer(v.cfg.Issuer, true) {
		return fmt.Errorf("iss mismatch")
	}
	if !c.VerifyAudience(v.cfg.Audience, true) {
		return fmt.Errorf("aud mismatch")
	}
	if !c.VerifyExpiresAt(now.Add(-skew), true) {
		return fmt.Errorf("token expired")
	}
	if !c.VerifyNotBefore(now.Add(skew), false) {
		return fmt.Errorf("token not yet valid")
	}
	return nil
}
