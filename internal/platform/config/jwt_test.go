package config

import (
	"testing"
	"time"
)

func TestLoadJWTConfigFromEnv(t *testing.T) {
	t.Setenv("JWT_ISSUER", "iss")
	t.Setenv("JWT_AUDIENCE", "aud")
	t.Setenv("JWT_JWKS_URL", "http://localhost/jwks")
	t.Setenv("JWT_CLOCK_SKEW", "5s")

	cfg, err := LoadJWTConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadJWTConfigFromEnv: %v", err)
	}
	if cfg.ClockSkew != 5*time.Second || cfg.JWKSRefreshInterval != 5*time.Minute {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	t.Setenv("JWT_CLOCK_SKEW", "abc")
	if _, err := LoadJWTConfigFromEnv(); err == nil {
		t.Fatalf("expected error for invalid JWT_CLOCK_SKEW")
	}
}

func TestLoadJWTConfigFromEnv_Missing(t *testing.T) {
	t.Setenv("JWT_ISSUER", "")
	t.Setenv("JWT_AUDIENCE", "aud")
	t.Setenv("JWT_JWKS_URL", "http://localhost/jwks")
	if _, err := LoadJWTConfigFromEnv(); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoadJWTConfigFromEnv_Durations(t *testing.T) {
	t.Setenv("JWT_ISSUER", "iss")
	t.Setenv("JWT_AUDIENCE", "aud")
	t.Setenv("JWT_JWKS_URL", "http://localhost/jwks")
	t.Setenv("JWT_JWKS_REFRESH_INTERVAL", "1m")
	t.Setenv("JWT_JWKS_MIN_REFRESH_INTERVAL", "2s")
	t.Setenv("JWT_HTTP_TIMEOUT", "750ms")

	cfg, err := LoadJWTConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadJWTConfigFromEnv: %v", err)
	}
	if cfg.JWKSRefreshInterval != time.Minute || cfg.JWKSMinRefreshInterval != 2*time.Second || cfg.HTTPTimeout != 750*time.Millisecond {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.ClockSkew != 30*time.Second {
		t.Fatalf("ClockSkew=%v, want default 30s", cfg.ClockSkew)
	}

	t.Setenv("JWT_HTTP_TIMEOUT", "-1s")
	if _, err := LoadJWTConfigFromEnv(); err == nil {
		t.Fatalf("expected error for negative JWT_HTTP_TIMEOUT")
	}
}
