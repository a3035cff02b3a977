package jwtverifier_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/conference-site/schedule-api/internal/platform/auth/jwks_testutil"
	"github.com/conference-site/schedule-api/internal/platform/auth/jwtverifier"
	"github.com/conference-site/schedule-api/internal/platform/config"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func testConfig(jwksURL string) config.JWTConfig {
	return config.JWTConfig{
		Issuer:                 "test-iss",
		Audience:               "test-aud",
		JWKSURL:                jwksURL,
		ClockSkew:              0,
		JWKSRefreshInterval:    10 * time.Minute,
		JWKSMinRefreshInterval: 0,
		HTTPTimeout:            2 * time.Second,
	}
}

func newVerifier(t *testing.T, srv *httptest.Server, clk *fakeClock) (*jwtverifier.Verifier, config.JWTConfig) {
	t.Helper()
	cfg := testConfig(srv.URL)
	v, err := jwtverifier.NewWithOptions(cfg, nil, clk)
	if err != nil {
		t.Fatalf("NewWithOptions: %v", err)
	}
	t.Cleanup(v.Close)
	return v, cfg
}

func TestVerifier_Verify_ValidToken(t *testing.T) {
	t.Parallel()

	jwksSrv, setKeys := jwks_testutil.NewRotatingJWKSServer()
	defer jwksSrv.Close()

	kp, err := jwks_testutil.GenerateRSAKeypair("kid-1")
	if err != nil {
		t.Fatalf("GenerateRSAKeypair: %v", err)
	}
	setKeys([]jwks_testutil.Keypair{kp})

	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	v, cfg := newVerifier(t, jwksSrv, clk)

	jwt, err := jwks_testutil.MintRS256JWT(kp, cfg.Issuer, cfg.Audience, "attendee-123", clk.Now(), 5*time.Minute, nil)
	if err != nil {
		t.Fatalf("MintRS256JWT: %v", err)
	}

	sub, err := v.Verify(context.Background(), jwt)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if sub != "attendee-123" {
		t.Fatalf("sub mismatch: got %q", sub)
	}
}

func TestVerifier_Verify_AudienceArray(t *testing.T) {
	t.Parallel()

	jwksSrv, setKeys := jwks_testutil.NewRotatingJWKSServer()
	defer jwksSrv.Close()

	kp, _ := jwks_testutil.GenerateRSAKeypair("kid-1")
	setKeys([]jwks_testutil.Keypair{kp})

	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	v, cfg := newVerifier(t, jwksSrv, clk)

	jwt, _ := jwks_testutil.MintRS256JWT(kp, cfg.Issuer, []string{"other", cfg.Audience}, "attendee-123", clk.Now(), 5*time.Minute, nil)
	if _, err := v.Verify(context.Background(), jwt); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifier_Verify_Expired(t *testing.T) {
	t.Parallel()

	jwksSrv, setKeys := jwks_testutil.NewRotatingJWKSServer()
	defer jwksSrv.Close()

	kp, _ := jwks_testutil.GenerateRSAKeypair("kid-1")
	setKeys([]jwks_testutil.Keypair{kp})

	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	v, cfg := newVerifier(t, jwksSrv, clk)

	jwt, _ := jwks_testutil.MintRS256JWT(kp, cfg.Issuer, cfg.Audience, "attendee-123", clk.Now(), -1*time.Minute, nil)
	if _, err := v.Verify(context.Background(), jwt); err == nil {
		t.Fatalf("expected error")
	}
}

func TestVerifier_Verify_NotYetValid(t *testing.T) {
	t.Parallel()

	jwksSrv, setKeys := jwks_testutil.NewRotatingJWKSServer()
	defer jwksSrv.Close()

	kp, _ := jwks_testutil.GenerateRSAKeypair("kid-1")
	setKeys([]jwks_testutil.Keypair{kp})

	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	v, cfg := newVerifier(t, jwksSrv, clk)

	nbf := time.Minute
	jwt, _ := jwks_testutil.MintRS256JWT(kp, cfg.Issuer, cfg.Audience, "attendee-123", clk.Now(), 5*time.Minute, &nbf)
	if _, err := v.Verify(context.Background(), jwt); err == nil {
		t.Fatalf("expected error for nbf in the future")
	}
}

func TestVerifier_Verify_WrongIssuerOrAudience(t *testing.T) {
	t.Parallel()

	jwksSrv, setKeys := jwks_testutil.NewRotatingJWKSServer()
	defer jwksSrv.Close()

	kp, _ := jwks_testutil.GenerateRSAKeypair("kid-1")
	setKeys([]jwks_testutil.Keypair{kp})

	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	v, cfg := newVerifier(t, jwksSrv, clk)

	jwtWrongIss, _ := jwks_testutil.MintRS256JWT(kp, "wrong-iss", cfg.Audience, "attendee-123", clk.Now(), 5*time.Minute, nil)
	if _, err := v.Verify(context.Background(), jwtWrongIss); err == nil {
		t.Fatalf("expected error for wrong iss")
	}

	jwtWrongAud, _ := jwks_testutil.MintRS256JWT(kp, cfg.Issuer, "wrong-aud", "attendee-123", clk.Now(), 5*time.Minute, nil)
	if _, err := v.Verify(context.Background(), jwtWrongAud); err == nil {
		t.Fatalf("expected error for wrong aud")
	}
}

func TestVerifier_Verify_BadSignature(t *testing.T) {
	t.Parallel()

	jwksSrv, setKeys := jwks_testutil.NewRotatingJWKSServer()
	defer jwksSrv.Close()

	kp, _ := jwks_testutil.GenerateRSAKeypair("kid-1")
	setKeys([]jwks_testutil.Keypair{kp})

	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	v, cfg := newVerifier(t, jwksSrv, clk)

	// Same kid, different private key.
	other, _ := rsa.GenerateKey(rand.Reader, 2048)
	otherKP := jwks_testutil.Keypair{Kid: "kid-1", Private: other}
	jwt, _ := jwks_testutil.MintRS256JWT(otherKP, cfg.Issuer, cfg.Audience, "attendee-123", clk.Now(), 5*time.Minute, nil)
	if _, err := v.Verify(context.Background(), jwt); err == nil {
		t.Fatalf("expected error")
	}
}

func TestVerifier_Verify_Garbage(t *testing.T) {
	t.Parallel()

	jwksSrv, setKeys := jwks_testutil.NewRotatingJWKSServer()
	defer jwksSrv.Close()

	kp, _ := jwks_testutil.GenerateRSAKeypair("kid-1")
	setKeys([]jwks_testutil.Keypair{kp})

	v, _ := newVerifier(t, jwksSrv, &fakeClock{now: time.Unix(1700000000, 0)})
	if _, err := v.Verify(context.Background(), "not.a.jwt"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestVerifier_Verify_JWKSRotation_OldKidRejected_NewKidAccepted(t *testing.T) {
	t.Parallel()

	jwksSrv, setKeys := jwks_testutil.NewRotatingJWKSServer()
	defer jwksSrv.Close()

	k1, _ := jwks_testutil.GenerateRSAKeypair("kid-1")
	k2, _ := jwks_testutil.GenerateRSAKeypair("kid-2")
	setKeys([]jwks_testutil.Keypair{k1})

	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	v, cfg := newVerifier(t, jwksSrv, clk)

	jwt1, _ := jwks_testutil.MintRS256JWT(k1, cfg.Issuer, cfg.Audience, "attendee-123", clk.Now(), 5*time.Minute, nil)
	if _, err := v.Verify(context.Background(), jwt1); err != nil {
		t.Fatalf("expected jwt1 to verify: %v", err)
	}

	// Rotate: JWKS now only contains kid-2.
	setKeys([]jwks_testutil.Keypair{k2})

	// The unknown kid triggers a refresh that replaces the key set.
	jwt2, _ := jwks_testutil.MintRS256JWT(k2, cfg.Issuer, cfg.Audience, "attendee-456", clk.Now(), 5*time.Minute, nil)
	sub, err := v.Verify(context.Background(), jwt2)
	if err != nil {
		t.Fatalf("expected jwt2 to verify: %v", err)
	}
	if sub != "attendee-456" {
		t.Fatalf("sub mismatch: got %q", sub)
	}

	if _, err := v.Verify(context.Background(), jwt1); err == nil {
		t.Fatalf("expected jwt1 to be rejected after rotation")
	}
}
