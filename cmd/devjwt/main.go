package main

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/conference-site/schedule-api/internal/platform/logger"
	"github.com/conference-site/schedule-api/internal/platform/logger/sl"
)

// Dev-only token issuer and JWKS server for running the API with AUTH_MODE=jwt locally.
// It is not an OIDC provider.

type jwk struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwks struct {
	Keys []jwk `json:"keys"`
}

type issuer struct {
	key      *rsa.PrivateKey
	kid      string
	issuer   string
	audience string
	ttl      time.Duration
}

func main() {
	log := logger.New(getenv("APP_ENV", "local"))

	port := getenv("PORT", "5556")
	iss := &issuer{
		kid:      getenv("KID", "dev-kid-1"),
		issuer:   getenv("ISSUER", "http://devjwt:5556"),
		audience: getenv("AUDIENCE", "conference-schedule"),
		ttl:      getenvDuration("TTL", 30*time.Minute),
	}

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		log.Error("generate key", sl.Err(err))
		os.Exit(1)
	}
	iss.key = priv

	jwksJSON, err := marshalJWKS(priv.PublicKey, iss.kid)
	if err != nil {
		log.Error("marshal jwks", sl.Err(err))
		os.Exit(1)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/.well-known/jwks.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(jwksJSON)
	})

	// GET /token?sub=dev|attendee-1
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		sub := strings.TrimSpace(r.URL.Query().Get("sub"))
		if sub == "" {
			http.Error(w, "missing sub", http.StatusBadRequest)
			return
		}

		now := time.Now().UTC()
		token, err := iss.mint(sub, now)
		if err != nil {
			log.Error("mint token", slog.String("sub", sub), sl.Err(err))
			http.Error(w, "failed to mint token", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token": token,
			"sub":   sub,
			"iss":   iss.issuer,
			"aud":   iss.audience,
			"exp":   now.Add(iss.ttl).Unix(),
		})
	})

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info("devjwt listening",
		slog.String("addr", srv.Addr),
		slog.String("iss", iss.issuer),
		slog.String("aud", iss.audience),
		slog.String("kid", iss.kid),
		slog.Duration("ttl", iss.ttl),
	)
	if err := srv.ListenAndServe(); err != nil {
		log.Error("listen", sl.Err(err))
		os.Exit(1)
	}
}

func (i *issuer) mint(sub string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    i.issuer,
		Subject:   sub,
		Audience:  jwt.ClaimStrings{i.audience},
		ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		// small skew tolerance for local use
		NotBefore: jwt.NewNumericDate(now.Add(-5 * time.Second)),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = i.kid
	return token.SignedString(i.key)
}

func marshalJWKS(pub rsa.PublicKey, kid string) ([]byte, error) {
	enc := base64.RawURLEncoding
	set := jwks{
		Keys: []jwk{{
			Kty: "RSA",
			Use: "sig",
			Alg: "RS256",
			Kid: kid,
			N:   enc.EncodeToString(pub.N.Bytes()),
			E:   enc.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	}
	return json.Marshal(set)
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getenvDuration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
