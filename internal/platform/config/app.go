package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// AppConfig holds process-level settings for cmd/api.
type AppConfig struct {
	Env      string
	Port     string
	AuthMode string
	// DevSubject is used when AuthMode is "dev" and no X-Debug-Subject header is sent.
	DevSubject string

	StorageBackend string
	DatabaseURL    string
	SQLitePath     string

	// RedisAddr enables the Redis idempotency store when set.
	RedisAddr      string
	IdempotencyTTL time.Duration

	// KafkaBrokers enables RSVP event publishing when non-empty.
	KafkaBrokers []string
	KafkaTopic   string
}

// LoadAppConfigFromEnv reads AppConfig from the environment. When APP_ENV is local,
// a .env file in the working directory is loaded first; variables already set win.
func LoadAppConfigFromEnv() (AppConfig, error) {
	if getenv("APP_ENV", EnvLocal) == EnvLocal {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return AppConfig{}, fmt.Errorf("load .env: %w", err)
		}
	}

	cfg := AppConfig{
		Env:            getenv("APP_ENV", EnvLocal),
		Port:           getenv("PORT", "8080"),
		AuthMode:       getenv("AUTH_MODE", "jwt"),
		DevSubject:     getenv("DEV_SUBJECT", "dev|local"),
		StorageBackend: getenv("STORAGE_BACKEND", BackendMemory),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		SQLitePath:     getenv("SQLITE_PATH", "schedule.db"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		IdempotencyTTL: 24 * time.Hour,
		KafkaTopic:     getenv("KAFKA_TOPIC", "rsvp-events"),
	}

	switch cfg.Env {
	case EnvLocal, EnvDev, EnvProd:
	default:
		return AppConfig{}, fmt.Errorf("APP_ENV must be one of local, dev, prod (got %q)", cfg.Env)
	}

	switch cfg.StorageBackend {
	case BackendMemory, BackendSQLite:
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return AppConfig{}, fmt.Errorf("DATABASE_URL is required when STORAGE_BACKEND=postgres")
		}
	default:
		return AppConfig{}, fmt.Errorf("STORAGE_BACKEND must be one of memory, postgres, sqlite (got %q)", cfg.StorageBackend)
	}

	if err := durationEnv("IDEMPOTENCY_TTL", &cfg.IdempotencyTTL); err != nil {
		return AppConfig{}, err
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	return cfg, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// durationEnv overwrites *dst when key is set. Negative durations are rejected.
func durationEnv(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s must be a duration (e.g. 30s): %w", key, err)
	}
	if d < 0 {
		return fmt.Errorf("%s must not be negative (got %s)", key, v)
	}
	*dst = d
	return nil
}
