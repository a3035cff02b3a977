package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/conference-site/schedule-api/internal/adapters/backends"
	"github.com/conference-site/schedule-api/internal/adapters/httpapi"
	"github.com/conference-site/schedule-api/internal/adapters/kafka"
	redisidempotency "github.com/conference-site/schedule-api/internal/adapters/redis/idempotency"
	"github.com/conference-site/schedule-api/internal/app/rsvps"
	"github.com/conference-site/schedule-api/internal/app/sessions"
	"github.com/conference-site/schedule-api/internal/app/users"
	"github.com/conference-site/schedule-api/internal/platform/auth/jwtverifier"
	platformclock "github.com/conference-site/schedule-api/internal/platform/clock"
	"github.com/conference-site/schedule-api/internal/platform/config"
	"github.com/conference-site/schedule-api/internal/platform/logger"
	"github.com/conference-site/schedule-api/internal/platform/logger/sl"
	"github.com/conference-site/schedule-api/internal/platform/metrics"
)

func main() {
	cfg, err := config.LoadAppConfigFromEnv()
	if err != nil {
		slog.Error("invalid config", sl.Err(err))
		os.Exit(1)
	}

	log := logger.New(cfg.Env)
	if err := run(cfg, log); err != nil {
		log.Error("api stopped", sl.Err(err))
		os.Exit(1)
	}
}

// run owns every resource it opens, so its deferred closes also run when setup fails.
func run(cfg config.AppConfig, log *slog.Logger) error {
	log.Info("starting schedule api",
		slog.String("env", cfg.Env),
		slog.String("storage_backend", cfg.StorageBackend),
		slog.String("auth_mode", cfg.AuthMode),
	)

	// Auth configuration:
	// - Production: require JWT_* env vars and enforce bearer auth
	// - Local dev: set AUTH_MODE=dev to bypass JWT verification and use X-Debug-Subject
	var authMW func(http.Handler) http.Handler
	switch cfg.AuthMode {
	case "dev":
		authMW = httpapi.NewDevAuthMiddleware(cfg.DevSubject)
	default:
		jwtCfg, err := config.LoadJWTConfigFromEnv()
		if err != nil {
			return fmt.Errorf("invalid auth config: %w", err)
		}
		verifier, err := jwtverifier.New(jwtCfg)
		if err != nil {
			return fmt.Errorf("jwks setup failed: %w", err)
		}
		defer verifier.Close()
		authMW = httpapi.NewAuthMiddleware(verifier)
	}

	ctx := context.Background()
	stores, err := backends.Open(ctx, backends.Config{
		Backend:     cfg.StorageBackend,
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,

		IdempotencyTTL: cfg.IdempotencyTTL,
	})
	if err != nil {
		return fmt.Errorf("storage setup failed: %w", err)
	}
	defer stores.Close()

	idem := stores.Idem
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis %s unreachable: %w", cfg.RedisAddr, err)
		}
		idem = redisidempotency.NewStore(rdb, cfg.IdempotencyTTL)
		log.Info("idempotency records in redis", slog.String("addr", cfg.RedisAddr))
	}

	reg := metrics.New()
	clk := platformclock.NewSystemClock()

	rsvpOpts := []rsvps.Option{
		rsvps.WithLogger(log),
		rsvps.WithMetrics(reg.RSVP),
	}
	if len(cfg.KafkaBrokers) > 0 {
		pub := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer func() {
			if err := pub.Close(); err != nil {
				log.Warn("kafka publisher close failed", sl.Err(err))
			}
		}()
		rsvpOpts = append(rsvpOpts, rsvps.WithPublisher(pub))
		log.Info("publishing rsvp events", slog.String("topic", cfg.KafkaTopic))
	}

	rsvpSvc := rsvps.NewService(stores.RSVPs, stores.Users, clk, rsvpOpts...)
	sessionSvc := sessions.NewService(stores.Sessions, rsvpSvc, clk, log)
	userSvc := users.NewService(stores.Users, rsvpSvc, clk, log)

	api := httpapi.NewServer(userSvc, sessionSvc, rsvpSvc, idem, clk, log)

	handler := httpapi.NewRouterWithOptions(api, httpapi.RouterOptions{
		AuthMiddleware: authMW,
		Metrics:        reg.Handler(),
		Logger:         log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Graceful shutdown
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listenErr := make(chan error, 1)
	go func() {
		log.Info("api listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
		close(listenErr)
	}()

	select {
	case err := <-listenErr:
		if err != nil {
			return fmt.Errorf("listen failed: %w", err)
		}
	case <-sigCtx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown incomplete", sl.Err(err))
	}
	return nil
}
