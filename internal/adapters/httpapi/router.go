package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/conference-site/schedule-api/internal/platform/logger"
)

type RouterOptions struct {
	// AuthMiddleware, when set, runs before every route except /healthz and /metrics.
	AuthMiddleware func(http.Handler) http.Handler
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
	Logger  *slog.Logger
}

func NewRouter(s *Server) http.Handler {
	return NewRouterWithOptions(s, RouterOptions{})
}

// NewRouterWithOptions constructs the API HTTP router.
func NewRouterWithOptions(s *Server, opts RouterOptions) http.Handler {
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewRequestLogger(log))
	r.Use(middleware.Recoverer)
	if opts.AuthMiddleware != nil {
		r.Use(opts.AuthMiddleware)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/users", func(r chi.Router) {
		r.Post("/", s.CreateMyUser)
		r.Get("/me", s.GetMyUser)
		r.Delete("/me", s.DeleteMyUser)
		r.Get("/me/rsvps", s.ListMyRSVPs)
	})

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.ListSchedule)
		r.Post("/", s.CreateSession)
		r.Route("/{sessionId}", func(r chi.Router) {
			r.Get("/", s.GetSession)
			r.Patch("/", s.UpdateSession)
			r.Get("/rsvps", s.ListSessionRSVPs)
			r.Put("/rsvp", s.Rsvp)
			r.Delete("/rsvp", s.Unrsvp)
			r.Post("/rsvp/toggle", s.ToggleRSVP)
		})
	})

	r.Get("/rsvp-counts", s.CountsBySession)

	return r
}
