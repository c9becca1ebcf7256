package handler

import (
	"github.com/Shivanand-hulikatti/club-ride-registration/internal/ratelimit"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Limits holds one limiter per rate-limited operation.
type Limits struct {
	Capacity *ratelimit.Limiter
	Cancel   *ratelimit.Limiter
	Register *ratelimit.Limiter
}

// RouterConfig collects what the router needs.
type RouterConfig struct {
	Handler     *RegistrationHandler
	Verifier    TokenVerifier
	Limits      Limits
	AllowOrigin string
}

// NewRouter builds the chi router shared by the HTTP server and Lambda.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(Logger)                  // access log
	r.Use(CORS(cfg.AllowOrigin))

	r.NotFound(NotFound)
	r.Get("/health", HealthCheck)

	h := cfg.Handler
	r.Route("/api", func(r chi.Router) {
		r.With(RateLimit(cfg.Limits.Capacity, "capacity")).Get("/capacity", h.Capacity)

		r.Route("/registrations", func(r chi.Router) {
			r.With(RateLimit(cfg.Limits.Cancel, "cancel-link")).Post("/cancel-link", h.CancelByLink)

			// Rate limiting runs ahead of token verification.
			requireAuth := RequireAuth(cfg.Verifier)
			r.With(RateLimit(cfg.Limits.Register, "register"), requireAuth).Post("/", h.Register)
			r.With(RateLimit(cfg.Limits.Cancel, "cancel"), requireAuth).Post("/cancel", h.Cancel)
		})
	})
	return r
}
