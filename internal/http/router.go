package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/robertarktes/coworking-booking-engine/internal/domain"
	"github.com/robertarktes/coworking-booking-engine/internal/observability"
)

const (
	CheckRateLimit  = 60
	CheckRatePeriod = time.Minute
)

type RouterOptions struct {
	JWTSecret []byte
	// Limiter and Idempotency are optional.
	Limiter     Limiter
	Idempotency IdempotencyStore
}

func SetupRouter(h *Handlers, logger observability.Logger, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(MetricsMiddleware)
	r.Use(TracingMiddleware)
	r.Use(JWTMiddleware(opts.JWTSecret))

	r.Route("/bookings", func(r chi.Router) {
		r.With(limit(opts.Limiter)).Post("/check-availability", h.CheckAvailability)
		r.Post("/quote", h.Quote)
		r.With(idempotent(opts.Idempotency, logger)).Post("/intent", h.CommitIntent)
		r.Post("/handoff", h.StashIntent)
		r.Post("/handoff/{token}/claim", h.ClaimIntent)
	})

	r.Route("/reservations/{id}", func(r chi.Router) {
		r.Get("/", h.GetReservation)
		r.Post("/confirm", h.TransitionReservation(domain.StatusConfirmed))
		r.Post("/cancel", h.TransitionReservation(domain.StatusCancelled))
		r.Post("/complete", h.TransitionReservation(domain.StatusCompleted))
	})

	r.Post("/listings", h.CreateListing)
	r.Get("/listings/{id}", h.GetListing)
	r.Put("/listings/{id}/rates", h.UpdateRates)

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

func limit(rl Limiter) func(http.Handler) http.Handler {
	if rl == nil {
		return passthrough
	}
	return RateLimitMiddleware(rl, "check", CheckRateLimit, CheckRatePeriod)
}

func idempotent(store IdempotencyStore, logger observability.Logger) func(http.Handler) http.Handler {
	if store == nil {
		return passthrough
	}
	return IdempotencyMiddleware(store, logger)
}

func passthrough(next http.Handler) http.Handler { return next }
