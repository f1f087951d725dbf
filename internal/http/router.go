package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/idempotency"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/observability"
	"github.com/robertarktes/ticket-lifecycle-validation/internal/rateLimit"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl *rateLimit.RateLimiter, idemp *idempotency.Idempotency) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(MetricsMiddleware)
	r.Use(TracingMiddleware)
	r.Use(PrincipalMiddleware)
	r.Use(RateLimitMiddleware(rl))

	r.Post("/v1/claims/challenge", h.RequestChallenge)
	r.Post("/v1/claims/verify", h.VerifyChallenge)
	r.With(IdempotencyMiddleware(idemp)).Post("/v1/tickets", h.CreateTicket)
	r.Post("/v1/payments/callback", h.PaymentCallback)
	r.Post("/v1/scan", h.Scan)
	r.Post("/v1/tickets/{id}/confirm-cash", h.ConfirmCash)
	r.Post("/v1/tickets/{id}/invalidate", h.Invalidate)
	r.Get("/v1/events/{id}/availability", h.Availability)
	r.Get("/v1/scans/recent", h.RecentScans)
	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
