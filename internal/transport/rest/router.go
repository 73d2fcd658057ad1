package rest

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/baechuer/order-lifecycle-service/internal/metrics"
)

type RouterDeps struct {
	Handler *Handler
	Health  *Health

	RateLimitEnabled bool
	RateLimit        int
	RateLimitWindow  time.Duration
}

func NewRouter(d RouterDeps) http.Handler {
	if d.Handler == nil {
		panic("rest.NewRouter: nil handler")
	}
	if d.Health == nil {
		panic("rest.NewRouter: nil health")
	}

	r := chi.NewRouter()

	// Request ID + trace adoption + structured access log
	r.Use(middleware.RealIP)
	r.Use(RequestID)
	r.Use(Tracing)
	r.Use(HTTPLogger)

	// Panic recovery
	r.Use(middleware.Recoverer)

	// Cross-cutting
	r.Use(Metrics)
	r.Use(SecurityHeaders)

	// Probes and exposition stay outside the rate limit.
	r.Get("/health/live", d.Health.Live)
	r.Get("/health/ready", d.Health.Ready)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if d.RateLimitEnabled {
			r.Use(httprate.LimitByIP(d.RateLimit, d.RateLimitWindow))
		}

		r.Post("/orders", d.Handler.CreateOrder)
		r.Get("/orders", d.Handler.ListOrders)
	})

	return r
}
