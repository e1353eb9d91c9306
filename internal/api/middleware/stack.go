// SPDX-License-Identifier: MIT

package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// StackConfig configures the canonical ingress middleware stack.
type StackConfig struct {
	AllowedOrigins []string

	// TracingService enables otelhttp spans when non-empty.
	TracingService string

	// RateLimitRPM caps requests per client per minute; 0 disables.
	RateLimitRPM int
}

// Apply installs the stack on r in dependency order: recovery
// outermost, then correlation, CORS, metrics, tracing, logging and
// rate limiting.
func Apply(r chi.Router, cfg StackConfig) {
	r.Use(Recoverer)
	r.Use(RealIP)
	r.Use(RequestID)
	r.Use(CORS(cfg.AllowedOrigins))
	r.Use(Metrics)
	if cfg.TracingService != "" {
		r.Use(func(next http.Handler) http.Handler {
			return otelhttp.NewHandler(next, cfg.TracingService)
		})
	}
	r.Use(Logging)
	if cfg.RateLimitRPM > 0 {
		r.Use(RateLimit(cfg.RateLimitRPM, time.Minute))
	}
}
