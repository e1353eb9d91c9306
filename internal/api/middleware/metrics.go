// SPDX-License-Identifier: MIT

package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/subwave-io/subwave/internal/metrics"
)

// Metrics records request latency per method/route/status. The chi
// route pattern keeps label cardinality bounded; unmatched requests
// are lumped under their raw path's first segment.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordHTTPRequest(r.Method, route, sw.status, time.Since(start))
	})
}
