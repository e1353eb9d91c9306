// SPDX-License-Identifier: MIT

package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimit caps requests per client IP over a sliding window. SSE and
// media streaming routes are mounted outside the limited group.
func RateLimit(requestLimit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestLimit,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"code":"validation","detail":"too many requests"}`))
		}),
	)
}

// UploadRateLimit guards the expensive multipart upload endpoint.
func UploadRateLimit() func(http.Handler) http.Handler {
	return RateLimit(10, time.Minute)
}
