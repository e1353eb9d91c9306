// SPDX-License-Identifier: MIT

package middleware

import (
	"net/http"
)

// CORS sets Cross-Origin Resource Sharing headers for the local editor
// UI. With no explicit origins the common localhost dev ports are
// allowed; "*" in the list allows everything.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = true
	}
	if len(allowedOrigins) == 0 {
		allowed["http://localhost:3000"] = true
		allowed["http://localhost:5173"] = true
		allowed["http://127.0.0.1:3000"] = true
		allowed["http://127.0.0.1:5173"] = true
	}
	allowAll := allowed["*"]

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case origin == "":
				// Non-browser clients; same-origin policy applies.
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case allowAll || allowed[origin]:
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}
			// Unlisted origins get no header; the browser blocks them.

			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS, DELETE, PUT")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
			w.Header().Set("Access-Control-Max-Age", "600")
			w.Header().Set("Vary", "Origin")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
