package middleware

import (
	"net/http"
	"slices"

	"github.com/go-chi/cors"
)

// SecurityHeaders marks every response as a non-cacheable JSON API response.
// Memory content is private to an agent, so intermediaries must not store it.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// CORS builds the cross-origin handler. With no configured origins every
// cross-origin request is refused; "*" allows any origin without credentials.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		MaxAge:         300,
	}

	switch {
	case len(allowedOrigins) == 0:
		opts.AllowOriginFunc = func(*http.Request, string) bool { return false }
	case slices.Contains(allowedOrigins, "*"):
		opts.AllowedOrigins = []string{"*"}
	default:
		opts.AllowedOrigins = allowedOrigins
		opts.AllowCredentials = true
	}
	return cors.Handler(opts)
}
