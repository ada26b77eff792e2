package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// corsOptions allows every origin, matching the permissive policy of the
// generation service.
var corsOptions = cors.Options{
	AllowedOrigins: []string{"*"},
	AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
	AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
	ExposedHeaders: []string{"Content-Disposition"},
	MaxAge:         300,
}

// CORS wraps next with the permissive cross-origin policy.
func CORS(next http.Handler) http.Handler {
	return cors.Handler(corsOptions)(next)
}
