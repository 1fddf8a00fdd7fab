package httpx

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/vulntor/attackq/pkg/config"
)

// Auth returns a middleware that enforces token-based authentication.
//
// Behavior:
//   - Skips authentication for health endpoints (/healthz, /readyz)
//   - In "none" mode (cfg.Auth.Mode="none"), skips authentication
//   - In "token" mode, validates Authorization: Bearer <token> header
//   - Returns 401 Unauthorized with JSON error if auth fails
//
// Example header: Authorization: Bearer secret-token-12345
func Auth(cfg config.ServerConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip auth for health endpoints (always accessible)
			if isHealthEndpoint(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			switch cfg.Auth.Mode {
			case "", "none":
				next.ServeHTTP(w, r)

			case "token":
				token := extractBearerToken(r)
				if token == "" {
					log.Warn().
						Str("component", "auth").
						Str("path", r.URL.Path).
						Msg("Missing authorization header")
					writeUnauthorized(w, "Missing authorization header")
					return
				}

				if subtle.ConstantTimeCompare([]byte(token), []byte(cfg.Auth.Token)) != 1 {
					log.Warn().
						Str("component", "auth").
						Str("path", r.URL.Path).
						Msg("Invalid token")
					writeUnauthorized(w, "Invalid token")
					return
				}

				next.ServeHTTP(w, r)

			default:
				// Unknown auth mode (config validation rejects it)
				log.Error().
					Str("component", "auth").
					Str("mode", cfg.Auth.Mode).
					Msg("Unknown auth mode")
				writeUnauthorized(w, "Authentication configuration error")
			}
		})
	}
}

// isHealthEndpoint checks if path is a health check endpoint
func isHealthEndpoint(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

// extractBearerToken extracts the token from Authorization: Bearer <token> header
func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}

	// Expected format: "Bearer <token>"
	scheme, token, ok := strings.Cut(auth, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}

	return strings.TrimSpace(token)
}

// writeUnauthorized writes a 401 Unauthorized response with JSON body
func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="attackq"`)
	w.WriteHeader(http.StatusUnauthorized)
	// Simple JSON response (not using api.WriteError to avoid circular dependency)
	_, _ = w.Write([]byte(`{"error":"Unauthorized","message":"` + message + `"}`))
}
