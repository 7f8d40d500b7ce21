package middleware

import (
	"crypto/subtle"
	"net/http"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/netfabric/fabsync/internal/server/response"
)

// AuthConfig controls API-key authentication.
type AuthConfig struct {
	Enabled    bool
	APIKey     string
	HeaderName string
	// SkipPaths are served without a key. Health probes stay open so
	// load balancers can reach them.
	SkipPaths []string
}

// DefaultAuthConfig reads the API key from FABSYNC_API_KEY and leaves
// auth disabled until the server config turns it on.
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		Enabled:    false,
		APIKey:     os.Getenv("FABSYNC_API_KEY"),
		HeaderName: "X-API-Key",
		SkipPaths:  []string{"/healthz", "/readyz", "/api/v1/healthz", "/api/v1/readyz"},
	}
}

// Auth rejects requests without a matching API key. Keys are compared
// in constant time.
func Auth(cfg AuthConfig, logger *zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled || isPublicPath(r.URL.Path, cfg.SkipPaths) {
				next.ServeHTTP(w, r)
				return
			}

			key := extractAPIKey(r, cfg.HeaderName)
			if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(cfg.APIKey)) != 1 {
				logger.Warn().
					Str("path", r.URL.Path).
					Str("remote", clientIP(r)).
					Bool("key_provided", key != "").
					Msg("authentication failed")
				response.Unauthorized(w, "invalid or missing API key",
					"provide a valid key in the "+cfg.HeaderName+" header")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isPublicPath(path string, skip []string) bool {
	for _, p := range skip {
		if path == p {
			return true
		}
	}
	return false
}

// extractAPIKey reads the key from the configured header, falling back
// to Authorization (bare or Bearer-prefixed).
func extractAPIKey(r *http.Request, header string) string {
	if key := r.Header.Get(header); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return auth
}
