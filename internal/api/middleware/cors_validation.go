package middleware

import (
	"log/slog"
	"net/http"

	"github.com/kubilitics/policy-engine/internal/config"
)

// CORSValidation logs a warning when the configured allowed origins include a
// wildcard, since the read API (C9) may be reachable from untrusted networks.
func CORSValidation(cfg *config.Config, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg != nil {
				for _, origin := range cfg.AllowedOrigins {
					if origin == "*" || origin == ".*" {
						log.Warn("CORS wildcard detected",
							"origin", origin,
							"risk", "allows any origin to access the API",
							"recommendation", "use specific origins in production",
						)
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
