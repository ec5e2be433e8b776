package middleware

import (
	"net/http"

	"github.com/kubilitics/policy-engine/internal/authz"
)

// MetricsAuth protects the /metrics endpoint behind C9 team-membership
// authorization. When disabled, /metrics is publicly accessible (default,
// appropriate for in-cluster Prometheus scraping).
func MetricsAuth(authorizer *authz.Authorizer, enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled || r.URL.Path != "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			login := r.Header.Get(loginHeader)
			if login == "" {
				unauthorized(w, "missing user identity")
				return
			}
			ok, err := authorizer.IsAuthorized(r.Context(), login)
			if err != nil || !ok {
				unauthorized(w, "not a member of the authorized team")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
