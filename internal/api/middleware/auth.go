package middleware

import (
	"net/http"

	"github.com/kubilitics/policy-engine/internal/authz"
	"github.com/kubilitics/policy-engine/internal/pkg/metrics"
)

// loginHeader carries the dashboard-authenticated user's Platform login. The
// core does not authenticate interactive users (spec §1 Non-goals); it only
// authorizes an already-identified principal against the Platform's team
// membership (C9), so the dashboard's own session layer is responsible for
// populating this header after its own (out-of-scope) sign-in flow.
const loginHeader = "X-User-Login"

// Auth gates the read API behind C9 team-membership authorization. When
// enabled is false the gate is a no-op (appropriate for a trusted internal
// network, per internal/config's read_api_auth_enabled).
func Auth(authorizer *authz.Authorizer, enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				next.ServeHTTP(w, r)
				return
			}

			login := r.Header.Get(loginHeader)
			if login == "" {
				metrics.AuthzDecisionsTotal.WithLabelValues("denied").Inc()
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

func unauthorized(w http.ResponseWriter, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + reason + `"}`))
}
