// Package middleware provides request body size limiting.
package middleware

import (
	"net/http"
	"strings"
)

const (
	// DefaultStandardMaxBodyBytes is the default max request body for the
	// read API (512KB).
	DefaultStandardMaxBodyBytes = 512 * 1024
	// DefaultWebhookMaxBodyBytes is the default max request body for webhook
	// deliveries (5MB) — Platform payloads can carry large diffs or file lists.
	DefaultWebhookMaxBodyBytes = 5 * 1024 * 1024
)

// MaxBodySize returns middleware that limits request body size: webhookMax
// for POST .../api/webhooks/*, standardMax otherwise. Every request that
// carries a non-nil body is limited, whatever its method.
func MaxBodySize(standardMax, webhookMax int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil {
				next.ServeHTTP(w, r)
				return
			}
			max := standardMax
			if r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/api/webhooks/") {
				max = webhookMax
			}
			r.Body = http.MaxBytesReader(w, r.Body, max)
			next.ServeHTTP(w, r)
		})
	}
}
