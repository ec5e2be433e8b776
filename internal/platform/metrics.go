package platform

import (
	"net/http"
	"strconv"

	"github.com/kubilitics/policy-engine/internal/pkg/metrics"
)

// recordRateLimitRemaining records the Platform's remaining-quota header for
// observability (spec §4.1).
func recordRateLimitRemaining(header http.Header) {
	v := header.Get("X-RateLimit-Remaining")
	if v == "" {
		return
	}
	if n, err := strconv.ParseFloat(v, 64); err == nil {
		metrics.PlatformRateLimitRemaining.Set(n)
	}
}
