package evaluator

import (
	"context"
	"log/slog"

	"github.com/kubilitics/policy-engine/internal/orgconfig"
	"github.com/kubilitics/policy-engine/internal/platform"
)

// EvaluateRepository dispatches every configured policy against one
// repository, collecting all produced violations. A policy with no matching
// evaluator is skipped with a warning, not treated as a scan failure (spec §4.3).
func (r *Registry) EvaluateRepository(ctx context.Context, log *slog.Logger, client platform.PlatformAPI, repo platform.Repository, policies []orgconfig.PolicyConfig) ([]Violation, error) {
	var violations []Violation
	for _, p := range policies {
		e, ok := r.Lookup(p.Type)
		if !ok {
			log.Warn("no evaluator registered for policy type", "policy_type", p.Type, "policy_name", p.Name)
			continue
		}
		v, err := e.Evaluate(ctx, client, repo)
		if err != nil {
			return violations, err
		}
		if v != nil {
			violations = append(violations, *v)
		}
	}
	return violations, nil
}
