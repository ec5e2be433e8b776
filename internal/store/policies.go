package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/kubilitics/policy-engine/internal/models"
)

// SyncPolicies implements spec §4.5 step 4: upsert a Policy row for each
// configured type whose policy_key is absent, and return a policy_key ->
// Policy map for the rest of the scan to consume.
func (s *Store) SyncPolicies(ctx context.Context, tx *sqlx.Tx, configured []PolicyRef) (map[string]models.Policy, error) {
	result := make(map[string]models.Policy, len(configured))
	for _, p := range configured {
		actionSpec, err := models.EncodeActions(p.Actions)
		if err != nil {
			return nil, fmt.Errorf("store: encode actions for policy %s: %w", p.PolicyKey, err)
		}

		var existing models.Policy
		err = tx.GetContext(ctx, &existing,
			`SELECT id, policy_key, description, action_spec FROM policies WHERE policy_key = $1`, p.PolicyKey)
		if err == nil {
			result[p.PolicyKey] = existing
			continue
		}

		policy := models.Policy{PolicyKey: p.PolicyKey, Description: p.Description, ActionSpec: actionSpec}
		insertErr := tx.QueryRowxContext(ctx,
			`INSERT INTO policies (policy_key, description, action_spec) VALUES ($1, $2, $3)
			 ON CONFLICT (policy_key) DO UPDATE SET policy_key = EXCLUDED.policy_key
			 RETURNING id`,
			policy.PolicyKey, policy.Description, policy.ActionSpec,
		).Scan(&policy.ID)
		if insertErr != nil {
			return nil, fmt.Errorf("store: upsert policy %s: %w", p.PolicyKey, insertErr)
		}
		result[p.PolicyKey] = policy
	}
	return result, nil
}

// PolicyRef is the minimal shape SyncPolicies needs from orgconfig.PolicyConfig.
type PolicyRef struct {
	PolicyKey   string
	Description string
	Actions     []string
}

func (s *Store) GetPolicyByKey(ctx context.Context, policyKey string) (*models.Policy, error) {
	var policy models.Policy
	err := s.db.GetContext(ctx, &policy,
		`SELECT id, policy_key, description, action_spec FROM policies WHERE policy_key = $1`, policyKey)
	if err != nil {
		return nil, fmt.Errorf("store: get policy %s: %w", policyKey, err)
	}
	return &policy, nil
}
