package actions

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/kubilitics/policy-engine/internal/evaluator"
	"github.com/kubilitics/policy-engine/internal/models"
	"github.com/kubilitics/policy-engine/internal/orgconfig"
	"github.com/kubilitics/policy-engine/internal/pkg/logger"
	"github.com/kubilitics/policy-engine/internal/pkg/metrics"
	"github.com/kubilitics/policy-engine/internal/platform"
)

const defaultStatusCheckName = "Policy Compliance Check"

func prMarker(policyKey string) string {
	return fmt.Sprintf("<!-- policy-engine:policy=%s -->", strings.ToLower(policyKey))
}

// CommentOnPR implements the PR-scoped comment_on_pr entry point (spec
// §4.6), invoked by the webhook handler only when violations is non-empty.
// De-duplication uses an invisible HTML marker (spec §9) rather than exact
// body matching, so the comment survives minor message edits.
func (e *Executor) CommentOnPR(ctx context.Context, fullName string, prNumber int64, policyCfg orgconfig.PolicyConfig, violations []evaluator.Violation) error {
	if len(violations) == 0 {
		return nil
	}

	message := fmt.Sprintf("Policy violation detected: %s", policyCfg.Name)
	if d := policyCfg.PRCommentDetails; d != nil && strings.TrimSpace(d.Message) != "" {
		message = d.Message
	}
	marker := prMarker(policyCfg.Type)

	existing, err := e.client.ListPullRequestComments(ctx, fullName, prNumber)
	if err != nil {
		wrapped := fmt.Errorf("actions: list PR comments for %s#%d: %w", fullName, prNumber, err)
		e.logPRAction(ctx, fullName, policyCfg.Type, ActionCommentOnPRs, models.ActionFailed, wrapped.Error())
		return wrapped
	}
	for _, c := range existing {
		if strings.Contains(c.Body, marker) {
			e.logPRAction(ctx, fullName, policyCfg.Type, ActionCommentOnPRs, models.ActionSkipped, "comment already present")
			return nil
		}
	}

	body := message + "\n\n" + marker
	if err := e.client.CommentOnPullRequest(ctx, fullName, prNumber, body); err != nil {
		wrapped := fmt.Errorf("actions: comment on %s#%d: %w", fullName, prNumber, err)
		e.logPRAction(ctx, fullName, policyCfg.Type, ActionCommentOnPRs, models.ActionFailed, wrapped.Error())
		return wrapped
	}
	e.logPRAction(ctx, fullName, policyCfg.Type, ActionCommentOnPRs, models.ActionSuccess, "comment posted")
	return nil
}

// UpdatePRStatus implements the PR-scoped update_pr_status entry point
// (spec §4.6), always invoked for block-prs so a previously failing PR can
// transition back to success once the underlying repo state is fixed.
func (e *Executor) UpdatePRStatus(ctx context.Context, fullName, headSHA string, policyCfg orgconfig.PolicyConfig, violations []evaluator.Violation) error {
	context_ := defaultStatusCheckName
	if d := policyCfg.BlockPRsDetails; d != nil && strings.TrimSpace(d.StatusCheckName) != "" {
		context_ = d.StatusCheckName
	}

	state := platform.StatusSuccess
	description := "All configured policies pass."
	if len(violations) > 0 {
		state = platform.StatusFailure
		tags := make([]string, 0, len(violations))
		for _, v := range violations {
			tags = append(tags, v.PolicyKey)
		}
		description = "Policy violations: " + strings.Join(tags, ", ")
	}

	if err := e.client.UpsertStatusCheck(ctx, fullName, headSHA, context_, description, state); err != nil {
		wrapped := fmt.Errorf("actions: update status check on %s@%s: %w", fullName, headSHA, err)
		e.logPRAction(ctx, fullName, policyCfg.Type, ActionBlockPRs, models.ActionFailed, wrapped.Error())
		return wrapped
	}
	e.logPRAction(ctx, fullName, policyCfg.Type, ActionBlockPRs, models.ActionSuccess, description)
	return nil
}

// logPRAction writes the ActionLog row for a PR-scoped action attempt (spec
// §4.6 "each action attempt writes a row to ActionLog"), resolving the
// internal repository/policy IDs that evaluator.Violation and
// orgconfig.PolicyConfig don't carry themselves.
func (e *Executor) logPRAction(ctx context.Context, fullName, policyKey, actionType string, status models.ActionLogStatus, details string) {
	metrics.ActionsExecutedTotal.WithLabelValues(actionType, string(status)).Inc()
	logger.ActionLog(os.Stdout, fullName, policyKey, fmt.Sprintf("action %s: %s", actionType, status), "")

	repo, err := e.store.GetRepositoryByName(ctx, fullName)
	if err != nil {
		e.log.Error("failed to resolve repository for action log", "repository", fullName, "error", err)
		return
	}
	policy, err := e.store.GetPolicyByKey(ctx, policyKey)
	if err != nil {
		e.log.Error("failed to resolve policy for action log", "policy_key", policyKey, "error", err)
		return
	}
	if err := e.store.InsertActionLog(ctx, repo.ID, policy.ID, actionType, status, details); err != nil {
		e.log.Error("failed to write action log", "repository_id", repo.ID, "action", actionType, "error", err)
	}
}
