package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/kubilitics/policy-engine/internal/actions"
	"github.com/kubilitics/policy-engine/internal/evaluator"
	"github.com/kubilitics/policy-engine/internal/orgconfig"
	"github.com/kubilitics/policy-engine/internal/platform"
	"github.com/kubilitics/policy-engine/internal/pkg/logger"
)

// PRActionExecutor is the subset of internal/actions.Executor the background
// job needs for PR-scoped remediation (spec §4.7 step 4).
type PRActionExecutor interface {
	CommentOnPR(ctx context.Context, fullName string, prNumber int64, policyCfg orgconfig.PolicyConfig, violations []evaluator.Violation) error
	UpdatePRStatus(ctx context.Context, fullName, headSHA string, policyCfg orgconfig.PolicyConfig, violations []evaluator.Violation) error
}

// Processor runs the background job enqueued for every pull_request event
// (spec §4.7 "PR re-evaluation").
type Processor struct {
	client   platform.PlatformAPI
	cfgLoad  *orgconfig.Loader
	registry *evaluator.Registry
	executor PRActionExecutor
	log      *slog.Logger
}

func NewProcessor(client platform.PlatformAPI, cfgLoad *orgconfig.Loader, registry *evaluator.Registry, executor PRActionExecutor, log *slog.Logger) *Processor {
	return &Processor{client: client, cfgLoad: cfgLoad, registry: registry, executor: executor, log: log}
}

// HandlePullRequestEvent implements the job registered as "handle-pr":
// re-evaluate the repository and converge comments/status checks to its
// current state (spec §4.7 steps 1-5).
func (p *Processor) HandlePullRequestEvent(ctx context.Context, argsJSON string) error {
	var args handlePRJobArgs
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return fmt.Errorf("webhook: decode job args: %w", err)
	}

	var payload pullRequestPayload
	if err := json.Unmarshal(args.Payload, &payload); err != nil {
		p.log.Warn("malformed pull_request payload", "delivery_id", args.DeliveryID, "error", err)
		return nil
	}
	// Step 1: missing required fields are not retryable.
	if !payload.valid() {
		p.log.Warn("pull_request payload missing required fields", "delivery_id", args.DeliveryID)
		return nil
	}

	// Step 2: fetch repository, load configuration, evaluate.
	repo, err := p.client.GetRepository(ctx, payload.Repository.ID)
	if err != nil {
		return fmt.Errorf("webhook: fetch repository %d: %w", payload.Repository.ID, err)
	}
	appCfg, err := p.cfgLoad.Load(ctx)
	if err != nil {
		return fmt.Errorf("webhook: load configuration: %w", err)
	}
	violations, err := p.registry.EvaluateRepository(ctx, p.log, p.client, *repo, appCfg.Policies)
	if err != nil {
		return fmt.Errorf("webhook: evaluate %s: %w", repo.FullName, err)
	}

	// Step 3: group violations by policy type.
	byType := make(map[string][]evaluator.Violation, len(violations))
	for _, v := range violations {
		key := strings.ToLower(v.PolicyKey)
		byType[key] = append(byType[key], v)
	}

	logger.WebhookLog(os.Stdout, args.DeliveryID,
		fmt.Sprintf("re-evaluated %s: %d violations", repo.FullName, len(violations)), "")

	// Step 4: dispatch PR-scoped actions per policy.
	var errs []error
	for _, policyCfg := range appCfg.Policies {
		policyViolations := byType[strings.ToLower(policyCfg.Type)]
		for _, rawTag := range policyCfg.Action {
			switch actions.NormalizeActionName(rawTag) {
			case actions.ActionCommentOnPRs:
				if len(policyViolations) == 0 {
					continue
				}
				if err := p.executor.CommentOnPR(ctx, repo.FullName, payload.PullRequest.Number, policyCfg, policyViolations); err != nil {
					p.log.Error("comment-on-prs failed", "repository", repo.FullName, "error", err)
					errs = append(errs, err)
				}
			case actions.ActionBlockPRs:
				if err := p.executor.UpdatePRStatus(ctx, repo.FullName, payload.PullRequest.Head.SHA, policyCfg, policyViolations); err != nil {
					p.log.Error("block-prs failed", "repository", repo.FullName, "error", err)
					errs = append(errs, err)
				}
			default:
				// scan-time action, not applicable to PR re-evaluation (spec §4.7 step 4).
			}
		}
	}

	// Step 5: action failures are logged per-action but don't abort the job;
	// return their sum so the queue still records a partial-failure outcome.
	return errors.Join(errs...)
}
