package actions

import (
	"context"
	"fmt"
	"strings"

	"github.com/kubilitics/policy-engine/internal/models"
	"github.com/kubilitics/policy-engine/internal/orgconfig"
)

var defaultIssueLabels = []string{"policy-violation", "compliance"}

// createIssue implements the create-issue handler (spec §4.6): compose
// details from configuration or defaults, de-duplicate against open issues
// by label and case-insensitive title match, otherwise open a new issue.
func (e *Executor) createIssue(ctx context.Context, fullName, policyKey string, policyCfg orgconfig.PolicyConfig) (models.ActionLogStatus, string) {
	title := fmt.Sprintf("Compliance Violation: %s", policyKey)
	body := fmt.Sprintf("Repository %s is in violation of policy %q. Please remediate and this issue will be closed on the next compliant scan.", fullName, policyKey)
	labels := defaultIssueLabels

	if d := policyCfg.IssueDetails; d != nil {
		if strings.TrimSpace(d.Title) != "" {
			title = d.Title
		}
		if strings.TrimSpace(d.Body) != "" {
			body = d.Body
		}
		if len(d.Labels) > 0 {
			labels = d.Labels
		}
	}

	if len(labels) > 0 {
		open, err := e.client.ListOpenIssuesByLabel(ctx, fullName, labels[0])
		if err != nil {
			return models.ActionFailed, err.Error()
		}
		for _, issue := range open {
			if strings.EqualFold(issue.Title, title) {
				return models.ActionSkipped, issue.URL
			}
		}
	}

	issue, err := e.client.CreateIssue(ctx, fullName, title, body, labels)
	if err != nil {
		return models.ActionFailed, err.Error()
	}
	return models.ActionSuccess, fmt.Sprintf("issue #%d: %s", issue.Number, issue.URL)
}

// archiveRepo implements the archive-repo handler (spec §4.6). Naturally
// idempotent: archiving an already-archived repository is a no-op on the
// Platform side.
func (e *Executor) archiveRepo(ctx context.Context, fullName string, policyCfg orgconfig.PolicyConfig) (models.ActionLogStatus, string) {
	if err := e.client.ArchiveRepository(ctx, fullName); err != nil {
		return models.ActionFailed, err.Error()
	}
	return models.ActionSuccess, fmt.Sprintf("archived per policy %q", policyCfg.Name)
}
