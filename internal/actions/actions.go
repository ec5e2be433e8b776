// Package actions is the Action Executor (C6): performs configured
// remediation actions per violation with de-duplication and logging (spec
// §4.6), plus the PR-scoped entry points invoked by the webhook handler (C7).
package actions

import "strings"

// Known scan-time action tags (spec §4.6, GLOSSARY "Action tag").
const (
	ActionCreateIssue  = "create-issue"
	ActionArchiveRepo  = "archive-repo"
	ActionLogOnly      = "log-only"
	ActionCommentOnPRs = "comment-on-prs"
	ActionBlockPRs     = "block-prs"
)

// NormalizeActionName canonicalizes an action tag to kebab-case so
// "comment_on_prs" and "comment-on-prs" dispatch to the same handler (spec
// §9 "Action-field polymorphism").
func NormalizeActionName(tag string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(tag)), "_", "-")
}
