package platform

import "time"

// Repository is the subset of the Platform's repository representation the
// policy engine consumes. PlatformRepositoryID is stable across renames.
type Repository struct {
	PlatformRepositoryID int64  `json:"id"`
	FullName             string `json:"full_name"`
	DefaultBranch        string `json:"default_branch"`
	Archived             bool   `json:"archived"`
}

// FileContent is the decoded result of a content-endpoint read.
type FileContent struct {
	Raw    []byte
	String string
}

// WorkflowPermissions mirrors the Platform's Actions default-permissions
// response. Enabled=false means the endpoint reported the feature disabled
// (evaluator treats that as compliant per spec §4.3).
type WorkflowPermissions struct {
	Enabled           bool
	DefaultPermission string // "read" | "write"
}

// Issue is the subset of an issue the create/list handlers need.
type Issue struct {
	Number int64  `json:"number"`
	Title  string `json:"title"`
	URL    string `json:"html_url"`
	State  string `json:"state"`
}

// StatusCheckState is one of the Platform's commit-status states.
type StatusCheckState string

const (
	StatusSuccess StatusCheckState = "success"
	StatusFailure StatusCheckState = "failure"
	StatusPending StatusCheckState = "pending"
)

// PullRequestComment is the subset of a PR comment the dedup check needs.
type PullRequestComment struct {
	ID   int64  `json:"id"`
	Body string `json:"body"`
}

type installationToken struct {
	token     string
	expiresAt time.Time
}

func (t *installationToken) validFor(skew time.Duration) bool {
	return t != nil && time.Now().Add(skew).Before(t.expiresAt)
}
