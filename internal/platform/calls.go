package platform

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/kubilitics/policy-engine/internal/apperr"
)

func (c *Client) ListOrgRepositories(ctx context.Context, org string) ([]Repository, error) {
	var all []Repository
	page := 1
	for {
		path := fmt.Sprintf("/orgs/%s/repos?per_page=100&page=%d&type=all", url.PathEscape(org), page)
		body, _, err := c.do(ctx, http.MethodGet, path, nil, defaultTimeout)
		if err != nil {
			return nil, err
		}
		var batch []Repository
		if err := decodeJSON(body, &batch); err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}
		all = append(all, batch...)
		if len(batch) < 100 {
			break
		}
		page++
	}
	return all, nil
}

func (c *Client) GetRepository(ctx context.Context, platformRepositoryID int64) (*Repository, error) {
	path := fmt.Sprintf("/repositories/%d", platformRepositoryID)
	body, _, err := c.do(ctx, http.MethodGet, path, nil, defaultTimeout)
	if err != nil {
		return nil, err
	}
	var repo Repository
	if err := decodeJSON(body, &repo); err != nil {
		return nil, err
	}
	return &repo, nil
}

type contentResponse struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// GetFileContent reads a file at the default branch root via the Platform's
// content endpoint and decodes its base64 payload (spec §4.1 "Content encoding").
func (c *Client) GetFileContent(ctx context.Context, fullName, path string) (*FileContent, error) {
	apiPath := fmt.Sprintf("/repos/%s/contents/%s", fullName, strings.TrimPrefix(path, "/"))
	body, _, err := c.do(ctx, http.MethodGet, apiPath, nil, fileContentTimeout)
	if err != nil {
		return nil, err
	}
	var parsed contentResponse
	if err := decodeJSON(body, &parsed); err != nil {
		return nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(parsed.Content, "\n", ""))
	if err != nil {
		return nil, fmt.Errorf("platform: decode file content: %w", err)
	}
	return &FileContent{Raw: raw, String: string(raw)}, nil
}

// FileExists downgrades a PlatformNotFound into a plain false, per the
// error taxonomy's disposition for this call (spec §7).
func (c *Client) FileExists(ctx context.Context, fullName, path string) (bool, error) {
	_, err := c.GetFileContent(ctx, fullName, path)
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, err
}

func isNotFound(err error) bool {
	return apperr.Is(err, apperr.CodePlatformNotFound)
}

type workflowPermissionsResponse struct {
	DefaultWorkflowPermissions string `json:"default_workflow_permissions"`
}

// GetWorkflowPermissions treats a 404 (feature disabled on this repo) as
// compliant by returning Enabled=false rather than an error (spec §4.3).
func (c *Client) GetWorkflowPermissions(ctx context.Context, fullName string) (*WorkflowPermissions, error) {
	path := fmt.Sprintf("/repos/%s/actions/permissions/workflow", fullName)
	body, _, err := c.do(ctx, http.MethodGet, path, nil, defaultTimeout)
	if err != nil {
		if isNotFound(err) {
			return &WorkflowPermissions{Enabled: false}, nil
		}
		return nil, err
	}
	var parsed workflowPermissionsResponse
	if err := decodeJSON(body, &parsed); err != nil {
		return nil, err
	}
	return &WorkflowPermissions{Enabled: true, DefaultPermission: parsed.DefaultWorkflowPermissions}, nil
}

type createIssueRequest struct {
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Labels []string `json:"labels,omitempty"`
}

func (c *Client) CreateIssue(ctx context.Context, fullName, title, body string, labels []string) (*Issue, error) {
	payload, err := json.Marshal(createIssueRequest{Title: title, Body: body, Labels: labels})
	if err != nil {
		return nil, fmt.Errorf("platform: encode create-issue request: %w", err)
	}
	path := fmt.Sprintf("/repos/%s/issues", fullName)
	respBody, _, err := c.do(ctx, http.MethodPost, path, bytes.NewReader(payload), defaultTimeout)
	if err != nil {
		return nil, err
	}
	var issue Issue
	if err := decodeJSON(respBody, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

func (c *Client) ListOpenIssuesByLabel(ctx context.Context, fullName, label string) ([]Issue, error) {
	path := fmt.Sprintf("/repos/%s/issues?state=open&labels=%s&per_page=100", fullName, url.QueryEscape(label))
	body, _, err := c.do(ctx, http.MethodGet, path, nil, defaultTimeout)
	if err != nil {
		return nil, err
	}
	var issues []Issue
	if err := decodeJSON(body, &issues); err != nil {
		return nil, err
	}
	return issues, nil
}

type patchRepoRequest struct {
	Archived bool `json:"archived"`
}

// ArchiveRepository is naturally idempotent: re-archiving an already-archived
// repository is a no-op on the Platform side (spec §4.6).
func (c *Client) ArchiveRepository(ctx context.Context, fullName string) error {
	payload, _ := json.Marshal(patchRepoRequest{Archived: true})
	path := fmt.Sprintf("/repos/%s", fullName)
	_, _, err := c.do(ctx, http.MethodPatch, path, bytes.NewReader(payload), defaultTimeout)
	return err
}

type createCommentRequest struct {
	Body string `json:"body"`
}

func (c *Client) CommentOnPullRequest(ctx context.Context, fullName string, number int64, body string) error {
	payload, _ := json.Marshal(createCommentRequest{Body: body})
	path := fmt.Sprintf("/repos/%s/issues/%d/comments", fullName, number)
	_, _, err := c.do(ctx, http.MethodPost, path, bytes.NewReader(payload), defaultTimeout)
	return err
}

func (c *Client) ListPullRequestComments(ctx context.Context, fullName string, number int64) ([]PullRequestComment, error) {
	path := fmt.Sprintf("/repos/%s/issues/%d/comments?per_page=100", fullName, number)
	body, _, err := c.do(ctx, http.MethodGet, path, nil, defaultTimeout)
	if err != nil {
		return nil, err
	}
	var comments []PullRequestComment
	if err := decodeJSON(body, &comments); err != nil {
		return nil, err
	}
	return comments, nil
}

type statusRequest struct {
	State       string `json:"state"`
	Context     string `json:"context"`
	Description string `json:"description"`
}

// UpsertStatusCheck relies on the Platform coalescing updates by (context,
// sha) for idempotence (spec §4.6).
func (c *Client) UpsertStatusCheck(ctx context.Context, fullName, sha, context_, description string, state StatusCheckState) error {
	payload, _ := json.Marshal(statusRequest{State: string(state), Context: context_, Description: description})
	path := fmt.Sprintf("/repos/%s/statuses/%s", fullName, sha)
	_, _, err := c.do(ctx, http.MethodPost, path, bytes.NewReader(payload), defaultTimeout)
	return err
}

// IsTeamMember checks membership for C9. A PlatformNotFound response means
// the user isn't a member; any other error propagates so the authorizer can
// log it and fail closed (spec §4.9).
func (c *Client) IsTeamMember(ctx context.Context, org, teamSlug, login string) (bool, error) {
	path := fmt.Sprintf("/orgs/%s/teams/%s/memberships/%s", url.PathEscape(org), url.PathEscape(teamSlug), url.PathEscape(login))
	_, _, err := c.do(ctx, http.MethodGet, path, nil, defaultTimeout)
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, err
}
