package actions

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/policy-engine/internal/evaluator"
	"github.com/kubilitics/policy-engine/internal/orgconfig"
	"github.com/kubilitics/policy-engine/internal/platform"
)

type fakePRPlatform struct {
	platform.PlatformAPI
	comments        []platform.PullRequestComment
	postedBody      string
	statusState     platform.StatusCheckState
	statusContext   string
	statusDesc      string
}

func (f *fakePRPlatform) ListPullRequestComments(ctx context.Context, fullName string, number int64) ([]platform.PullRequestComment, error) {
	return f.comments, nil
}

func (f *fakePRPlatform) CommentOnPullRequest(ctx context.Context, fullName string, number int64, body string) error {
	f.postedBody = body
	return nil
}

func (f *fakePRPlatform) UpsertStatusCheck(ctx context.Context, fullName, sha, context_, description string, state platform.StatusCheckState) error {
	f.statusContext = context_
	f.statusDesc = description
	f.statusState = state
	return nil
}

func newPRExecutor(fp *fakePRPlatform, fs *fakeStore) *Executor {
	loader := orgconfig.NewLoader(fp, "acme")
	return New(fp, fs, loader, slog.Default())
}

func TestCommentOnPR_PostsWhenNoExistingMarker(t *testing.T) {
	fp := &fakePRPlatform{}
	fs := &fakeStore{}
	e := newPRExecutor(fp, fs)
	cfg := orgconfig.PolicyConfig{Name: "CODEOWNERS required", Type: "needs_codeowners"}

	err := e.CommentOnPR(context.Background(), "acme/widgets", 5, cfg, []evaluator.Violation{{PolicyKey: "needs_codeowners"}})
	require.NoError(t, err)
	require.NotEmpty(t, fp.postedBody, "expected a comment to be posted")
	assert.Contains(t, fp.postedBody, prMarker("needs_codeowners"))
	assert.Equal(t, []string{"comment-on-prs:success"}, fs.actionLogged)
}

func TestCommentOnPR_SkipsWhenMarkerAlreadyPresent(t *testing.T) {
	fp := &fakePRPlatform{comments: []platform.PullRequestComment{
		{ID: 1, Body: "already flagged\n\n" + prMarker("needs_codeowners")},
	}}
	fs := &fakeStore{}
	e := newPRExecutor(fp, fs)
	cfg := orgconfig.PolicyConfig{Name: "CODEOWNERS required", Type: "needs_codeowners"}

	err := e.CommentOnPR(context.Background(), "acme/widgets", 5, cfg, []evaluator.Violation{{PolicyKey: "needs_codeowners"}})
	require.NoError(t, err)
	assert.Empty(t, fp.postedBody, "expected no new comment when marker already present")
	assert.Equal(t, []string{"comment-on-prs:skipped"}, fs.actionLogged)
}

func TestCommentOnPR_NoViolationsIsNoop(t *testing.T) {
	fp := &fakePRPlatform{}
	fs := &fakeStore{}
	e := newPRExecutor(fp, fs)
	cfg := orgconfig.PolicyConfig{Name: "CODEOWNERS required", Type: "needs_codeowners"}

	err := e.CommentOnPR(context.Background(), "acme/widgets", 5, cfg, nil)
	require.NoError(t, err)
	assert.Empty(t, fp.postedBody, "expected no comment when there are no violations")
	assert.Empty(t, fs.actionLogged, "a no-violation no-op is not an action attempt")
}

func TestUpdatePRStatus_SuccessWhenNoViolations(t *testing.T) {
	fp := &fakePRPlatform{}
	fs := &fakeStore{}
	e := newPRExecutor(fp, fs)
	cfg := orgconfig.PolicyConfig{Name: "CODEOWNERS required", Type: "needs_codeowners"}

	err := e.UpdatePRStatus(context.Background(), "acme/widgets", "abc123", cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, platform.StatusSuccess, fp.statusState)
	assert.Equal(t, []string{"block-prs:success"}, fs.actionLogged)
}

func TestUpdatePRStatus_FailureWhenViolationsExist(t *testing.T) {
	fp := &fakePRPlatform{}
	fs := &fakeStore{}
	e := newPRExecutor(fp, fs)
	cfg := orgconfig.PolicyConfig{Name: "CODEOWNERS required", Type: "needs_codeowners"}

	err := e.UpdatePRStatus(context.Background(), "acme/widgets", "abc123", cfg, []evaluator.Violation{{PolicyKey: "needs_codeowners"}})
	require.NoError(t, err)
	assert.Equal(t, platform.StatusFailure, fp.statusState)
	assert.Equal(t, defaultStatusCheckName, fp.statusContext)
	assert.Equal(t, []string{"block-prs:success"}, fs.actionLogged, "the status-check update itself succeeded even though it reports failure state")
}

func TestUpdatePRStatus_UsesConfiguredStatusCheckName(t *testing.T) {
	fp := &fakePRPlatform{}
	fs := &fakeStore{}
	e := newPRExecutor(fp, fs)
	cfg := orgconfig.PolicyConfig{
		Name:            "CODEOWNERS required",
		Type:            "needs_codeowners",
		BlockPRsDetails: &orgconfig.BlockPRsDetails{StatusCheckName: "custom-check"},
	}

	require.NoError(t, e.UpdatePRStatus(context.Background(), "acme/widgets", "abc123", cfg, nil))
	assert.Equal(t, "custom-check", fp.statusContext)
}
