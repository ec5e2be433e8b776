package evaluator

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/policy-engine/internal/apperr"
	"github.com/kubilitics/policy-engine/internal/orgconfig"
	"github.com/kubilitics/policy-engine/internal/platform"
)

type fakeClient struct {
	platform.PlatformAPI
	files       map[string][]byte
	permissions *platform.WorkflowPermissions
	permErr     error
}

func (f *fakeClient) FileExists(ctx context.Context, fullName, path string) (bool, error) {
	_, ok := f.files[path]
	return ok, nil
}

func (f *fakeClient) GetFileContent(ctx context.Context, fullName, path string) (*platform.FileContent, error) {
	raw, ok := f.files[path]
	if !ok {
		return nil, apperr.New(apperr.CodePlatformNotFound, "not found")
	}
	return &platform.FileContent{Raw: raw, String: string(raw)}, nil
}

func (f *fakeClient) GetWorkflowPermissions(ctx context.Context, fullName string) (*platform.WorkflowPermissions, error) {
	return f.permissions, f.permErr
}

var testRepo = platform.Repository{PlatformRepositoryID: 1, FullName: "acme/widgets", DefaultBranch: "main"}

func TestHasAgentsMD(t *testing.T) {
	e := hasAgentsMD{}

	v, err := e.Evaluate(context.Background(), &fakeClient{files: map[string][]byte{"AGENTS.md": []byte("x")}}, testRepo)
	require.NoError(t, err)
	assert.Nil(t, v, "expected no violation when AGENTS.md exists")

	v, err = e.Evaluate(context.Background(), &fakeClient{files: map[string][]byte{}}, testRepo)
	require.NoError(t, err)
	require.NotNil(t, v, "expected violation when AGENTS.md missing")
	assert.Equal(t, "has_agents_md", v.PolicyKey)
}

func TestHasCodeowners_ChecksAllLocations(t *testing.T) {
	e := hasCodeowners{}

	v, err := e.Evaluate(context.Background(), &fakeClient{files: map[string][]byte{".github/CODEOWNERS": []byte("x")}}, testRepo)
	require.NoError(t, err)
	assert.Nil(t, v, "expected no violation when .github/CODEOWNERS exists")

	v, err = e.Evaluate(context.Background(), &fakeClient{files: map[string][]byte{}}, testRepo)
	require.NoError(t, err)
	assert.NotNil(t, v, "expected violation when no CODEOWNERS location exists")
}

func TestCatalogInfoHasOwner(t *testing.T) {
	e := catalogInfoHasOwner{}

	v, err := e.Evaluate(context.Background(), &fakeClient{files: map[string][]byte{}}, testRepo)
	require.NoError(t, err)
	assert.Nil(t, v, "expected absence of catalog-info.yaml to not be this evaluator's concern")

	v, err = e.Evaluate(context.Background(), &fakeClient{files: map[string][]byte{"catalog-info.yaml": []byte("spec:\n  owner: team-a\n")}}, testRepo)
	require.NoError(t, err)
	assert.Nil(t, v, "expected no violation when owner is set")

	v, err = e.Evaluate(context.Background(), &fakeClient{files: map[string][]byte{"catalog-info.yaml": []byte("spec:\n  owner: \"\"\n")}}, testRepo)
	require.NoError(t, err)
	assert.NotNil(t, v, "expected violation when owner is empty")
}

func TestCorrectWorkflowPermissions(t *testing.T) {
	e := correctWorkflowPermissions{}

	v, err := e.Evaluate(context.Background(), &fakeClient{permissions: &platform.WorkflowPermissions{Enabled: false}}, testRepo)
	require.NoError(t, err)
	assert.Nil(t, v, "expected disabled permissions endpoint to be compliant")

	v, err = e.Evaluate(context.Background(), &fakeClient{permissions: &platform.WorkflowPermissions{Enabled: true, DefaultPermission: "read"}}, testRepo)
	require.NoError(t, err)
	assert.Nil(t, v, "expected read permission to be compliant")

	v, err = e.Evaluate(context.Background(), &fakeClient{permissions: &platform.WorkflowPermissions{Enabled: true, DefaultPermission: "write"}}, testRepo)
	require.NoError(t, err)
	assert.NotNil(t, v, "expected write permission to violate")
}

func TestRegistry_LookupCaseInsensitive(t *testing.T) {
	r := NewRegistry()

	_, ok := r.Lookup("HAS_AGENTS_MD")
	assert.True(t, ok, "expected case-insensitive lookup to find has_agents_md")

	_, ok = r.Lookup("unknown_policy_type")
	assert.False(t, ok, "expected lookup of unregistered type to fail")
}

func TestEvaluateRepository_SkipsUnknownPolicyType(t *testing.T) {
	r := NewRegistry()
	client := &fakeClient{files: map[string][]byte{}}
	policies := []orgconfig.PolicyConfig{{Name: "mystery", Type: "does_not_exist"}}

	violations, err := r.EvaluateRepository(context.Background(), slog.Default(), client, testRepo, policies)
	require.NoError(t, err)
	assert.Empty(t, violations, "expected no violations for an unregistered policy type")
}

func TestEvaluateRepository_CollectsViolations(t *testing.T) {
	r := NewRegistry()
	client := &fakeClient{files: map[string][]byte{}}
	policies := []orgconfig.PolicyConfig{
		{Name: "AGENTS.md", Type: "has_agents_md"},
		{Name: "CODEOWNERS", Type: "has_codeowners"},
	}

	violations, err := r.EvaluateRepository(context.Background(), slog.Default(), client, testRepo, policies)
	require.NoError(t, err)
	assert.Len(t, violations, 2)
}
