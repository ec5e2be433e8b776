package authz

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/policy-engine/internal/orgconfig"
	"github.com/kubilitics/policy-engine/internal/platform"
)

type fakePlatform struct {
	platform.PlatformAPI
	configYAML string
	member     bool
	memberErr  error
}

func (f *fakePlatform) GetFileContent(ctx context.Context, fullName, path string) (*platform.FileContent, error) {
	return &platform.FileContent{Raw: []byte(f.configYAML)}, nil
}

func (f *fakePlatform) IsTeamMember(ctx context.Context, org, teamSlug, login string) (bool, error) {
	return f.member, f.memberErr
}

const validConfig = "access_control:\n  authorized_team: \"acme/platform-team\"\npolicies: []\n"

func newAuthorizer(fp *fakePlatform, testMode bool) *Authorizer {
	loader := orgconfig.NewLoader(fp, "acme")
	return New(fp, loader, testMode, slog.Default())
}

func TestIsAuthorized_TestModeBypass(t *testing.T) {
	fp := &fakePlatform{configYAML: validConfig, member: false}
	a := newAuthorizer(fp, true)

	ok, err := a.IsAuthorized(context.Background(), "anyone")
	require.NoError(t, err)
	assert.True(t, ok, "expected test-mode bypass to authorize unconditionally")
}

func TestIsAuthorized_Member(t *testing.T) {
	fp := &fakePlatform{configYAML: validConfig, member: true}
	a := newAuthorizer(fp, false)

	ok, err := a.IsAuthorized(context.Background(), "octocat")
	require.NoError(t, err)
	assert.True(t, ok, "expected member to be authorized")
}

func TestIsAuthorized_NotAMember(t *testing.T) {
	fp := &fakePlatform{configYAML: validConfig, member: false}
	a := newAuthorizer(fp, false)

	ok, err := a.IsAuthorized(context.Background(), "intruder")
	require.NoError(t, err)
	assert.False(t, ok, "expected non-member to be denied")
}

func TestIsAuthorized_PlatformErrorDeniesWithoutReturningError(t *testing.T) {
	fp := &fakePlatform{configYAML: validConfig, memberErr: errors.New("platform unavailable")}
	a := newAuthorizer(fp, false)

	ok, err := a.IsAuthorized(context.Background(), "octocat")
	require.NoError(t, err, "platform errors should not surface as errors")
	assert.False(t, ok, "expected platform error to result in denial, not authorization")
}

func TestIsAuthorized_MalformedAuthorizedTeamDenies(t *testing.T) {
	fp := &fakePlatform{configYAML: "access_control:\n  authorized_team: \"not-a-team-slug\"\npolicies: []\n", member: true}
	a := newAuthorizer(fp, false)

	ok, err := a.IsAuthorized(context.Background(), "octocat")
	require.NoError(t, err)
	assert.False(t, ok, "expected malformed authorized_team to deny")
}

func TestSplitTeam(t *testing.T) {
	org, slug, err := splitTeam("acme/platform-team")
	require.NoError(t, err)
	assert.Equal(t, "acme", org)
	assert.Equal(t, "platform-team", slug)

	_, _, err = splitTeam("acme")
	assert.Error(t, err, "expected error for missing slash")

	_, _, err = splitTeam("/platform-team")
	assert.Error(t, err, "expected error for empty org")
}
