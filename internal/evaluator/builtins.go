package evaluator

import (
	"context"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kubilitics/policy-engine/internal/platform"
)

// hasAgentsMD violates iff AGENTS.md does not exist at the default branch root.
type hasAgentsMD struct{}

func (hasAgentsMD) PolicyType() string { return "has_agents_md" }

func (e hasAgentsMD) Evaluate(ctx context.Context, client platform.PlatformAPI, repo platform.Repository) (*Violation, error) {
	exists, err := client.FileExists(ctx, repo.FullName, "AGENTS.md")
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, nil
	}
	return &Violation{PolicyKey: e.PolicyType()}, nil
}

// hasCatalogInfoYAML violates iff catalog-info.yaml does not exist at the default branch root.
type hasCatalogInfoYAML struct{}

func (hasCatalogInfoYAML) PolicyType() string { return "has_catalog_info_yaml" }

func (e hasCatalogInfoYAML) Evaluate(ctx context.Context, client platform.PlatformAPI, repo platform.Repository) (*Violation, error) {
	exists, err := client.FileExists(ctx, repo.FullName, "catalog-info.yaml")
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, nil
	}
	return &Violation{PolicyKey: e.PolicyType()}, nil
}

// catalogInfoHasOwner violates iff catalog-info.yaml exists but lacks a
// non-empty spec.owner. Absence of the file is not this evaluator's concern
// (spec §4.3: "that is the job of has_catalog_info_yaml").
type catalogInfoHasOwner struct{}

func (catalogInfoHasOwner) PolicyType() string { return "catalog_info_has_owner" }

type catalogInfo struct {
	Spec struct {
		Owner string `yaml:"owner"`
	} `yaml:"spec"`
}

func (e catalogInfoHasOwner) Evaluate(ctx context.Context, client platform.PlatformAPI, repo platform.Repository) (*Violation, error) {
	content, err := client.GetFileContent(ctx, repo.FullName, "catalog-info.yaml")
	if err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, err
	}

	var parsed catalogInfo
	if err := yaml.Unmarshal(content.Raw, &parsed); err != nil {
		return &Violation{PolicyKey: e.PolicyType()}, nil
	}
	if strings.TrimSpace(parsed.Spec.Owner) == "" {
		return &Violation{PolicyKey: e.PolicyType()}, nil
	}
	return nil, nil
}

// correctWorkflowPermissions violates iff default workflow permissions are
// anything other than "read". A disabled permissions endpoint is compliant.
type correctWorkflowPermissions struct{}

func (correctWorkflowPermissions) PolicyType() string { return "correct_workflow_permissions" }

func (e correctWorkflowPermissions) Evaluate(ctx context.Context, client platform.PlatformAPI, repo platform.Repository) (*Violation, error) {
	perms, err := client.GetWorkflowPermissions(ctx, repo.FullName)
	if err != nil {
		return nil, err
	}
	if !perms.Enabled {
		return nil, nil
	}
	if perms.DefaultPermission != "read" {
		return &Violation{PolicyKey: e.PolicyType()}, nil
	}
	return nil, nil
}

// hasCodeowners is a supplemental evaluator (SPEC_FULL §C3): violates iff
// none of the conventional CODEOWNERS locations exist.
type hasCodeowners struct{}

func (hasCodeowners) PolicyType() string { return "has_codeowners" }

var codeownersLocations = []string{"CODEOWNERS", ".github/CODEOWNERS", "docs/CODEOWNERS"}

func (e hasCodeowners) Evaluate(ctx context.Context, client platform.PlatformAPI, repo platform.Repository) (*Violation, error) {
	for _, path := range codeownersLocations {
		exists, err := client.FileExists(ctx, repo.FullName, path)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, nil
		}
	}
	return &Violation{PolicyKey: e.PolicyType()}, nil
}
