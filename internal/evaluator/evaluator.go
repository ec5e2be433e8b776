// Package evaluator is the Policy Evaluator Registry (C3): a set of named
// evaluators, each checking one policy type against one repository (spec §4.3).
package evaluator

import (
	"context"
	"strings"

	"github.com/kubilitics/policy-engine/internal/platform"
)

// Violation is a finding for one policy against one repository (spec GLOSSARY).
type Violation struct {
	PolicyKey string
}

// Evaluator checks one policy type. Evaluate returns (nil, nil) for "no violation".
type Evaluator interface {
	PolicyType() string
	Evaluate(ctx context.Context, client platform.PlatformAPI, repo platform.Repository) (*Violation, error)
}

// Registry dispatches configured policies to their evaluator by
// case-insensitive policy-type tag (spec §4.3). Built once via NewRegistry
// and passed explicitly, per spec §9's preference over an ambient global.
type Registry struct {
	byType map[string]Evaluator
}

// NewRegistry builds the registry with the built-in evaluators (spec §4.3)
// plus the supplemental has_codeowners check (SPEC_FULL §C3).
func NewRegistry() *Registry {
	r := &Registry{byType: make(map[string]Evaluator)}
	for _, e := range []Evaluator{
		hasAgentsMD{},
		hasCatalogInfoYAML{},
		catalogInfoHasOwner{},
		correctWorkflowPermissions{},
		hasCodeowners{},
	} {
		r.Register(e)
	}
	return r
}

// Register adds or replaces an evaluator by its case-insensitive policy type.
func (r *Registry) Register(e Evaluator) {
	r.byType[strings.ToLower(e.PolicyType())] = e
}

// Lookup returns the evaluator for a policy type, case-insensitively.
func (r *Registry) Lookup(policyType string) (Evaluator, bool) {
	e, ok := r.byType[strings.ToLower(policyType)]
	return e, ok
}
