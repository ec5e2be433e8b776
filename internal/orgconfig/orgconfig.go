// Package orgconfig is the Configuration Loader (C2): fetches, parses,
// validates, and caches the organization-wide policy document described by
// spec §4.2. Distinct from internal/config, which loads this process's own
// ambient configuration.
package orgconfig

import (
	"context"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"github.com/kubilitics/policy-engine/internal/apperr"
	"github.com/kubilitics/policy-engine/internal/platform"
)

const (
	configRepoName = ".github"
	configPath     = "config.yaml"
	cacheTTL       = 15 * time.Minute
)

// ActionList normalizes the scalar-or-list action field (spec §4.2, §9
// "Action-field polymorphism") into an ordered list of non-empty tags.
type ActionList []string

func (a *ActionList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*a = normalizeActionTags([]string{s})
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*a = normalizeActionTags(list)
		return nil
	default:
		return fmt.Errorf("orgconfig: action must be a scalar or list, got %v", node.Kind)
	}
}

// normalizeActionTags canonicalizes raw action tags to kebab-case and
// de-duplicates them while preserving first-seen order (spec §9
// "Action-field polymorphism": "normalize at parse time into an ordered,
// de-duplicated list of non-empty kebab-case tags"). Kept local rather than
// reusing internal/actions.NormalizeActionName to avoid an import cycle
// (internal/actions already imports orgconfig for PolicyConfig).
func normalizeActionTags(raw []string) ActionList {
	seen := make(map[string]struct{}, len(raw))
	normalized := make(ActionList, 0, len(raw))
	for _, tag := range raw {
		kebab := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(tag)), "_", "-")
		if kebab == "" {
			continue
		}
		if _, ok := seen[kebab]; ok {
			continue
		}
		seen[kebab] = struct{}{}
		normalized = append(normalized, kebab)
	}
	return normalized
}

type IssueDetails struct {
	Title  string   `yaml:"title"`
	Body   string   `yaml:"body"`
	Labels []string `yaml:"labels"`
}

type PRCommentDetails struct {
	Message string `yaml:"message"`
}

type BlockPRsDetails struct {
	StatusCheckName string `yaml:"status_check_name"`
}

// PolicyConfig is one entry in the policies list.
type PolicyConfig struct {
	Name             string            `yaml:"name"`
	Type             string            `yaml:"type"`
	Action           ActionList        `yaml:"action"`
	IssueDetails     *IssueDetails     `yaml:"issue_details,omitempty"`
	PRCommentDetails *PRCommentDetails `yaml:"pr_comment_details,omitempty"`
	BlockPRsDetails  *BlockPRsDetails  `yaml:"block_prs_details,omitempty"`
}

type accessControl struct {
	AuthorizedTeam string `yaml:"authorized_team"`
}

// AppConfig is the parsed, validated organization policy document.
type AppConfig struct {
	AccessControl accessControl  `yaml:"access_control"`
	Policies      []PolicyConfig `yaml:"policies"`
}

// AuthorizedTeam returns access_control.authorized_team.
func (c *AppConfig) AuthorizedTeam() string { return c.AccessControl.AuthorizedTeam }

// Loader fetches, validates, and caches AppConfig for one organization.
type Loader struct {
	client platform.PlatformAPI
	org    string

	cache *lru.LRU[string, *AppConfig]
	group singleflight.Group
}

func NewLoader(client platform.PlatformAPI, org string) *Loader {
	return &Loader{
		client: client,
		org:    org,
		cache:  lru.NewLRU[string, *AppConfig](1, nil, cacheTTL),
	}
}

const cacheKey = "org-config"

// Load returns the cached AppConfig if present, or fetches and validates it
// (spec §4.2). Concurrent callers on a cache miss collapse into one fetch
// (spec §5 "double-checked cache lookup to avoid thundering-herd fetches").
func (l *Loader) Load(ctx context.Context) (*AppConfig, error) {
	if cfg, ok := l.cache.Get(cacheKey); ok {
		// Re-adding renews the entry's TTL, giving sliding expiration.
		l.cache.Add(cacheKey, cfg)
		return cfg, nil
	}

	v, err, _ := l.group.Do(cacheKey, func() (interface{}, error) {
		if cfg, ok := l.cache.Get(cacheKey); ok {
			return cfg, nil
		}
		cfg, err := l.fetch(ctx)
		if err != nil {
			return nil, err
		}
		l.cache.Add(cacheKey, cfg)
		return cfg, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*AppConfig), nil
}

// Invalidate evicts the cached configuration, forcing the next Load to refetch.
func (l *Loader) Invalidate() {
	l.cache.Remove(cacheKey)
}

func (l *Loader) fetch(ctx context.Context) (*AppConfig, error) {
	fullName := fmt.Sprintf("%s/%s", l.org, configRepoName)
	content, err := l.client.GetFileContent(ctx, fullName, configPath)
	if err != nil {
		if apperr.Is(err, apperr.CodePlatformNotFound) {
			return nil, apperr.New(apperr.CodeConfigurationNotFound, "organization config.yaml not found")
		}
		return nil, apperr.Wrap(apperr.CodeInternalError, "fetch organization config", err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(content.Raw, &cfg); err != nil {
		return nil, apperr.Wrap(apperr.CodeInvalidConfiguration, "parse organization config.yaml", err)
	}

	if strings.TrimSpace(cfg.AccessControl.AuthorizedTeam) == "" {
		return nil, apperr.New(apperr.CodeInvalidConfiguration, "access_control.authorized_team is required and must be non-empty")
	}

	return &cfg, nil
}
