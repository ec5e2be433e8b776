// Package authz is the Authorizer (C9): decides whether an identified user
// is a member of the organization's authorized team (spec §4.9).
package authz

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kubilitics/policy-engine/internal/orgconfig"
	"github.com/kubilitics/policy-engine/internal/platform"
	"github.com/kubilitics/policy-engine/internal/pkg/metrics"
)

// Authorizer gates dashboard access by Platform team membership.
type Authorizer struct {
	client     platform.PlatformAPI
	cfgLoad    *orgconfig.Loader
	testModeOn bool
	log        *slog.Logger
}

func New(client platform.PlatformAPI, cfgLoad *orgconfig.Loader, testModeEnabled bool, log *slog.Logger) *Authorizer {
	return &Authorizer{client: client, cfgLoad: cfgLoad, testModeOn: testModeEnabled, log: log}
}

// IsAuthorized returns whether login is a member of the configured
// authorized_team. A test-mode flag bypasses the check unconditionally
// (spec §4.9); callers are responsible for refusing to start with test mode
// enabled in production (enforced at config load, internal/config.Load).
func (a *Authorizer) IsAuthorized(ctx context.Context, login string) (bool, error) {
	if a.testModeOn {
		metrics.AuthzDecisionsTotal.WithLabelValues("test_mode_bypass").Inc()
		return true, nil
	}

	appCfg, err := a.cfgLoad.Load(ctx)
	if err != nil {
		a.log.Warn("authorization check failed: could not load configuration", "error", err)
		metrics.AuthzDecisionsTotal.WithLabelValues("error").Inc()
		return false, nil
	}

	org, slug, err := splitTeam(appCfg.AuthorizedTeam())
	if err != nil {
		a.log.Warn("authorization check failed: invalid authorized_team", "error", err)
		metrics.AuthzDecisionsTotal.WithLabelValues("error").Inc()
		return false, nil
	}

	member, err := a.client.IsTeamMember(ctx, org, slug, login)
	if err != nil {
		a.log.Warn("authorization check failed: platform error", "login", login, "error", err)
		metrics.AuthzDecisionsTotal.WithLabelValues("error").Inc()
		return false, nil
	}

	outcome := "denied"
	if member {
		outcome = "authorized"
	}
	metrics.AuthzDecisionsTotal.WithLabelValues(outcome).Inc()
	return member, nil
}

// splitTeam parses "<org>/<slug>" (spec §4.9).
func splitTeam(authorizedTeam string) (org, slug string, err error) {
	parts := strings.SplitN(authorizedTeam, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("authz: authorized_team %q is not of the form <org>/<slug>", authorizedTeam)
	}
	return parts[0], parts[1], nil
}
