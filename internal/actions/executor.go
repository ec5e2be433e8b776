package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/kubilitics/policy-engine/internal/models"
	"github.com/kubilitics/policy-engine/internal/orgconfig"
	"github.com/kubilitics/policy-engine/internal/platform"
	"github.com/kubilitics/policy-engine/internal/pkg/logger"
	"github.com/kubilitics/policy-engine/internal/pkg/metrics"
	"github.com/kubilitics/policy-engine/internal/store"
)

// Store is the subset of internal/store.Store the executor needs.
type Store interface {
	ListViolationDetails(ctx context.Context, f store.ViolationFilter) ([]models.ViolationDetail, error)
	InsertActionLog(ctx context.Context, repositoryID, policyID int64, actionType string, status models.ActionLogStatus, details string) error
	GetRepositoryByName(ctx context.Context, fullName string) (*models.Repository, error)
	GetPolicyByKey(ctx context.Context, policyKey string) (*models.Policy, error)
}

// Executor dispatches each persisted violation's configured actions (spec §4.6).
type Executor struct {
	client  platform.PlatformAPI
	store   Store
	cfgLoad *orgconfig.Loader
	log     *slog.Logger
}

func New(client platform.PlatformAPI, st Store, cfgLoad *orgconfig.Loader, log *slog.Logger) *Executor {
	return &Executor{client: client, store: st, cfgLoad: cfgLoad, log: log}
}

// ProcessScan is the scan-scoped entry point: process_actions_for_scan(scan_id).
func (e *Executor) ProcessScan(ctx context.Context, scanID int64) error {
	violations, err := e.store.ListViolationDetails(ctx, store.ViolationFilter{ScanID: scanID})
	if err != nil {
		return fmt.Errorf("actions: list violations for scan %d: %w", scanID, err)
	}
	if len(violations) == 0 {
		return nil
	}

	appCfg, err := e.cfgLoad.Load(ctx)
	if err != nil {
		return fmt.Errorf("actions: load configuration: %w", err)
	}
	byType := make(map[string]orgconfig.PolicyConfig, len(appCfg.Policies))
	for _, p := range appCfg.Policies {
		byType[strings.ToLower(p.Type)] = p
	}

	for _, v := range violations {
		policyCfg, ok := byType[strings.ToLower(v.PolicyKey)]
		if !ok {
			e.log.Warn("violation references policy no longer in configuration", "policy_key", v.PolicyKey)
			continue
		}

		var actionTags []string
		if err := json.Unmarshal([]byte(v.ActionSpec), &actionTags); err != nil {
			e.log.Error("failed to decode action_spec", "policy_key", v.PolicyKey, "error", err)
			continue
		}

		for _, tag := range actionTags {
			e.dispatch(ctx, v, policyCfg, tag)
		}
	}
	return nil
}

func (e *Executor) dispatch(ctx context.Context, v models.ViolationDetail, policyCfg orgconfig.PolicyConfig, rawTag string) {
	tag := NormalizeActionName(rawTag)
	var (
		status  models.ActionLogStatus
		details string
	)

	switch tag {
	case ActionCreateIssue:
		status, details = e.createIssue(ctx, v.RepositoryName, v.PolicyKey, policyCfg)
	case ActionArchiveRepo:
		status, details = e.archiveRepo(ctx, v.RepositoryName, policyCfg)
	case ActionLogOnly:
		status, details = models.ActionSuccess, "logged without remediation"
	case ActionCommentOnPRs, ActionBlockPRs:
		// PR-scoped actions are dispatched by the webhook handler, not here
		// (spec §4.6/§4.7: "any other tag: skip, it is a scan-time action" — symmetric skip here).
		return
	default:
		e.log.Warn("unknown action tag", "tag", rawTag)
		return
	}

	metrics.ActionsExecutedTotal.WithLabelValues(tag, string(status)).Inc()
	logger.ActionLog(os.Stdout, v.RepositoryName, v.PolicyKey, fmt.Sprintf("action %s: %s", tag, status), "")
	if err := e.store.InsertActionLog(ctx, v.RepositoryID, v.PolicyID, tag, status, details); err != nil {
		e.log.Error("failed to write action log", "repository_id", v.RepositoryID, "action", tag, "error", err)
	}
}
