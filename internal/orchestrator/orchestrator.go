// Package orchestrator is the Scan Orchestrator (C5): performs a full
// organization scan end-to-end (spec §4.5).
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kubilitics/policy-engine/internal/apperr"
	"github.com/kubilitics/policy-engine/internal/evaluator"
	"github.com/kubilitics/policy-engine/internal/models"
	"github.com/kubilitics/policy-engine/internal/orgconfig"
	"github.com/kubilitics/policy-engine/internal/platform"
	"github.com/kubilitics/policy-engine/internal/pkg/logger"
	"github.com/kubilitics/policy-engine/internal/pkg/metrics"
	"github.com/kubilitics/policy-engine/internal/store"
)

// RepoRef is an alias for store's reference shape, so callers building the
// scan loop don't need to import store directly for this type.
type RepoRef = store.PlatformRepoRef

// PolicyRef is an alias for store's reference shape.
type PolicyRef = store.PolicyRef

// Enqueuer is the subset of internal/queue.Queue the orchestrator needs to
// hand off to the Action Executor (spec §4.5 step 8).
type Enqueuer interface {
	Enqueue(ctx context.Context, method string, args any) (string, error)
}

type Orchestrator struct {
	client   platform.PlatformAPI
	cfgLoad  *orgconfig.Loader
	registry *evaluator.Registry
	store    *store.Store
	queue    Enqueuer
	org      string
	log      *slog.Logger
}

func New(client platform.PlatformAPI, cfgLoad *orgconfig.Loader, registry *evaluator.Registry, st *store.Store, q Enqueuer, org string, log *slog.Logger) *Orchestrator {
	return &Orchestrator{client: client, cfgLoad: cfgLoad, registry: registry, store: st, queue: q, org: org, log: log}
}

// PerformScan implements spec §4.5's eight-step algorithm. Registered with
// the job queue as "daily-scan" and invoked by the dev-only /verify-scan route.
func (o *Orchestrator) PerformScan(ctx context.Context) error {
	start := time.Now()

	// Step 1: insert Scan{InProgress} and commit immediately, outside any
	// later transaction, so a crash mid-scan still leaves a Failed-able record.
	scan, err := o.store.CreateScan(ctx)
	if err != nil {
		return fmt.Errorf("orchestrator: create scan: %w", err)
	}
	logger.ScanLog(os.Stdout, scan.ID, "scan started", "")

	// Step 2: load organization configuration.
	appCfg, err := o.cfgLoad.Load(ctx)
	if err != nil {
		o.fail(ctx, scan.ID, err)
		return err
	}

	// Step 3: fetch live org repositories.
	liveRepos, err := o.client.ListOrgRepositories(ctx, o.org)
	if err != nil {
		o.fail(ctx, scan.ID, err)
		return err
	}

	violationsCount := 0
	err = o.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		// Step 4: sync policies.
		policyRefs := make([]PolicyRef, 0, len(appCfg.Policies))
		for _, p := range appCfg.Policies {
			policyRefs = append(policyRefs, PolicyRef{PolicyKey: p.Type, Description: p.Name, Actions: p.Action})
		}
		policiesByKey, err := o.store.SyncPolicies(ctx, tx, policyRefs)
		if err != nil {
			return err
		}

		// Step 5: sync repositories.
		refs := make([]RepoRef, 0, len(liveRepos))
		for _, r := range liveRepos {
			refs = append(refs, RepoRef{PlatformRepositoryID: r.PlatformRepositoryID, FullName: r.FullName})
		}
		reposByPlatformID, err := o.store.SyncRepositories(ctx, tx, refs)
		if err != nil {
			return err
		}

		// Step 6: evaluate every live repository, persist violations.
		for _, live := range liveRepos {
			stored, ok := reposByPlatformID[live.PlatformRepositoryID]
			if !ok {
				continue
			}
			violations, evalErr := o.registry.EvaluateRepository(ctx, o.log, o.client, live, appCfg.Policies)
			if evalErr != nil {
				return evalErr
			}

			status := models.ComplianceStatusCompliant
			for _, v := range violations {
				policy, ok := policiesByKey[v.PolicyKey]
				if !ok {
					continue
				}
				if err := o.store.InsertViolation(ctx, tx, scan.ID, stored.ID, policy.ID); err != nil {
					return err
				}
				status = models.ComplianceStatusNonCompliant
				violationsCount++
				metrics.ViolationsFoundTotal.WithLabelValues(v.PolicyKey).Inc()
			}
			if err := o.store.MarkScanned(ctx, tx, stored.ID, status); err != nil {
				return err
			}
		}

		// Step 7: mark scan Completed within the same transaction.
		return o.store.CompleteScan(ctx, tx, scan.ID)
	})
	if err != nil {
		o.fail(ctx, scan.ID, err)
		return err
	}

	// Step 8: enqueue the follow-up action job.
	if _, err := o.queue.Enqueue(ctx, "process-actions-for-scan", map[string]int64{"scan_id": scan.ID}); err != nil {
		o.log.Error("failed to enqueue action processing", "scan_id", scan.ID, "error", err)
	}

	metrics.ScansTotal.WithLabelValues("completed").Inc()
	metrics.ScanDurationSeconds.Observe(time.Since(start).Seconds())
	logger.ScanLog(os.Stdout, scan.ID, fmt.Sprintf("scan completed: %d repositories, %d violations", len(liveRepos), violationsCount), "")
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, scanID int64, cause error) {
	details := cause.Error()
	if e, ok := apperr.As(cause); ok {
		details = string(e.Code) + ": " + e.Message
	}
	if err := o.store.FailScan(ctx, scanID, details); err != nil {
		o.log.Error("failed to mark scan failed", "scan_id", scanID, "error", err)
	}
	metrics.ScansTotal.WithLabelValues("failed").Inc()
	logger.ScanLog(os.Stdout, scanID, "scan failed", details)
}
