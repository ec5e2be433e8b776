package store

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/kubilitics/policy-engine/internal/models"
)

// InsertActionLog writes the audit row for one action attempt (spec §4.6
// "Each action attempt writes a row to ActionLog").
func (s *Store) InsertActionLog(ctx context.Context, repositoryID, policyID int64, actionType string, status models.ActionLogStatus, details string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO action_logs (repository_id, policy_id, action_type, status, timestamp, details)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		repositoryID, policyID, actionType, status, time.Now().UTC(), details,
	)
	if err != nil {
		return fmt.Errorf("store: insert action log (repo=%d policy=%d action=%s): %w", repositoryID, policyID, actionType, err)
	}
	return nil
}

// ActionLogFilter selects which action logs ListActionLogs returns.
type ActionLogFilter struct {
	RepositoryID int64
}

func (s *Store) ListActionLogs(ctx context.Context, f ActionLogFilter) ([]models.ActionLog, error) {
	builder := psql.Select("id", "repository_id", "policy_id", "action_type", "status", "timestamp", "details").
		From("action_logs").OrderBy("timestamp DESC")
	if f.RepositoryID != 0 {
		builder = builder.Where(sq.Eq{"repository_id": f.RepositoryID})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build action log query: %w", err)
	}
	var rows []models.ActionLog
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("store: list action logs: %w", err)
	}
	return rows, nil
}
