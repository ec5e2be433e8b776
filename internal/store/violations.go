package store

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/kubilitics/policy-engine/internal/models"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// InsertViolation inserts one finding for (scan, repository, policy),
// ignoring a duplicate-key conflict (spec §3 invariant + §7 DuplicateViolation:
// "ignored at insert time; caused by concurrent scans").
func (s *Store) InsertViolation(ctx context.Context, tx *sqlx.Tx, scanID, repositoryID, policyID int64) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO policy_violations (scan_id, repository_id, policy_id) VALUES ($1, $2, $3)
		 ON CONFLICT (scan_id, repository_id, policy_id) DO NOTHING`,
		scanID, repositoryID, policyID,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil
		}
		return fmt.Errorf("store: insert violation (scan=%d repo=%d policy=%d): %w", scanID, repositoryID, policyID, err)
	}
	return nil
}

// ViolationFilter selects which violations ListViolationDetails returns. All
// fields are optional; the zero value matches everything.
type ViolationFilter struct {
	ScanID       int64
	RepositoryID int64
}

// ListViolationDetails returns violations joined with their Repository and
// Policy (spec §4.6 "Loads all violations for the scan joined with Repository
// and Policy"), built dynamically with squirrel so the same query serves both
// the scan-scoped action executor and the per-repository read API.
func (s *Store) ListViolationDetails(ctx context.Context, f ViolationFilter) ([]models.ViolationDetail, error) {
	builder := psql.Select(
		"pv.id", "pv.scan_id", "pv.repository_id", "pv.policy_id",
		"r.name AS repository_name", "p.policy_key", "p.description AS policy_description", "p.action_spec",
	).From("policy_violations pv").
		Join("repositories r ON r.id = pv.repository_id").
		Join("policies p ON p.id = pv.policy_id").
		OrderBy("pv.id ASC")

	if f.ScanID != 0 {
		builder = builder.Where(sq.Eq{"pv.scan_id": f.ScanID})
	}
	if f.RepositoryID != 0 {
		builder = builder.Where(sq.Eq{"pv.repository_id": f.RepositoryID})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build violation query: %w", err)
	}

	var rows []models.ViolationDetail
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("store: list violations: %w", err)
	}
	return rows, nil
}
