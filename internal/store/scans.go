package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kubilitics/policy-engine/internal/models"
)

// CreateScan inserts an InProgress scan (spec §4.5 step 1). Must be called
// outside a transaction: the scan row is committed immediately so a crash
// mid-scan still leaves a durable Failed-able record.
func (s *Store) CreateScan(ctx context.Context) (*models.Scan, error) {
	scan := &models.Scan{Status: models.ScanInProgress, StartedAt: time.Now().UTC()}
	err := s.db.QueryRowxContext(ctx,
		`INSERT INTO scans (status, started_at) VALUES ($1, $2) RETURNING id`,
		scan.Status, scan.StartedAt,
	).Scan(&scan.ID)
	if err != nil {
		return nil, fmt.Errorf("store: create scan: %w", err)
	}
	return scan, nil
}

// CompleteScan marks a scan Completed (spec §4.5 step 7).
func (s *Store) CompleteScan(ctx context.Context, tx *sqlx.Tx, scanID int64) error {
	now := time.Now().UTC()
	_, err := tx.ExecContext(ctx,
		`UPDATE scans SET status = $1, completed_at = $2 WHERE id = $3`,
		models.ScanCompleted, now, scanID,
	)
	if err != nil {
		return fmt.Errorf("store: complete scan %d: %w", scanID, err)
	}
	return nil
}

// FailScan marks a scan Failed with the given details (spec §4.5 "Failure policy").
func (s *Store) FailScan(ctx context.Context, scanID int64, details string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE scans SET status = $1, failure_info = $2 WHERE id = $3`,
		models.ScanFailed, details, scanID,
	)
	if err != nil {
		return fmt.Errorf("store: fail scan %d: %w", scanID, err)
	}
	return nil
}

// ListScans returns scans most-recent-first for the read API.
func (s *Store) ListScans(ctx context.Context, limit int) ([]models.Scan, error) {
	var scans []models.Scan
	err := s.db.SelectContext(ctx, &scans,
		`SELECT id, status, started_at, completed_at, failure_info FROM scans ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list scans: %w", err)
	}
	return scans, nil
}

func (s *Store) GetScan(ctx context.Context, scanID int64) (*models.Scan, error) {
	var scan models.Scan
	err := s.db.GetContext(ctx, &scan,
		`SELECT id, status, started_at, completed_at, failure_info FROM scans WHERE id = $1`, scanID)
	if err != nil {
		return nil, fmt.Errorf("store: get scan %d: %w", scanID, err)
	}
	return &scan, nil
}
