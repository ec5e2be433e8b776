package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kubilitics/policy-engine/internal/models"
)

// SyncRepositories implements spec §4.5 step 5: insert unknown repos,
// rename changed ones, and cascade-delete any stored repo absent from the
// live Platform list. Returns the synced rows keyed by platform_repository_id.
func (s *Store) SyncRepositories(ctx context.Context, tx *sqlx.Tx, live []PlatformRepoRef) (map[int64]models.Repository, error) {
	liveIDs := make(map[int64]struct{}, len(live))
	for _, r := range live {
		liveIDs[r.PlatformRepositoryID] = struct{}{}
	}

	var existing []models.Repository
	if err := tx.SelectContext(ctx, &existing, `SELECT id, platform_repository_id, name, compliance_status, last_scanned_at FROM repositories`); err != nil {
		return nil, fmt.Errorf("store: list existing repositories: %w", err)
	}
	byPlatformID := make(map[int64]models.Repository, len(existing))
	for _, r := range existing {
		byPlatformID[r.PlatformRepositoryID] = r
	}

	for _, r := range live {
		if stored, ok := byPlatformID[r.PlatformRepositoryID]; ok {
			if stored.Name != r.FullName {
				if _, err := tx.ExecContext(ctx, `UPDATE repositories SET name = $1 WHERE id = $2`, r.FullName, stored.ID); err != nil {
					return nil, fmt.Errorf("store: rename repository %d: %w", stored.ID, err)
				}
				stored.Name = r.FullName
				byPlatformID[r.PlatformRepositoryID] = stored
			}
			continue
		}
		repo := models.Repository{
			PlatformRepositoryID: r.PlatformRepositoryID,
			Name:                 r.FullName,
			ComplianceStatus:     models.ComplianceStatusUnknown,
		}
		err := tx.QueryRowxContext(ctx,
			`INSERT INTO repositories (platform_repository_id, name, compliance_status) VALUES ($1, $2, $3) RETURNING id`,
			repo.PlatformRepositoryID, repo.Name, repo.ComplianceStatus,
		).Scan(&repo.ID)
		if err != nil {
			return nil, fmt.Errorf("store: insert repository %s: %w", r.FullName, err)
		}
		byPlatformID[r.PlatformRepositoryID] = repo
	}

	for platformID, stored := range byPlatformID {
		if _, ok := liveIDs[platformID]; !ok {
			if _, err := tx.ExecContext(ctx, `DELETE FROM repositories WHERE id = $1`, stored.ID); err != nil {
				return nil, fmt.Errorf("store: delete stale repository %d: %w", stored.ID, err)
			}
			delete(byPlatformID, platformID)
		}
	}

	return byPlatformID, nil
}

// PlatformRepoRef is the minimal shape SyncRepositories needs from the
// Platform Client's Repository, kept here to avoid store depending on platform.
type PlatformRepoRef struct {
	PlatformRepositoryID int64
	FullName             string
}

// MarkScanned updates a repository's compliance status and last_scanned_at
// after evaluation (spec §3 Repository "Mutated only by C5").
func (s *Store) MarkScanned(ctx context.Context, tx *sqlx.Tx, repositoryID int64, status string) error {
	now := time.Now().UTC()
	_, err := tx.ExecContext(ctx,
		`UPDATE repositories SET compliance_status = $1, last_scanned_at = $2 WHERE id = $3`,
		status, now, repositoryID,
	)
	if err != nil {
		return fmt.Errorf("store: mark repository %d scanned: %w", repositoryID, err)
	}
	return nil
}

func (s *Store) GetRepository(ctx context.Context, repositoryID int64) (*models.Repository, error) {
	var repo models.Repository
	err := s.db.GetContext(ctx, &repo,
		`SELECT id, platform_repository_id, name, compliance_status, last_scanned_at FROM repositories WHERE id = $1`, repositoryID)
	if err != nil {
		return nil, fmt.Errorf("store: get repository %d: %w", repositoryID, err)
	}
	return &repo, nil
}

// GetRepositoryByName looks up a repository by its full "owner/name" string,
// the form the Platform Client and PR-scoped action handlers carry instead
// of the internal numeric ID.
func (s *Store) GetRepositoryByName(ctx context.Context, fullName string) (*models.Repository, error) {
	var repo models.Repository
	err := s.db.GetContext(ctx, &repo,
		`SELECT id, platform_repository_id, name, compliance_status, last_scanned_at FROM repositories WHERE name = $1`, fullName)
	if err != nil {
		return nil, fmt.Errorf("store: get repository by name %s: %w", fullName, err)
	}
	return &repo, nil
}

func (s *Store) GetRepositoryByPlatformID(ctx context.Context, platformRepositoryID int64) (*models.Repository, error) {
	var repo models.Repository
	err := s.db.GetContext(ctx, &repo,
		`SELECT id, platform_repository_id, name, compliance_status, last_scanned_at FROM repositories WHERE platform_repository_id = $1`, platformRepositoryID)
	if err != nil {
		return nil, fmt.Errorf("store: get repository by platform id %d: %w", platformRepositoryID, err)
	}
	return &repo, nil
}
