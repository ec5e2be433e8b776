package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kubilitics/policy-engine/internal/models"
)

// EnqueueJob inserts a queued job row (C8 Enqueue).
func (s *Store) EnqueueJob(ctx context.Context, method, argsJSON string, maxAttempts int) (string, error) {
	id := uuid.New().String()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, method, args, status, attempts, max_attempts, run_after, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, 0, $5, $6, $6, $6)`,
		id, method, argsJSON, models.JobQueued, maxAttempts, now,
	)
	if err != nil {
		return "", fmt.Errorf("store: enqueue job %s: %w", method, err)
	}
	return id, nil
}

// ClaimJobs locks up to n queued, due jobs for this worker using
// SELECT ... FOR UPDATE SKIP LOCKED so concurrent workers never double-claim
// (spec §5 "Workers execute jobs in parallel").
func (s *Store) ClaimJobs(ctx context.Context, n int) ([]models.Job, error) {
	var jobs []models.Job
	err := s.WithTx(ctx, func(tx *sqlx.Tx) error {
		rows, err := tx.QueryxContext(ctx,
			`SELECT id, method, args, status, attempts, max_attempts, run_after, last_error, created_at, updated_at
			 FROM jobs
			 WHERE status = $1 AND run_after <= $2
			 ORDER BY run_after ASC
			 LIMIT $3
			 FOR UPDATE SKIP LOCKED`,
			models.JobQueued, time.Now().UTC(), n,
		)
		if err != nil {
			return fmt.Errorf("store: select claimable jobs: %w", err)
		}
		defer rows.Close()

		var ids []string
		for rows.Next() {
			var j models.Job
			if err := rows.StructScan(&j); err != nil {
				return fmt.Errorf("store: scan claimable job: %w", err)
			}
			jobs = append(jobs, j)
			ids = append(ids, j.ID)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		for i := range jobs {
			jobs[i].Status = models.JobRunning
		}
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, `UPDATE jobs SET status = $1, updated_at = $2 WHERE id = $3`,
				models.JobRunning, time.Now().UTC(), id); err != nil {
				return fmt.Errorf("store: claim job %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// CompleteJob marks a job done.
func (s *Store) CompleteJob(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE jobs SET status = $1, updated_at = $2 WHERE id = $3`,
		models.JobDone, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("store: complete job %s: %w", id, err)
	}
	return nil
}

// FailJob increments attempts and either reschedules with backoff or moves
// the job to dead once max_attempts is reached (spec §4.8 "Failure semantics").
func (s *Store) FailJob(ctx context.Context, id string, attempts, maxAttempts int, backoffDelay time.Duration, lastError string) error {
	status := models.JobQueued
	if attempts >= maxAttempts {
		status = models.JobDead
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = $1, attempts = $2, run_after = $3, last_error = $4, updated_at = $5 WHERE id = $6`,
		status, attempts, now.Add(backoffDelay), lastError, now, id,
	)
	if err != nil {
		return fmt.Errorf("store: fail job %s: %w", id, err)
	}
	return nil
}

// QueueDepth returns the number of currently queued (not yet running) jobs,
// for the job_queue_depth gauge.
func (s *Store) QueueDepth(ctx context.Context) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT count(*) FROM jobs WHERE status = $1`, models.JobQueued)
	if err != nil {
		return 0, fmt.Errorf("store: queue depth: %w", err)
	}
	return n, nil
}
