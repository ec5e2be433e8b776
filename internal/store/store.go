// Package store is the Persistent Store (C4): transactional Postgres
// storage of scans, repositories, policies, violations, action logs, the
// job queue, and webhook deliveries (spec §3, §4.4).
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Store aggregates every entity-scoped accessor, mirroring the teacher's
// Repository{Cluster, Topology, History, Project, AddOn} aggregation shape.
type Store struct {
	db *sqlx.DB
}

// Open connects to Postgres and tunes the pool the way the teacher's
// postgres.go does for its own transactional store.
func Open(connectionString string) (*Store, error) {
	db, err := sqlx.Connect("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// RunMigration executes one embedded migration file's SQL. Migrations use
// CREATE TABLE IF NOT EXISTS, so re-running an already-applied file is a
// no-op, mirroring the teacher's bare Exec-the-whole-file RunMigrations.
func (s *Store) RunMigration(ctx context.Context, name, sqlText string) error {
	if _, err := s.db.ExecContext(ctx, sqlText); err != nil {
		return fmt.Errorf("store: run migration %s: %w", name, err)
	}
	return nil
}

// Ping verifies connectivity for the liveness/readiness handler.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithTx runs fn inside a transaction scoped to ctx, committing on success
// and rolling back on any error or panic (spec §5 "Any C4 commit" is a
// cancellable suspension point; generalizes the teacher's bare BeginTx helper).
func (s *Store) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	err = fn(tx)
	return err
}
