// Package queue is the Job Queue (C8): a durable, Postgres-backed
// background job system with a recurring schedule (spec §4.8).
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/robfig/cron/v3"

	"github.com/kubilitics/policy-engine/internal/models"
	"github.com/kubilitics/policy-engine/internal/pkg/metrics"
)

const defaultMaxAttempts = 10

// Store is the subset of internal/store.Store the queue needs.
type Store interface {
	EnqueueJob(ctx context.Context, method, argsJSON string, maxAttempts int) (string, error)
	ClaimJobs(ctx context.Context, n int) ([]models.Job, error)
	CompleteJob(ctx context.Context, id string) error
	FailJob(ctx context.Context, id string, attempts, maxAttempts int, backoffDelay time.Duration, lastError string) error
	QueueDepth(ctx context.Context) (int, error)
}

// Handler processes one job's arguments, JSON-encoded.
type Handler func(ctx context.Context, argsJSON string) error

// Queue wires job persistence (C4) to a worker pool and a cron scheduler for
// recurring jobs (spec §4.8).
type Queue struct {
	store       Store
	log         *slog.Logger
	handlers    map[string]Handler
	cron        *cron.Cron
	workerCount int
}

// New builds a Queue with workerCount worker goroutines (0 means
// runtime.NumCPU(), per spec §5 "default: number of CPU cores").
func New(store Store, log *slog.Logger, workerCount int) *Queue {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	return &Queue{
		store:       store,
		log:         log,
		handlers:    make(map[string]Handler),
		cron:        cron.New(cron.WithLocation(time.UTC)),
		workerCount: workerCount,
	}
}

// RegisterHandler associates a job method name with the function that
// executes it. Call before Start.
func (q *Queue) RegisterHandler(method string, h Handler) {
	q.handlers[method] = h
}

// Enqueue implements C8's Enqueue(method, args) (spec §4.8).
func (q *Queue) Enqueue(ctx context.Context, method string, args any) (string, error) {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("queue: encode args for %s: %w", method, err)
	}
	id, err := q.store.EnqueueJob(ctx, method, string(argsJSON), defaultMaxAttempts)
	if err != nil {
		return "", err
	}
	return id, nil
}

// Recurring registers a cron-scheduled job (spec §4.8). spec is a standard
// 5-field cron expression, evaluated in UTC; there is no per-job timezone.
// On each tick it enqueues method with args; the queue's ordinary worker
// pool then executes it like any other job.
func (q *Queue) Recurring(id, spec, method string, args any) error {
	_, err := q.cron.AddFunc(spec, func() {
		if _, err := q.Enqueue(context.Background(), method, args); err != nil {
			q.log.Error("failed to enqueue recurring job", "id", id, "method", method, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("queue: register recurring job %s: %w", id, err)
	}
	return nil
}

// Start launches the cron scheduler and the worker pool. It blocks until ctx
// is cancelled.
func (q *Queue) Start(ctx context.Context) {
	q.cron.Start()
	defer q.cron.Stop()

	done := make(chan struct{})
	for i := 0; i < q.workerCount; i++ {
		go q.runWorker(ctx, done)
	}

	<-ctx.Done()
	for i := 0; i < q.workerCount; i++ {
		<-done
	}
}

func (q *Queue) runWorker(ctx context.Context, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.pollOnce(ctx)
		}
	}
}

func (q *Queue) pollOnce(ctx context.Context) {
	jobs, err := q.store.ClaimJobs(ctx, 1)
	if err != nil {
		q.log.Error("failed to claim jobs", "error", err)
		return
	}
	if depth, err := q.store.QueueDepth(ctx); err == nil {
		metrics.JobQueueDepth.Set(float64(depth))
	}

	for _, job := range jobs {
		q.runJob(ctx, job)
	}
}

func (q *Queue) runJob(ctx context.Context, job models.Job) {
	handler, ok := q.handlers[job.Method]
	if !ok {
		q.log.Error("no handler registered for job method", "method", job.Method, "job_id", job.ID)
		_ = q.store.FailJob(ctx, job.ID, job.MaxAttempts, job.MaxAttempts, 0, "no handler registered")
		metrics.JobsProcessedTotal.WithLabelValues(job.Method, "dead").Inc()
		return
	}

	err := handler(ctx, job.Args)
	if err == nil {
		if cerr := q.store.CompleteJob(ctx, job.ID); cerr != nil {
			q.log.Error("failed to mark job complete", "job_id", job.ID, "error", cerr)
		}
		metrics.JobsProcessedTotal.WithLabelValues(job.Method, "success").Inc()
		return
	}

	attempts := job.Attempts + 1
	delay := backoffDelay(attempts)
	outcome := "retry"
	if attempts >= job.MaxAttempts {
		outcome = "dead"
	}
	if ferr := q.store.FailJob(ctx, job.ID, attempts, job.MaxAttempts, delay, err.Error()); ferr != nil {
		q.log.Error("failed to record job failure", "job_id", job.ID, "error", ferr)
	}
	metrics.JobsProcessedTotal.WithLabelValues(job.Method, outcome).Inc()
	q.log.Warn("job failed", "method", job.Method, "job_id", job.ID, "attempt", attempts, "error", err)
}

// backoffDelay mirrors internal/platform's exponential backoff shape (base
// 1s, cap capped by ExponentialBackOff's MaxInterval) for job retries
// (spec §4.8 "retried ... with exponential backoff").
func backoffDelay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 5 * time.Minute
	delay := b.InitialInterval
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * b.Multiplier)
		if delay > b.MaxInterval {
			delay = b.MaxInterval
			break
		}
	}
	return delay
}
