package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/policy-engine/internal/models"
)

type fakeStore struct {
	mu        sync.Mutex
	jobs      []models.Job
	completed []string
	failed    []string
	enqueued  []string
}

func (f *fakeStore) EnqueueJob(ctx context.Context, method, argsJSON string, maxAttempts int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued = append(f.enqueued, method)
	return "job-1", nil
}

func (f *fakeStore) ClaimJobs(ctx context.Context, n int) ([]models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.jobs) == 0 {
		return nil, nil
	}
	claimed := f.jobs[:min(n, len(f.jobs))]
	f.jobs = f.jobs[len(claimed):]
	return claimed, nil
}

func (f *fakeStore) CompleteJob(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, id)
	return nil
}

func (f *fakeStore) FailJob(ctx context.Context, id string, attempts, maxAttempts int, backoffDelay time.Duration, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeStore) QueueDepth(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs), nil
}

func TestEnqueue_EncodesArgsAndDelegatesToStore(t *testing.T) {
	fs := &fakeStore{}
	q := New(fs, slog.Default(), 1)

	id, err := q.Enqueue(context.Background(), "daily-scan", map[string]int64{"scan_id": 7})
	require.NoError(t, err)
	assert.Equal(t, "job-1", id)
	assert.Equal(t, []string{"daily-scan"}, fs.enqueued)
}

func TestRunJob_SuccessMarksComplete(t *testing.T) {
	fs := &fakeStore{}
	q := New(fs, slog.Default(), 1)
	q.RegisterHandler("noop", func(ctx context.Context, argsJSON string) error { return nil })

	q.runJob(context.Background(), models.Job{ID: "j1", Method: "noop", MaxAttempts: 3})

	assert.Equal(t, []string{"j1"}, fs.completed)
	assert.Empty(t, fs.failed)
}

func TestRunJob_HandlerErrorMarksFailed(t *testing.T) {
	fs := &fakeStore{}
	q := New(fs, slog.Default(), 1)
	q.RegisterHandler("flaky", func(ctx context.Context, argsJSON string) error { return errors.New("boom") })

	q.runJob(context.Background(), models.Job{ID: "j2", Method: "flaky", Attempts: 0, MaxAttempts: 3})

	assert.Equal(t, []string{"j2"}, fs.failed)
}

func TestRunJob_NoHandlerDeadLetters(t *testing.T) {
	fs := &fakeStore{}
	q := New(fs, slog.Default(), 1)

	q.runJob(context.Background(), models.Job{ID: "j3", Method: "unknown-method", MaxAttempts: 3})

	assert.Equal(t, []string{"j3"}, fs.failed, "expected unregistered method job to be failed/dead-lettered")
}

func TestNew_DefaultsWorkerCountToNumCPUWhenZeroOrNegative(t *testing.T) {
	q := New(&fakeStore{}, slog.Default(), 0)
	assert.Positive(t, q.workerCount)

	q2 := New(&fakeStore{}, slog.Default(), -5)
	assert.Positive(t, q2.workerCount, "expected positive default worker count for negative input")
}

func TestBackoffDelay_Increases(t *testing.T) {
	d1 := backoffDelay(1)
	d2 := backoffDelay(2)
	d3 := backoffDelay(3)

	require.Positive(t, d1)
	assert.GreaterOrEqual(t, d2, d1)
	assert.GreaterOrEqual(t, d3, d2)
}

func TestBackoffDelay_CapsAtMaxInterval(t *testing.T) {
	d := backoffDelay(50)
	assert.LessOrEqual(t, d, 5*time.Minute)
}

func TestRecurring_RegistersWithoutError(t *testing.T) {
	fs := &fakeStore{}
	q := New(fs, slog.Default(), 1)

	assert.NoError(t, q.Recurring("daily-scan", "0 0 * * *", "daily-scan", nil))
}

func TestRecurring_InvalidCronSpecErrors(t *testing.T) {
	fs := &fakeStore{}
	q := New(fs, slog.Default(), 1)

	assert.Error(t, q.Recurring("bad", "not-a-cron-spec", "daily-scan", nil))
}
