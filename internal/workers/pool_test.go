package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoistscout/hoistscout/internal/common"
	"github.com/hoistscout/hoistscout/internal/interfaces"
	"github.com/hoistscout/hoistscout/internal/models"
)

// memQueue is an in-memory JobQueue recording terminal outcomes
type memQueue struct {
	mu        sync.Mutex
	pending   []*models.Job
	completed map[string]models.JobStats
	cancelled map[string]models.JobStats
	failed    map[string]struct {
		category models.ErrorCategory
		retry    bool
	}
	heartbeats int
}

func newMemQueue(jobs ...*models.Job) *memQueue {
	return &memQueue{
		pending:   jobs,
		completed: make(map[string]models.JobStats),
		cancelled: make(map[string]models.JobStats),
		failed: make(map[string]struct {
			category models.ErrorCategory
			retry    bool
		}),
	}
}

func (q *memQueue) Enqueue(ctx context.Context, job *models.Job) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, job)
	return job.ID, nil
}

func (q *memQueue) Claim(ctx context.Context, workerID string, kinds []models.JobKind) (*models.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil, nil
	}
	job := q.pending[0]
	q.pending = q.pending[1:]
	job.Status = models.JobStatusRunning
	job.WorkerID = workerID
	return job, nil
}

func (q *memQueue) Complete(ctx context.Context, jobID string, stats models.JobStats) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completed[jobID] = stats
	return nil
}

func (q *memQueue) Fail(ctx context.Context, jobID string, errMsg string, category models.ErrorCategory, retry bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failed[jobID] = struct {
		category models.ErrorCategory
		retry    bool
	}{category, retry}
	return nil
}

func (q *memQueue) Cancel(ctx context.Context, jobID string) error { return nil }

func (q *memQueue) MarkCancelled(ctx context.Context, jobID string, stats models.JobStats) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelled[jobID] = stats
	return nil
}

func (q *memQueue) CancelRequested(ctx context.Context, jobID string) (bool, error) {
	return false, nil
}

func (q *memQueue) Heartbeat(ctx context.Context, jobID string, workerID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.heartbeats++
	return nil
}

func (q *memQueue) ReapStale(ctx context.Context, olderThan time.Duration) (int, error) {
	return 0, nil
}

func (q *memQueue) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	return nil, nil
}

func (q *memQueue) ListJobs(ctx context.Context, filter interfaces.JobFilter) ([]*models.Job, error) {
	return nil, nil
}

type stubRunner struct {
	stats models.JobStats
	err   error
	ran   []string
	mu    sync.Mutex
}

func (r *stubRunner) Run(ctx context.Context, job *models.Job) (models.JobStats, error) {
	r.mu.Lock()
	r.ran = append(r.ran, job.ID)
	r.mu.Unlock()
	return r.stats, r.err
}

type stubSessions struct {
	mu          sync.Mutex
	invalidated []string
}

func (s *stubSessions) Save(ctx context.Context, siteID string, state *models.BrowserState) error {
	return nil
}
func (s *stubSessions) Load(ctx context.Context, siteID string) (*models.BrowserState, error) {
	return nil, nil
}
func (s *stubSessions) Invalidate(ctx context.Context, siteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidated = append(s.invalidated, siteID)
	return nil
}
func (s *stubSessions) Close() error { return nil }

func poolConfig() *common.Config {
	config := common.NewDefaultConfig()
	config.Worker.Concurrency = 2
	config.Queue.PollInterval = "10ms"
	config.Queue.HeartbeatInterval = "10ms"
	return config
}

func poolJob(id string) *models.Job {
	return &models.Job{
		ID:     id,
		SiteID: "site_1",
		Kind:   models.JobKindFull,
		Status: models.JobStatusPending,
	}
}

func TestExecute_SuccessRecordsCompletion(t *testing.T) {
	queue := newMemQueue()
	runner := &stubRunner{stats: models.JobStats{Pages: 3, Items: 30}}
	pool := NewPool(queue, runner, &stubSessions{}, poolConfig(), common.GetLogger())

	pool.execute(context.Background(), poolJob("job_ok"))

	stats, ok := queue.completed["job_ok"]
	require.True(t, ok)
	assert.Equal(t, 30, stats.Items)
	assert.Empty(t, queue.failed)
}

func TestExecute_TransientFailureRequeues(t *testing.T) {
	queue := newMemQueue()
	runner := &stubRunner{err: errors.New("connection reset")}
	pool := NewPool(queue, runner, &stubSessions{}, poolConfig(), common.GetLogger())

	pool.execute(context.Background(), poolJob("job_flaky"))

	outcome, ok := queue.failed["job_flaky"]
	require.True(t, ok)
	assert.Equal(t, models.ErrorCategoryTransient, outcome.category)
	assert.True(t, outcome.retry)
}

func TestExecute_ComplianceFailureIsTerminal(t *testing.T) {
	queue := newMemQueue()
	runner := &stubRunner{err: fmt.Errorf("domain blocked: %w", models.ErrComplianceViolation)}
	pool := NewPool(queue, runner, &stubSessions{}, poolConfig(), common.GetLogger())

	pool.execute(context.Background(), poolJob("job_blocked"))

	outcome, ok := queue.failed["job_blocked"]
	require.True(t, ok)
	assert.Equal(t, models.ErrorCategoryCompliance, outcome.category)
	assert.False(t, outcome.retry)
}

func TestExecute_AuthFailureInvalidatesSession(t *testing.T) {
	queue := newMemQueue()
	sessions := &stubSessions{}
	runner := &stubRunner{err: fmt.Errorf("rejected: %w", models.ErrAuthFailure)}
	pool := NewPool(queue, runner, sessions, poolConfig(), common.GetLogger())

	pool.execute(context.Background(), poolJob("job_auth"))

	outcome, ok := queue.failed["job_auth"]
	require.True(t, ok)
	assert.Equal(t, models.ErrorCategoryAuth, outcome.category)
	assert.True(t, outcome.retry, "auth failures retry after session invalidation")
	assert.Equal(t, []string{"site_1"}, sessions.invalidated)
}

func TestExecute_CancellationRecordsPartialStats(t *testing.T) {
	queue := newMemQueue()
	runner := &stubRunner{
		stats: models.JobStats{Pages: 2},
		err:   models.ErrJobCancelled,
	}
	pool := NewPool(queue, runner, &stubSessions{}, poolConfig(), common.GetLogger())

	pool.execute(context.Background(), poolJob("job_cxl"))

	stats, ok := queue.cancelled["job_cxl"]
	require.True(t, ok)
	assert.Equal(t, 2, stats.Pages)
	assert.Empty(t, queue.failed)
	assert.Empty(t, queue.completed)
}

func TestPool_DrainsQueueAndStops(t *testing.T) {
	queue := newMemQueue(poolJob("job_1"), poolJob("job_2"), poolJob("job_3"))
	runner := &stubRunner{stats: models.JobStats{Items: 1}}
	pool := NewPool(queue, runner, &stubSessions{}, poolConfig(), common.GetLogger())

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	require.Eventually(t, func() bool {
		queue.mu.Lock()
		defer queue.mu.Unlock()
		return len(queue.completed) == 3
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	pool.Wait()

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Len(t, runner.ran, 3)
}

func TestPool_HeartbeatsWhileRunning(t *testing.T) {
	queue := newMemQueue()
	runner := &stubRunner{}
	slow := &slowRunner{inner: runner, delay: 60 * time.Millisecond}
	pool := NewPool(queue, slow, &stubSessions{}, poolConfig(), common.GetLogger())

	pool.execute(context.Background(), poolJob("job_slow"))

	queue.mu.Lock()
	defer queue.mu.Unlock()
	assert.GreaterOrEqual(t, queue.heartbeats, 2)
}

type slowRunner struct {
	inner *stubRunner
	delay time.Duration
}

func (r *slowRunner) Run(ctx context.Context, job *models.Job) (models.JobStats, error) {
	time.Sleep(r.delay)
	return r.inner.Run(ctx, job)
}
