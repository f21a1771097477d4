package queue

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoistscout/hoistscout/internal/common"
	"github.com/hoistscout/hoistscout/internal/interfaces"
	"github.com/hoistscout/hoistscout/internal/models"
	"github.com/hoistscout/hoistscout/internal/storage/sqlite"
)

func openTestQueue(t *testing.T) (interfaces.JobQueue, *sqlite.SQLiteDB) {
	t.Helper()
	db, err := sqlite.NewSQLiteDB(common.GetLogger(), &common.DatabaseConfig{
		Path:          filepath.Join(t.TempDir(), "queue_test.db"),
		CacheSizeMB:   16,
		BusyTimeoutMS: 5000,
		WALMode:       true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewQueue(db, common.GetLogger(), &common.QueueConfig{MaxRetries: 3}), db
}

func insertTestSite(t *testing.T, db *sqlite.SQLiteDB, id string) {
	t.Helper()
	now := time.Now().Unix()
	_, err := db.DB().Exec(`
		INSERT INTO sites (id, name, url, auth_type, scraping_config, active, legal_blocked, created_at, updated_at)
		VALUES (?, ?, ?, 'none', '{}', 1, 0, ?, ?)
	`, id, "Test Portal "+id, "https://"+id+".example.com", now, now)
	require.NoError(t, err)
}

func enqueueTestJob(t *testing.T, q interfaces.JobQueue, siteID string, priority int) string {
	t.Helper()
	id, err := q.Enqueue(context.Background(), &models.Job{
		SiteID:   siteID,
		Kind:     models.JobKindFull,
		Priority: priority,
	})
	require.NoError(t, err)
	return id
}

func TestEnqueue_DefaultsAndValidation(t *testing.T) {
	q, db := openTestQueue(t)
	insertTestSite(t, db, "site_a")
	ctx := context.Background()

	id, err := q.Enqueue(ctx, &models.Job{SiteID: "site_a", Kind: models.JobKindFull})
	require.NoError(t, err)

	job, err := q.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, 5, job.Priority)
	assert.Equal(t, 3, job.MaxRetries)
	assert.False(t, job.ScheduledAt.IsZero())

	_, err = q.Enqueue(ctx, &models.Job{SiteID: "", Kind: models.JobKindFull})
	assert.Error(t, err)

	_, err = q.Enqueue(ctx, &models.Job{SiteID: "site_a", Kind: models.JobKind("bogus")})
	assert.Error(t, err)
}

func TestClaim_PriorityThenOldestFirst(t *testing.T) {
	q, db := openTestQueue(t)
	insertTestSite(t, db, "site_a")
	ctx := context.Background()

	low := enqueueTestJob(t, q, "site_a", 3)
	high := enqueueTestJob(t, q, "site_a", 8)
	mid := enqueueTestJob(t, q, "site_a", 5)

	first, err := q.Claim(ctx, "worker_1", nil)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, high, first.ID)
	assert.Equal(t, models.JobStatusRunning, first.Status)
	assert.Equal(t, "worker_1", first.WorkerID)
	assert.NotNil(t, first.StartedAt)
	assert.NotNil(t, first.HeartbeatAt)

	second, err := q.Claim(ctx, "worker_1", nil)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, mid, second.ID)

	third, err := q.Claim(ctx, "worker_1", nil)
	require.NoError(t, err)
	require.NotNil(t, third)
	assert.Equal(t, low, third.ID)

	none, err := q.Claim(ctx, "worker_1", nil)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestClaim_RespectsScheduledAt(t *testing.T) {
	q, db := openTestQueue(t)
	insertTestSite(t, db, "site_a")
	ctx := context.Background()

	_, err := q.Enqueue(ctx, &models.Job{
		SiteID:      "site_a",
		Kind:        models.JobKindFull,
		ScheduledAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	job, err := q.Claim(ctx, "worker_1", nil)
	require.NoError(t, err)
	assert.Nil(t, job, "future-scheduled job must not be claimable")
}

func TestClaim_FiltersByKind(t *testing.T) {
	q, db := openTestQueue(t)
	insertTestSite(t, db, "site_a")
	ctx := context.Background()

	_, err := q.Enqueue(ctx, &models.Job{SiteID: "site_a", Kind: models.JobKindFull})
	require.NoError(t, err)
	testID, err := q.Enqueue(ctx, &models.Job{SiteID: "site_a", Kind: models.JobKindTest})
	require.NoError(t, err)

	job, err := q.Claim(ctx, "worker_1", []models.JobKind{models.JobKindTest})
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, testID, job.ID)

	job, err = q.Claim(ctx, "worker_1", []models.JobKind{models.JobKindTest})
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestClaim_NoDuplicateUnderContention(t *testing.T) {
	q, db := openTestQueue(t)
	insertTestSite(t, db, "site_a")
	ctx := context.Background()

	const jobCount = 20
	const workerCount = 8
	for i := 0; i < jobCount; i++ {
		enqueueTestJob(t, q, "site_a", 5)
	}

	var (
		mu      sync.Mutex
		claimed = make(map[string]string)
		wg      sync.WaitGroup
	)
	for w := 0; w < workerCount; w++ {
		wg.Add(1)
		go func(workerID string) {
			defer wg.Done()
			for {
				job, err := q.Claim(ctx, workerID, nil)
				if err != nil || job == nil {
					return
				}
				mu.Lock()
				prev, dup := claimed[job.ID]
				claimed[job.ID] = workerID
				mu.Unlock()
				if dup {
					t.Errorf("job %s claimed by both %s and %s", job.ID, prev, workerID)
				}
			}
		}(fmt.Sprintf("worker_%d", w))
	}
	wg.Wait()

	assert.Len(t, claimed, jobCount, "every job claimed exactly once")
}

func TestComplete_StoresStats(t *testing.T) {
	q, db := openTestQueue(t)
	insertTestSite(t, db, "site_a")
	ctx := context.Background()

	id := enqueueTestJob(t, q, "site_a", 5)
	_, err := q.Claim(ctx, "worker_1", nil)
	require.NoError(t, err)

	stats := models.JobStats{Pages: 4, Items: 37, PDFs: 2, DurationMS: 9000}
	require.NoError(t, q.Complete(ctx, id, stats))

	job, err := q.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 37, job.Stats.Items)
	assert.NotNil(t, job.CompletedAt)
}

func TestComplete_RejectsNonRunning(t *testing.T) {
	q, db := openTestQueue(t)
	insertTestSite(t, db, "site_a")
	ctx := context.Background()

	id := enqueueTestJob(t, q, "site_a", 5)
	err := q.Complete(ctx, id, models.JobStats{})
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	err = q.Complete(ctx, "job_missing", models.JobStats{})
	assert.ErrorIs(t, err, models.ErrJobNotFound)
}

func TestFail_RequeuesWithBackoff(t *testing.T) {
	q, db := openTestQueue(t)
	insertTestSite(t, db, "site_a")
	ctx := context.Background()

	id := enqueueTestJob(t, q, "site_a", 5)
	_, err := q.Claim(ctx, "worker_1", nil)
	require.NoError(t, err)

	before := time.Now()
	require.NoError(t, q.Fail(ctx, id, "connection reset", models.ErrorCategoryTransient, true))

	job, err := q.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, 1, job.RetryCount)
	assert.Equal(t, "connection reset", job.Error)
	assert.Empty(t, job.WorkerID)
	assert.Nil(t, job.StartedAt)
	// First retry backs off 120s
	assert.WithinDuration(t, before.Add(120*time.Second), job.ScheduledAt, 5*time.Second)

	// Not yet claimable
	claimed, err := q.Claim(ctx, "worker_2", nil)
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestFail_TerminalWhenRetriesExhausted(t *testing.T) {
	q, db := openTestQueue(t)
	insertTestSite(t, db, "site_a")
	ctx := context.Background()

	id, err := q.Enqueue(ctx, &models.Job{SiteID: "site_a", Kind: models.JobKindFull, MaxRetries: 1})
	require.NoError(t, err)

	// First failure requeues
	_, err = q.Claim(ctx, "worker_1", nil)
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, id, "timeout", models.ErrorCategoryTransient, true))

	// Pull the scheduled_at back so the retry is claimable now
	_, err = db.DB().Exec("UPDATE jobs SET scheduled_at = ? WHERE id = ?", time.Now().Unix(), id)
	require.NoError(t, err)

	_, err = q.Claim(ctx, "worker_1", nil)
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, id, "timeout", models.ErrorCategoryTransient, true))

	job, err := q.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, 2, job.RetryCount)
	assert.Equal(t, "transient", job.Stats.ErrorCategory)
}

func TestFail_NonRetryableCategoryIsTerminal(t *testing.T) {
	q, db := openTestQueue(t)
	insertTestSite(t, db, "site_a")
	ctx := context.Background()

	id := enqueueTestJob(t, q, "site_a", 5)
	_, err := q.Claim(ctx, "worker_1", nil)
	require.NoError(t, err)

	require.NoError(t, q.Fail(ctx, id, "robots.txt disallows", models.ErrorCategoryCompliance, true))

	job, err := q.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, "compliance", job.Stats.ErrorCategory)
}

func TestCancel_PendingCancelsDirectly(t *testing.T) {
	q, db := openTestQueue(t)
	insertTestSite(t, db, "site_a")
	ctx := context.Background()

	id := enqueueTestJob(t, q, "site_a", 5)
	require.NoError(t, q.Cancel(ctx, id))

	job, err := q.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, job.Status)

	claimed, err := q.Claim(ctx, "worker_1", nil)
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestCancel_RunningSetsFlag(t *testing.T) {
	q, db := openTestQueue(t)
	insertTestSite(t, db, "site_a")
	ctx := context.Background()

	id := enqueueTestJob(t, q, "site_a", 5)
	_, err := q.Claim(ctx, "worker_1", nil)
	require.NoError(t, err)

	flagged, err := q.CancelRequested(ctx, id)
	require.NoError(t, err)
	assert.False(t, flagged)

	require.NoError(t, q.Cancel(ctx, id))

	job, err := q.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, job.Status, "running job keeps running until the worker observes the flag")

	flagged, err = q.CancelRequested(ctx, id)
	require.NoError(t, err)
	assert.True(t, flagged)

	require.NoError(t, q.MarkCancelled(ctx, id, models.JobStats{Pages: 2}))
	job, err = q.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, job.Status)
	assert.Equal(t, 2, job.Stats.Pages)
}

func TestCancel_TerminalJobRejected(t *testing.T) {
	q, db := openTestQueue(t)
	insertTestSite(t, db, "site_a")
	ctx := context.Background()

	id := enqueueTestJob(t, q, "site_a", 5)
	_, err := q.Claim(ctx, "worker_1", nil)
	require.NoError(t, err)
	require.NoError(t, q.Complete(ctx, id, models.JobStats{}))

	err = q.Cancel(ctx, id)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestHeartbeat_OnlyStampsOwner(t *testing.T) {
	q, db := openTestQueue(t)
	insertTestSite(t, db, "site_a")
	ctx := context.Background()

	id := enqueueTestJob(t, q, "site_a", 5)
	claimed, err := q.Claim(ctx, "worker_1", nil)
	require.NoError(t, err)
	original := *claimed.HeartbeatAt

	time.Sleep(1100 * time.Millisecond)
	require.NoError(t, q.Heartbeat(ctx, id, "worker_1"))

	job, err := q.GetJob(ctx, id)
	require.NoError(t, err)
	assert.True(t, job.HeartbeatAt.After(original))

	// A stranger's stamp is a no-op
	stamped := *job.HeartbeatAt
	time.Sleep(1100 * time.Millisecond)
	require.NoError(t, q.Heartbeat(ctx, id, "worker_2"))
	job, err = q.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, stamped, *job.HeartbeatAt)
}

func TestReapStale_RequeuesDeadWorkers(t *testing.T) {
	q, db := openTestQueue(t)
	insertTestSite(t, db, "site_a")
	ctx := context.Background()

	staleID := enqueueTestJob(t, q, "site_a", 5)
	_, err := q.Claim(ctx, "worker_dead", nil)
	require.NoError(t, err)

	liveID := enqueueTestJob(t, q, "site_a", 5)
	_, err = q.Claim(ctx, "worker_live", nil)
	require.NoError(t, err)

	// Age the dead worker's heartbeat past the threshold
	old := time.Now().Add(-10 * time.Minute).Unix()
	_, err = db.DB().Exec("UPDATE jobs SET heartbeat_at = ? WHERE id = ?", old, staleID)
	require.NoError(t, err)

	rescued, err := q.ReapStale(ctx, 2*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, rescued)

	stale, err := q.GetJob(ctx, staleID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, stale.Status)
	assert.Equal(t, 1, stale.RetryCount)
	assert.Empty(t, stale.WorkerID)

	live, err := q.GetJob(ctx, liveID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, live.Status)
}

func TestReapStale_ExhaustedJobFailsTerminally(t *testing.T) {
	q, db := openTestQueue(t)
	insertTestSite(t, db, "site_a")
	ctx := context.Background()

	id := enqueueTestJob(t, q, "site_a", 5)
	_, err := q.Claim(ctx, "worker_dead", nil)
	require.NoError(t, err)

	old := time.Now().Add(-10 * time.Minute).Unix()
	_, err = db.DB().Exec("UPDATE jobs SET heartbeat_at = ?, retry_count = max_retries WHERE id = ?", old, id)
	require.NoError(t, err)

	rescued, err := q.ReapStale(ctx, 2*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, rescued)

	job, err := q.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, "worker heartbeat lost", job.Error)
}

func TestListJobs_Filters(t *testing.T) {
	q, db := openTestQueue(t)
	insertTestSite(t, db, "site_a")
	insertTestSite(t, db, "site_b")
	ctx := context.Background()

	enqueueTestJob(t, q, "site_a", 5)
	enqueueTestJob(t, q, "site_a", 5)
	bID := enqueueTestJob(t, q, "site_b", 5)

	all, err := q.ListJobs(ctx, interfaces.JobFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	siteB, err := q.ListJobs(ctx, interfaces.JobFilter{SiteID: "site_b"})
	require.NoError(t, err)
	require.Len(t, siteB, 1)
	assert.Equal(t, bID, siteB[0].ID)

	_, err = q.Claim(ctx, "worker_1", nil)
	require.NoError(t, err)
	running, err := q.ListJobs(ctx, interfaces.JobFilter{Status: models.JobStatusRunning})
	require.NoError(t, err)
	assert.Len(t, running, 1)

	limited, err := q.ListJobs(ctx, interfaces.JobFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}
