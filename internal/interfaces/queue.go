package interfaces

import (
	"context"
	"time"

	"github.com/hoistscout/hoistscout/internal/models"
)

// JobFilter narrows ListJobs results
type JobFilter struct {
	SiteID string
	Status models.JobStatus
	Kind   models.JobKind
	Limit  int
	Offset int
}

// JobQueue is the durable task queue backed by the job table. Claim is a
// single atomic transition so concurrent workers never hold the same job.
type JobQueue interface {
	// Enqueue inserts a pending job and returns its id
	Enqueue(ctx context.Context, job *models.Job) (string, error)

	// Claim atomically selects the highest-priority eligible pending job,
	// transitions it to running and stamps started_at and worker_id.
	// Returns (nil, nil) when nothing is claimable.
	Claim(ctx context.Context, workerID string, kinds []models.JobKind) (*models.Job, error)

	// Complete transitions running -> completed and stores stats
	Complete(ctx context.Context, jobID string, stats models.JobStats) error

	// Fail transitions running -> failed. When retry is true and the job
	// has retries left it is re-queued as pending with backoff.
	Fail(ctx context.Context, jobID string, errMsg string, category models.ErrorCategory, retry bool) error

	// Cancel cancels a pending job directly or flags a running job for
	// cooperative cancellation at the next checkpoint.
	Cancel(ctx context.Context, jobID string) error

	// MarkCancelled finalizes a running job whose worker observed the
	// cancel flag, recording partial stats.
	MarkCancelled(ctx context.Context, jobID string, stats models.JobStats) error

	// CancelRequested reports whether a running job has been flagged
	CancelRequested(ctx context.Context, jobID string) (bool, error)

	// Heartbeat refreshes the worker liveness stamp on a running job
	Heartbeat(ctx context.Context, jobID string, workerID string) error

	// ReapStale rescues running jobs whose heartbeat is older than the
	// threshold, re-queueing them for retry. Returns the rescue count.
	ReapStale(ctx context.Context, olderThan time.Duration) (int, error)

	// GetJob returns a job by id
	GetJob(ctx context.Context, jobID string) (*models.Job, error)

	// ListJobs returns jobs matching the filter, newest first
	ListJobs(ctx context.Context, filter JobFilter) ([]*models.Job, error)
}
