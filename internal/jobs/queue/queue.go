package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/hoistscout/hoistscout/internal/common"
	"github.com/hoistscout/hoistscout/internal/interfaces"
	"github.com/hoistscout/hoistscout/internal/models"
	"github.com/hoistscout/hoistscout/internal/storage/sqlite"
)

// Queue is the durable job queue backed by the jobs table. Claiming is a
// single UPDATE with a scalar subquery, so two workers can never take the
// same row: SQLite serializes the write and the second UPDATE finds no
// eligible job.
type Queue struct {
	db     *sqlite.SQLiteDB
	logger arbor.ILogger
	config *common.QueueConfig
}

// NewQueue creates a job queue over an open database connection
func NewQueue(db *sqlite.SQLiteDB, logger arbor.ILogger, config *common.QueueConfig) interfaces.JobQueue {
	return &Queue{
		db:     db,
		logger: logger,
		config: config,
	}
}

const jobColumns = `
	id, site_id, kind, status, priority, scheduled_at, started_at,
	completed_at, error, stats, retry_count, max_retries, worker_id,
	heartbeat_at, cancel_requested, created_at, updated_at
`

// Enqueue inserts a pending job and returns its id
func (q *Queue) Enqueue(ctx context.Context, job *models.Job) (string, error) {
	if job.ID == "" {
		job.ID = common.NewJobID()
	}
	if job.Priority == 0 {
		job.Priority = 5
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = q.config.MaxRetries
	}
	if job.ScheduledAt.IsZero() {
		job.ScheduledAt = time.Now()
	}
	job.Status = models.JobStatusPending

	if err := job.Validate(); err != nil {
		return "", err
	}

	statsJSON, err := json.Marshal(job.Stats)
	if err != nil {
		return "", fmt.Errorf("failed to serialize job stats: %w", err)
	}

	now := time.Now().Unix()
	query := `
		INSERT INTO jobs (
			id, site_id, kind, status, priority, scheduled_at, stats,
			retry_count, max_retries, cancel_requested, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
	`
	_, err = q.db.DB().ExecContext(ctx, query,
		job.ID,
		job.SiteID,
		string(job.Kind),
		string(job.Status),
		job.Priority,
		job.ScheduledAt.Unix(),
		string(statsJSON),
		job.RetryCount,
		job.MaxRetries,
		now,
		now,
	)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}

	q.logger.Info().
		Str("job_id", job.ID).
		Str("site_id", job.SiteID).
		Str("kind", string(job.Kind)).
		Int("priority", job.Priority).
		Msg("Job enqueued")
	return job.ID, nil
}

// Claim atomically takes the highest-priority eligible pending job.
// Ordering: priority DESC, then older scheduled_at, ties broken by id.
// Returns (nil, nil) when nothing is claimable.
func (q *Queue) Claim(ctx context.Context, workerID string, kinds []models.JobKind) (*models.Job, error) {
	if workerID == "" {
		return nil, fmt.Errorf("worker id is required")
	}

	now := time.Now()
	args := []interface{}{now.Unix(), workerID, now.Unix(), now.Unix(), now.Unix()}

	kindFilter := ""
	if len(kinds) > 0 {
		placeholders := make([]string, len(kinds))
		for i, k := range kinds {
			placeholders[i] = "?"
			args = append(args, string(k))
		}
		kindFilter = " AND kind IN (" + strings.Join(placeholders, ", ") + ")"
	}

	query := `
		UPDATE jobs
		SET status = 'running', started_at = ?, worker_id = ?,
		    heartbeat_at = ?, updated_at = ?
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = 'pending' AND scheduled_at <= ?` + kindFilter + `
			ORDER BY priority DESC, scheduled_at ASC, id ASC
			LIMIT 1
		)
		RETURNING ` + jobColumns

	job, err := scanJob(q.db.DB().QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	q.logger.Info().
		Str("job_id", job.ID).
		Str("worker_id", workerID).
		Str("site_id", job.SiteID).
		Msg("Job claimed")
	return job, nil
}

// Complete transitions running -> completed and stores stats
func (q *Queue) Complete(ctx context.Context, jobID string, stats models.JobStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to serialize job stats: %w", err)
	}

	now := time.Now().Unix()
	result, err := q.db.DB().ExecContext(ctx, `
		UPDATE jobs
		SET status = 'completed', completed_at = ?, stats = ?, updated_at = ?
		WHERE id = ? AND status = 'running'
	`, now, string(statsJSON), now, jobID)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	if err := q.requireTransition(ctx, result, jobID, models.JobStatusCompleted); err != nil {
		return err
	}

	q.logger.Info().Str("job_id", jobID).Int("items", stats.Items).Msg("Job completed")
	return nil
}

// Fail transitions running -> failed. When retry is true and retries
// remain, the job is re-queued as pending with exponential backoff.
func (q *Queue) Fail(ctx context.Context, jobID string, errMsg string, category models.ErrorCategory, retry bool) error {
	tx, err := q.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		status     string
		retryCount int
		maxRetries int
		statsJSON  string
	)
	err = tx.QueryRowContext(ctx,
		"SELECT status, retry_count, max_retries, stats FROM jobs WHERE id = ?",
		jobID).Scan(&status, &retryCount, &maxRetries, &statsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}
	if models.JobStatus(status) != models.JobStatusRunning {
		return fmt.Errorf("%w: %s -> failed", models.ErrInvalidTransition, status)
	}

	var stats models.JobStats
	if statsJSON != "" {
		_ = json.Unmarshal([]byte(statsJSON), &stats)
	}
	stats.ErrorCategory = string(category)

	newRetryCount := retryCount + 1
	requeue := retry && category.Retryable() && newRetryCount <= maxRetries
	now := time.Now()

	if requeue {
		stats.Retries = newRetryCount
		updated, merr := json.Marshal(stats)
		if merr != nil {
			return fmt.Errorf("failed to serialize job stats: %w", merr)
		}
		scheduledAt := now.Add(models.RetryBackoff(newRetryCount))
		_, err = tx.ExecContext(ctx, `
			UPDATE jobs
			SET status = 'pending', error = ?, stats = ?, retry_count = ?,
			    scheduled_at = ?, worker_id = NULL, started_at = NULL,
			    heartbeat_at = NULL, updated_at = ?
			WHERE id = ?
		`, errMsg, string(updated), newRetryCount, scheduledAt.Unix(), now.Unix(), jobID)
	} else {
		updated, merr := json.Marshal(stats)
		if merr != nil {
			return fmt.Errorf("failed to serialize job stats: %w", merr)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE jobs
			SET status = 'failed', error = ?, stats = ?, retry_count = ?,
			    completed_at = ?, updated_at = ?
			WHERE id = ?
		`, errMsg, string(updated), newRetryCount, now.Unix(), now.Unix(), jobID)
	}
	if err != nil {
		return fmt.Errorf("failed to fail job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit job failure: %w", err)
	}

	if requeue {
		q.logger.Warn().
			Str("job_id", jobID).
			Str("category", string(category)).
			Int("retry", newRetryCount).
			Str("error", errMsg).
			Msg("Job re-queued with backoff")
	} else {
		q.logger.Warn().
			Str("job_id", jobID).
			Str("category", string(category)).
			Str("error", errMsg).
			Msg("Job failed")
	}
	return nil
}

// Cancel cancels a pending job directly or flags a running job. Terminal
// jobs cannot be cancelled.
func (q *Queue) Cancel(ctx context.Context, jobID string) error {
	tx, err := q.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx, "SELECT status FROM jobs WHERE id = ?", jobID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}

	now := time.Now().Unix()
	switch models.JobStatus(status) {
	case models.JobStatusPending:
		_, err = tx.ExecContext(ctx, `
			UPDATE jobs
			SET status = 'cancelled', completed_at = ?, updated_at = ?
			WHERE id = ?
		`, now, now, jobID)
	case models.JobStatusRunning:
		// Workers observe the flag at page boundaries
		_, err = tx.ExecContext(ctx,
			"UPDATE jobs SET cancel_requested = 1, updated_at = ? WHERE id = ?",
			now, jobID)
	default:
		return fmt.Errorf("%w: %s -> cancelled", models.ErrInvalidTransition, status)
	}
	if err != nil {
		return fmt.Errorf("failed to cancel job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cancellation: %w", err)
	}

	q.logger.Info().Str("job_id", jobID).Str("from", status).Msg("Job cancellation requested")
	return nil
}

// MarkCancelled finalizes a running job whose worker observed the cancel
// flag, recording partial stats.
func (q *Queue) MarkCancelled(ctx context.Context, jobID string, stats models.JobStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to serialize job stats: %w", err)
	}

	now := time.Now().Unix()
	result, err := q.db.DB().ExecContext(ctx, `
		UPDATE jobs
		SET status = 'cancelled', completed_at = ?, stats = ?, updated_at = ?
		WHERE id = ? AND status = 'running'
	`, now, string(statsJSON), now, jobID)
	if err != nil {
		return fmt.Errorf("failed to mark job cancelled: %w", err)
	}
	if err := q.requireTransition(ctx, result, jobID, models.JobStatusCancelled); err != nil {
		return err
	}

	q.logger.Info().Str("job_id", jobID).Int("pages", stats.Pages).Msg("Job cancelled")
	return nil
}

// CancelRequested reports whether a running job has been flagged
func (q *Queue) CancelRequested(ctx context.Context, jobID string) (bool, error) {
	var flagged int
	err := q.db.DB().QueryRowContext(ctx,
		"SELECT cancel_requested FROM jobs WHERE id = ?", jobID).Scan(&flagged)
	if errors.Is(err, sql.ErrNoRows) {
		return false, models.ErrJobNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to read cancel flag: %w", err)
	}
	return flagged != 0, nil
}

// Heartbeat refreshes the worker liveness stamp on a running job. The
// worker_id guard keeps a reaped-and-reclaimed job from being stamped by
// its previous owner.
func (q *Queue) Heartbeat(ctx context.Context, jobID string, workerID string) error {
	now := time.Now().Unix()
	_, err := q.db.DB().ExecContext(ctx, `
		UPDATE jobs SET heartbeat_at = ?, updated_at = ?
		WHERE id = ? AND status = 'running' AND worker_id = ?
	`, now, now, jobID, workerID)
	if err != nil {
		return fmt.Errorf("failed to heartbeat job: %w", err)
	}
	return nil
}

// ReapStale rescues running jobs whose heartbeat is older than the
// threshold, re-queueing them for retry.
func (q *Queue) ReapStale(ctx context.Context, olderThan time.Duration) (int, error) {
	now := time.Now()
	cutoff := now.Add(-olderThan).Unix()

	result, err := q.db.DB().ExecContext(ctx, `
		UPDATE jobs
		SET status = 'pending', retry_count = retry_count + 1,
		    error = 'worker heartbeat lost', worker_id = NULL,
		    started_at = NULL, heartbeat_at = NULL,
		    scheduled_at = ?, updated_at = ?
		WHERE status = 'running'
		  AND heartbeat_at IS NOT NULL AND heartbeat_at < ?
		  AND retry_count < max_retries
	`, now.Unix(), now.Unix(), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to reap stale jobs: %w", err)
	}
	rescued, _ := result.RowsAffected()

	// Jobs out of retries fail terminally instead of re-queueing
	_, err = q.db.DB().ExecContext(ctx, `
		UPDATE jobs
		SET status = 'failed', error = 'worker heartbeat lost',
		    completed_at = ?, updated_at = ?
		WHERE status = 'running'
		  AND heartbeat_at IS NOT NULL AND heartbeat_at < ?
	`, now.Unix(), now.Unix(), cutoff)
	if err != nil {
		return int(rescued), fmt.Errorf("failed to fail exhausted stale jobs: %w", err)
	}

	if rescued > 0 {
		q.logger.Warn().Int64("count", rescued).Msg("Stale jobs re-queued")
	}
	return int(rescued), nil
}

// GetJob returns a job by id
func (q *Queue) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	query := "SELECT " + jobColumns + " FROM jobs WHERE id = ?"
	job, err := scanJob(q.db.DB().QueryRowContext(ctx, query, jobID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs matching the filter, newest first
func (q *Queue) ListJobs(ctx context.Context, filter interfaces.JobFilter) ([]*models.Job, error) {
	query := "SELECT " + jobColumns + " FROM jobs"
	var (
		conditions []string
		args       []interface{}
	)
	if filter.SiteID != "" {
		conditions = append(conditions, "site_id = ?")
		args = append(args, filter.SiteID)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := q.db.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// requireTransition turns a zero-row UPDATE into a typed error: either the
// job is missing or it was not in the expected source state.
func (q *Queue) requireTransition(ctx context.Context, result sql.Result, jobID string, to models.JobStatus) error {
	affected, _ := result.RowsAffected()
	if affected > 0 {
		return nil
	}
	var status string
	err := q.db.DB().QueryRowContext(ctx, "SELECT status FROM jobs WHERE id = ?", jobID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}
	return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, status, to)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var (
		job         models.Job
		kind        string
		status      string
		scheduledAt int64
		startedAt   sql.NullInt64
		completedAt sql.NullInt64
		errMsg      sql.NullString
		statsJSON   string
		workerID    sql.NullString
		heartbeatAt sql.NullInt64
		cancelFlag  int
		createdAt   int64
		updatedAt   int64
	)

	err := row.Scan(&job.ID, &job.SiteID, &kind, &status, &job.Priority,
		&scheduledAt, &startedAt, &completedAt, &errMsg, &statsJSON,
		&job.RetryCount, &job.MaxRetries, &workerID, &heartbeatAt,
		&cancelFlag, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	job.Kind = models.JobKind(kind)
	job.Status = models.JobStatus(status)
	job.ScheduledAt = time.Unix(scheduledAt, 0).UTC()
	job.Error = errMsg.String
	job.WorkerID = workerID.String
	job.CancelRequested = cancelFlag != 0
	job.CreatedAt = time.Unix(createdAt, 0).UTC()
	job.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	if startedAt.Valid {
		t := time.Unix(startedAt.Int64, 0).UTC()
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0).UTC()
		job.CompletedAt = &t
	}
	if heartbeatAt.Valid {
		t := time.Unix(heartbeatAt.Int64, 0).UTC()
		job.HeartbeatAt = &t
	}
	if statsJSON != "" {
		if err := json.Unmarshal([]byte(statsJSON), &job.Stats); err != nil {
			return nil, fmt.Errorf("failed to parse job stats: %w", err)
		}
	}
	return &job, nil
}

var _ interfaces.JobQueue = (*Queue)(nil)
