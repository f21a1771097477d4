package workers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/hoistscout/hoistscout/internal/common"
	"github.com/hoistscout/hoistscout/internal/interfaces"
	"github.com/hoistscout/hoistscout/internal/models"
)

// Pool claims jobs from the queue and runs them with bounded concurrency.
// Each slot polls independently with a staggered start so a burst of
// pending jobs spreads across workers instead of thundering one row.
type Pool struct {
	id       string
	queue    interfaces.JobQueue
	runner   interfaces.ScrapeRunner
	sessions interfaces.SessionService
	config   *common.Config
	logger   arbor.ILogger

	kinds []models.JobKind
	wg    sync.WaitGroup
}

// NewPool creates a worker pool with a fresh worker identity
func NewPool(queue interfaces.JobQueue, runner interfaces.ScrapeRunner, sessions interfaces.SessionService, config *common.Config, logger arbor.ILogger) *Pool {
	kinds := make([]models.JobKind, 0, len(config.Worker.Queues))
	for _, q := range config.Worker.Queues {
		kinds = append(kinds, models.JobKind(q))
	}
	return &Pool{
		id:       common.NewWorkerID(),
		queue:    queue,
		runner:   runner,
		sessions: sessions,
		config:   config,
		logger:   logger,
		kinds:    kinds,
	}
}

// ID returns the worker identity stamped on claimed jobs
func (p *Pool) ID() string { return p.id }

// Start launches the claim loops. It returns immediately; Stop (or ctx
// cancellation) winds the pool down.
func (p *Pool) Start(ctx context.Context) {
	concurrency := p.config.Worker.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	poll := p.config.QueuePollInterval()

	p.logger.Info().
		Str("worker_id", p.id).
		Int("concurrency", concurrency).
		Msg("Worker pool started")

	for slot := 0; slot < concurrency; slot++ {
		p.wg.Add(1)
		stagger := time.Duration(slot) * poll / time.Duration(concurrency)
		go func() {
			defer p.wg.Done()
			select {
			case <-ctx.Done():
				return
			case <-time.After(stagger):
			}
			p.claimLoop(ctx, poll)
		}()
	}
}

// Wait blocks until every claim loop has exited
func (p *Pool) Wait() {
	p.wg.Wait()
	p.logger.Info().Str("worker_id", p.id).Msg("Worker pool stopped")
}

func (p *Pool) claimLoop(ctx context.Context, poll time.Duration) {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		job, err := p.queue.Claim(ctx, p.id, p.kinds)
		if err != nil {
			p.logger.Error().Err(err).Msg("Job claim failed")
		} else if job != nil {
			p.execute(ctx, job)
			// Check for more work immediately after finishing one
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// execute runs one claimed job under the hard timeout, heartbeating until
// it settles, and records the terminal outcome.
func (p *Pool) execute(ctx context.Context, job *models.Job) {
	hardTimeout := p.config.Scraper.JobHardTimeout
	if hardTimeout <= 0 {
		hardTimeout = time.Hour
	}
	jobCtx, cancel := context.WithTimeout(ctx, hardTimeout)
	defer cancel()

	p.logger.Info().
		Str("job_id", job.ID).
		Str("site_id", job.SiteID).
		Str("kind", string(job.Kind)).
		Msg("Job started")

	stopHeartbeat := p.heartbeat(jobCtx, job.ID)
	stats, runErr := p.runner.Run(jobCtx, job)
	stopHeartbeat()

	// The queue finalization must not ride a dead context
	finalCtx, finalCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer finalCancel()

	switch {
	case runErr == nil:
		if err := p.queue.Complete(finalCtx, job.ID, stats); err != nil {
			p.logger.Error().Str("job_id", job.ID).Err(err).Msg("Failed to record completion")
		} else {
			p.logger.Info().
				Str("job_id", job.ID).
				Int("items", stats.Items).
				Int64("duration_ms", stats.DurationMS).
				Msg("Job completed")
		}

	case errors.Is(runErr, models.ErrJobCancelled):
		if err := p.queue.MarkCancelled(finalCtx, job.ID, stats); err != nil {
			p.logger.Error().Str("job_id", job.ID).Err(err).Msg("Failed to record cancellation")
		} else {
			p.logger.Info().Str("job_id", job.ID).Msg("Job cancelled")
		}

	default:
		category := models.Categorize(runErr)
		if category == models.ErrorCategoryAuth {
			// A stale session is the usual culprit; force a fresh login next run
			if err := p.sessions.Invalidate(finalCtx, job.SiteID); err != nil {
				p.logger.Warn().Str("site_id", job.SiteID).Err(err).Msg("Session invalidation failed")
			}
		}
		retry := category.Retryable()
		if err := p.queue.Fail(finalCtx, job.ID, runErr.Error(), category, retry); err != nil {
			p.logger.Error().Str("job_id", job.ID).Err(err).Msg("Failed to record failure")
		} else {
			p.logger.Warn().
				Str("job_id", job.ID).
				Str("category", string(category)).
				Bool("retry", retry).
				Err(runErr).
				Msg("Job failed")
		}
	}
}

// heartbeat keeps the liveness stamp fresh while a job runs. The returned
// func stops the loop.
func (p *Pool) heartbeat(ctx context.Context, jobID string) func() {
	interval := p.config.WorkerHeartbeatInterval()
	done := make(chan struct{})
	var once sync.Once

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := p.queue.Heartbeat(ctx, jobID, p.id); err != nil {
					p.logger.Warn().Str("job_id", jobID).Err(err).Msg("Heartbeat failed")
				}
			}
		}
	}()
	return func() { once.Do(func() { close(done) }) }
}
