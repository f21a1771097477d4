package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/hoistscout/hoistscout/internal/common"
	"github.com/hoistscout/hoistscout/internal/interfaces"
	"github.com/hoistscout/hoistscout/internal/models"
)

// Scheduler runs queue maintenance on a cron schedule. Its standing duty
// is the stale-job reaper: running jobs whose worker stopped heartbeating
// are rescued back onto the queue. When a scrape schedule is configured it
// also enqueues recurring full scrapes for every active site.
type Scheduler struct {
	queue   interfaces.JobQueue
	storage interfaces.Storage
	config  *common.Config
	cron    *cron.Cron
	logger  arbor.ILogger
}

// NewScheduler creates the maintenance scheduler
func NewScheduler(queue interfaces.JobQueue, storage interfaces.Storage, config *common.Config, logger arbor.ILogger) *Scheduler {
	return &Scheduler{
		queue:   queue,
		storage: storage,
		config:  config,
		cron:    cron.New(cron.WithSeconds()),
		logger:  logger,
	}
}

// Start begins the cron loop
func (s *Scheduler) Start() error {
	schedule := s.config.Scheduler.ReapSchedule
	if schedule == "" {
		// Default: every minute
		schedule = "0 * * * * *"
	}

	_, err := s.cron.AddFunc(schedule, func() {
		s.runReaper()
	})
	if err != nil {
		return err
	}

	scrapeSchedule := s.config.Scheduler.ScrapeSchedule
	if scrapeSchedule != "" {
		_, err := s.cron.AddFunc(scrapeSchedule, func() {
			s.runScrapeSweep()
		})
		if err != nil {
			return err
		}
	}

	s.cron.Start()
	s.logger.Info().
		Str("reap_schedule", schedule).
		Str("scrape_schedule", scrapeSchedule).
		Msg("Queue maintenance scheduler started")
	return nil
}

// Stop stops the cron loop, waiting for a running sweep to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("Queue maintenance scheduler stopped")
}

// RunNow triggers an immediate reaper sweep
func (s *Scheduler) RunNow() {
	go s.runReaper()
}

func (s *Scheduler) runReaper() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	rescued, err := s.queue.ReapStale(ctx, s.config.StaleJobThreshold())
	if err != nil {
		s.logger.Error().Err(err).Msg("Stale job sweep failed")
		return
	}
	if rescued > 0 {
		s.logger.Warn().
			Int("rescued", rescued).
			Msg("Stale jobs re-queued")
	}
}

// runScrapeSweep enqueues a full scrape for each active, unblocked site
// that has no job already pending or running.
func (s *Scheduler) runScrapeSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	sites, err := s.storage.Sites().ListSites(ctx, true)
	if err != nil {
		s.logger.Error().Err(err).Msg("Recurring scrape sweep failed to list sites")
		return
	}

	enqueued := 0
	for _, site := range sites {
		if site.LegalBlocked {
			continue
		}
		busy, err := s.siteBusy(ctx, site.ID)
		if err != nil {
			s.logger.Warn().Str("site_id", site.ID).Err(err).Msg("Skipping site in scrape sweep")
			continue
		}
		if busy {
			continue
		}
		_, err = s.queue.Enqueue(ctx, &models.Job{
			SiteID: site.ID,
			Kind:   models.JobKindFull,
		})
		if err != nil {
			s.logger.Error().Str("site_id", site.ID).Err(err).Msg("Failed to enqueue recurring scrape")
			continue
		}
		enqueued++
	}
	if enqueued > 0 {
		s.logger.Info().Int("jobs", enqueued).Msg("Recurring scrapes enqueued")
	}
}

// siteBusy reports whether the site already has a pending or running job
func (s *Scheduler) siteBusy(ctx context.Context, siteID string) (bool, error) {
	for _, status := range []models.JobStatus{models.JobStatusPending, models.JobStatusRunning} {
		jobs, err := s.queue.ListJobs(ctx, interfaces.JobFilter{SiteID: siteID, Status: status, Limit: 1})
		if err != nil && !errors.Is(err, models.ErrJobNotFound) {
			return false, err
		}
		if len(jobs) > 0 {
			return true, nil
		}
	}
	return false, nil
}
