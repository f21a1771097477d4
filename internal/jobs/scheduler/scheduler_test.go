package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hoistscout/hoistscout/internal/common"
	"github.com/hoistscout/hoistscout/internal/interfaces"
	"github.com/hoistscout/hoistscout/internal/models"
)

type schedQueue struct {
	interfaces.JobQueue
	enqueued []*models.Job
	busy     map[string]bool // site id -> has a pending/running job
	reaped   int
	reapArg  time.Duration
}

func (q *schedQueue) Enqueue(ctx context.Context, job *models.Job) (string, error) {
	q.enqueued = append(q.enqueued, job)
	return "job_" + job.SiteID, nil
}

func (q *schedQueue) ListJobs(ctx context.Context, filter interfaces.JobFilter) ([]*models.Job, error) {
	if q.busy[filter.SiteID] && filter.Status == models.JobStatusPending {
		return []*models.Job{{ID: "job_x", SiteID: filter.SiteID, Status: filter.Status}}, nil
	}
	return nil, nil
}

func (q *schedQueue) ReapStale(ctx context.Context, olderThan time.Duration) (int, error) {
	q.reaped++
	q.reapArg = olderThan
	return 2, nil
}

type schedSites struct {
	interfaces.SiteStorage
	sites []*models.Site
}

func (s *schedSites) ListSites(ctx context.Context, activeOnly bool) ([]*models.Site, error) {
	return s.sites, nil
}

type schedStorage struct {
	sites *schedSites
}

func (s *schedStorage) Sites() interfaces.SiteStorage                { return s.sites }
func (s *schedStorage) Opportunities() interfaces.OpportunityStorage { return nil }
func (s *schedStorage) Close() error                                 { return nil }

func newTestScheduler(sites []*models.Site) (*Scheduler, *schedQueue) {
	queue := &schedQueue{busy: make(map[string]bool)}
	config := common.NewDefaultConfig()
	s := NewScheduler(queue, &schedStorage{sites: &schedSites{sites: sites}}, config, common.GetLogger())
	return s, queue
}

func TestScrapeSweep_EnqueuesIdleActiveSites(t *testing.T) {
	sites := []*models.Site{
		{ID: "site_a", URL: "https://a.example.com", Active: true},
		{ID: "site_b", URL: "https://b.example.com", Active: true},
	}
	s, queue := newTestScheduler(sites)

	s.runScrapeSweep()

	assert.Len(t, queue.enqueued, 2)
	assert.Equal(t, models.JobKindFull, queue.enqueued[0].Kind)
	assert.Equal(t, "site_a", queue.enqueued[0].SiteID)
}

func TestScrapeSweep_SkipsBusyAndBlockedSites(t *testing.T) {
	sites := []*models.Site{
		{ID: "site_busy", URL: "https://busy.example.com", Active: true},
		{ID: "site_blocked", URL: "https://blocked.example.com", Active: true, LegalBlocked: true},
		{ID: "site_idle", URL: "https://idle.example.com", Active: true},
	}
	s, queue := newTestScheduler(sites)
	queue.busy["site_busy"] = true

	s.runScrapeSweep()

	assert.Len(t, queue.enqueued, 1)
	assert.Equal(t, "site_idle", queue.enqueued[0].SiteID)
}

func TestReaper_UsesConfiguredThreshold(t *testing.T) {
	s, queue := newTestScheduler(nil)

	s.runReaper()

	assert.Equal(t, 1, queue.reaped)
	assert.Equal(t, s.config.StaleJobThreshold(), queue.reapArg)
}
