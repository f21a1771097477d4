package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/hoistscout/hoistscout/internal/common"
	"github.com/hoistscout/hoistscout/internal/interfaces"
	"github.com/hoistscout/hoistscout/internal/models"
)

// extractAttempts bounds the per-page retry loop for transient extraction
// failures (LLM hiccups, short network blips).
const extractAttempts = 3

// recheckPages is how often (in pages) a long run re-evaluates the
// compliance verdict, catching mid-run inversions.
const recheckPages = 10

// Runner executes one claimed job end to end: compliance gate, session or
// auth, pagination with per-page extraction, document processing and the
// single-transaction persist.
type Runner struct {
	storage    interfaces.Storage
	queue      interfaces.JobQueue
	vault      interfaces.Vault
	compliance interfaces.ComplianceService
	sessions   interfaces.SessionService
	limiter    interfaces.RateLimiter
	browser    interfaces.BrowserService
	auth       interfaces.AuthService
	pagination interfaces.PaginationEngine
	extractor  interfaces.ExtractorService
	documents  interfaces.DocumentService
	config     *common.ScraperConfig
	logger     arbor.ILogger

	now func() time.Time
}

// Deps bundles the collaborators a Runner composes
type Deps struct {
	Storage    interfaces.Storage
	Queue      interfaces.JobQueue
	Vault      interfaces.Vault
	Compliance interfaces.ComplianceService
	Sessions   interfaces.SessionService
	Limiter    interfaces.RateLimiter
	Browser    interfaces.BrowserService
	Auth       interfaces.AuthService
	Pagination interfaces.PaginationEngine
	Extractor  interfaces.ExtractorService
	Documents  interfaces.DocumentService
}

// NewRunner creates the scrape runner
func NewRunner(deps Deps, config *common.ScraperConfig, logger arbor.ILogger) *Runner {
	return &Runner{
		storage:    deps.Storage,
		queue:      deps.Queue,
		vault:      deps.Vault,
		compliance: deps.Compliance,
		sessions:   deps.Sessions,
		limiter:    deps.Limiter,
		browser:    deps.Browser,
		auth:       deps.Auth,
		pagination: deps.Pagination,
		extractor:  deps.Extractor,
		documents:  deps.Documents,
		config:     config,
		logger:     logger,
		now:        time.Now,
	}
}

// Run executes the job and returns its stats. Opportunities and documents
// are persisted only when the whole run succeeds; any failure rolls the
// job back to zero persisted rows.
func (r *Runner) Run(ctx context.Context, job *models.Job) (models.JobStats, error) {
	start := r.now()
	stats := models.JobStats{}
	defer func() {
		stats.DurationMS = r.now().Sub(start).Milliseconds()
	}()

	site, err := r.storage.Sites().GetSite(ctx, job.SiteID)
	if err != nil {
		return stats, err
	}
	if site == nil {
		return stats, fmt.Errorf("job %s references site %s: %w", job.ID, job.SiteID, models.ErrSiteNotFound)
	}

	verdict, err := r.compliance.Check(ctx, site.URL)
	if err != nil {
		return stats, fmt.Errorf("compliance check failed for %s: %w", site.URL, err)
	}
	if !verdict.Allowed {
		stats.LegalBlocked = true
		if err := r.storage.Sites().SetLegalBlocked(ctx, site.ID, true); err != nil {
			r.logger.Warn().Str("site_id", site.ID).Err(err).Msg("Failed to flag site as blocked")
		}
		return stats, fmt.Errorf("domain %s is blocked (%s): %w",
			verdict.Domain, verdict.Recommendation, models.ErrComplianceViolation)
	}

	domain, err := common.ExtractDomain(site.URL)
	if err != nil {
		return stats, err
	}
	minDelay := r.minDelay(site, domain, verdict)
	r.limiter.ResetViolations(domain)

	page, err := r.browser.NewPage(ctx)
	if err != nil {
		return stats, err
	}
	defer page.Close()

	if err := r.establishSession(ctx, page, site); err != nil {
		return stats, err
	}

	startURL := site.ScrapingConfig.StartURL
	if startURL == "" {
		startURL = site.URL
	}
	if err := r.limiter.Acquire(ctx, domain, minDelay); err != nil {
		return stats, err
	}
	if err := page.Navigate(ctx, startURL); err != nil {
		return stats, err
	}

	var (
		opportunities []*models.Opportunity
		docURLs       []string
		docOwner      = make(map[string]string) // document url -> opportunity id
		oppIDs        = make(map[string]string) // source url -> id of first sighting
		confidenceSum float64
	)

	handler := func(hctx context.Context, pageNum int, html string, pageURL string) (int, error) {
		cancelled, cerr := r.queue.CancelRequested(hctx, job.ID)
		if cerr != nil {
			return 0, cerr
		}
		if cancelled {
			return 0, models.ErrJobCancelled
		}

		if pageNum > 1 {
			if aerr := r.limiter.Acquire(hctx, domain, minDelay); aerr != nil {
				return 0, aerr
			}
		}

		if pageNum > 1 && pageNum%recheckPages == 0 {
			fresh, rerr := r.compliance.Recheck(hctx, site.URL)
			if rerr != nil {
				r.logger.Warn().Str("site_id", site.ID).Err(rerr).Msg("Mid-run compliance recheck failed")
			} else if !fresh.Allowed {
				stats.LegalBlocked = true
				if serr := r.storage.Sites().SetLegalBlocked(hctx, site.ID, true); serr != nil {
					r.logger.Warn().Str("site_id", site.ID).Err(serr).Msg("Failed to flag site as blocked")
				}
				return 0, fmt.Errorf("domain %s verdict inverted mid-run: %w",
					fresh.Domain, models.ErrComplianceViolation)
			}
		}

		extracted, eerr := r.extractPage(hctx, html, pageURL, site, &stats)
		if eerr != nil {
			return 0, eerr
		}

		// Accumulating strategies re-render every earlier item on each page,
		// so the cumulative count goes back to the engine but only unseen
		// rows are kept.
		for _, opp := range extracted.Opportunities {
			if _, dup := oppIDs[opp.SourceURL]; dup {
				continue
			}
			oppIDs[opp.SourceURL] = opp.ID
			opp.SiteID = site.ID
			confidenceSum += opp.Confidence
			opportunities = append(opportunities, opp)
		}
		if len(extracted.DocumentURLs) > 0 {
			owner := ""
			if len(extracted.Opportunities) > 0 {
				owner = oppIDs[extracted.Opportunities[0].SourceURL]
			}
			for _, u := range extracted.DocumentURLs {
				if _, seen := docOwner[u]; !seen {
					docOwner[u] = owner
					docURLs = append(docURLs, u)
				}
			}
		}
		return len(extracted.Opportunities), nil
	}

	result, err := r.pagination.Run(ctx, page, site.ScrapingConfig, handler)
	if result != nil {
		stats.Pages = result.Pages
	}
	if err != nil {
		return stats, err
	}
	stats.Items = len(opportunities)
	if stats.Items > 0 {
		stats.AvgConfidence = confidenceSum / float64(stats.Items)
	}

	// Documents are best-effort and never block completion
	docs := r.documents.Process(ctx, docURLs)
	for _, doc := range docs {
		doc.OpportunityID = docOwner[doc.SourceURL]
		if doc.Status == models.DocumentStatusDone {
			stats.PDFs++
		}
	}

	if _, err := r.storage.Opportunities().PersistScrapeResult(ctx, site.ID, opportunities, docs); err != nil {
		return stats, err
	}

	r.logger.Info().
		Str("job_id", job.ID).
		Str("site_id", site.ID).
		Int("pages", stats.Pages).
		Int("items", stats.Items).
		Int("pdfs", stats.PDFs).
		Str("stop_reason", result.StopReason).
		Msg("Scrape run completed")
	return stats, nil
}

// establishSession reuses a cached session when one is still valid, and
// runs full authentication otherwise.
func (r *Runner) establishSession(ctx context.Context, page interfaces.BrowserPage, site *models.Site) error {
	if site.AuthType == models.AuthTypeNone || site.AuthType == "" {
		return nil
	}

	state, err := r.sessions.Load(ctx, site.ID)
	if err != nil {
		r.logger.Warn().Str("site_id", site.ID).Err(err).Msg("Session load failed, authenticating")
	}
	if state != nil && !state.Expired(r.now(), r.config.SessionTTL) {
		if len(state.Cookies) > 0 {
			if err := page.SetCookies(ctx, state.Cookies); err == nil {
				r.logger.Debug().Str("site_id", site.ID).Msg("Session reused")
				return nil
			}
		} else {
			return nil
		}
	}

	var creds *models.Credentials
	if len(site.EncryptedCredentials) > 0 {
		creds, err = r.vault.OpenCredentials(site.EncryptedCredentials)
		if err != nil {
			return fmt.Errorf("failed to decrypt credentials for site %s: %w", site.ID, err)
		}
		defer creds.Wipe()
	}

	outcome, err := r.auth.Authenticate(ctx, page, site, creds)
	if err != nil {
		return err
	}
	if !outcome.OK {
		return fmt.Errorf("site %s rejected credentials (%s): %w",
			site.ID, outcome.Error, models.ErrAuthFailure)
	}
	if outcome.State != nil {
		if err := r.sessions.Save(ctx, site.ID, outcome.State); err != nil {
			r.logger.Warn().Str("site_id", site.ID).Err(err).Msg("Session save failed")
		}
	}
	return nil
}

// extractPage runs the extractor, retrying transient failures in place so
// a single LLM hiccup does not burn a whole job attempt.
func (r *Runner) extractPage(ctx context.Context, html, pageURL string, site *models.Site, stats *models.JobStats) (*models.ExtractedPage, error) {
	var lastErr error
	for attempt := 1; attempt <= extractAttempts; attempt++ {
		extracted, err := r.extractor.Extract(ctx, html, pageURL, site)
		if err == nil {
			return extracted, nil
		}
		lastErr = err
		if models.Categorize(err) != models.ErrorCategoryTransient ||
			errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if attempt < extractAttempts {
			stats.Retries++
			r.logger.Warn().
				Str("page_url", pageURL).
				Int("attempt", attempt).
				Err(err).
				Msg("Extraction failed, retrying")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
	}
	return nil, lastErr
}

// minDelay resolves the inter-request delay for a site: the largest of the
// site's configured delay, the robots.txt crawl-delay and the baseline for
// its domain class.
func (r *Runner) minDelay(site *models.Site, domain string, verdict *models.ComplianceVerdict) time.Duration {
	delayMS := r.config.DefaultDelayMS
	if common.IsGovernmentDomain(domain) && r.config.GovDelayMS > delayMS {
		delayMS = r.config.GovDelayMS
	}
	if site.ScrapingConfig.RateLimitMS > delayMS {
		delayMS = site.ScrapingConfig.RateLimitMS
	}
	if verdict.RobotsCrawlDelayMS > delayMS {
		delayMS = verdict.RobotsCrawlDelayMS
	}
	return time.Duration(delayMS) * time.Millisecond
}

var _ interfaces.ScrapeRunner = (*Runner)(nil)
