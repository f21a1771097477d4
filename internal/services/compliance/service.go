package compliance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/hoistscout/hoistscout/internal/common"
	"github.com/hoistscout/hoistscout/internal/interfaces"
	"github.com/hoistscout/hoistscout/internal/models"
)

// Paths probed when locating a terms-of-use page
var termsPaths = []string{
	"/terms",
	"/terms-of-service",
	"/terms-and-conditions",
	"/terms-of-use",
	"/legal",
	"/conditions-of-use",
	"/tos",
}

// Phrases that constitute an explicit scraping prohibition
var prohibitionPhrases = []string{
	"no automated access",
	"no scraping",
	"no crawling",
	"scraping is prohibited",
	"automated access is prohibited",
	"may not use any robot",
	"use of robots or other automated",
	"data mining is prohibited",
	"systematic retrieval of data",
}

// Paths probed when looking for an official API
var apiProbePaths = []string{
	"/api",
	"/api/v1",
	"/swagger",
	"/api-docs",
	"/openapi.json",
}

// Paths whose robots rules decide whether a tender site is scrapeable
var tenderPaths = []string{
	"/tender/",
	"/tenders/",
	"/opportunities/",
	"/grants/",
	"/procurement/",
	"/contracts/",
}

// Service is the compliance gate. Verdicts are cached per domain in a
// Badger store for the configured TTL.
type Service struct {
	cache  *badgerhold.Store
	client *http.Client
	config *common.ComplianceConfig
	logger arbor.ILogger
}

// NewService creates the compliance gate over an open verdict cache
func NewService(cache *badgerhold.Store, config *common.ComplianceConfig, logger arbor.ILogger) *Service {
	return &Service{
		cache:  cache,
		client: &http.Client{Timeout: config.FetchTimeout},
		config: config,
		logger: logger,
	}
}

// OpenVerdictCache opens the Badger-backed verdict cache
func OpenVerdictCache(path string, inMemory bool, logger arbor.ILogger) (*badgerhold.Store, error) {
	options := badgerhold.DefaultOptions
	options.Logger = nil
	if inMemory {
		options.Options = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	} else {
		options.Options = badger.DefaultOptions(path).WithLogger(nil)
	}
	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open verdict cache: %w", err)
	}
	logger.Debug().Str("path", path).Bool("in_memory", inMemory).Msg("Verdict cache opened")
	return store, nil
}

// Check returns the compliance verdict for the domain of siteURL,
// consulting the cache first.
func (s *Service) Check(ctx context.Context, siteURL string) (*models.ComplianceVerdict, error) {
	domain, err := common.ExtractDomain(siteURL)
	if err != nil {
		return nil, err
	}

	var cached models.ComplianceVerdict
	err = s.cache.Get(domain, &cached)
	if err == nil && !cached.Expired(time.Now()) {
		s.logger.Debug().Str("domain", domain).Bool("allowed", cached.Allowed).Msg("Verdict cache hit")
		return &cached, nil
	}
	if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return nil, fmt.Errorf("failed to read verdict cache: %w", err)
	}

	verdict, err := s.evaluate(ctx, siteURL, domain)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Upsert(domain, verdict); err != nil {
		return nil, fmt.Errorf("failed to cache verdict: %w", err)
	}

	s.logger.Info().
		Str("domain", domain).
		Bool("allowed", verdict.Allowed).
		Str("risk", string(verdict.Risk)).
		Strs("reasons", verdict.Reasons).
		Msg("Compliance verdict")
	return verdict, nil
}

// evaluate runs the full check for one domain
func (s *Service) evaluate(ctx context.Context, siteURL, domain string) (*models.ComplianceVerdict, error) {
	parsed, err := url.Parse(siteURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse site URL: %w", err)
	}
	baseURL := fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host)
	isGov := common.IsGovernmentDomain(domain)

	now := time.Now()
	verdict := &models.ComplianceVerdict{
		Domain:    domain,
		CheckedAt: now,
		ExpiresAt: now.Add(s.config.CacheTTL),
	}

	// 1. robots.txt
	robots, err := s.fetchRobotsTxt(ctx, baseURL)
	if err != nil {
		return nil, err
	}
	robotsAllowed := true
	if robots != nil {
		for _, path := range append([]string{parsed.Path}, tenderPaths...) {
			if path == "" {
				path = "/"
			}
			if !robots.pathAllowed(s.config.UserAgent, path) {
				robotsAllowed = false
				verdict.Reasons = append(verdict.Reasons, fmt.Sprintf("robots.txt disallows %s", path))
				break
			}
		}
		if delay := robots.crawlDelayFor(s.config.UserAgent); delay > 0 {
			verdict.RobotsCrawlDelayMS = int(delay.Milliseconds())
		}
	}

	// 2-3. Terms page and prohibition scan
	termsText, termsFound := s.findTermsText(ctx, baseURL)
	termsProhibit := false
	if termsFound {
		if phrase := firstProhibition(termsText); phrase != "" {
			termsProhibit = true
			verdict.Reasons = append(verdict.Reasons, fmt.Sprintf("terms prohibit automation (%q)", phrase))
		}
	}

	// 4. Official API probe: a finding is a recommendation, never a block
	if s.probeAPI(ctx, baseURL) {
		verdict.Recommendation = "use_api_instead"
	}

	// 5. Verdict policy
	switch {
	case termsProhibit:
		verdict.Allowed = false
		verdict.Risk = models.RiskHigh
	case !robotsAllowed:
		verdict.Allowed = false
		verdict.Risk = models.RiskHigh
	case isGov:
		verdict.Allowed = true
		verdict.Risk = models.RiskLow
		verdict.RequiredPrecautions = append(verdict.RequiredPrecautions,
			"conservative_rate_limit", "identify_crawler", "business_hours_only")
	case termsFound:
		verdict.Allowed = true
		verdict.Risk = models.RiskMedium
		verdict.RequiredPrecautions = append(verdict.RequiredPrecautions, "conservative_rate_limit")
	default:
		// Non-government with unlocatable terms: err on the side of caution
		verdict.Allowed = false
		verdict.Risk = models.RiskMedium
		verdict.Reasons = append(verdict.Reasons, "terms of use could not be located")
	}

	return verdict, nil
}

// findTermsText probes well-known terms paths, then scans homepage links.
// Returns the page text and whether a terms page was found.
func (s *Service) findTermsText(ctx context.Context, baseURL string) (string, bool) {
	for _, path := range termsPaths {
		if text, ok := s.fetchText(ctx, baseURL+path); ok {
			return text, true
		}
	}

	// Fall back to anchors on the homepage
	home, ok := s.fetchText(ctx, baseURL)
	if !ok {
		return "", false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(home))
	if err != nil {
		return "", false
	}

	var termsHref string
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		label := strings.ToLower(sel.Text() + " " + href)
		if strings.Contains(label, "terms") || strings.Contains(label, "legal") ||
			strings.Contains(label, "conditions of use") {
			termsHref = href
			return false
		}
		return true
	})
	if termsHref == "" {
		return "", false
	}

	resolved, err := common.ResolveURL(baseURL, termsHref)
	if err != nil {
		return "", false
	}
	return s.fetchText(ctx, resolved)
}

// fetchText downloads a page and returns its lowercased text content
func (s *Service) fetchText(ctx context.Context, pageURL string) (string, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", false
	}
	req.Header.Set("User-Agent", s.config.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", false
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return "", false
	}
	return strings.ToLower(string(body)), true
}

// probeAPI reports whether the site appears to expose an official API
func (s *Service) probeAPI(ctx context.Context, baseURL string) bool {
	for _, path := range apiProbePaths {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, baseURL+path, nil)
		if err != nil {
			continue
		}
		req.Header.Set("User-Agent", s.config.UserAgent)
		resp, err := s.client.Do(req)
		if err != nil {
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return true
		}
	}
	return false
}

// firstProhibition returns the first matching prohibition phrase, or ""
func firstProhibition(text string) string {
	for _, phrase := range prohibitionPhrases {
		if strings.Contains(text, phrase) {
			return phrase
		}
	}
	return ""
}

// Recheck re-evaluates the domain fresh, bypassing the cache, and stores
// the new verdict.
func (s *Service) Recheck(ctx context.Context, siteURL string) (*models.ComplianceVerdict, error) {
	domain, err := common.ExtractDomain(siteURL)
	if err != nil {
		return nil, err
	}

	verdict, err := s.evaluate(ctx, siteURL, domain)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Upsert(domain, verdict); err != nil {
		return nil, fmt.Errorf("failed to cache verdict: %w", err)
	}

	s.logger.Info().
		Str("domain", domain).
		Bool("allowed", verdict.Allowed).
		Msg("Compliance verdict refreshed")
	return verdict, nil
}

// Invalidate drops the cached verdict for a domain
func (s *Service) Invalidate(domain string) error {
	err := s.cache.Delete(domain, &models.ComplianceVerdict{})
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil
	}
	return err
}

// Close releases the verdict cache
func (s *Service) Close() error {
	return s.cache.Close()
}

var _ interfaces.ComplianceService = (*Service)(nil)
