package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hoistscout/hoistscout/internal/models"
)

// challengeMarkersJS reports whether the current document is a Cloudflare
// interstitial rather than real content.
const challengeMarkersJS = `(function() {
	var title = document.title || "";
	if (/just a moment|attention required|checking your browser/i.test(title)) {
		return true;
	}
	return document.querySelector("#challenge-form, #cf-challenge-running, .cf-browser-verification, #challenge-stage") !== null;
})()`

// challengeSolver delegates Cloudflare interstitials to an external solver
// service. The solver returns clearance cookies to inject before retrying.
type challengeSolver struct {
	url    string
	apiKey string
	client *http.Client
}

func newChallengeSolver(url, apiKey string) *challengeSolver {
	if url == "" {
		return nil
	}
	return &challengeSolver{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

type solveRequest struct {
	PageURL   string `json:"page_url"`
	UserAgent string `json:"user_agent,omitempty"`
	APIKey    string `json:"api_key,omitempty"`
}

type solveResponse struct {
	Cookies []models.Cookie `json:"cookies"`
	Error   string          `json:"error,omitempty"`
}

// solve asks the external service for clearance cookies for pageURL
func (s *challengeSolver) solve(ctx context.Context, pageURL, userAgent string) ([]models.Cookie, error) {
	body, err := json.Marshal(solveRequest{PageURL: pageURL, UserAgent: userAgent, APIKey: s.apiKey})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("challenge solver unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("challenge solver returned %d", resp.StatusCode)
	}

	var solved solveResponse
	if err := json.NewDecoder(resp.Body).Decode(&solved); err != nil {
		return nil, fmt.Errorf("failed to decode solver response: %w", err)
	}
	if solved.Error != "" {
		return nil, fmt.Errorf("challenge solver failed: %s", solved.Error)
	}
	if len(solved.Cookies) == 0 {
		return nil, fmt.Errorf("challenge solver returned no cookies")
	}
	return solved.Cookies, nil
}

// challenged reports whether the current page is a challenge interstitial
func (p *chromedpPage) challenged(ctx context.Context) bool {
	var hit bool
	if err := p.Evaluate(ctx, challengeMarkersJS, &hit); err != nil {
		return false
	}
	return hit
}

// passChallenge resolves a detected interstitial via the solver and
// reloads. No solver configured, or a still-challenged page after the
// retry, aborts with ErrAntiDetectionFailed.
func (p *chromedpPage) passChallenge(ctx context.Context, url string) error {
	if p.solver == nil {
		return fmt.Errorf("challenge on %s and no solver configured: %w", url, models.ErrAntiDetectionFailed)
	}

	p.logger.Warn().Str("url", url).Msg("Challenge interstitial detected, delegating to solver")
	cookies, err := p.solver.solve(ctx, url, p.userAgent)
	if err != nil {
		return fmt.Errorf("%v: %w", err, models.ErrAntiDetectionFailed)
	}
	if err := p.SetCookies(ctx, cookies); err != nil {
		return err
	}
	if err := p.navigate(ctx, url); err != nil {
		return err
	}
	if p.challenged(ctx) {
		return fmt.Errorf("challenge on %s persisted after solving: %w", url, models.ErrAntiDetectionFailed)
	}
	return nil
}
