package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hoistscout/hoistscout/internal/common"
	"github.com/hoistscout/hoistscout/internal/interfaces"
	"github.com/hoistscout/hoistscout/internal/models"
)

const defaultKeyName = "X-API-Key"

// apiKeyStrategy places the key per config (header, query or cookie) and
// probes the test endpoint.
type apiKeyStrategy struct {
	client *http.Client
}

func (a *apiKeyStrategy) Type() models.AuthType { return models.AuthTypeAPIKey }

func (a *apiKeyStrategy) Authenticate(ctx context.Context, page interfaces.BrowserPage, site *models.Site, creds *models.Credentials) (*models.AuthOutcome, error) {
	cfg := site.ScrapingConfig.Auth
	keyName := cfg.KeyName
	if keyName == "" {
		keyName = defaultKeyName
	}
	target := cfg.TestEndpoint
	if target == "" {
		target = site.URL
	}

	probeURL := target
	if cfg.KeyPlacement == "query" {
		u, err := url.Parse(target)
		if err != nil {
			return nil, fmt.Errorf("invalid test endpoint %q: %w", target, err)
		}
		q := u.Query()
		q.Set(keyName, creds.APIKey)
		u.RawQuery = q.Encode()
		probeURL = u.String()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build auth probe: %w", err)
	}

	state := &models.BrowserState{SiteID: site.ID, CapturedAt: time.Now()}
	switch cfg.KeyPlacement {
	case "", "header":
		req.Header.Set(keyName, creds.APIKey)
		state.Headers = map[string]string{keyName: creds.APIKey}
	case "query":
		// Key already on the probe URL; the runner appends it per request
	case "cookie":
		req.AddCookie(&http.Cookie{Name: keyName, Value: creds.APIKey})
		domain, derr := common.ExtractDomain(site.URL)
		if derr != nil {
			return nil, derr
		}
		state.Cookies = []models.Cookie{{
			Name:   keyName,
			Value:  creds.APIKey,
			Domain: domain,
			Path:   "/",
		}}
	default:
		return nil, fmt.Errorf("unknown key placement %q: %w", cfg.KeyPlacement, models.ErrAuthFailure)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth probe failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("auth probe returned 429: %w", models.ErrRateLimitExceeded)
	}
	if resp.StatusCode >= 400 {
		return &models.AuthOutcome{
			OK:    false,
			Error: fmt.Sprintf("auth probe returned %d", resp.StatusCode),
		}, nil
	}
	return &models.AuthOutcome{OK: true, Headers: state.Headers, State: state}, nil
}

var _ interfaces.AuthStrategy = (*apiKeyStrategy)(nil)
