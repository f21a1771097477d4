package auth

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/hoistscout/hoistscout/internal/interfaces"
	"github.com/hoistscout/hoistscout/internal/models"
)

// basicStrategy probes the site with an Authorization: Basic header. No
// browser interaction is needed; the header is carried in the session
// state for every later request.
type basicStrategy struct {
	client *http.Client
}

func (b *basicStrategy) Type() models.AuthType { return models.AuthTypeBasic }

func (b *basicStrategy) Authenticate(ctx context.Context, page interfaces.BrowserPage, site *models.Site, creds *models.Credentials) (*models.AuthOutcome, error) {
	target := site.ScrapingConfig.Auth.TestEndpoint
	if target == "" {
		target = site.URL
	}

	token := base64.StdEncoding.EncodeToString([]byte(creds.Username + ":" + creds.Password))
	header := "Basic " + token

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build auth probe: %w", err)
	}
	req.Header.Set("Authorization", header)

	resp, err := b.client.Do(req)
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

	headers := map[string]string{"Authorization": header}
	return &models.AuthOutcome{
		OK:      true,
		Headers: headers,
		State: &models.BrowserState{
			SiteID:     site.ID,
			Headers:    headers,
			CapturedAt: time.Now(),
		},
	}, nil
}

var _ interfaces.AuthStrategy = (*basicStrategy)(nil)
