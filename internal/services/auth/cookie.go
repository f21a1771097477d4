package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/hoistscout/hoistscout/internal/common"
	"github.com/hoistscout/hoistscout/internal/interfaces"
	"github.com/hoistscout/hoistscout/internal/models"
)

// cookieStrategy injects the configured cookies verbatim and verifies the
// site loads with them.
type cookieStrategy struct{}

func (c *cookieStrategy) Type() models.AuthType { return models.AuthTypeCookie }

func (c *cookieStrategy) Authenticate(ctx context.Context, page interfaces.BrowserPage, site *models.Site, creds *models.Credentials) (*models.AuthOutcome, error) {
	cfg := site.ScrapingConfig.Auth
	if len(cfg.Cookies) == 0 {
		return nil, fmt.Errorf("cookie auth configured without cookies: %w", models.ErrAuthFailure)
	}

	domain, err := common.ExtractDomain(site.URL)
	if err != nil {
		return nil, err
	}
	cookies := make([]models.Cookie, 0, len(cfg.Cookies))
	for name, value := range cfg.Cookies {
		cookies = append(cookies, models.Cookie{
			Name:   name,
			Value:  value,
			Domain: domain,
			Path:   "/",
		})
	}
	if err := page.SetCookies(ctx, cookies); err != nil {
		return nil, fmt.Errorf("failed to inject cookies: %w", err)
	}
	if err := page.Navigate(ctx, site.URL); err != nil {
		return nil, err
	}

	return &models.AuthOutcome{
		OK: true,
		State: &models.BrowserState{
			SiteID:     site.ID,
			Cookies:    cookies,
			CapturedAt: time.Now(),
		},
	}, nil
}

var _ interfaces.AuthStrategy = (*cookieStrategy)(nil)
