package auth

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/hoistscout/hoistscout/internal/interfaces"
	"github.com/hoistscout/hoistscout/internal/models"
)

// oauthStrategy is the authorization-code flow placeholder. The typed
// config is built so a site definition carrying OAuth settings validates,
// but the interactive flow is not implemented.
type oauthStrategy struct{}

func (o *oauthStrategy) Type() models.AuthType { return models.AuthTypeOAuth }

func (o *oauthStrategy) Authenticate(ctx context.Context, page interfaces.BrowserPage, site *models.Site, creds *models.Credentials) (*models.AuthOutcome, error) {
	_ = o.configFor(site, creds)
	return nil, fmt.Errorf("oauth authorization-code flow: %w", models.ErrNotImplemented)
}

func (o *oauthStrategy) configFor(site *models.Site, creds *models.Credentials) *oauth2.Config {
	cfg := &oauth2.Config{
		RedirectURL: site.ScrapingConfig.Auth.TestEndpoint,
	}
	if creds != nil {
		cfg.ClientID = creds.Username
		cfg.ClientSecret = creds.Password
		if creds.Extra != nil {
			cfg.Endpoint = oauth2.Endpoint{
				AuthURL:  creds.Extra["auth_url"],
				TokenURL: creds.Extra["token_url"],
			}
		}
	}
	return cfg
}

var _ interfaces.AuthStrategy = (*oauthStrategy)(nil)
