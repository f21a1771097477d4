package interfaces

import (
	"context"

	"github.com/hoistscout/hoistscout/internal/models"
)

// AuthStrategy drives one authentication method against a live page
type AuthStrategy interface {
	// Type returns the auth type this strategy handles
	Type() models.AuthType

	// Authenticate performs the login flow and returns the outcome. A nil
	// error with OK=false means the strategy ran but the site rejected the
	// credentials; the outcome carries any visible error messages.
	Authenticate(ctx context.Context, page BrowserPage, site *models.Site, creds *models.Credentials) (*models.AuthOutcome, error)
}

// AuthService dispatches to the strategy matching the site's auth type
type AuthService interface {
	Authenticate(ctx context.Context, page BrowserPage, site *models.Site, creds *models.Credentials) (*models.AuthOutcome, error)
}
