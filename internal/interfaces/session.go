package interfaces

import (
	"context"

	"github.com/hoistscout/hoistscout/internal/models"
)

// SessionService persists authenticated browser state per site with a TTL.
// Load returns (nil, nil) when no valid session exists and the caller must
// run full authentication.
type SessionService interface {
	Save(ctx context.Context, siteID string, state *models.BrowserState) error
	Load(ctx context.Context, siteID string) (*models.BrowserState, error)
	Invalidate(ctx context.Context, siteID string) error
	Close() error
}
