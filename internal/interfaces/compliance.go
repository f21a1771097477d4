package interfaces

import (
	"context"

	"github.com/hoistscout/hoistscout/internal/models"
)

// ComplianceService decides whether a site may be scraped. Verdicts are
// cached per domain for 24 hours.
type ComplianceService interface {
	// Check returns the verdict for the domain of siteURL, consulting the
	// cache first.
	Check(ctx context.Context, siteURL string) (*models.ComplianceVerdict, error)

	// Recheck re-evaluates the domain fresh, bypassing the cache. The
	// runner uses it to catch mid-run verdict inversions.
	Recheck(ctx context.Context, siteURL string) (*models.ComplianceVerdict, error)

	// Invalidate drops the cached verdict for a domain
	Invalidate(domain string) error

	// Close releases the verdict cache
	Close() error
}
