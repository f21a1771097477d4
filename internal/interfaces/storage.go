package interfaces

import (
	"context"

	"github.com/hoistscout/hoistscout/internal/models"
)

// SiteStorage persists site rows
type SiteStorage interface {
	SaveSite(ctx context.Context, site *models.Site) error
	GetSite(ctx context.Context, id string) (*models.Site, error)
	GetSiteByURL(ctx context.Context, url string) (*models.Site, error)
	ListSites(ctx context.Context, activeOnly bool) ([]*models.Site, error)
	SetLegalBlocked(ctx context.Context, id string, blocked bool) error
	DeleteSite(ctx context.Context, id string) error
}

// OpportunityStorage persists opportunity and document rows
type OpportunityStorage interface {
	// PersistScrapeResult writes all opportunities and documents from one
	// job in a single transaction, upserting opportunities on source_url.
	// Returns ids of the opportunities in input order.
	PersistScrapeResult(ctx context.Context, siteID string, opportunities []*models.Opportunity, documents []*models.Document) ([]string, error)

	GetOpportunity(ctx context.Context, id string) (*models.Opportunity, error)
	GetOpportunityBySourceURL(ctx context.Context, sourceURL string) (*models.Opportunity, error)
	ListOpportunities(ctx context.Context, siteID string, limit, offset int) ([]*models.Opportunity, error)
	CountOpportunities(ctx context.Context, siteID string) (int, error)
	ListDocuments(ctx context.Context, opportunityID string) ([]*models.Document, error)
}

// Storage aggregates the persistence surfaces behind one connection
type Storage interface {
	Sites() SiteStorage
	Opportunities() OpportunityStorage
	Close() error
}
