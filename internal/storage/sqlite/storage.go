package sqlite

import (
	"github.com/ternarybob/arbor"

	"github.com/hoistscout/hoistscout/internal/interfaces"
)

// Store aggregates the persistence surfaces behind one connection
type Store struct {
	db            *SQLiteDB
	sites         interfaces.SiteStorage
	opportunities interfaces.OpportunityStorage
}

// NewStore creates the storage aggregate over an open connection
func NewStore(db *SQLiteDB, logger arbor.ILogger) interfaces.Storage {
	return &Store{
		db:            db,
		sites:         NewSiteStorage(db, logger),
		opportunities: NewOpportunityStorage(db, logger),
	}
}

// Sites returns the site storage surface
func (s *Store) Sites() interfaces.SiteStorage {
	return s.sites
}

// Opportunities returns the opportunity storage surface
func (s *Store) Opportunities() interfaces.OpportunityStorage {
	return s.opportunities
}

// Close closes the underlying connection
func (s *Store) Close() error {
	return s.db.Close()
}

var _ interfaces.Storage = (*Store)(nil)
