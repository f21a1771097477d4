package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/hoistscout/hoistscout/internal/interfaces"
	"github.com/hoistscout/hoistscout/internal/models"
)

// SiteStorage implements SQLite persistence for site rows
type SiteStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewSiteStorage creates a new site storage instance
func NewSiteStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.SiteStorage {
	return &SiteStorage{
		db:     db,
		logger: logger,
	}
}

// SaveSite creates or updates a site. The site URL is unique; saving a
// different site with the same URL fails on the index.
func (s *SiteStorage) SaveSite(ctx context.Context, site *models.Site) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if site.ID == "" {
		return fmt.Errorf("site id is required")
	}
	if !site.AuthType.Valid() {
		return fmt.Errorf("invalid auth type %q", site.AuthType)
	}

	configJSON, err := marshalJSON(site.ScrapingConfig)
	if err != nil {
		return fmt.Errorf("failed to serialize scraping config: %w", err)
	}

	now := time.Now().Unix()
	createdAt := now
	if !site.CreatedAt.IsZero() {
		createdAt = site.CreatedAt.Unix()
	}

	query := `
		INSERT INTO sites (
			id, name, url, category, auth_type, encrypted_credentials,
			scraping_config, active, legal_blocked, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			url = excluded.url,
			category = excluded.category,
			auth_type = excluded.auth_type,
			encrypted_credentials = excluded.encrypted_credentials,
			scraping_config = excluded.scraping_config,
			active = excluded.active,
			legal_blocked = excluded.legal_blocked,
			updated_at = excluded.updated_at
	`

	_, err = s.db.db.ExecContext(ctx, query,
		site.ID,
		site.Name,
		site.URL,
		nullString(site.Category),
		string(site.AuthType),
		site.EncryptedCredentials,
		configJSON,
		boolToInt(site.Active),
		boolToInt(site.LegalBlocked),
		createdAt,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to save site: %w", err)
	}

	s.logger.Debug().Str("site_id", site.ID).Str("url", site.URL).Msg("Site saved")
	return nil
}

// GetSite returns a site by id
func (s *SiteStorage) GetSite(ctx context.Context, id string) (*models.Site, error) {
	return s.getSiteWhere(ctx, "id = ?", id)
}

// GetSiteByURL returns a site by its unique URL
func (s *SiteStorage) GetSiteByURL(ctx context.Context, url string) (*models.Site, error) {
	return s.getSiteWhere(ctx, "url = ?", url)
}

func (s *SiteStorage) getSiteWhere(ctx context.Context, where string, arg interface{}) (*models.Site, error) {
	query := `
		SELECT id, name, url, category, auth_type, encrypted_credentials,
		       scraping_config, active, legal_blocked, created_at, updated_at
		FROM sites WHERE ` + where

	site, err := scanSite(s.db.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrSiteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load site: %w", err)
	}
	return site, nil
}

// ListSites returns sites ordered by name
func (s *SiteStorage) ListSites(ctx context.Context, activeOnly bool) ([]*models.Site, error) {
	query := `
		SELECT id, name, url, category, auth_type, encrypted_credentials,
		       scraping_config, active, legal_blocked, created_at, updated_at
		FROM sites
	`
	if activeOnly {
		query += " WHERE active = 1"
	}
	query += " ORDER BY name ASC"

	rows, err := s.db.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	defer rows.Close()

	var sites []*models.Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan site: %w", err)
		}
		sites = append(sites, site)
	}
	return sites, rows.Err()
}

// SetLegalBlocked flags a site whose terms or robots forbid scraping
func (s *SiteStorage) SetLegalBlocked(ctx context.Context, id string, blocked bool) error {
	result, err := s.db.db.ExecContext(ctx,
		"UPDATE sites SET legal_blocked = ?, updated_at = ? WHERE id = ?",
		boolToInt(blocked), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update site: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return models.ErrSiteNotFound
	}
	if blocked {
		s.logger.Warn().Str("site_id", id).Msg("Site marked legal_blocked")
	}
	return nil
}

// DeleteSite removes a site and, via cascade, its opportunities and jobs
func (s *SiteStorage) DeleteSite(ctx context.Context, id string) error {
	result, err := s.db.db.ExecContext(ctx, "DELETE FROM sites WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete site: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return models.ErrSiteNotFound
	}
	return nil
}

// rowScanner covers *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSite(row rowScanner) (*models.Site, error) {
	var (
		site       models.Site
		category   sql.NullString
		authType   string
		creds      []byte
		configJSON string
		active     int
		blocked    int
		createdAt  int64
		updatedAt  int64
	)

	err := row.Scan(&site.ID, &site.Name, &site.URL, &category, &authType,
		&creds, &configJSON, &active, &blocked, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	site.Category = category.String
	site.AuthType = models.AuthType(authType)
	site.EncryptedCredentials = creds
	site.Active = active != 0
	site.LegalBlocked = blocked != 0
	site.CreatedAt = unixToTime(createdAt)
	site.UpdatedAt = unixToTime(updatedAt)

	if configJSON != "" {
		if err := json.Unmarshal([]byte(configJSON), &site.ScrapingConfig); err != nil {
			return nil, fmt.Errorf("failed to parse scraping config: %w", err)
		}
	}
	return &site, nil
}
