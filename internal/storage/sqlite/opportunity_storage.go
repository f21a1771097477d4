package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/hoistscout/hoistscout/internal/interfaces"
	"github.com/hoistscout/hoistscout/internal/models"
)

// OpportunityStorage implements SQLite persistence for opportunities and
// their documents.
type OpportunityStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewOpportunityStorage creates a new opportunity storage instance
func NewOpportunityStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.OpportunityStorage {
	return &OpportunityStorage{
		db:     db,
		logger: logger,
	}
}

// PersistScrapeResult writes all opportunities and documents from one job
// in a single transaction. Opportunities upsert on source_url so re-runs
// update rather than duplicate; documents upsert on object_key. Document
// opportunity_id values referencing a provisional id from the input are
// remapped to the canonical row id the upsert resolved; documents with no
// owner are skipped.
func (s *OpportunityStorage) PersistScrapeResult(ctx context.Context, siteID string, opportunities []*models.Opportunity, documents []*models.Document) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	ids := make([]string, 0, len(opportunities))
	canonical := make(map[string]string, len(opportunities))

	for _, opp := range opportunities {
		provisional := opp.ID
		id, err := upsertOpportunity(ctx, tx, siteID, opp, now)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
		if provisional != "" {
			canonical[provisional] = id
		}
	}

	for _, doc := range documents {
		if doc.OpportunityID == "" {
			continue
		}
		if id, ok := canonical[doc.OpportunityID]; ok {
			doc.OpportunityID = id
		}
		if err := upsertDocument(ctx, tx, doc, now); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit scrape result: %w", err)
	}

	s.logger.Info().
		Str("site_id", siteID).
		Int("opportunities", len(opportunities)).
		Int("documents", len(documents)).
		Msg("Scrape result persisted")
	return ids, nil
}

// upsertOpportunity inserts or updates one opportunity keyed on
// source_url. Returns the canonical row id (existing id on update).
func upsertOpportunity(ctx context.Context, tx *sql.Tx, siteID string, opp *models.Opportunity, now int64) (string, error) {
	if opp.Title == "" {
		return "", fmt.Errorf("opportunity title is required")
	}
	if opp.SourceURL == "" {
		return "", fmt.Errorf("opportunity source_url is required")
	}
	if opp.Currency == "" {
		opp.Currency = "USD"
	}

	categories := ""
	if len(opp.Categories) > 0 {
		data, err := json.Marshal(opp.Categories)
		if err != nil {
			return "", fmt.Errorf("failed to serialize categories: %w", err)
		}
		categories = string(data)
	}

	var value sql.NullFloat64
	if opp.Value != nil {
		value = sql.NullFloat64{Valid: true, Float64: *opp.Value}
	}

	payload := ""
	if len(opp.ExtractedPayload) > 0 {
		payload = string(opp.ExtractedPayload)
	}

	query := `
		INSERT INTO opportunities (
			id, site_id, title, description, deadline, value, currency,
			reference_number, source_url, categories, location,
			extracted_payload, confidence, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_url) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			deadline = excluded.deadline,
			value = excluded.value,
			currency = excluded.currency,
			reference_number = excluded.reference_number,
			categories = excluded.categories,
			location = excluded.location,
			extracted_payload = excluded.extracted_payload,
			confidence = excluded.confidence,
			updated_at = excluded.updated_at
		RETURNING id
	`

	var id string
	err := tx.QueryRowContext(ctx, query,
		opp.ID,
		siteID,
		opp.Title,
		nullString(opp.Description),
		nullUnix(opp.Deadline),
		value,
		opp.Currency,
		nullString(opp.ReferenceNumber),
		opp.SourceURL,
		nullString(categories),
		nullString(opp.Location),
		nullString(payload),
		opp.Confidence,
		now,
		now,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to upsert opportunity %s: %w", opp.SourceURL, err)
	}
	opp.ID = id
	return id, nil
}

func upsertDocument(ctx context.Context, tx *sql.Tx, doc *models.Document, now int64) error {
	payload := ""
	if len(doc.ExtractedPayload) > 0 {
		payload = string(doc.ExtractedPayload)
	}

	query := `
		INSERT INTO documents (
			id, opportunity_id, filename, source_url, object_key, size_bytes,
			mime_type, extracted_text, extracted_payload, status, error,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(object_key) DO UPDATE SET
			opportunity_id = excluded.opportunity_id,
			filename = excluded.filename,
			size_bytes = excluded.size_bytes,
			mime_type = excluded.mime_type,
			extracted_text = excluded.extracted_text,
			extracted_payload = excluded.extracted_payload,
			status = excluded.status,
			error = excluded.error,
			updated_at = excluded.updated_at
	`

	_, err := tx.ExecContext(ctx, query,
		doc.ID,
		doc.OpportunityID,
		doc.Filename,
		doc.SourceURL,
		doc.ObjectKey,
		doc.SizeBytes,
		nullString(doc.MimeType),
		nullString(doc.ExtractedText),
		nullString(payload),
		string(doc.Status),
		nullString(doc.Error),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert document %s: %w", doc.ObjectKey, err)
	}
	return nil
}

// GetOpportunity returns an opportunity by id
func (s *OpportunityStorage) GetOpportunity(ctx context.Context, id string) (*models.Opportunity, error) {
	return s.getOpportunityWhere(ctx, "id = ?", id)
}

// GetOpportunityBySourceURL returns an opportunity by its unique source URL
func (s *OpportunityStorage) GetOpportunityBySourceURL(ctx context.Context, sourceURL string) (*models.Opportunity, error) {
	return s.getOpportunityWhere(ctx, "source_url = ?", sourceURL)
}

func (s *OpportunityStorage) getOpportunityWhere(ctx context.Context, where string, arg interface{}) (*models.Opportunity, error) {
	query := opportunitySelect + " WHERE " + where
	opp, err := scanOpportunity(s.db.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load opportunity: %w", err)
	}
	return opp, nil
}

// ListOpportunities returns opportunities for a site, newest first.
// An empty siteID lists across all sites.
func (s *OpportunityStorage) ListOpportunities(ctx context.Context, siteID string, limit, offset int) ([]*models.Opportunity, error) {
	query := opportunitySelect
	args := []interface{}{}
	if siteID != "" {
		query += " WHERE site_id = ?"
		args = append(args, siteID)
	}
	query += " ORDER BY updated_at DESC, id ASC"
	if limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, offset)
	}

	rows, err := s.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list opportunities: %w", err)
	}
	defer rows.Close()

	var opportunities []*models.Opportunity
	for rows.Next() {
		opp, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan opportunity: %w", err)
		}
		opportunities = append(opportunities, opp)
	}
	return opportunities, rows.Err()
}

// CountOpportunities counts opportunities, optionally per site
func (s *OpportunityStorage) CountOpportunities(ctx context.Context, siteID string) (int, error) {
	query := "SELECT COUNT(*) FROM opportunities"
	args := []interface{}{}
	if siteID != "" {
		query += " WHERE site_id = ?"
		args = append(args, siteID)
	}
	var count int
	if err := s.db.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count opportunities: %w", err)
	}
	return count, nil
}

// ListDocuments returns the documents attached to an opportunity
func (s *OpportunityStorage) ListDocuments(ctx context.Context, opportunityID string) ([]*models.Document, error) {
	query := `
		SELECT id, opportunity_id, filename, source_url, object_key, size_bytes,
		       mime_type, extracted_text, extracted_payload, status, error,
		       created_at, updated_at
		FROM documents WHERE opportunity_id = ? ORDER BY created_at ASC
	`
	rows, err := s.db.db.QueryContext(ctx, query, opportunityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var documents []*models.Document
	for rows.Next() {
		var (
			doc       models.Document
			mimeType  sql.NullString
			text      sql.NullString
			payload   sql.NullString
			status    string
			docErr    sql.NullString
			createdAt int64
			updatedAt int64
		)
		err := rows.Scan(&doc.ID, &doc.OpportunityID, &doc.Filename, &doc.SourceURL,
			&doc.ObjectKey, &doc.SizeBytes, &mimeType, &text, &payload, &status,
			&docErr, &createdAt, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		doc.MimeType = mimeType.String
		doc.ExtractedText = text.String
		if payload.Valid && payload.String != "" {
			doc.ExtractedPayload = json.RawMessage(payload.String)
		}
		doc.Status = models.DocumentStatus(status)
		doc.Error = docErr.String
		doc.CreatedAt = unixToTime(createdAt)
		doc.UpdatedAt = unixToTime(updatedAt)
		documents = append(documents, &doc)
	}
	return documents, rows.Err()
}

const opportunitySelect = `
	SELECT id, site_id, title, description, deadline, value, currency,
	       reference_number, source_url, categories, location,
	       extracted_payload, confidence, created_at, updated_at
	FROM opportunities
`

func scanOpportunity(row rowScanner) (*models.Opportunity, error) {
	var (
		opp        models.Opportunity
		desc       sql.NullString
		deadline   sql.NullInt64
		value      sql.NullFloat64
		reference  sql.NullString
		categories sql.NullString
		location   sql.NullString
		payload    sql.NullString
		createdAt  int64
		updatedAt  int64
	)

	err := row.Scan(&opp.ID, &opp.SiteID, &opp.Title, &desc, &deadline, &value,
		&opp.Currency, &reference, &opp.SourceURL, &categories, &location,
		&payload, &opp.Confidence, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	opp.Description = desc.String
	opp.Deadline = nullUnixToTime(deadline)
	if value.Valid {
		opp.Value = &value.Float64
	}
	opp.ReferenceNumber = reference.String
	opp.Location = location.String
	if payload.Valid && payload.String != "" {
		opp.ExtractedPayload = json.RawMessage(payload.String)
	}
	if categories.Valid && strings.TrimSpace(categories.String) != "" {
		if err := json.Unmarshal([]byte(categories.String), &opp.Categories); err != nil {
			return nil, fmt.Errorf("failed to parse categories: %w", err)
		}
	}
	opp.CreatedAt = unixToTime(createdAt)
	opp.UpdatedAt = unixToTime(updatedAt)
	return &opp, nil
}
