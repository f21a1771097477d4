package models

import (
	"encoding/json"
	"time"
)

// Opportunity is a single advertised tender/grant/contract extracted from
// a site. source_url uniqueness provides dedup across runs.
type Opportunity struct {
	ID               string          `json:"id"`
	SiteID           string          `json:"site_id"`
	Title            string          `json:"title"`
	Description      string          `json:"description,omitempty"`
	Deadline         *time.Time      `json:"deadline,omitempty"`
	Value            *float64        `json:"value,omitempty"`
	Currency         string          `json:"currency"` // ISO-4217, default USD
	ReferenceNumber  string          `json:"reference_number,omitempty"`
	SourceURL        string          `json:"source_url"` // Unique
	Categories       []string        `json:"categories,omitempty"`
	Location         string          `json:"location,omitempty"`
	ExtractedPayload json.RawMessage `json:"extracted_payload,omitempty"`
	Confidence       float64         `json:"confidence"` // 0..1
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// DocumentStatus tracks attachment processing
type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusDone       DocumentStatus = "done"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// Document is an attachment downloaded for an opportunity and stored in
// the object store.
type Document struct {
	ID               string          `json:"id"`
	OpportunityID    string          `json:"opportunity_id"`
	Filename         string          `json:"filename"`
	SourceURL        string          `json:"source_url"`
	ObjectKey        string          `json:"object_key"` // Unique
	SizeBytes        int64           `json:"size_bytes"`
	MimeType         string          `json:"mime_type,omitempty"`
	ExtractedText    string          `json:"extracted_text,omitempty"`
	ExtractedPayload json.RawMessage `json:"extracted_payload,omitempty"`
	Status           DocumentStatus  `json:"status"`
	Error            string          `json:"error,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// DocumentMetadata summarizes what text extraction found inside a document
type DocumentMetadata struct {
	Pages     int  `json:"pages"`
	HasTables bool `json:"has_tables"`
	HasImages bool `json:"has_images"`
}

// ExtractedPage is the extractor output for one rendered page
type ExtractedPage struct {
	Opportunities []*Opportunity `json:"opportunities"`
	DocumentURLs  []string       `json:"document_urls"`
}
