package common

import (
	"github.com/google/uuid"
)

// NewJobID generates a unique job ID with the "job_" prefix
// Format: job_<uuid>
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// NewOpportunityID generates a unique opportunity ID with the "opp_" prefix
func NewOpportunityID() string {
	return "opp_" + uuid.New().String()
}

// NewDocumentID generates a unique document ID with the "doc_" prefix
func NewDocumentID() string {
	return "doc_" + uuid.New().String()
}

// NewSiteID generates a unique site ID with the "site_" prefix
func NewSiteID() string {
	return "site_" + uuid.New().String()
}

// NewWorkerID generates a unique worker ID with the "worker_" prefix
func NewWorkerID() string {
	return "worker_" + uuid.New().String()
}
