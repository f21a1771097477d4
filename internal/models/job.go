package models

import (
	"fmt"
	"time"
)

// JobKind selects the scrape mode for a job
type JobKind string

const (
	JobKindFull        JobKind = "full"
	JobKindIncremental JobKind = "incremental"
	JobKindTest        JobKind = "test"
)

// Valid reports whether k is a known job kind
func (k JobKind) Valid() bool {
	switch k {
	case JobKindFull, JobKindIncremental, JobKindTest:
		return true
	}
	return false
}

// JobStatus is a job lifecycle state
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether s is a terminal state
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// validTransitions encodes the job state machine. Retry re-entry
// (failed -> pending) is included so requeue-with-backoff is a legal move.
var validTransitions = map[JobStatus][]JobStatus{
	JobStatusPending: {JobStatusRunning, JobStatusCancelled},
	JobStatusRunning: {JobStatusCompleted, JobStatusFailed, JobStatusCancelled},
	JobStatusFailed:  {JobStatusPending},
}

// CanTransition reports whether from -> to is a legal status change
func CanTransition(from, to JobStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Job is one queued request to scrape one site
type Job struct {
	ID              string     `json:"id"`
	SiteID          string     `json:"site_id"`
	Kind            JobKind    `json:"kind"`
	Status          JobStatus  `json:"status"`
	Priority        int        `json:"priority"` // 1..10, higher first
	ScheduledAt     time.Time  `json:"scheduled_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	Error           string     `json:"error,omitempty"`
	Stats           JobStats   `json:"stats"`
	RetryCount      int        `json:"retry_count"`
	MaxRetries      int        `json:"max_retries"`
	WorkerID        string     `json:"worker_id,omitempty"`
	HeartbeatAt     *time.Time `json:"heartbeat_at,omitempty"`
	CancelRequested bool       `json:"cancel_requested"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// JobStats is the structured outcome summary stored on the job row
type JobStats struct {
	Pages         int     `json:"pages,omitempty"`
	Items         int     `json:"items,omitempty"`
	PDFs          int     `json:"pdfs,omitempty"`
	Retries       int     `json:"retries,omitempty"`
	DurationMS    int64   `json:"duration_ms,omitempty"`
	ErrorCategory string  `json:"error_category,omitempty"`
	LegalBlocked  bool    `json:"legal_blocked,omitempty"`
	AvgConfidence float64 `json:"avg_confidence,omitempty"`
}

// Validate checks structural constraints on a job spec before enqueue
func (j *Job) Validate() error {
	if j.SiteID == "" {
		return fmt.Errorf("job site_id is required")
	}
	if !j.Kind.Valid() {
		return fmt.Errorf("invalid job kind %q", j.Kind)
	}
	if j.Priority < 1 || j.Priority > 10 {
		return fmt.Errorf("job priority must be in [1,10], got %d", j.Priority)
	}
	if j.MaxRetries < 0 {
		return fmt.Errorf("job max_retries cannot be negative")
	}
	return nil
}

// RetryBackoff returns the delay before re-queueing a failed job.
// Doubles per retry from 60s, capped at 600s.
func RetryBackoff(retryCount int) time.Duration {
	seconds := 60
	for i := 0; i < retryCount && seconds < 600; i++ {
		seconds *= 2
	}
	if seconds > 600 {
		seconds = 600
	}
	return time.Duration(seconds) * time.Second
}
