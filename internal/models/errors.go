package models

import "errors"

// Sentinel errors raised by the scrape pipeline. Components return these
// wrapped with context; the scrape runner categorizes them at its boundary.
var (
	ErrKeyMissing          = errors.New("vault key missing")
	ErrTampered            = errors.New("ciphertext authentication failed")
	ErrComplianceViolation = errors.New("compliance violation")
	ErrRateLimitExceeded   = errors.New("rate limit violations exceeded threshold")
	ErrAuthFailure         = errors.New("authentication failed")
	ErrCaptchaBlocked      = errors.New("captcha blocked authentication")
	ErrLoginFormNotFound   = errors.New("login form not found")
	ErrAuthTimeout         = errors.New("authentication timed out")
	ErrNotImplemented      = errors.New("not implemented")
	ErrExtractionFailed    = errors.New("extraction failed")
	ErrAntiDetectionFailed = errors.New("anti-detection measures failed")
	ErrJobCancelled        = errors.New("job cancelled")
	ErrJobNotFound         = errors.New("job not found")
	ErrSiteNotFound        = errors.New("site not found")
	ErrInvalidTransition   = errors.New("invalid job status transition")
)

// ErrorCategory drives the retry decision for a failed scrape run
type ErrorCategory string

const (
	ErrorCategoryTransient  ErrorCategory = "transient"  // Retry with backoff
	ErrorCategoryAuth       ErrorCategory = "auth"       // Invalidate session, retry once
	ErrorCategoryStructural ErrorCategory = "structural" // No retry
	ErrorCategoryCompliance ErrorCategory = "compliance" // No retry, block site
	ErrorCategoryFatal      ErrorCategory = "fatal"      // No retry
)

// Retryable reports whether jobs failing with this category are re-queued
func (c ErrorCategory) Retryable() bool {
	return c == ErrorCategoryTransient || c == ErrorCategoryAuth
}

// Categorize maps a pipeline error onto the retry taxonomy. Unrecognized
// errors are treated as transient so network faults default to retry.
func Categorize(err error) ErrorCategory {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrComplianceViolation), errors.Is(err, ErrRateLimitExceeded):
		return ErrorCategoryCompliance
	case errors.Is(err, ErrAuthFailure), errors.Is(err, ErrCaptchaBlocked),
		errors.Is(err, ErrLoginFormNotFound), errors.Is(err, ErrAuthTimeout):
		return ErrorCategoryAuth
	case errors.Is(err, ErrExtractionFailed):
		return ErrorCategoryStructural
	case errors.Is(err, ErrKeyMissing), errors.Is(err, ErrTampered),
		errors.Is(err, ErrNotImplemented), errors.Is(err, ErrInvalidTransition):
		return ErrorCategoryFatal
	case errors.Is(err, ErrJobCancelled):
		return ""
	default:
		return ErrorCategoryTransient
	}
}
