package interfaces

import (
	"context"
	"time"
)

// RateLimiter enforces a minimum inter-request delay per domain. State is
// in-process per worker; over-politeness across processes is acceptable.
type RateLimiter interface {
	// Acquire blocks until a request to domain is allowed, then records
	// the request. Returns ErrRateLimitExceeded once the domain has
	// accumulated more than three violations in the current run.
	Acquire(ctx context.Context, domain string, minDelay time.Duration) error

	// RecordViolation notes a rate-limit response from the origin
	RecordViolation(domain string)

	// Exceeded reports whether the domain has passed the violation
	// threshold for the current run
	Exceeded(domain string) bool

	// ResetViolations clears the per-run violation counter for a domain
	ResetViolations(domain string)
}
