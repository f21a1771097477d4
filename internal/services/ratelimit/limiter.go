package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/hoistscout/hoistscout/internal/interfaces"
	"github.com/hoistscout/hoistscout/internal/models"
)

// maxViolations is the per-domain threshold before a run aborts
const maxViolations = 3

type domainState struct {
	limiter    *rate.Limiter
	violations int
}

// Limiter enforces a minimum inter-request delay per domain using a
// token bucket per domain. Shared across the scrape runs of one worker.
type Limiter struct {
	mu      sync.Mutex
	domains map[string]*domainState
	logger  arbor.ILogger
}

// NewLimiter creates an empty per-domain rate limiter
func NewLimiter(logger arbor.ILogger) *Limiter {
	return &Limiter{
		domains: make(map[string]*domainState),
		logger:  logger,
	}
}

// Acquire blocks until a request to domain is allowed, then records it.
// The first request per domain passes immediately; subsequent requests
// are spaced at least minDelay apart. A growing minDelay (a robots
// crawl-delay discovered mid-run) tightens the bucket in place.
func (l *Limiter) Acquire(ctx context.Context, domain string, minDelay time.Duration) error {
	if minDelay <= 0 {
		return nil
	}

	l.mu.Lock()
	state, ok := l.domains[domain]
	if !ok {
		state = &domainState{limiter: rate.NewLimiter(rate.Every(minDelay), 1)}
		l.domains[domain] = state
	} else if state.limiter.Limit() > rate.Every(minDelay) {
		state.limiter.SetLimit(rate.Every(minDelay))
	}
	violations := state.violations
	limiter := state.limiter
	l.mu.Unlock()

	if violations > maxViolations {
		return fmt.Errorf("%w: domain %s has %d violations", models.ErrRateLimitExceeded, domain, violations)
	}

	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait aborted for %s: %w", domain, err)
	}
	return nil
}

// RecordViolation notes a rate-limit response from the origin. The run
// aborts once a domain accumulates more than maxViolations.
func (l *Limiter) RecordViolation(domain string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.domains[domain]
	if !ok {
		state = &domainState{limiter: rate.NewLimiter(rate.Inf, 1)}
		l.domains[domain] = state
	}
	state.violations++
	l.logger.Warn().
		Str("domain", domain).
		Int("violations", state.violations).
		Msg("Rate limit violation recorded")
}

// Exceeded reports whether the domain has passed the violation threshold
func (l *Limiter) Exceeded(domain string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	state, ok := l.domains[domain]
	return ok && state.violations > maxViolations
}

// ResetViolations clears the violation counter at the start of a run
func (l *Limiter) ResetViolations(domain string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if state, ok := l.domains[domain]; ok {
		state.violations = 0
	}
}

var _ interfaces.RateLimiter = (*Limiter)(nil)
