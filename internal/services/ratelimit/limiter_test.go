package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoistscout/hoistscout/internal/common"
	"github.com/hoistscout/hoistscout/internal/models"
)

func TestAcquire_EnforcesMinimumGap(t *testing.T) {
	limiter := NewLimiter(common.GetLogger())
	ctx := context.Background()
	minDelay := 50 * time.Millisecond

	require.NoError(t, limiter.Acquire(ctx, "example.com", minDelay))
	start := time.Now()
	require.NoError(t, limiter.Acquire(ctx, "example.com", minDelay))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, minDelay-5*time.Millisecond,
		"second request should wait out the remaining delay")
}

func TestAcquire_DomainsAreIndependent(t *testing.T) {
	limiter := NewLimiter(common.GetLogger())
	ctx := context.Background()

	require.NoError(t, limiter.Acquire(ctx, "a.example.com", time.Second))
	start := time.Now()
	require.NoError(t, limiter.Acquire(ctx, "b.example.com", time.Second))
	assert.Less(t, time.Since(start), 100*time.Millisecond,
		"first request to a different domain should not wait")
}

func TestAcquire_ViolationThreshold(t *testing.T) {
	limiter := NewLimiter(common.GetLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		limiter.RecordViolation("example.com")
	}
	require.NoError(t, limiter.Acquire(ctx, "example.com", time.Millisecond),
		"three violations are still tolerated")

	limiter.RecordViolation("example.com")
	err := limiter.Acquire(ctx, "example.com", time.Millisecond)
	assert.ErrorIs(t, err, models.ErrRateLimitExceeded)
}

func TestExceeded_TracksThreshold(t *testing.T) {
	limiter := NewLimiter(common.GetLogger())

	assert.False(t, limiter.Exceeded("example.com"), "unknown domain")
	for i := 0; i < 3; i++ {
		limiter.RecordViolation("example.com")
	}
	assert.False(t, limiter.Exceeded("example.com"), "three violations are still tolerated")

	limiter.RecordViolation("example.com")
	assert.True(t, limiter.Exceeded("example.com"))

	limiter.ResetViolations("example.com")
	assert.False(t, limiter.Exceeded("example.com"))
}

func TestResetViolations(t *testing.T) {
	limiter := NewLimiter(common.GetLogger())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		limiter.RecordViolation("example.com")
	}
	limiter.ResetViolations("example.com")
	assert.NoError(t, limiter.Acquire(ctx, "example.com", time.Millisecond))
}

func TestAcquire_ContextCancelled(t *testing.T) {
	limiter := NewLimiter(common.GetLogger())
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, limiter.Acquire(ctx, "example.com", time.Minute))
	cancel()
	err := limiter.Acquire(ctx, "example.com", time.Minute)
	assert.Error(t, err)
}

func TestAcquire_ZeroDelayIsNoop(t *testing.T) {
	limiter := NewLimiter(common.GetLogger())
	assert.NoError(t, limiter.Acquire(context.Background(), "example.com", 0))
}
