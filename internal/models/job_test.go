package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from    JobStatus
		to      JobStatus
		allowed bool
	}{
		{JobStatusPending, JobStatusRunning, true},
		{JobStatusPending, JobStatusCancelled, true},
		{JobStatusPending, JobStatusCompleted, false},
		{JobStatusRunning, JobStatusCompleted, true},
		{JobStatusRunning, JobStatusFailed, true},
		{JobStatusRunning, JobStatusCancelled, true},
		{JobStatusRunning, JobStatusPending, false},
		{JobStatusFailed, JobStatusPending, true},
		{JobStatusFailed, JobStatusRunning, false},
		{JobStatusCompleted, JobStatusPending, false},
		{JobStatusCompleted, JobStatusRunning, false},
		{JobStatusCancelled, JobStatusPending, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.allowed, CanTransition(tt.from, tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}

func TestJobStatus_Terminal(t *testing.T) {
	assert.False(t, JobStatusPending.Terminal())
	assert.False(t, JobStatusRunning.Terminal())
	assert.True(t, JobStatusCompleted.Terminal())
	assert.True(t, JobStatusFailed.Terminal())
	assert.True(t, JobStatusCancelled.Terminal())
}

func TestJobValidate(t *testing.T) {
	valid := &Job{SiteID: "site_1", Kind: JobKindFull, Priority: 5}
	assert.NoError(t, valid.Validate())

	noSite := &Job{Kind: JobKindFull, Priority: 5}
	assert.Error(t, noSite.Validate())

	badKind := &Job{SiteID: "site_1", Kind: JobKind("weekly"), Priority: 5}
	assert.Error(t, badKind.Validate())

	badPriority := &Job{SiteID: "site_1", Kind: JobKindFull, Priority: 11}
	assert.Error(t, badPriority.Validate())

	zeroPriority := &Job{SiteID: "site_1", Kind: JobKindFull}
	assert.Error(t, zeroPriority.Validate())
}

func TestRetryBackoff(t *testing.T) {
	assert.Equal(t, 60*time.Second, RetryBackoff(0))
	assert.Equal(t, 120*time.Second, RetryBackoff(1))
	assert.Equal(t, 240*time.Second, RetryBackoff(2))
	assert.Equal(t, 480*time.Second, RetryBackoff(3))
	assert.Equal(t, 600*time.Second, RetryBackoff(4))
	assert.Equal(t, 600*time.Second, RetryBackoff(20))
}
