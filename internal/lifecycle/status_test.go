package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextCheckAt_Table(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		status   Status
		priority int
		want     time.Duration
		freq     Frequency
	}{
		{StatusClosingSoon, 1, time.Hour, Hourly},
		{StatusClosingSoon, 5, time.Hour, Hourly},
		{StatusOpen, 1, 24 * time.Hour, Daily},
		{StatusOpen, 2, 24 * time.Hour, Daily},
		{StatusOpen, 3, 7 * 24 * time.Hour, Weekly},
		{StatusOpen, 5, 7 * 24 * time.Hour, Weekly},
		{StatusUnknown, 1, 24 * time.Hour, Daily},
		{StatusUnknown, 4, 7 * 24 * time.Hour, Weekly},
		{StatusScheduled, 2, 7 * 24 * time.Hour, Weekly},
		{StatusScheduled, 3, 30 * 24 * time.Hour, Monthly},
		{StatusClosedByDeadline, 1, 30 * 24 * time.Hour, Monthly},
		{StatusClosedByDeadline, 9, 30 * 24 * time.Hour, Monthly},
		{StatusClosedByBudget, 1, 30 * 24 * time.Hour, Monthly},
		{StatusSuspended, 1, 30 * 24 * time.Hour, Monthly},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			got := NextCheckAt(tt.status, tt.priority, now)
			assert.Equal(t, now.Add(tt.want), got)
			assert.True(t, got.After(now))
			assert.Equal(t, tt.freq, FrequencyOf(tt.status, tt.priority))
		})
	}
}

func TestNextCheckAt_AlwaysFuture(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	for status := range recheckIntervals {
		for p := -1; p <= 10; p++ {
			assert.True(t, NextCheckAt(status, p, now).After(now), "%s/%d", status, p)
		}
	}
	assert.True(t, NextCheckAt("bogus", 1, now).After(now))
}

func TestStatus_Valid(t *testing.T) {
	assert.True(t, StatusOpen.Valid())
	assert.True(t, StatusSuspended.Valid())
	assert.False(t, Status("archived").Valid())
}

func TestIsClosed(t *testing.T) {
	assert.True(t, IsClosed(StatusClosedByBudget))
	assert.True(t, IsClosed(StatusClosedByDeadline))
	assert.False(t, IsClosed(StatusSuspended))
	assert.False(t, IsClosed(StatusOpen))
}
