package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/grantwatch/internal/config"
)

func TestDiscoveryConfig(t *testing.T) {
	got := DiscoveryConfig(config.DiscoveryConfig{
		Threshold:         60,
		TitleWeight:       40,
		SummaryWeight:     20,
		RegionWeight:      20,
		URLWeight:         20,
		ExpiryDays:        14,
		LifecyclePriority: 2,
	})
	assert.Equal(t, 60, got.Threshold)
	assert.Equal(t, 40, got.Weights.Title)
	assert.Equal(t, 20, got.Weights.URL)
	assert.Equal(t, 14, got.ExpiryDays)
	assert.Equal(t, 2, got.LifecyclePriority)
}

func TestFetchOptions(t *testing.T) {
	got := FetchOptions(config.FetchConfig{
		TimeoutSecs:  8,
		DelayMillis:  500,
		UserAgent:    "grantwatch-test",
		MaxBodyBytes: 1024,
	})
	assert.Equal(t, 8*time.Second, got.Timeout)
	assert.Equal(t, 500*time.Millisecond, got.Delay)
	assert.Equal(t, "grantwatch-test", got.UserAgent)
	assert.Equal(t, int64(1024), got.MaxBodyBytes)
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(context.Background(), &config.Config{}, "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestPool_UnknownMode(t *testing.T) {
	_, err := Pool(context.Background(), &config.Config{}, "bogus")
	require.Error(t, err)
}
