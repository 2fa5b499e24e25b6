package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/grantwatch/internal/domainpolicy"
	"github.com/sells-group/grantwatch/internal/runlog"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeDomains struct {
	policies    []domainpolicy.Policy
	err         error
	minFailures int64
	since       time.Time
}

func (f *fakeDomains) Failing(_ context.Context, minFailures int64, since time.Time) ([]domainpolicy.Policy, error) {
	f.minFailures, f.since = minFailures, since
	return f.policies, f.err
}

type fakeRuns struct {
	runs []runlog.Run
	err  error
}

func (f *fakeRuns) Recent(_ context.Context, _ string, _ int) ([]runlog.Run, error) {
	return f.runs, f.err
}

func newTestCollector(d DomainSource, r RunSource) *Collector {
	c := NewCollector(d, r, 10)
	c.now = func() time.Time { return testNow }
	return c
}

func TestCollector_Collect(t *testing.T) {
	domains := &fakeDomains{policies: []domainpolicy.Policy{{DomainKey: "example.lg.jp", FailureCount: 11}}}
	runs := &fakeRuns{runs: []runlog.Run{
		{ID: "r1", Status: runlog.StatusFailed, StartedAt: testNow.Add(-time.Hour)},
		{ID: "r2", Status: runlog.StatusSuccess, StartedAt: testNow.Add(-2 * time.Hour)},
		{ID: "r3", Status: runlog.StatusFailed, StartedAt: testNow.Add(-48 * time.Hour)},
	}}

	snap, err := newTestCollector(domains, runs).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, int64(10), domains.minFailures)
	assert.Equal(t, testNow.Add(-24*time.Hour), domains.since)
	assert.Len(t, snap.FailingDomains, 1)
	assert.Equal(t, 2, snap.RunsTotal)
	require.Len(t, snap.FailedRuns, 1)
	assert.Equal(t, "r1", snap.FailedRuns[0].ID)
	assert.Equal(t, testNow, snap.CollectedAt)
}

func TestCollector_NoRunSource(t *testing.T) {
	snap, err := newTestCollector(&fakeDomains{}, nil).Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Zero(t, snap.RunsTotal)
}

func TestCollector_Errors(t *testing.T) {
	_, err := newTestCollector(&fakeDomains{err: eris.New("db down")}, nil).Collect(context.Background(), 24)
	assert.ErrorContains(t, err, "monitoring: list failing domains")

	_, err = newTestCollector(&fakeDomains{}, &fakeRuns{err: eris.New("db down")}).Collect(context.Background(), 24)
	assert.ErrorContains(t, err, "monitoring: list runs")
}
