package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/grantwatch/internal/domainpolicy"
	"github.com/sells-group/grantwatch/internal/runlog"
)

// recentRunsLimit bounds how many cron_runs rows one collection scans.
const recentRunsLimit = 500

// Snapshot is a point-in-time view of crawl health.
type Snapshot struct {
	FailingDomains []domainpolicy.Policy `json:"failing_domains"`
	FailedRuns     []runlog.Run          `json:"failed_runs"`
	RunsTotal      int                   `json:"runs_total"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// DomainSource lists domains that keep failing.
type DomainSource interface {
	Failing(ctx context.Context, minFailures int64, since time.Time) ([]domainpolicy.Policy, error)
}

// RunSource lists recent job runs.
type RunSource interface {
	Recent(ctx context.Context, jobType string, limit int) ([]runlog.Run, error)
}

// Collector gathers health data from domain_policy and cron_runs.
type Collector struct {
	domains     DomainSource
	runs        RunSource
	minFailures int64
	now         func() time.Time
}

// NewCollector creates a Collector. runs may be nil to skip run checks.
func NewCollector(domains DomainSource, runs RunSource, minFailures int64) *Collector {
	return &Collector{domains: domains, runs: runs, minFailures: minFailures, now: time.Now}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	now := c.now().UTC()
	snap := &Snapshot{LookbackHours: lookbackHours, CollectedAt: now}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	failing, err := c.domains.Failing(ctx, c.minFailures, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list failing domains")
	}
	snap.FailingDomains = failing

	if c.runs == nil {
		return snap, nil
	}
	runs, err := c.runs.Recent(ctx, "", recentRunsLimit)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}
	for _, r := range runs {
		if r.StartedAt.Before(cutoff) {
			continue
		}
		snap.RunsTotal++
		if r.Status == runlog.StatusFailed {
			snap.FailedRuns = append(snap.FailedRuns, r)
		}
	}
	return snap, nil
}
