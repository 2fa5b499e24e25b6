package monitoring

import (
	"context"
	"fmt"

	"github.com/sells-group/grantwatch/internal/runlog"
)

// DefaultLookbackHours is used when no window is configured.
const DefaultLookbackHours = 24

// Checker runs one collect, evaluate and send cycle as the "alerts" job.
type Checker struct {
	collector     *Collector
	alerter       *Alerter
	runs          *runlog.Log
	lookbackHours int
}

// NewChecker creates an alert checker.
func NewChecker(collector *Collector, alerter *Alerter, runs *runlog.Log, lookbackHours int) *Checker {
	if lookbackHours <= 0 {
		lookbackHours = DefaultLookbackHours
	}
	return &Checker{
		collector:     collector,
		alerter:       alerter,
		runs:          runs,
		lookbackHours: lookbackHours,
	}
}

// Run performs one check.
func (c *Checker) Run(ctx context.Context) (runlog.Summary, error) {
	return c.runs.Run(ctx, "alerts", func(ctx context.Context, b *runlog.Batch) error {
		snap, err := c.collector.Collect(ctx, c.lookbackHours)
		if err != nil {
			return err
		}
		b.Started()

		alerts := c.alerter.Evaluate(snap)
		for range alerts {
			b.Process()
		}
		sent := c.alerter.SendAlerts(ctx, alerts)

		b.Set("failing_domains", len(snap.FailingDomains))
		b.Set("failed_runs", len(snap.FailedRuns))
		b.Set("alerts_triggered", len(alerts))
		b.Set("alerts_sent", sent)
		if c.alerter.notifier != nil && sent < len(alerts) {
			b.AddError(fmt.Sprintf("%d of %d alerts not delivered", len(alerts)-sent, len(alerts)))
		}
		return nil
	})
}
