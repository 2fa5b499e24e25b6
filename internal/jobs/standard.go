package jobs

import (
	"context"

	"github.com/sells-group/grantwatch/internal/discovery"
	"github.com/sells-group/grantwatch/internal/enrich"
	"github.com/sells-group/grantwatch/internal/monitoring"
	"github.com/sells-group/grantwatch/internal/readiness"
	"github.com/sells-group/grantwatch/internal/runlog"
	"github.com/sells-group/grantwatch/internal/scheduler"
)

// Job names.
const (
	Schedule  = "schedule"
	Validate  = "validate"
	Promote   = "promote"
	Readiness = "readiness"
	Enrich    = "enrich"
	Alerts    = "alerts"
)

// Limits are the per-job defaults used when a trigger passes no limit.
type Limits struct {
	Validate  int
	Promote   int
	Readiness int
	Enrich    int
}

// Deps are the components behind the standard jobs. A nil component leaves
// its job unregistered.
type Deps struct {
	Scheduler *scheduler.Scheduler
	Discovery *discovery.Pipeline
	Readiness *readiness.Engine
	Enrich    *enrich.Sweeper
	Alerts    *monitoring.Checker
	Limits    Limits
}

// Standard builds the registry of every job the service runs.
func Standard(d Deps) *Registry {
	r := NewRegistry()

	if d.Scheduler != nil {
		r.Register(Schedule, func(ctx context.Context, _ int) (runlog.Summary, error) {
			return d.Scheduler.Run(ctx)
		})
	}
	if d.Discovery != nil {
		r.Register(Validate, func(ctx context.Context, limit int) (runlog.Summary, error) {
			return d.Discovery.ValidateSweep(ctx, pick(limit, d.Limits.Validate))
		})
		r.Register(Promote, func(ctx context.Context, limit int) (runlog.Summary, error) {
			return d.Discovery.PromoteSweep(ctx, d.Limits.Validate, pick(limit, d.Limits.Promote))
		})
	}
	if d.Readiness != nil {
		r.Register(Readiness, func(ctx context.Context, limit int) (runlog.Summary, error) {
			return d.Readiness.Sweep(ctx, pick(limit, d.Limits.Readiness))
		})
	}
	if d.Enrich != nil {
		r.Register(Enrich, func(ctx context.Context, limit int) (runlog.Summary, error) {
			return d.Enrich.Run(ctx, pick(limit, d.Limits.Enrich))
		})
	}
	if d.Alerts != nil {
		r.Register(Alerts, func(ctx context.Context, _ int) (runlog.Summary, error) {
			return d.Alerts.Run(ctx)
		})
	}
	return r
}

func pick(limit, def int) int {
	if limit > 0 {
		return limit
	}
	return def
}
