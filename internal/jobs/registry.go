// Package jobs names every unit of work so the cron runner, the HTTP trigger
// and the Lambda handler all run the same code.
package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/grantwatch/internal/metrics"
	"github.com/sells-group/grantwatch/internal/runlog"
)

// ErrUnknownJob is returned for a name with no registered job.
var ErrUnknownJob = eris.New("jobs: unknown job")

// Func runs one invocation of a job. limit <= 0 means the job's configured
// default.
type Func func(ctx context.Context, limit int) (runlog.Summary, error)

// Registry maps job names to their functions.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]Func
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]Func)}
}

// Register adds or replaces a job.
func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[name] = fn
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.lookup(name)
	return ok
}

// Names returns the registered job names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.jobs))
	for n := range r.jobs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) lookup(name string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.jobs[name]
	return fn, ok
}

// Run executes the named job, records metrics and logs the outcome.
func (r *Registry) Run(ctx context.Context, name string, limit int) (runlog.Summary, error) {
	fn, ok := r.lookup(name)
	if !ok {
		return runlog.Summary{}, eris.Wrapf(ErrUnknownJob, "jobs: %q", name)
	}

	log := zap.L().With(zap.String("job", name), zap.String("trigger", runlog.TriggerFrom(ctx)))
	start := time.Now()
	sum, err := fn(ctx, limit)
	elapsed := time.Since(start)
	metrics.ObserveRun(name, sum, elapsed)

	if err != nil {
		log.Error("jobs: run failed",
			zap.String("status", string(sum.Status)),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return sum, eris.Wrapf(err, "jobs: run %s", name)
	}
	log.Info("jobs: run complete",
		zap.String("run_id", sum.RunID),
		zap.String("status", string(sum.Status)),
		zap.Int("processed", sum.Processed),
		zap.Int("errors", sum.ErrorCount),
		zap.Duration("elapsed", elapsed),
	)
	return sum, nil
}
