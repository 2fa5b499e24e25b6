package jobs

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/grantwatch/internal/runlog"
)

// Scheduled describes one job registered with the cron runner.
type Scheduled struct {
	Job  string    `json:"job"`
	Spec string    `json:"spec"`
	Next time.Time `json:"next"`
}

// Cron triggers registry jobs on cron expressions. Overlapping ticks of the
// same job are skipped.
type Cron struct {
	cron    *cron.Cron
	reg     *Registry
	ctx     context.Context
	entries map[string]cron.EntryID
	specs   map[string]string
}

// NewCron schedules every job in schedules. An empty or "off" expression
// disables that job; a name missing from reg is an error.
func NewCron(reg *Registry, schedules map[string]string) (*Cron, error) {
	logger := cronLogger{l: zap.L().Sugar().With("component", "jobs.cron")}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := &Cron{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(time.UTC),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		reg:     reg,
		ctx:     context.Background(),
		entries: make(map[string]cron.EntryID),
		specs:   make(map[string]string),
	}

	names := make([]string, 0, len(schedules))
	for name := range schedules {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		spec := strings.TrimSpace(schedules[name])
		if spec == "" || spec == "off" {
			continue
		}
		if !reg.Has(name) {
			return nil, eris.Wrapf(ErrUnknownJob, "jobs: schedule %q", name)
		}
		job := name
		id, err := c.cron.AddFunc(spec, func() { c.fire(job) })
		if err != nil {
			return nil, eris.Wrapf(err, "jobs: parse schedule %q for %s", spec, name)
		}
		c.entries[name] = id
		c.specs[name] = spec
	}
	return c, nil
}

func (c *Cron) fire(job string) {
	// Failures are logged and recorded in cron_runs by the registry.
	_, _ = c.reg.Run(c.ctx, job, 0)
}

// Entries returns the scheduled jobs with their next fire time.
func (c *Cron) Entries() []Scheduled {
	out := make([]Scheduled, 0, len(c.entries))
	for name, id := range c.entries {
		out = append(out, Scheduled{Job: name, Spec: c.specs[name], Next: c.cron.Entry(id).Next})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Job < out[j].Job })
	return out
}

// Run starts the scheduler and blocks until ctx is cancelled, then waits for
// running jobs to return.
func (c *Cron) Run(ctx context.Context) error {
	c.ctx = runlog.WithTrigger(ctx, "cron")
	c.cron.Start()

	log := zap.L().With(zap.String("component", "jobs.cron"))
	for _, e := range c.Entries() {
		log.Info("jobs: scheduled", zap.String("job", e.Job), zap.String("spec", e.Spec), zap.Time("next", e.Next))
	}

	<-ctx.Done()
	<-c.cron.Stop().Done()
	log.Info("jobs: cron stopped")
	return nil
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
