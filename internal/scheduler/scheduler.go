// Package scheduler turns due registry sources and due lifecycle records into
// crawl jobs. Each tick bumps a row's next due time before enqueueing, so
// overlapping ticks do not pick the same row twice.
package scheduler

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/grantwatch/internal/domainpolicy"
	"github.com/sells-group/grantwatch/internal/jobqueue"
	"github.com/sells-group/grantwatch/internal/lifecycle"
	"github.com/sells-group/grantwatch/internal/runlog"
)

// Guard reports whether a domain is blocked.
type Guard interface {
	IsBlocked(ctx context.Context, domainKey string) bool
}

// Enqueuer accepts crawl jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, job jobqueue.Job) (jobqueue.Result, error)
}

// Config bounds one tick.
type Config struct {
	RegistryLimit    int
	LifecycleLimit   int
	URLsPerEntry     int
	RegistryPriority int
	CheckPriority    int
}

// DefaultConfig returns limits of 200 sources, 50 checks and 3 URLs per entry.
func DefaultConfig() Config {
	return Config{
		RegistryLimit:    200,
		LifecycleLimit:   50,
		URLsPerEntry:     3,
		RegistryPriority: DefaultRegistryPriority,
		CheckPriority:    lifecycle.DefaultPriority,
	}
}

// Counters summarise one tick.
type Counters struct {
	RegistryDue              int `json:"registry_due"`
	LifecycleDue             int `json:"lifecycle_due"`
	JobsEnqueued             int `json:"jobs_enqueued"`
	JobsSkippedDomainBlocked int `json:"jobs_skipped_domain_blocked"`
	JobsSkippedDuplicate     int `json:"jobs_skipped_duplicate_guard"`
}

// Scheduler enqueues due work.
type Scheduler struct {
	store Store
	guard Guard
	queue Enqueuer
	runs  *runlog.Log
	cfg   Config
	now   func() time.Time
}

// New creates a Scheduler. runs may be nil.
func New(store Store, guard Guard, queue Enqueuer, runs *runlog.Log, cfg Config) *Scheduler {
	def := DefaultConfig()
	if cfg.RegistryLimit <= 0 {
		cfg.RegistryLimit = def.RegistryLimit
	}
	if cfg.LifecycleLimit <= 0 {
		cfg.LifecycleLimit = def.LifecycleLimit
	}
	if cfg.URLsPerEntry <= 0 {
		cfg.URLsPerEntry = def.URLsPerEntry
	}
	if cfg.RegistryPriority <= 0 {
		cfg.RegistryPriority = def.RegistryPriority
	}
	if cfg.CheckPriority <= 0 {
		cfg.CheckPriority = def.CheckPriority
	}
	return &Scheduler{store: store, guard: guard, queue: queue, runs: runs, cfg: cfg, now: time.Now}
}

// Tick runs one scheduling pass in a recorded run.
func (s *Scheduler) Tick(ctx context.Context) (Counters, error) {
	c, _, err := s.tick(ctx)
	return c, err
}

// Run is Tick for callers that want the run summary.
func (s *Scheduler) Run(ctx context.Context) (runlog.Summary, error) {
	_, sum, err := s.tick(ctx)
	return sum, err
}

func (s *Scheduler) tick(ctx context.Context) (Counters, runlog.Summary, error) {
	var c Counters
	sum, err := s.runs.Run(ctx, "schedule", func(ctx context.Context, b *runlog.Batch) error {
		now := s.now().UTC()

		sources, err := s.store.DueSources(ctx, now, s.cfg.RegistryLimit)
		if err != nil {
			return err
		}
		b.Started()
		for _, src := range sources {
			if ctx.Err() != nil {
				break
			}
			c.RegistryDue++
			b.Process()
			s.scheduleSource(ctx, b, &c, src, now)
		}

		checks, err := s.store.DueChecks(ctx, now, s.cfg.LifecycleLimit)
		if err != nil {
			b.AddError(err.Error())
		}
		for _, chk := range checks {
			if ctx.Err() != nil {
				break
			}
			c.LifecycleDue++
			b.Process()
			s.scheduleCheck(ctx, b, &c, chk, now)
		}

		b.Set("registry_due", c.RegistryDue)
		b.Set("lifecycle_due", c.LifecycleDue)
		b.Set("jobs_enqueued", c.JobsEnqueued)
		b.Set("jobs_skipped_domain_blocked", c.JobsSkippedDomainBlocked)
		b.Set("jobs_skipped_duplicate_guard", c.JobsSkippedDuplicate)

		zap.L().Info("schedule tick complete",
			zap.Int("registry_due", c.RegistryDue),
			zap.Int("lifecycle_due", c.LifecycleDue),
			zap.Int("jobs_enqueued", c.JobsEnqueued),
			zap.Int("jobs_skipped_domain_blocked", c.JobsSkippedDomainBlocked),
			zap.Int("jobs_skipped_duplicate_guard", c.JobsSkippedDuplicate),
		)
		return nil
	})
	return c, sum, err
}

func (s *Scheduler) scheduleSource(ctx context.Context, b *runlog.Batch, c *Counters, src Source, now time.Time) {
	if err := s.store.BumpSource(ctx, src.ID, RegistryNext(src.UpdateFrequency, now), now); err != nil {
		b.Fail(src.ID, err)
		return
	}

	key := src.DomainKey
	if key == "" {
		key = domainpolicy.DomainKey(src.RootURL)
	}
	priority := src.Priority
	if priority <= 0 {
		priority = s.cfg.RegistryPriority
	}
	s.enqueue(ctx, b, c, jobqueue.Job{
		Kind:      jobqueue.KindRegistryCrawl,
		URL:       src.RootURL,
		DomainKey: key,
		Priority:  priority,
	}, src.ID)
}

func (s *Scheduler) scheduleCheck(ctx context.Context, b *runlog.Batch, c *Counters, chk DueCheck, now time.Time) {
	next := lifecycle.NextCheckAt(chk.Status, chk.Priority, now)
	freq := lifecycle.FrequencyOf(chk.Status, chk.Priority)
	if err := s.store.BumpCheck(ctx, chk.EntryID, next, freq, now); err != nil {
		b.Fail(chk.EntryID, err)
		return
	}

	urls, err := s.store.CheckURLs(ctx, chk.EntryID)
	if err != nil {
		b.Fail(chk.EntryID, err)
		return
	}

	priority := chk.Priority
	if priority <= 0 {
		priority = s.cfg.CheckPriority
	}
	for _, u := range Representative(urls, s.cfg.URLsPerEntry) {
		s.enqueue(ctx, b, c, jobqueue.Job{
			Kind:      jobqueue.KindSubsidyCheck,
			URL:       u.URL,
			DomainKey: domainpolicy.DomainKey(u.URL),
			EntryID:   chk.EntryID,
			Priority:  priority,
		}, chk.EntryID)
	}
}

func (s *Scheduler) enqueue(ctx context.Context, b *runlog.Batch, c *Counters, job jobqueue.Job, ref string) {
	if s.guard.IsBlocked(ctx, job.DomainKey) {
		c.JobsSkippedDomainBlocked++
		b.Skip()
		return
	}
	res, err := s.queue.Enqueue(ctx, job)
	if err != nil {
		b.Fail(ref, err)
		return
	}
	if res.Duplicate {
		c.JobsSkippedDuplicate++
		b.Skip()
		return
	}
	c.JobsEnqueued++
	b.Insert()
}

var sourceTypeRank = map[string]int{
	"secretariat": 0,
	"prefecture":  1,
	"city":        2,
	"ministry":    3,
	"portal":      4,
}

var docTypeRank = map[string]int{
	"faq":       0,
	"news":      1,
	"guideline": 2,
	"form":      3,
}

func rank(m map[string]int, key string) int {
	if r, ok := m[key]; ok {
		return r
	}
	return len(m)
}

// Representative orders urls by source type then document type, drops
// duplicates and returns at most n.
func Representative(urls []CheckURL, n int) []CheckURL {
	sorted := append([]CheckURL(nil), urls...)
	sort.SliceStable(sorted, func(i, j int) bool {
		si, sj := rank(sourceTypeRank, sorted[i].SourceType), rank(sourceTypeRank, sorted[j].SourceType)
		if si != sj {
			return si < sj
		}
		return rank(docTypeRank, sorted[i].DocType) < rank(docTypeRank, sorted[j].DocType)
	})

	seen := make(map[string]bool, len(sorted))
	out := make([]CheckURL, 0, n)
	for _, u := range sorted {
		if u.URL == "" || seen[u.URL] {
			continue
		}
		seen[u.URL] = true
		out = append(out, u)
		if len(out) == n {
			break
		}
	}
	return out
}
