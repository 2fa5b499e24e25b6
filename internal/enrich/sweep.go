package enrich

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/grantwatch/internal/blob"
	"github.com/sells-group/grantwatch/internal/catalog"
	"github.com/sells-group/grantwatch/internal/domainpolicy"
	"github.com/sells-group/grantwatch/internal/fetcher"
	"github.com/sells-group/grantwatch/internal/lifecycle"
	"github.com/sells-group/grantwatch/internal/readiness"
	"github.com/sells-group/grantwatch/internal/resilience"
	"github.com/sells-group/grantwatch/internal/runlog"
	"github.com/sells-group/grantwatch/internal/shard"
)

// DefaultLimit is the number of entries enriched per run.
const DefaultLimit = 20

// CatalogStore is the catalog access the sweep needs.
type CatalogStore interface {
	ListForShards(ctx context.Context, shards []int32, limit int) ([]catalog.Entry, error)
	SaveFields(ctx context.Context, id string, f catalog.Fields, contentHash string) (catalog.Fields, error)
}

// Guard gates and scores domains.
type Guard interface {
	IsBlocked(ctx context.Context, domainKey string) bool
	RecordSuccess(ctx context.Context, domainKey string)
	RecordFailure(ctx context.Context, domainKey, errorCode string)
}

// Readiness recomputes an entry's readiness.
type Readiness interface {
	Recompute(ctx context.Context, entry catalog.Entry) (readiness.Result, error)
}

// Lifecycle evaluates an entry's application window.
type Lifecycle interface {
	Evaluate(ctx context.Context, entryID string, ev lifecycle.Evidence) (lifecycle.Outcome, error)
}

// Config tunes the sweep.
type Config struct {
	Limit            int
	BreakerThreshold int
	// Window picks the shards for a run. Defaults to shard.HourWindow.
	Window func(now time.Time) shard.Window
}

// Sweeper runs enrichment.
type Sweeper struct {
	catalog   CatalogStore
	guard     Guard
	fetcher   fetcher.Fetcher
	blobs     blob.Store
	readiness Readiness
	lifecycle Lifecycle
	runs      *runlog.Log
	cfg       Config
	now       func() time.Time
}

// Deps groups the sweep's collaborators. Blobs, Readiness and Lifecycle may
// be nil to skip that step.
type Deps struct {
	Catalog   CatalogStore
	Guard     Guard
	Fetcher   fetcher.Fetcher
	Blobs     blob.Store
	Readiness Readiness
	Lifecycle Lifecycle
	Runs      *runlog.Log
}

// NewSweeper creates a Sweeper.
func NewSweeper(d Deps, cfg Config) *Sweeper {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.Window == nil {
		cfg.Window = shard.HourWindow
	}
	return &Sweeper{
		catalog:   d.Catalog,
		guard:     d.Guard,
		fetcher:   d.Fetcher,
		blobs:     d.Blobs,
		readiness: d.Readiness,
		lifecycle: d.Lifecycle,
		runs:      d.Runs,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Run enriches up to limit entries in the current shard window. limit <= 0
// uses the configured limit.
func (s *Sweeper) Run(ctx context.Context, limit int) (runlog.Summary, error) {
	if limit <= 0 {
		limit = s.cfg.Limit
	}
	return s.runs.Run(ctx, "enrich", func(ctx context.Context, b *runlog.Batch) error {
		now := s.now().UTC()
		win := s.cfg.Window(now)
		b.Set("shard_primary", win.Primary)
		b.Set("shard_secondary", win.Secondary)

		entries, err := s.catalog.ListForShards(ctx, win.Slice(), limit)
		if err != nil {
			return err
		}
		b.Started()

		breakers := resilience.NewDomainBreakers(resilience.BreakerConfig{
			FailureThreshold: s.cfg.BreakerThreshold,
			ShouldTrip:       resilience.IsTransient,
			OnTrip: func(domain string) {
				zap.L().Warn("enrich: domain breaker open", zap.String("domain", domain))
			},
		})

		for _, e := range entries {
			if ctx.Err() != nil {
				break
			}
			b.Process()
			s.enrichOne(ctx, b, breakers, e, now)
		}

		if open := breakers.Open(); len(open) > 0 {
			b.Set("domains_tripped", open)
		}
		return nil
	})
}

func (s *Sweeper) enrichOne(ctx context.Context, b *runlog.Batch, breakers *resilience.DomainBreakers, e catalog.Entry, now time.Time) {
	log := zap.L().With(zap.String("job", "enrich"), zap.String("entry_id", e.ID))
	key := domainpolicy.DomainKey(e.DetailURL)

	if s.guard.IsBlocked(ctx, key) {
		b.Skip()
		b.Add("domain_blocked", 1)
		return
	}
	if !breakers.Allow(key) {
		b.Skip()
		b.Add("circuit_open", 1)
		return
	}

	page, err := resilience.Execute(ctx, breakers, key, func(ctx context.Context) (*fetcher.Page, error) {
		return s.fetcher.FetchPage(ctx, e.DetailURL)
	})
	if err != nil {
		s.guard.RecordFailure(ctx, key, resilience.Code(err))
		b.Fail(e.ID, eris.Wrapf(err, "enrich: fetch %s", e.DetailURL))
		b.Add("fetch_failed", 1)
		return
	}
	s.guard.RecordSuccess(ctx, key)

	if s.blobs != nil && len(page.Raw) > 0 {
		if _, _, err := s.blobs.Put(ctx, e.ID, page.ContentHash, page.ContentType, page.Raw); err != nil {
			// The fields are still worth saving without the raw copy.
			log.Warn("enrich: store raw page", zap.Error(err))
			b.AddError(e.ID + ": " + err.Error())
		}
	}

	unchanged := page.ContentHash == e.ContentHash
	var update catalog.Fields
	if !unchanged {
		res := Extract(page, now)
		update = res.Fields

		// Estimates only fill what neither the stored entry nor the page has.
		est := res.Estimates
		known := catalog.Merge(e.Fields, update)
		if known.HasDeadline() {
			est.Deadline, est.Extra = nil, nil
		}
		if known.OfficialURL != "" {
			est.OfficialURL = ""
		}
		update = catalog.FillEmpty(update, est)
	}

	// Saving an unchanged page still refreshes cached_at and updated_at so
	// the next run moves on to other entries.
	merged, err := s.catalog.SaveFields(ctx, e.ID, update, page.ContentHash)
	if err != nil {
		b.Fail(e.ID, err)
		return
	}
	e.Fields = merged
	e.ContentHash = page.ContentHash

	if unchanged {
		b.Add("unchanged", 1)
	} else {
		b.Update()
		b.Add("enriched", 1)
		if s.readiness != nil {
			r, err := s.readiness.Recompute(ctx, e)
			switch {
			case err != nil:
				b.AddError(e.ID + ": " + err.Error())
			case r.Ready:
				b.Add("ready", 1)
			}
		}
	}

	if s.lifecycle != nil {
		out, err := s.lifecycle.Evaluate(ctx, e.ID, lifecycle.Evidence{
			OpenAt:  merged.OpenAt,
			CloseAt: merged.Deadline,
			Ongoing: merged.Ongoing,
			Text:    page.Text,
			URL:     page.URL,
		})
		if err != nil {
			b.AddError(e.ID + ": " + err.Error())
			return
		}
		if out.Changed {
			b.Add("status_changed", 1)
			log.Info("enrich: lifecycle status changed",
				zap.String("from", string(out.Prev)),
				zap.String("to", string(out.Status)),
			)
		}
	}
}
