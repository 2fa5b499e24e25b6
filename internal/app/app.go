// Package app wires the stores and job components from configuration.
package app

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/sells-group/grantwatch/internal/blob"
	"github.com/sells-group/grantwatch/internal/catalog"
	"github.com/sells-group/grantwatch/internal/config"
	"github.com/sells-group/grantwatch/internal/db"
	"github.com/sells-group/grantwatch/internal/discovery"
	"github.com/sells-group/grantwatch/internal/domainpolicy"
	"github.com/sells-group/grantwatch/internal/enrich"
	"github.com/sells-group/grantwatch/internal/fetcher"
	"github.com/sells-group/grantwatch/internal/jobqueue"
	"github.com/sells-group/grantwatch/internal/jobs"
	"github.com/sells-group/grantwatch/internal/lifecycle"
	"github.com/sells-group/grantwatch/internal/metrics"
	"github.com/sells-group/grantwatch/internal/monitoring"
	"github.com/sells-group/grantwatch/internal/readiness"
	"github.com/sells-group/grantwatch/internal/runlog"
	"github.com/sells-group/grantwatch/internal/scheduler"
)

// App holds the pool, stores and components shared by every entrypoint.
type App struct {
	Pool      *pgxpool.Pool
	Blobs     blob.Store
	Runs      *runlog.Log
	Catalog   *catalog.Store
	Guard     *domainpolicy.Guard
	Queue     *jobqueue.Queue
	Lifecycle *lifecycle.Machine
	Readiness *readiness.Engine
	Discovery *discovery.Pipeline
	Scheduler *scheduler.Scheduler
	Enrich    *enrich.Sweeper
	Alerts    *monitoring.Checker
	Jobs      *jobs.Registry
}

// Close releases the pool and the blob store.
func (a *App) Close() {
	if a.Blobs != nil {
		if err := a.Blobs.Close(); err != nil {
			zap.L().Warn("close blob store", zap.Error(err))
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}

// Pool validates cfg for mode and opens the Postgres pool.
func Pool(ctx context.Context, cfg *config.Config, mode string) (*pgxpool.Pool, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	return db.Connect(ctx, cfg.Store.DatabaseURL, db.PoolConfig{
		MaxConns: cfg.Store.MaxConns,
		MinConns: cfg.Store.MinConns,
	})
}

// New wires every component and registers the standard jobs. Callers should
// defer a.Close().
func New(ctx context.Context, cfg *config.Config, mode string) (*App, error) {
	pool, err := Pool(ctx, cfg, mode)
	if err != nil {
		return nil, err
	}

	blobs, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		pool.Close()
		return nil, err
	}

	metrics.Init()

	a := &App{Pool: pool, Blobs: blobs}
	a.Runs = runlog.NewLog(pool)
	a.Catalog = catalog.NewStore(pool)
	a.Guard = domainpolicy.NewGuard(pool)
	a.Queue = jobqueue.New(pool)
	a.Lifecycle = lifecycle.NewMachine(pool)
	a.Readiness = readiness.NewEngine(a.Catalog, nil, a.Runs, cfg.Readiness.Fallback)

	a.Discovery = discovery.NewPipeline(discovery.NewPostgresStore(pool), a.Runs, DiscoveryConfig(cfg.Discovery)).
		WithEntryHook(a.Readiness)

	a.Scheduler = scheduler.New(scheduler.NewPostgresStore(pool), a.Guard, a.Queue, a.Runs, scheduler.Config{
		RegistryLimit:    cfg.Scheduler.RegistryLimit,
		LifecycleLimit:   cfg.Scheduler.LifecycleLimit,
		URLsPerEntry:     cfg.Scheduler.URLsPerEntry,
		RegistryPriority: cfg.Scheduler.RegistryDefaultPriority,
		CheckPriority:    cfg.Scheduler.CheckDefaultPriority,
	})

	a.Enrich = enrich.NewSweeper(enrich.Deps{
		Catalog:   a.Catalog,
		Guard:     a.Guard,
		Fetcher:   fetcher.NewHTTPFetcher(FetchOptions(cfg.Fetch)),
		Blobs:     blobs,
		Readiness: a.Readiness,
		Lifecycle: a.Lifecycle,
		Runs:      a.Runs,
	}, enrich.Config{
		Limit:            cfg.Enrich.Limit,
		BreakerThreshold: cfg.Fetch.BreakerThreshold,
	})

	var notifier monitoring.Notifier
	if cfg.Alerts.WebhookURL != "" {
		notifier = monitoring.NewWebhookNotifier(cfg.Alerts.WebhookURL)
	}
	a.Alerts = monitoring.NewChecker(
		monitoring.NewCollector(a.Guard, a.Runs, cfg.Alerts.FailureThreshold),
		monitoring.NewAlerter(notifier, cfg.Alerts.FailureThreshold),
		a.Runs,
		cfg.Alerts.WindowHours,
	)

	a.Jobs = jobs.Standard(jobs.Deps{
		Scheduler: a.Scheduler,
		Discovery: a.Discovery,
		Readiness: a.Readiness,
		Enrich:    a.Enrich,
		Alerts:    a.Alerts,
		Limits: jobs.Limits{
			Validate:  cfg.Discovery.ValidateLimit,
			Promote:   cfg.Discovery.PromoteLimit,
			Readiness: cfg.Readiness.SweepLimit,
			Enrich:    cfg.Enrich.Limit,
		},
	})

	return a, nil
}

// DiscoveryConfig maps the discovery section onto pipeline settings.
func DiscoveryConfig(c config.DiscoveryConfig) discovery.Config {
	return discovery.Config{
		Weights: discovery.Weights{
			Title:   c.TitleWeight,
			Summary: c.SummaryWeight,
			Region:  c.RegionWeight,
			URL:     c.URLWeight,
		},
		Threshold:         c.Threshold,
		ExpiryDays:        c.ExpiryDays,
		LifecyclePriority: c.LifecyclePriority,
	}
}

// FetchOptions maps the fetch section onto HTTP fetcher options.
func FetchOptions(c config.FetchConfig) fetcher.HTTPOptions {
	return fetcher.HTTPOptions{
		UserAgent:    c.UserAgent,
		Timeout:      time.Duration(c.TimeoutSecs) * time.Second,
		Delay:        time.Duration(c.DelayMillis) * time.Millisecond,
		MaxBodyBytes: c.MaxBodyBytes,
	}
}
