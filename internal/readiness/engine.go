package readiness

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/grantwatch/internal/catalog"
	"github.com/sells-group/grantwatch/internal/runlog"
)

// Store is the catalog persistence the engine needs.
type Store interface {
	Get(ctx context.Context, id string) (*catalog.Entry, error)
	ListNotReady(ctx context.Context, limit int) ([]catalog.Entry, error)
	SaveReadiness(ctx context.Context, id string, r catalog.Readiness, fields *catalog.Fields) error
}

// Engine recomputes and persists readiness for catalog entries.
type Engine struct {
	store    Store
	rules    *Rules
	runs     *runlog.Log
	fallback bool
}

// NewEngine creates an Engine. A nil rules uses the embedded rule set.
func NewEngine(store Store, rules *Rules, runs *runlog.Log, fallback bool) *Engine {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Engine{store: store, rules: rules, runs: runs, fallback: fallback}
}

// Recompute checks the entry, applies the fallback once if it would close
// the only gap, re-checks and persists the outcome. Exclusion is permanent:
// an already excluded entry is returned as is and nothing is written.
func (e *Engine) Recompute(ctx context.Context, entry catalog.Entry) (Result, error) {
	if entry.Excluded {
		return Result{
			Excluded:      true,
			ExclusionCode: entry.ExclusionReason,
			MissingFields: []string{},
		}, nil
	}

	res := e.rules.Check(entry.Title, entry.Fields)

	var fields *catalog.Fields
	if !res.Excluded && !res.Ready && e.fallback {
		if f, ok := e.rules.ApplyFallback(entry.Fields); ok {
			fields = &f
			res = e.rules.Check(entry.Title, f)
			res.FallbackApplied = true
		}
	}

	if err := e.store.SaveReadiness(ctx, entry.ID, catalog.Readiness{
		Ready:           res.Ready,
		Excluded:        res.Excluded,
		ExclusionReason: res.ExclusionCode,
		MissingFields:   res.MissingFields,
		Score:           res.Score,
		Searchable:      res.Searchable,
	}, fields); err != nil {
		return res, eris.Wrapf(err, "readiness: persist %s", entry.ID)
	}
	return res, nil
}

// RecomputeByID loads and recomputes one entry.
func (e *Engine) RecomputeByID(ctx context.Context, id string) error {
	entry, err := e.store.Get(ctx, id)
	if err != nil {
		return err
	}
	_, err = e.Recompute(ctx, *entry)
	return err
}

// Sweep recomputes up to limit entries that are neither ready nor excluded.
func (e *Engine) Sweep(ctx context.Context, limit int) (runlog.Summary, error) {
	return e.runs.Run(ctx, "readiness", func(ctx context.Context, b *runlog.Batch) error {
		entries, err := e.store.ListNotReady(ctx, limit)
		if err != nil {
			return err
		}
		b.Started()

		for _, entry := range entries {
			if ctx.Err() != nil {
				break
			}
			b.Process()
			res, err := e.Recompute(ctx, entry)
			if err != nil {
				b.Fail(entry.ID, err)
				continue
			}
			switch {
			case res.Excluded:
				b.Add("excluded", 1)
			case res.Ready:
				b.Add("ready", 1)
			default:
				b.Add("not_ready", 1)
			}
			if res.FallbackApplied {
				b.Add("fallback_applied", 1)
			}
			b.Update()
		}

		zap.L().Info("readiness sweep complete",
			zap.Int("entries", len(entries)),
			zap.Int("ready", b.Counter("ready")),
			zap.Int("excluded", b.Counter("excluded")),
		)
		return nil
	})
}
