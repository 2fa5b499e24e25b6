package enrich

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/grantwatch/internal/catalog"
	"github.com/sells-group/grantwatch/internal/fetcher"
	"github.com/sells-group/grantwatch/internal/lifecycle"
	"github.com/sells-group/grantwatch/internal/readiness"
)

type fakeCatalog struct {
	entries []catalog.Entry
	listErr error
	saveErr error

	mu     sync.Mutex
	shards []int32
	saved  map[string]catalog.Fields
	hashes map[string]string
}

func (f *fakeCatalog) ListForShards(_ context.Context, shards []int32, limit int) ([]catalog.Entry, error) {
	f.shards = shards
	if f.listErr != nil {
		return nil, f.listErr
	}
	if limit < len(f.entries) {
		return f.entries[:limit], nil
	}
	return f.entries, nil
}

func (f *fakeCatalog) SaveFields(_ context.Context, id string, fields catalog.Fields, hash string) (catalog.Fields, error) {
	if f.saveErr != nil {
		return catalog.Fields{}, f.saveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saved == nil {
		f.saved = map[string]catalog.Fields{}
		f.hashes = map[string]string{}
	}
	base, ok := f.saved[id]
	if !ok {
		for _, e := range f.entries {
			if e.ID == id {
				base = e.Fields
			}
		}
	}
	merged := catalog.Merge(base, fields)
	f.saved[id] = merged
	f.hashes[id] = hash
	return merged, nil
}

type fakeGuard struct {
	blocked   map[string]bool
	successes []string
	failures  map[string][]string
}

func (g *fakeGuard) IsBlocked(_ context.Context, key string) bool { return g.blocked[key] }

func (g *fakeGuard) RecordSuccess(_ context.Context, key string) {
	g.successes = append(g.successes, key)
}

func (g *fakeGuard) RecordFailure(_ context.Context, key, code string) {
	if g.failures == nil {
		g.failures = map[string][]string{}
	}
	g.failures[key] = append(g.failures[key], code)
}

type fakeFetcher struct {
	pages map[string]*fetcher.Page
	errs  map[string]error
	calls map[string]int
}

func (f *fakeFetcher) FetchPage(_ context.Context, rawURL string) (*fetcher.Page, error) {
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[rawURL]++
	if err, ok := f.errs[rawURL]; ok {
		return nil, err
	}
	if p, ok := f.pages[rawURL]; ok {
		return p, nil
	}
	return nil, eris.Errorf("no page for %s", rawURL)
}

type fakeReadiness struct {
	ready   bool
	err     error
	entries []catalog.Entry
}

func (r *fakeReadiness) Recompute(_ context.Context, e catalog.Entry) (readiness.Result, error) {
	r.entries = append(r.entries, e)
	if r.err != nil {
		return readiness.Result{}, r.err
	}
	return readiness.Result{Ready: r.ready}, nil
}

type fakeLifecycle struct {
	evidence map[string]lifecycle.Evidence
	outcome  lifecycle.Outcome
}

func (l *fakeLifecycle) Evaluate(_ context.Context, id string, ev lifecycle.Evidence) (lifecycle.Outcome, error) {
	if l.evidence == nil {
		l.evidence = map[string]lifecycle.Evidence{}
	}
	l.evidence[id] = ev
	return l.outcome, nil
}
