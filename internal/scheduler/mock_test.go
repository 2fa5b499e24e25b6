package scheduler

import (
	"context"
	"time"

	"github.com/sells-group/grantwatch/internal/jobqueue"
	"github.com/sells-group/grantwatch/internal/lifecycle"
)

// mockStore records calls in order so tests can assert bump-before-enqueue.
type mockStore struct {
	sources   []Source
	checks    []DueCheck
	urls      map[string][]CheckURL
	bumpErr   error
	sourceErr error
	calls     *[]string
	bumped    map[string]time.Time
	freqs     map[string]lifecycle.Frequency
}

func newMockStore(calls *[]string) *mockStore {
	return &mockStore{
		urls:   map[string][]CheckURL{},
		calls:  calls,
		bumped: map[string]time.Time{},
		freqs:  map[string]lifecycle.Frequency{},
	}
}

func (m *mockStore) DueSources(_ context.Context, _ time.Time, limit int) ([]Source, error) {
	if m.sourceErr != nil {
		return nil, m.sourceErr
	}
	if len(m.sources) > limit {
		return m.sources[:limit], nil
	}
	return m.sources, nil
}

func (m *mockStore) BumpSource(_ context.Context, id string, next, _ time.Time) error {
	*m.calls = append(*m.calls, "bump:"+id)
	if m.bumpErr != nil {
		return m.bumpErr
	}
	m.bumped[id] = next
	return nil
}

func (m *mockStore) DueChecks(_ context.Context, _ time.Time, limit int) ([]DueCheck, error) {
	if len(m.checks) > limit {
		return m.checks[:limit], nil
	}
	return m.checks, nil
}

func (m *mockStore) BumpCheck(_ context.Context, entryID string, next time.Time, freq lifecycle.Frequency, _ time.Time) error {
	*m.calls = append(*m.calls, "bump:"+entryID)
	if m.bumpErr != nil {
		return m.bumpErr
	}
	m.bumped[entryID] = next
	m.freqs[entryID] = freq
	return nil
}

func (m *mockStore) CheckURLs(_ context.Context, entryID string) ([]CheckURL, error) {
	return m.urls[entryID], nil
}

type fakeGuard struct {
	blocked map[string]bool
}

func (g fakeGuard) IsBlocked(_ context.Context, key string) bool {
	return g.blocked[key]
}

// fakeQueue mimics the duplicate window: a (kind, url) pair is accepted once.
type fakeQueue struct {
	calls *[]string
	seen  map[string]bool
	jobs  []jobqueue.Job
	err   error
}

func newFakeQueue(calls *[]string) *fakeQueue {
	return &fakeQueue{calls: calls, seen: map[string]bool{}}
}

func (q *fakeQueue) Enqueue(_ context.Context, job jobqueue.Job) (jobqueue.Result, error) {
	*q.calls = append(*q.calls, "enqueue:"+job.URL)
	if q.err != nil {
		return jobqueue.Result{}, q.err
	}
	key := string(job.Kind) + "|" + job.URL
	if q.seen[key] {
		return jobqueue.Result{Duplicate: true}, nil
	}
	q.seen[key] = true
	q.jobs = append(q.jobs, job)
	return jobqueue.Result{Inserted: true}, nil
}
