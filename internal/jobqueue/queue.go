// Package jobqueue is the append-only crawl_queue table. It produces jobs
// with a 24-hour duplicate-suppression window and exposes the read and
// transition helpers external workers use.
package jobqueue

import (
	"context"
	"crypto/rand"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/rotisserie/eris"

	"github.com/sells-group/grantwatch/internal/db"
)

// Kind identifies what a crawl job does.
type Kind string

// Job kinds.
const (
	KindRegistryCrawl Kind = "REGISTRY_CRAWL"
	KindSubsidyCheck  Kind = "SUBSIDY_CHECK"
	KindURLCrawl      Kind = "URL_CRAWL"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindRegistryCrawl, KindSubsidyCheck, KindURLCrawl:
		return true
	}
	return false
}

// Status is the job lifecycle: queued -> running -> done | failed.
type Status string

// Job statuses.
const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// DuplicateWindow is how far back an active job suppresses a new one.
const DuplicateWindow = 24 * time.Hour

// Job is one row of crawl_queue.
type Job struct {
	QueueID     string
	Kind        Kind
	URL         string
	DomainKey   string
	EntryID     string
	Status      Status
	Priority    int
	Attempts    int
	LastError   string
	ScheduledAt time.Time
	CreatedAt   time.Time
}

// Result reports what Enqueue did.
type Result struct {
	Inserted  bool   `json:"inserted"`
	Duplicate bool   `json:"duplicate"`
	QueueID   string `json:"queue_id,omitempty"`
}

// Queue reads and writes crawl_queue.
type Queue struct {
	pool db.Pool
	now  func() time.Time
}

// New creates a Queue backed by pool.
func New(pool db.Pool) *Queue {
	return &Queue{pool: pool, now: time.Now}
}

// WithClock replaces the queue's clock. Used to simulate the duplicate window.
func (q *Queue) WithClock(now func() time.Time) *Queue {
	q.now = now
	return q
}

// Enqueue inserts job unless an active job for the same (kind, url) was
// created in the last 24 hours. Jobs older than the window do not suppress
// re-checks, and running jobs are never overwritten.
func (q *Queue) Enqueue(ctx context.Context, job Job) (Result, error) {
	if !job.Kind.Valid() {
		return Result{}, eris.Errorf("jobqueue: invalid kind %q", job.Kind)
	}
	if job.URL == "" {
		return Result{}, eris.New("jobqueue: url is required")
	}

	now := q.now().UTC()

	var existing string
	err := q.pool.QueryRow(ctx, `
		SELECT queue_id FROM crawl_queue
		WHERE kind = $1 AND url = $2
		  AND status IN ('queued', 'running')
		  AND created_at >= $3
		LIMIT 1`,
		string(job.Kind), job.URL, now.Add(-DuplicateWindow),
	).Scan(&existing)
	switch {
	case err == nil:
		return Result{Duplicate: true, QueueID: existing}, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return Result{}, eris.Wrapf(err, "jobqueue: duplicate check for %s", job.URL)
	}

	id := NewID(now)
	scheduled := job.ScheduledAt
	if scheduled.IsZero() {
		scheduled = now
	}

	_, err = q.pool.Exec(ctx, `
		INSERT INTO crawl_queue (queue_id, kind, url, domain_key, entry_id, status, priority, scheduled_at, created_at)
		VALUES ($1, $2, $3, $4, $5, 'queued', $6, $7, $8)`,
		id, string(job.Kind), job.URL, job.DomainKey, job.EntryID, job.Priority, scheduled, now,
	)
	if err != nil {
		return Result{}, eris.Wrapf(err, "jobqueue: insert %s", job.URL)
	}
	return Result{Inserted: true, QueueID: id}, nil
}

// NewID returns a lexically time-ordered queue id.
func NewID(now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()
}

// Claim moves up to limit queued jobs to running and returns them. Rows
// locked by another claimer are skipped.
func (q *Queue) Claim(ctx context.Context, limit int) ([]Job, error) {
	rows, err := q.pool.Query(ctx, `
		UPDATE crawl_queue SET status = 'running', started_at = $2, attempts = attempts + 1
		WHERE queue_id IN (
			SELECT queue_id FROM crawl_queue
			WHERE status = 'queued' AND scheduled_at <= $2
			ORDER BY priority, scheduled_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING queue_id, kind, url, domain_key, entry_id, status, priority, attempts, last_error, scheduled_at, created_at`,
		limit, q.now().UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "jobqueue: claim")
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		var kind, status string
		if err := rows.Scan(&j.QueueID, &kind, &j.URL, &j.DomainKey, &j.EntryID, &status,
			&j.Priority, &j.Attempts, &j.LastError, &j.ScheduledAt, &j.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "jobqueue: scan claimed job")
		}
		j.Kind = Kind(kind)
		j.Status = Status(status)
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "jobqueue: claim rows")
	}
	return jobs, nil
}

// MarkDone finishes a running job.
func (q *Queue) MarkDone(ctx context.Context, queueID string) error {
	return q.finish(ctx, queueID, StatusDone, "")
}

// MarkFailed finishes a running job with an error message.
func (q *Queue) MarkFailed(ctx context.Context, queueID, msg string) error {
	return q.finish(ctx, queueID, StatusFailed, msg)
}

func (q *Queue) finish(ctx context.Context, queueID string, status Status, msg string) error {
	tag, err := q.pool.Exec(ctx, `
		UPDATE crawl_queue SET status = $2, last_error = $3, finished_at = $4
		WHERE queue_id = $1 AND status = 'running'`,
		queueID, string(status), msg, q.now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "jobqueue: mark %s %s", queueID, status)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("jobqueue: job %s is not running", queueID)
	}
	return nil
}

// Stats counts jobs per status.
func (q *Queue) Stats(ctx context.Context) (map[Status]int64, error) {
	rows, err := q.pool.Query(ctx, `SELECT status, count(*) FROM crawl_queue GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "jobqueue: stats")
	}
	defer rows.Close()

	out := make(map[Status]int64)
	for rows.Next() {
		var s string
		var n int64
		if err := rows.Scan(&s, &n); err != nil {
			return nil, eris.Wrap(err, "jobqueue: scan stats")
		}
		out[Status(s)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "jobqueue: stats rows")
	}
	return out, nil
}
