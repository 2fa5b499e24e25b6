package runlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/grantwatch/internal/db"
)

// Run is one row of cron_runs.
type Run struct {
	ID          string         `json:"id"`
	JobType     string         `json:"job_type"`
	Status      Status         `json:"status"`
	TriggeredBy string         `json:"triggered_by"`
	Processed   int            `json:"items_processed"`
	Inserted    int            `json:"items_inserted"`
	Updated     int            `json:"items_updated"`
	Skipped     int            `json:"items_skipped"`
	ErrorCount  int            `json:"error_count"`
	Errors      []string       `json:"errors,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  *time.Time     `json:"finished_at,omitempty"`
}

type triggerKey struct{}

// WithTrigger tags ctx with what started the run (cron, http, lambda, cli).
func WithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, triggerKey{}, trigger)
}

// TriggerFrom returns the trigger tagged on ctx, defaulting to "cron".
func TriggerFrom(ctx context.Context) string {
	if t, ok := ctx.Value(triggerKey{}).(string); ok && t != "" {
		return t
	}
	return "cron"
}

// Log reads and writes cron_runs.
type Log struct {
	pool db.Pool
	now  func() time.Time
}

// NewLog creates a Log backed by pool.
func NewLog(pool db.Pool) *Log {
	return &Log{pool: pool, now: time.Now}
}

// Start inserts a running row and returns its id.
func (l *Log) Start(ctx context.Context, jobType, triggeredBy string) (string, error) {
	id := uuid.NewString()
	_, err := l.pool.Exec(ctx, `
		INSERT INTO cron_runs (id, job_type, status, triggered_by, started_at)
		VALUES ($1, $2, 'running', $3, $4)`,
		id, jobType, triggeredBy, l.now().UTC(),
	)
	if err != nil {
		return "", eris.Wrapf(err, "runlog: start %s", jobType)
	}
	return id, nil
}

// Finish closes the run with the batch counters. Failures are logged and
// never returned so they cannot mask the job's own outcome.
func (l *Log) Finish(ctx context.Context, id string, b *Batch, fatal error) {
	if id == "" {
		return
	}
	status := b.Status(fatal)
	if fatal != nil {
		b.AddError(fatal.Error())
	}
	s := b.Snapshot()

	errorsJSON, err := json.Marshal(nonNil(s.Errors))
	if err != nil {
		zap.L().Warn("runlog: encode errors", zap.String("run_id", id), zap.Error(err))
		errorsJSON = []byte("[]")
	}
	metaJSON, err := json.Marshal(s.Metadata)
	if err != nil {
		zap.L().Warn("runlog: encode metadata", zap.String("run_id", id), zap.Error(err))
		metaJSON = []byte("{}")
	}

	// The run may have been cancelled; the audit row is still written.
	ctx = context.WithoutCancel(ctx)
	_, err = l.pool.Exec(ctx, `
		UPDATE cron_runs SET
			status = $2, items_processed = $3, items_inserted = $4, items_updated = $5,
			items_skipped = $6, error_count = $7, errors = $8, metadata = $9, finished_at = $10
		WHERE id = $1`,
		id, string(status), s.Processed, s.Inserted, s.Updated, s.Skipped, s.ErrorCount,
		errorsJSON, metaJSON, l.now().UTC(),
	)
	if err != nil {
		zap.L().Warn("runlog: finish failed", zap.String("run_id", id), zap.Error(err))
	}
}

// Run executes fn inside a recorded run. The run row is always finished,
// including when fn returns an error. A panic in fn is recovered and
// returned as the run's fatal error. A nil Log runs fn unrecorded.
func (l *Log) Run(ctx context.Context, jobType string, fn func(ctx context.Context, b *Batch) error) (s Summary, err error) {
	b := NewBatch()
	if l != nil {
		id, startErr := l.Start(ctx, jobType, TriggerFrom(ctx))
		if startErr != nil {
			zap.L().Warn("runlog: start failed, continuing unrecorded",
				zap.String("job", jobType), zap.Error(startErr))
		}
		b.RunID = id
		defer func() {
			l.Finish(ctx, id, b, err)
		}()
	}
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("runlog: %s panic: %v", jobType, r)
			zap.L().Error("runlog: job panicked", zap.String("job", jobType), zap.Any("panic", r))
			s = b.Snapshot()
			s.Status = b.Status(err)
		}
	}()

	err = fn(ctx, b)
	s = b.Snapshot()
	s.Status = b.Status(err)
	return s, err
}

// Recent returns the latest runs, optionally filtered by job type.
func (l *Log) Recent(ctx context.Context, jobType string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.pool.Query(ctx, `
		SELECT id, job_type, status, triggered_by, items_processed, items_inserted, items_updated,
			items_skipped, error_count, errors, metadata, started_at, finished_at
		FROM cron_runs
		WHERE ($1 = '' OR job_type = $1)
		ORDER BY started_at DESC
		LIMIT $2`,
		jobType, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: list recent")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var status string
		var errorsJSON, metaJSON []byte
		if err := rows.Scan(&r.ID, &r.JobType, &status, &r.TriggeredBy, &r.Processed, &r.Inserted,
			&r.Updated, &r.Skipped, &r.ErrorCount, &errorsJSON, &metaJSON, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "runlog: scan run")
		}
		r.Status = Status(status)
		if len(errorsJSON) > 0 {
			_ = json.Unmarshal(errorsJSON, &r.Errors)
		}
		if len(metaJSON) > 0 {
			_ = json.Unmarshal(metaJSON, &r.Metadata)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "runlog: iterate runs")
	}
	return runs, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
