package scheduler

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/grantwatch/internal/db"
	"github.com/sells-group/grantwatch/internal/lifecycle"
)

// DueCheck is a lifecycle record whose next check is due.
type DueCheck struct {
	EntryID  string
	Status   lifecycle.Status
	Priority int
}

// CheckURL is a representative URL for a catalog entry.
type CheckURL struct {
	URL        string
	SourceType string
	DocType    string
}

// Store is the persistence the scheduler reads and bumps.
type Store interface {
	DueSources(ctx context.Context, now time.Time, limit int) ([]Source, error)
	BumpSource(ctx context.Context, id string, next, now time.Time) error
	DueChecks(ctx context.Context, now time.Time, limit int) ([]DueCheck, error)
	BumpCheck(ctx context.Context, entryID string, next time.Time, freq lifecycle.Frequency, now time.Time) error
	CheckURLs(ctx context.Context, entryID string) ([]CheckURL, error)
}

// PostgresStore implements Store using pgx.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// DueSources returns enabled sources never crawled or due by now.
func (s *PostgresStore) DueSources(ctx context.Context, now time.Time, limit int) ([]Source, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, root_url, domain_key, scope, update_frequency, priority
		FROM source_registry
		WHERE enabled AND (next_crawl_at IS NULL OR next_crawl_at <= $1)
		ORDER BY priority ASC, next_crawl_at ASC NULLS FIRST
		LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "scheduler: due sources")
	}
	defer rows.Close()

	var out []Source
	for rows.Next() {
		var src Source
		if err := rows.Scan(&src.ID, &src.RootURL, &src.DomainKey, &src.Scope, &src.UpdateFrequency, &src.Priority); err != nil {
			return nil, eris.Wrap(err, "scheduler: scan source")
		}
		out = append(out, src)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "scheduler: iterate sources")
	}
	return out, nil
}

// BumpSource moves a source's next crawl forward.
func (s *PostgresStore) BumpSource(ctx context.Context, id string, next, now time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE source_registry SET next_crawl_at = $2, updated_at = $3 WHERE id = $1`,
		id, next, now,
	)
	if err != nil {
		return eris.Wrapf(err, "scheduler: bump source %s", id)
	}
	return nil
}

// DueChecks returns open or pending lifecycle records due by now.
func (s *PostgresStore) DueChecks(ctx context.Context, now time.Time, limit int) ([]DueCheck, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT entry_id, status, priority
		FROM lifecycle_records
		WHERE next_check_at <= $1
		  AND status NOT IN ('closed_by_deadline', 'closed_by_budget', 'suspended')
		ORDER BY priority ASC, next_check_at ASC
		LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "scheduler: due checks")
	}
	defer rows.Close()

	var out []DueCheck
	for rows.Next() {
		var c DueCheck
		var status string
		if err := rows.Scan(&c.EntryID, &status, &c.Priority); err != nil {
			return nil, eris.Wrap(err, "scheduler: scan check")
		}
		c.Status = lifecycle.Status(status)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "scheduler: iterate checks")
	}
	return out, nil
}

// BumpCheck moves a record's next check forward.
func (s *PostgresStore) BumpCheck(ctx context.Context, entryID string, next time.Time, freq lifecycle.Frequency, now time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE lifecycle_records SET next_check_at = $2, check_frequency = $3, updated_at = $4 WHERE entry_id = $1`,
		entryID, next, string(freq), now,
	)
	if err != nil {
		return eris.Wrapf(err, "scheduler: bump check %s", entryID)
	}
	return nil
}

// CheckURLs returns the entry's registered source URLs plus its detail URL.
func (s *PostgresStore) CheckURLs(ctx context.Context, entryID string) ([]CheckURL, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT url, source_type, doc_type FROM lifecycle_sources WHERE entry_id = $1
		UNION
		SELECT detail_url, 'portal', 'guideline' FROM catalog_entries WHERE id = $1 AND detail_url <> ''`,
		entryID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "scheduler: check urls %s", entryID)
	}
	defer rows.Close()

	var out []CheckURL
	for rows.Next() {
		var u CheckURL
		if err := rows.Scan(&u.URL, &u.SourceType, &u.DocType); err != nil {
			return nil, eris.Wrap(err, "scheduler: scan check url")
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "scheduler: iterate check urls")
	}
	return out, nil
}
