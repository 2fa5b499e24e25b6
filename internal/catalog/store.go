package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/grantwatch/internal/db"
	"github.com/sells-group/grantwatch/internal/shard"
)

// DefaultTTL is how long a promoted or refreshed entry stays cached.
const DefaultTTL = 7 * 24 * time.Hour

// Entry is one row of catalog_entries.
type Entry struct {
	ID          string
	Source      string
	Title       string
	Fields      Fields
	ContentHash string
	DetailURL   string

	Ready           bool
	Excluded        bool
	ExclusionReason string
	MissingFields   []string
	ReadinessScore  int
	Searchable      bool

	ShardKey  int
	CachedAt  time.Time
	ExpiresAt time.Time
	UpdatedAt time.Time
}

// Readiness is the persisted outcome of a readiness check.
type Readiness struct {
	Ready           bool
	Excluded        bool
	ExclusionReason string
	MissingFields   []string
	Score           int
	Searchable      bool
}

// ErrNotFound is returned when an entry does not exist.
var ErrNotFound = eris.New("catalog: entry not found")

const entryColumns = `id, source, title, fields, content_hash, detail_url,
	ready, excluded, exclusion_reason, missing_fields, readiness_score, searchable,
	shard_key, cached_at, expires_at, updated_at`

// Store reads and writes catalog_entries.
type Store struct {
	pool db.Pool
	now  func() time.Time
}

// NewStore creates a Store backed by pool.
func NewStore(pool db.Pool) *Store {
	return &Store{pool: pool, now: time.Now}
}

// Upsert inserts e or merges it into the existing row on q. Fields follow
// Merge; the shard key is computed from the id on insert and never changed
// afterwards. It reports whether a new row was inserted.
func Upsert(ctx context.Context, q db.Querier, e Entry, now time.Time) (bool, error) {
	if e.ID == "" {
		return false, eris.New("catalog: upsert requires an id")
	}
	expires := e.ExpiresAt
	if expires.IsZero() {
		expires = now.Add(DefaultTTL)
	}

	var (
		title, hash, detailURL string
		raw                    []byte
	)
	err := q.QueryRow(ctx,
		`SELECT title, fields, content_hash, detail_url FROM catalog_entries WHERE id = $1 FOR UPDATE`,
		e.ID,
	).Scan(&title, &raw, &hash, &detailURL)

	if errors.Is(err, pgx.ErrNoRows) {
		body, mErr := json.Marshal(e.Fields)
		if mErr != nil {
			return false, eris.Wrapf(mErr, "catalog: encode fields %s", e.ID)
		}
		if _, err := q.Exec(ctx, `
			INSERT INTO catalog_entries (id, source, title, fields, content_hash, detail_url,
				shard_key, cached_at, expires_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $8)`,
			e.ID, e.Source, e.Title, body, e.ContentHash, e.DetailURL,
			shard.Of(e.ID), now, expires,
		); err != nil {
			return false, eris.Wrapf(err, "catalog: insert %s", e.ID)
		}
		return true, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "catalog: load %s", e.ID)
	}

	var existing Fields
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &existing); err != nil {
			return false, eris.Wrapf(err, "catalog: decode fields %s", e.ID)
		}
	}
	body, err := json.Marshal(Merge(existing, e.Fields))
	if err != nil {
		return false, eris.Wrapf(err, "catalog: encode fields %s", e.ID)
	}

	if _, err := q.Exec(ctx, `
		UPDATE catalog_entries SET
			title = $2, fields = $3, content_hash = $4, detail_url = $5,
			cached_at = $6, expires_at = $7, updated_at = $6
		WHERE id = $1`,
		e.ID, pickString(title, e.Title), body, pickString(hash, e.ContentHash),
		pickString(detailURL, e.DetailURL), now, expires,
	); err != nil {
		return false, eris.Wrapf(err, "catalog: update %s", e.ID)
	}
	return false, nil
}

// Get returns one entry.
func (s *Store) Get(ctx context.Context, id string) (*Entry, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+entryColumns+` FROM catalog_entries WHERE id = $1`, id)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: get %s", id)
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, eris.Wrapf(ErrNotFound, "catalog: get %s", id)
	}
	return &entries[0], nil
}

// ListForShards returns non-excluded entries with a detail URL whose shard key
// is in shards, least recently updated first.
func (s *Store) ListForShards(ctx context.Context, shards []int32, limit int) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+entryColumns+` FROM catalog_entries
		WHERE shard_key = ANY($1) AND NOT excluded AND detail_url <> ''
		ORDER BY updated_at ASC
		LIMIT $2`,
		shards, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: list for shards")
	}
	return scanEntries(rows)
}

// ListNotReady returns entries that are neither ready nor excluded.
func (s *Store) ListNotReady(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+entryColumns+` FROM catalog_entries
		WHERE NOT ready AND NOT excluded
		ORDER BY updated_at ASC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: list not ready")
	}
	return scanEntries(rows)
}

// SaveFields merges f into the stored fields of id in one transaction and
// returns the merged result.
func (s *Store) SaveFields(ctx context.Context, id string, f Fields, contentHash string) (Fields, error) {
	now := s.now().UTC()
	var merged Fields

	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var raw []byte
		if err := tx.QueryRow(ctx,
			`SELECT fields FROM catalog_entries WHERE id = $1 FOR UPDATE`, id,
		).Scan(&raw); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return eris.Wrapf(ErrNotFound, "catalog: save fields %s", id)
			}
			return eris.Wrapf(err, "catalog: load fields %s", id)
		}

		var existing Fields
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &existing); err != nil {
				return eris.Wrapf(err, "catalog: decode fields %s", id)
			}
		}
		merged = Merge(existing, f)

		body, err := json.Marshal(merged)
		if err != nil {
			return eris.Wrapf(err, "catalog: encode fields %s", id)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE catalog_entries SET
				fields = $2,
				content_hash = CASE WHEN $3 = '' THEN content_hash ELSE $3 END,
				cached_at = $4, updated_at = $4
			WHERE id = $1`,
			id, body, contentHash, now,
		); err != nil {
			return eris.Wrapf(err, "catalog: save fields %s", id)
		}
		return nil
	})
	if err != nil {
		return Fields{}, err
	}
	return merged, nil
}

// SaveReadiness persists a readiness outcome. When fields is non-nil its
// values fill only the fields still empty in the stored row, which is
// re-read under a row lock.
func (s *Store) SaveReadiness(ctx context.Context, id string, r Readiness, fields *Fields) error {
	now := s.now().UTC()
	missing := r.MissingFields
	if missing == nil {
		missing = []string{}
	}

	if fields == nil {
		if _, err := s.pool.Exec(ctx, `
			UPDATE catalog_entries SET
				ready = $2 AND NOT excluded, excluded = excluded OR $3,
				exclusion_reason = CASE WHEN excluded THEN exclusion_reason ELSE $4 END, missing_fields = $5,
				readiness_score = $6, searchable = $7 AND NOT excluded, updated_at = $8
			WHERE id = $1`,
			id, r.Ready, r.Excluded, r.ExclusionReason, missing, r.Score, r.Searchable, now,
		); err != nil {
			return eris.Wrapf(err, "catalog: save readiness %s", id)
		}
		return nil
	}

	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var raw []byte
		if err := tx.QueryRow(ctx,
			`SELECT fields FROM catalog_entries WHERE id = $1 FOR UPDATE`, id,
		).Scan(&raw); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return eris.Wrapf(ErrNotFound, "catalog: save readiness %s", id)
			}
			return eris.Wrapf(err, "catalog: load fields %s", id)
		}

		var current Fields
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &current); err != nil {
				return eris.Wrapf(err, "catalog: decode fields %s", id)
			}
		}
		filled := FillEmpty(current, *fields)

		body, err := json.Marshal(filled)
		if err != nil {
			return eris.Wrapf(err, "catalog: encode fields %s", id)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE catalog_entries SET
				ready = $2 AND NOT excluded, excluded = excluded OR $3,
				exclusion_reason = CASE WHEN excluded THEN exclusion_reason ELSE $4 END, missing_fields = $5,
				readiness_score = $6, searchable = $7 AND NOT excluded, updated_at = $8, fields = $9
			WHERE id = $1`,
			id, r.Ready, r.Excluded, r.ExclusionReason, missing, r.Score, r.Searchable, now, body,
		); err != nil {
			return eris.Wrapf(err, "catalog: save readiness %s", id)
		}
		return nil
	})
}

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var raw []byte
		if err := rows.Scan(&e.ID, &e.Source, &e.Title, &raw, &e.ContentHash, &e.DetailURL,
			&e.Ready, &e.Excluded, &e.ExclusionReason, &e.MissingFields, &e.ReadinessScore, &e.Searchable,
			&e.ShardKey, &e.CachedAt, &e.ExpiresAt, &e.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "catalog: scan entry")
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &e.Fields); err != nil {
				return nil, eris.Wrapf(err, "catalog: decode fields %s", e.ID)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "catalog: iterate entries")
	}
	return out, nil
}
