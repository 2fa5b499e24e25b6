package discovery

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/grantwatch/internal/catalog"
	"github.com/sells-group/grantwatch/internal/db"
	"github.com/sells-group/grantwatch/internal/lifecycle"
)

// ErrNotValidated is returned when promotion is attempted on an item that is
// not in the validated stage.
var ErrNotValidated = eris.New("discovery: item is not validated")

// ErrInvalidStage is returned when a stage transition would move backwards.
var ErrInvalidStage = eris.New("discovery: invalid stage transition")

// Store defines persistence operations for the discovery pipeline.
type Store interface {
	FindByDedupeKey(ctx context.Context, key string) (*Item, error)
	Get(ctx context.Context, id string) (*Item, error)
	Insert(ctx context.Context, it *Item) error
	Touch(ctx context.Context, id string, seenAt time.Time) error
	Refresh(ctx context.Context, it *Item) error
	SetStage(ctx context.Context, id string, stage Stage, score int, note string, at time.Time) error
	ListByStage(ctx context.Context, stage Stage, limit int) ([]Item, error)
	StageCounts(ctx context.Context) (map[Stage]int, error)
	Promote(ctx context.Context, it Item, entry catalog.Entry, opts PromoteOpts) error
}

// PromoteOpts carries the per-promotion values that are not part of the item.
type PromoteOpts struct {
	LifecyclePriority int
	Note              string
	Now               time.Time
}

// PostgresStore implements Store using pgx.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const itemColumns = `id, dedupe_key, source_id, title, summary, url, region_code, stage,
	quality_score, validation_note, content_hash, raw, first_seen_at, last_seen_at,
	promoted_to_id, promoted_at`

// FindByDedupeKey returns the item with key, or nil when none exists.
func (s *PostgresStore) FindByDedupeKey(ctx context.Context, key string) (*Item, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+itemColumns+` FROM discovery_items WHERE dedupe_key = $1`, key)
	if err != nil {
		return nil, eris.Wrapf(err, "discovery: find %s", key)
	}
	items, err := scanItems(rows)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

// Get returns the item with id, or nil when none exists.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Item, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+itemColumns+` FROM discovery_items WHERE id = $1`, id)
	if err != nil {
		return nil, eris.Wrapf(err, "discovery: get %s", id)
	}
	items, err := scanItems(rows)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

// Insert writes a new raw item.
func (s *PostgresStore) Insert(ctx context.Context, it *Item) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO discovery_items (id, dedupe_key, source_id, title, summary, url, region_code,
			stage, quality_score, content_hash, raw, first_seen_at, last_seen_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12, $12)`,
		it.ID, it.DedupeKey, it.SourceID, it.Title, it.Summary, it.URL, it.RegionCode,
		string(it.Stage), it.QualityScore, it.ContentHash, rawOrEmpty(it.Raw), it.FirstSeenAt,
	)
	if err != nil {
		return eris.Wrapf(err, "discovery: insert %s", it.DedupeKey)
	}
	return nil
}

// Touch records a repeat sighting with unchanged content.
func (s *PostgresStore) Touch(ctx context.Context, id string, seenAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE discovery_items SET last_seen_at = $2 WHERE id = $1`,
		id, seenAt,
	)
	if err != nil {
		return eris.Wrapf(err, "discovery: touch %s", id)
	}
	return nil
}

// Refresh overwrites the summary fields of a changed item. The stage is reset
// to raw unless the item was already promoted.
func (s *PostgresStore) Refresh(ctx context.Context, it *Item) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE discovery_items SET
			title = $2, summary = $3, url = $4, region_code = $5, quality_score = $6,
			content_hash = $7, raw = $8, last_seen_at = $9, updated_at = $9,
			stage = CASE WHEN stage = 'promoted' THEN stage ELSE 'raw' END,
			validation_note = CASE WHEN stage = 'promoted' THEN validation_note ELSE '' END
		WHERE id = $1`,
		it.ID, it.Title, it.Summary, it.URL, it.RegionCode, it.QualityScore,
		it.ContentHash, rawOrEmpty(it.Raw), it.LastSeenAt,
	)
	if err != nil {
		return eris.Wrapf(err, "discovery: refresh %s", it.ID)
	}
	return nil
}

// SetStage moves a raw item to validated or rejected.
func (s *PostgresStore) SetStage(ctx context.Context, id string, stage Stage, score int, note string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE discovery_items SET stage = $2, quality_score = $3, validation_note = $4, updated_at = $5
		WHERE id = $1 AND stage = 'raw'`,
		id, string(stage), score, note, at,
	)
	if err != nil {
		return eris.Wrapf(err, "discovery: set stage %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrInvalidStage, "discovery: set stage %s to %s", id, stage)
	}
	return nil
}

// ListByStage returns items in stage, best score and newest first.
func (s *PostgresStore) ListByStage(ctx context.Context, stage Stage, limit int) ([]Item, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+itemColumns+` FROM discovery_items
		WHERE stage = $1
		ORDER BY quality_score DESC, first_seen_at DESC
		LIMIT $2`,
		string(stage), limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "discovery: list %s", stage)
	}
	return scanItems(rows)
}

// StageCounts returns the number of items per stage.
func (s *PostgresStore) StageCounts(ctx context.Context) (map[Stage]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT stage, count(*) FROM discovery_items GROUP BY stage`)
	if err != nil {
		return nil, eris.Wrap(err, "discovery: stage counts")
	}
	defer rows.Close()

	out := make(map[Stage]int)
	for rows.Next() {
		var stage string
		var n int
		if err := rows.Scan(&stage, &n); err != nil {
			return nil, eris.Wrap(err, "discovery: scan stage count")
		}
		out[Stage(stage)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "discovery: iterate stage counts")
	}
	return out, nil
}

// Promote writes the catalog entry, its lifecycle record and check URLs, the
// promoted stage and the audit log row in one transaction. Nothing is written
// unless all of them succeed.
func (s *PostgresStore) Promote(ctx context.Context, it Item, entry catalog.Entry, opts PromoteOpts) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var stage string
		err := tx.QueryRow(ctx,
			`SELECT stage FROM discovery_items WHERE id = $1 FOR UPDATE`, it.ID,
		).Scan(&stage)
		if errors.Is(err, pgx.ErrNoRows) {
			return eris.Wrapf(ErrNotValidated, "discovery: promote %s: missing", it.ID)
		}
		if err != nil {
			return eris.Wrapf(err, "discovery: lock %s", it.ID)
		}
		if Stage(stage) != StageValidated {
			return eris.Wrapf(ErrNotValidated, "discovery: promote %s: stage %s", it.ID, stage)
		}

		if _, err := catalog.Upsert(ctx, tx, entry, opts.Now); err != nil {
			return eris.Wrapf(err, "discovery: promote %s", it.ID)
		}
		if err := lifecycle.EnsureRecord(ctx, tx, entry.ID, opts.LifecyclePriority, opts.Now); err != nil {
			return eris.Wrapf(err, "discovery: promote %s", it.ID)
		}
		sources := lifecycle.SourcesFor(entry.DetailURL, entry.Fields.OfficialURL, entry.Fields.Attachments)
		if _, err := lifecycle.AddSources(ctx, tx, entry.ID, sources, false); err != nil {
			return eris.Wrapf(err, "discovery: promote %s", it.ID)
		}

		if _, err := tx.Exec(ctx, `
			UPDATE discovery_items SET stage = 'promoted', promoted_to_id = $2, promoted_at = $3, updated_at = $3
			WHERE id = $1`,
			it.ID, entry.ID, opts.Now,
		); err != nil {
			return eris.Wrapf(err, "discovery: mark promoted %s", it.ID)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO promotion_log (id, discovery_item_id, catalog_entry_id, source_id, action,
				quality_score, note, created_at)
			VALUES ($1, $2, $3, $4, 'promote', $5, $6, $7)`,
			uuid.NewString(), it.ID, entry.ID, it.SourceID, it.QualityScore, opts.Note, opts.Now,
		); err != nil {
			return eris.Wrapf(err, "discovery: log promotion %s", it.ID)
		}
		return nil
	})
}

func scanItems(rows pgx.Rows) ([]Item, error) {
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		var stage string
		if err := rows.Scan(&it.ID, &it.DedupeKey, &it.SourceID, &it.Title, &it.Summary, &it.URL,
			&it.RegionCode, &stage, &it.QualityScore, &it.ValidationNote, &it.ContentHash, &it.Raw,
			&it.FirstSeenAt, &it.LastSeenAt, &it.PromotedToID, &it.PromotedAt); err != nil {
			return nil, eris.Wrap(err, "discovery: scan item")
		}
		it.Stage = Stage(stage)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "discovery: iterate items")
	}
	return items, nil
}

func rawOrEmpty(raw []byte) []byte {
	if len(raw) == 0 {
		return []byte("{}")
	}
	return raw
}
