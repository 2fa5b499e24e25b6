package blob

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS raw_payloads (
	entity_id    TEXT NOT NULL,
	hash         TEXT NOT NULL,
	content_type TEXT NOT NULL DEFAULT '',
	size         INTEGER NOT NULL,
	data         BLOB NOT NULL,
	created_at   DATETIME NOT NULL,
	PRIMARY KEY (entity_id, hash)
);
CREATE INDEX IF NOT EXISTS idx_raw_payloads_created_at ON raw_payloads(created_at);
`

// SQLiteStore keeps payloads in a local SQLite file.
type SQLiteStore struct {
	db  *sql.DB
	dsn string
	now func() time.Time
}

// NewSQLiteStore opens (and creates if needed) the database at dsn.
func NewSQLiteStore(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "blob: sqlite open")
	}
	// One writer keeps WAL contention and :memory: databases sane.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "blob: sqlite exec %s", pragma)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "blob: sqlite migrate")
	}
	return &SQLiteStore{db: db, dsn: dsn, now: time.Now}, nil
}

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, entityID, hash, contentType string, data []byte) (string, bool, error) {
	if err := checkKey(entityID, hash); err != nil {
		return "", false, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO raw_payloads (entity_id, hash, content_type, size, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entityID, hash, contentType, len(data), data, s.now().UTC(),
	)
	if err != nil {
		return "", false, eris.Wrapf(err, "blob: sqlite put %s/%s", entityID, hash)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", false, eris.Wrap(err, "blob: sqlite rows affected")
	}
	return "sqlite://" + Key(s.dsn, entityID, hash), n > 0, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, entityID, hash string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM raw_payloads WHERE entity_id = ? AND hash = ?`,
		entityID, hash,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "blob: sqlite get %s/%s", entityID, hash)
	}
	return data, nil
}

// Exists implements Store.
func (s *SQLiteStore) Exists(ctx context.Context, entityID, hash string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM raw_payloads WHERE entity_id = ? AND hash = ?`,
		entityID, hash,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "blob: sqlite exists %s/%s", entityID, hash)
	}
	return true, nil
}

// Prune deletes payloads stored before cutoff.
func (s *SQLiteStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM raw_payloads WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, eris.Wrap(err, "blob: sqlite prune")
	}
	return res.RowsAffected()
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
