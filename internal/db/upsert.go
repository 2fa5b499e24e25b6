package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpsertConfig defines the parameters for a bulk upsert operation.
type UpsertConfig struct {
	Table        string   // target table (e.g., "source_registry")
	Columns      []string // all columns being inserted
	ConflictKeys []string // columns forming the unique constraint
	UpdateCols   []string // columns to update on conflict; nil = all non-conflict columns
}

// BulkUpsert performs a bulk upsert via a temp table and INSERT ... ON CONFLICT.
// 1. Creates a temp table with the same columns
// 2. COPY rows into the temp table
// 3. INSERT INTO target SELECT ... FROM temp ON CONFLICT (keys) DO UPDATE SET ...
// The temp table is dropped on commit.
func BulkUpsert(ctx context.Context, pool Pool, cfg UpsertConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	if len(cfg.Columns) == 0 {
		return 0, eris.New("db: upsert: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return 0, eris.New("db: upsert: no conflict keys specified")
	}

	updateCols := cfg.UpdateCols
	if updateCols == nil {
		conflictSet := make(map[string]bool, len(cfg.ConflictKeys))
		for _, k := range cfg.ConflictKeys {
			conflictSet[k] = true
		}
		for _, c := range cfg.Columns {
			if !conflictSet[c] {
				updateCols = append(updateCols, c)
			}
		}
	}

	var affected int64
	err := WithTx(ctx, pool, func(tx pgx.Tx) error {
		tempTable := TempTableName(cfg.Table)

		createSQL := fmt.Sprintf(
			"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
			pgx.Identifier{tempTable}.Sanitize(),
			sanitizeTable(cfg.Table),
		)
		if _, err := tx.Exec(ctx, createSQL); err != nil {
			return eris.Wrapf(err, "db: upsert: create temp table for %s", cfg.Table)
		}

		if _, err := tx.CopyFrom(ctx, pgx.Identifier{tempTable}, cfg.Columns, pgx.CopyFromRows(rows)); err != nil {
			return eris.Wrapf(err, "db: upsert: COPY into temp table for %s", cfg.Table)
		}

		colList := quoteAndJoin(cfg.Columns)
		action := "DO NOTHING"
		if len(updateCols) > 0 {
			setClauses := make([]string, 0, len(updateCols))
			for _, col := range updateCols {
				quoted := pgx.Identifier{col}.Sanitize()
				setClauses = append(setClauses, fmt.Sprintf("%s = EXCLUDED.%s", quoted, quoted))
			}
			action = "DO UPDATE SET " + strings.Join(setClauses, ", ")
		}

		upsertSQL := fmt.Sprintf(
			"INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) %s",
			sanitizeTable(cfg.Table),
			colList,
			colList,
			pgx.Identifier{tempTable}.Sanitize(),
			quoteAndJoin(cfg.ConflictKeys),
			action,
		)

		tag, err := tx.Exec(ctx, upsertSQL)
		if err != nil {
			return eris.Wrapf(err, "db: upsert: INSERT ON CONFLICT for %s", cfg.Table)
		}
		affected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

// TempTableName returns the temp table BulkUpsert stages rows in.
func TempTableName(table string) string {
	return "_tmp_upsert_" + strings.ReplaceAll(table, ".", "_")
}

// sanitizeTable handles schema-qualified table names like "public.source_registry".
func sanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

// quoteAndJoin quotes each column name and joins with commas.
func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
