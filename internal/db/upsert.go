package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpsertSpec describes a bulk upsert into Table.
type UpsertSpec struct {
	Table        Table
	Columns      []string // all columns being written, in encode order
	ConflictKeys []string // columns of the unique constraint
	UpdateCols   []string // columns replaced on conflict; nil means every non-key column
	// Monotonic, when set, names a column that never moves backwards: a
	// conflicting row only replaces the stored one if its value is not older.
	Monotonic string
}

func (s UpsertSpec) validate() error {
	switch {
	case s.Table.Name == "":
		return eris.New("db: upsert: no table specified")
	case len(s.Columns) == 0:
		return eris.New("db: upsert: no columns specified")
	case len(s.ConflictKeys) == 0:
		return eris.New("db: upsert: no conflict keys specified")
	}
	return nil
}

func (s UpsertSpec) updateCols() []string {
	if s.UpdateCols != nil {
		return s.UpdateCols
	}
	keys := make(map[string]bool, len(s.ConflictKeys))
	for _, k := range s.ConflictKeys {
		keys[k] = true
	}
	var cols []string
	for _, c := range s.Columns {
		if !keys[c] {
			cols = append(cols, c)
		}
	}
	return cols
}

// stagingTable is the per-transaction temp table rows are copied into.
func (s UpsertSpec) stagingTable() Table {
	return Table{Name: "_tmp_upsert_" + strings.ReplaceAll(s.Table.String(), ".", "_")}
}

func (s UpsertSpec) createStagingSQL() string {
	return fmt.Sprintf("CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		s.stagingTable().Sanitize(), s.Table.Sanitize())
}

func (s UpsertSpec) mergeSQL() string {
	cols := quoteAndJoin(s.Columns)

	update := s.updateCols()
	sets := make([]string, len(update))
	for i, c := range update {
		q := pgx.Identifier{c}.Sanitize()
		sets[i] = q + " = EXCLUDED." + q
	}

	sql := fmt.Sprintf("INSERT INTO %s AS t (%s) SELECT %s FROM %s ON CONFLICT (%s) DO UPDATE SET %s",
		s.Table.Sanitize(), cols, cols, s.stagingTable().Sanitize(),
		quoteAndJoin(s.ConflictKeys), strings.Join(sets, ", "))
	if s.Monotonic != "" {
		q := pgx.Identifier{s.Monotonic}.Sanitize()
		sql += fmt.Sprintf(" WHERE EXCLUDED.%s >= t.%s", q, q)
	}
	return sql
}

// Upsert writes items through a staging temp table: COPY into the stage,
// then a single INSERT ... ON CONFLICT merge, all in one transaction. It
// returns the number of rows inserted or updated.
func Upsert[T any](ctx context.Context, pool Pool, spec UpsertSpec, items []T, encode func(T) []any) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}
	if err := spec.validate(); err != nil {
		return 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: upsert: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, spec.createStagingSQL()); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: stage %s", spec.Table)
	}
	if _, err := CopyRows(ctx, tx, spec.stagingTable(), spec.Columns, items, encode); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: load %s", spec.Table)
	}

	tag, err := tx.Exec(ctx, spec.mergeSQL())
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert: merge %s", spec.Table)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: upsert: commit tx")
	}
	return tag.RowsAffected(), nil
}

func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
