// Package db provides the Postgres pool abstraction and the bulk COPY and
// upsert helpers used by the run archive.
package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Table names a relation, optionally schema-qualified.
type Table struct {
	Schema string
	Name   string
}

// ParseTable splits "schema.name" into a Table. A bare name has no schema.
func ParseTable(s string) Table {
	if schema, name, ok := strings.Cut(s, "."); ok {
		return Table{Schema: schema, Name: name}
	}
	return Table{Name: s}
}

// Identifier returns the pgx identifier of the table.
func (t Table) Identifier() pgx.Identifier {
	if t.Schema == "" {
		return pgx.Identifier{t.Name}
	}
	return pgx.Identifier{t.Schema, t.Name}
}

// Sanitize returns the quoted SQL form of the table name.
func (t Table) Sanitize() string { return t.Identifier().Sanitize() }

func (t Table) String() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// CopyRows streams items into table over the COPY protocol. encode turns one
// item into its values in column order; a row of the wrong width aborts the
// copy.
func CopyRows[T any](ctx context.Context, pool Pool, table Table, columns []string, items []T, encode func(T) []any) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}

	n, err := pool.CopyFrom(ctx, table.Identifier(), columns, rowSource(table, columns, items, encode))
	if err != nil {
		return 0, eris.Wrapf(err, "db: copy into %s", table)
	}
	return n, nil
}

func rowSource[T any](table Table, columns []string, items []T, encode func(T) []any) pgx.CopyFromSource {
	return pgx.CopyFromSlice(len(items), func(i int) ([]any, error) {
		row := encode(items[i])
		if len(row) != len(columns) {
			return nil, eris.Errorf("db: %s row %d has %d values for %d columns", table, i, len(row), len(columns))
		}
		return row, nil
	})
}
