package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/geobeat/gdi-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	label      TEXT NOT NULL DEFAULT '',
	network    TEXT NOT NULL,
	node_count INTEGER NOT NULL DEFAULT 0,
	status     TEXT NOT NULL DEFAULT 'complete',
	summary    TEXT,
	report     TEXT,
	error      TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS run_metrics (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	network    TEXT NOT NULL,
	metric     TEXT NOT NULL,
	value      REAL NOT NULL,
	created_at DATETIME NOT NULL,
	PRIMARY KEY (run_id, metric)
);

CREATE TABLE IF NOT EXISTS network_scores (
	network    TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	gdi        REAL NOT NULL,
	pdi        REAL NOT NULL,
	jdi        REAL NOT NULL,
	ihi        REAL NOT NULL,
	node_count INTEGER NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_network_created ON runs(network, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_run_metrics_series ON run_metrics(network, metric, created_at DESC);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.Run) (*model.Run, error) {
	r, err := prepareRun(run)
	if err != nil {
		return nil, err
	}
	summaryJSON, errJSON, err := marshalRunParts(r)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, label, network, node_count, status, summary, report, error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Label, r.Network, r.NodeCount, string(r.Status),
		nullString(summaryJSON), nullString(r.Report), nullString(errJSON), r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	for _, p := range seriesOf(r) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_metrics (run_id, network, metric, value, created_at) VALUES (?, ?, ?, ?, ?)`,
			p.RunID, p.Network, p.Metric, p.Value, p.CreatedAt,
		); err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert metric %s", p.Metric)
		}
	}

	if sc := scoreOf(r); sc != nil {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO network_scores (network, run_id, gdi, pdi, jdi, ihi, node_count, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (network) DO UPDATE SET
			   run_id = excluded.run_id, gdi = excluded.gdi, pdi = excluded.pdi, jdi = excluded.jdi,
			   ihi = excluded.ihi, node_count = excluded.node_count, updated_at = excluded.updated_at
			 WHERE excluded.updated_at >= network_scores.updated_at`,
			sc.Network, sc.RunID, sc.GDI, sc.PDI, sc.JDI, sc.IHI, sc.NodeCount, sc.UpdatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: upsert network score")
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit run")
	}
	return r, nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, label, network, node_count, status, summary, report, error, created_at, updated_at
		 FROM runs WHERE id = ?`,
		runID,
	)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: run %s", runID)
	}
	return r, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, label, network, node_count, status, summary, NULL, error, created_at, updated_at
		FROM runs WHERE 1=1`
	var args []any

	if filter.Network != "" {
		query += ` AND network = ?`
		args = append(args, filter.Network)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.CreatedAfter.UTC())
	}
	query += ` ORDER BY created_at DESC, id`

	query += ` LIMIT ?`
	args = append(args, listLimit(filter.Limit, defaultListLimit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) ListMetricHistory(ctx context.Context, network, metric string, limit int) ([]MetricPoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, network, metric, value, created_at FROM run_metrics
		 WHERE network = ? AND metric = ?
		 ORDER BY created_at DESC LIMIT ?`,
		network, metric, listLimit(limit, defaultHistoryLimit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: metric history")
	}
	defer rows.Close()

	var points []MetricPoint
	for rows.Next() {
		var p MetricPoint
		if err := rows.Scan(&p.RunID, &p.Network, &p.Metric, &p.Value, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan metric point")
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: metric history iterate")
	}
	reverse(points)
	return points, nil
}

func (s *SQLiteStore) LatestScores(ctx context.Context) ([]NetworkScore, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT network, run_id, gdi, pdi, jdi, ihi, node_count, updated_at
		 FROM network_scores ORDER BY network`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest scores")
	}
	defer rows.Close()

	var scores []NetworkScore
	for rows.Next() {
		var sc NetworkScore
		if err := rows.Scan(&sc.Network, &sc.RunID, &sc.GDI, &sc.PDI, &sc.JDI, &sc.IHI,
			&sc.NodeCount, &sc.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan network score")
		}
		scores = append(scores, sc)
	}
	return scores, eris.Wrap(rows.Err(), "sqlite: latest scores iterate")
}

// helpers

func marshalRunParts(r *model.Run) (summary, runErr []byte, err error) {
	if r.Summary != nil {
		if summary, err = json.Marshal(r.Summary); err != nil {
			return nil, nil, eris.Wrap(err, "store: marshal summary")
		}
	}
	if r.Error != nil {
		if runErr, err = json.Marshal(r.Error); err != nil {
			return nil, nil, eris.Wrap(err, "store: marshal run error")
		}
	}
	return summary, runErr, nil
}

func unmarshalRunParts(r *model.Run, summary, report, runErr []byte) error {
	if len(summary) > 0 {
		r.Summary = &model.RunSummary{}
		if err := json.Unmarshal(summary, r.Summary); err != nil {
			return eris.Wrap(err, "store: unmarshal summary")
		}
	}
	if len(report) > 0 {
		r.Report = json.RawMessage(report)
	}
	if len(runErr) > 0 {
		r.Error = &model.RunError{}
		if err := json.Unmarshal(runErr, r.Error); err != nil {
			return eris.Wrap(err, "store: unmarshal run error")
		}
	}
	return nil
}

func nullString(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var summary, report, runErr sql.NullString

	err := row.Scan(&r.ID, &r.Label, &r.Network, &r.NodeCount, &r.Status,
		&summary, &report, &runErr, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	if err := unmarshalRunParts(&r, []byte(summary.String), []byte(report.String), []byte(runErr.String)); err != nil {
		return nil, err
	}
	return &r, nil
}
