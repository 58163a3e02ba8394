package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/geobeat/gdi-cli/internal/db"
	"github.com/geobeat/gdi-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"insert_run":     insertRunSQL,
	"get_run":        getRunSQL,
	"metric_history": metricHistorySQL,
	"latest_scores":  latestScoresSQL,
}

const (
	insertRunSQL = `INSERT INTO runs (id, label, network, node_count, status, summary, report, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	getRunSQL = `SELECT id, label, network, node_count, status, summary, report, error, created_at, updated_at
		FROM runs WHERE id = $1`
	metricHistorySQL = `SELECT run_id, network, metric, value, created_at FROM run_metrics
		WHERE network = $1 AND metric = $2 ORDER BY created_at DESC LIMIT $3`
	latestScoresSQL = `SELECT network, run_id, gdi, pdi, jdi, ihi, node_count, updated_at
		FROM network_scores ORDER BY network`
)

var (
	runMetricsTable     = db.ParseTable("run_metrics")
	runMetricColumns    = []string{"run_id", "network", "metric", "value", "created_at"}
	networkScoreColumns = []string{"network", "run_id", "gdi", "pdi", "jdi", "ihi", "node_count", "updated_at"}

	// An older run archived late must not overwrite a newer score.
	networkScoreUpsert = db.UpsertSpec{
		Table:        db.ParseTable("network_scores"),
		Columns:      networkScoreColumns,
		ConflictKeys: []string{"network"},
		Monotonic:    "updated_at",
	}
)

func encodeMetricPoint(p MetricPoint) []any {
	return []any{p.RunID, p.Network, p.Metric, p.Value, p.CreatedAt}
}

func encodeNetworkScore(sc NetworkScore) []any {
	return []any{sc.Network, sc.RunID, sc.GDI, sc.PDI, sc.JDI, sc.IHI, sc.NodeCount, sc.UpdatedAt}
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	label      TEXT NOT NULL DEFAULT '',
	network    TEXT NOT NULL,
	node_count INTEGER NOT NULL DEFAULT 0,
	status     TEXT NOT NULL DEFAULT 'complete',
	summary    JSONB,
	report     JSONB,
	error      JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_metrics (
	run_id     TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	network    TEXT NOT NULL,
	metric     TEXT NOT NULL,
	value      DOUBLE PRECISION NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, metric)
);

CREATE TABLE IF NOT EXISTS network_scores (
	network    TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	gdi        DOUBLE PRECISION NOT NULL,
	pdi        DOUBLE PRECISION NOT NULL,
	jdi        DOUBLE PRECISION NOT NULL,
	ihi        DOUBLE PRECISION NOT NULL,
	node_count INTEGER NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_network_created ON runs(network, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_run_metrics_series ON run_metrics(network, metric, created_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// CreateRun inserts the run and COPYs its metric series in one transaction,
// then upserts the network's latest score.
func (s *PostgresStore) CreateRun(ctx context.Context, run *model.Run) (*model.Run, error) {
	r, err := prepareRun(run)
	if err != nil {
		return nil, err
	}
	summaryJSON, errJSON, err := marshalRunParts(r)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, insertRunSQL,
		r.ID, r.Label, r.Network, r.NodeCount, string(r.Status),
		nullJSON(summaryJSON), nullJSON(r.Report), nullJSON(errJSON), r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	if _, err := db.CopyRows(ctx, tx, runMetricsTable, runMetricColumns, seriesOf(r), encodeMetricPoint); err != nil {
		return nil, eris.Wrap(err, "postgres: copy run metrics")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit run")
	}

	if sc := scoreOf(r); sc != nil {
		if _, err := db.Upsert(ctx, s.pool, networkScoreUpsert, []NetworkScore{*sc}, encodeNetworkScore); err != nil {
			return nil, eris.Wrap(err, "postgres: upsert network score")
		}
	}
	return r, nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	r, err := scanPgRun(s.pool.QueryRow(ctx, getRunSQL, runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", runID)
		}
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, label, network, node_count, status, summary, NULL::jsonb, error, created_at, updated_at
		FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Network != "" {
		query += fmt.Sprintf(` AND network = $%d`, argIdx)
		args = append(args, filter.Network)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if !filter.CreatedAfter.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, filter.CreatedAfter.UTC())
		argIdx++
	}
	query += ` ORDER BY created_at DESC, id`

	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit, defaultListLimit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) ListMetricHistory(ctx context.Context, network, metric string, limit int) ([]MetricPoint, error) {
	rows, err := s.pool.Query(ctx, metricHistorySQL, network, metric, listLimit(limit, defaultHistoryLimit))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: metric history")
	}
	defer rows.Close()

	var points []MetricPoint
	for rows.Next() {
		var p MetricPoint
		if err := rows.Scan(&p.RunID, &p.Network, &p.Metric, &p.Value, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan metric point")
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: metric history iterate")
	}
	reverse(points)
	return points, nil
}

func (s *PostgresStore) LatestScores(ctx context.Context) ([]NetworkScore, error) {
	rows, err := s.pool.Query(ctx, latestScoresSQL)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest scores")
	}
	defer rows.Close()

	var scores []NetworkScore
	for rows.Next() {
		var sc NetworkScore
		if err := rows.Scan(&sc.Network, &sc.RunID, &sc.GDI, &sc.PDI, &sc.JDI, &sc.IHI,
			&sc.NodeCount, &sc.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan network score")
		}
		scores = append(scores, sc)
	}
	return scores, eris.Wrap(rows.Err(), "postgres: latest scores iterate")
}

func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var status string
	var summary, report, runErr *[]byte

	if err := row.Scan(&r.ID, &r.Label, &r.Network, &r.NodeCount, &status,
		&summary, &report, &runErr, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	if err := unmarshalRunParts(&r, deref(summary), deref(report), deref(runErr)); err != nil {
		return nil, err
	}
	return &r, nil
}

func deref(b *[]byte) []byte {
	if b == nil {
		return nil
	}
	return *b
}
