package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geobeat/gdi-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

var runColumns = []string{"id", "label", "network", "node_count", "status", "summary", "report", "error", "created_at", "updated_at"}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestPostgresStore_Ping(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`SELECT 1`).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	require.NoError(t, s.Ping(context.Background()))

	mock.ExpectExec(`SELECT 1`).WillReturnError(fmt.Errorf("connection refused"))
	err := s.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: ping")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS runs`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO runs \(id, label, network, node_count, status, summary, report, error, created_at, updated_at\)`).
		WithArgs(anyArgs(10)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCopyFrom(pgx.Identifier{"run_metrics"}, runMetricColumns).WillReturnResult(7)
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_network_scores"`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_network_scores"}, networkScoreColumns).WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO "network_scores" .* ON CONFLICT \("network"\) DO UPDATE .* WHERE EXCLUDED."updated_at" >= t."updated_at"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	run, err := s.CreateRun(context.Background(), completeRun("ethereum", 61, at))
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, at, run.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateRun_Failed(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(pgxmock.AnyArg(), "", "celo", 0, "failed", nil, nil, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	_, err := s.CreateRun(context.Background(), &model.Run{
		Network: "celo",
		Status:  model.RunStatusFailed,
		Error:   &model.RunError{Kind: "degenerate", Message: "zero area"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateRun_CopyError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO runs`).WithArgs(anyArgs(10)...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCopyFrom(pgx.Identifier{"run_metrics"}, runMetricColumns).WillReturnError(fmt.Errorf("copy failed"))
	mock.ExpectRollback()

	_, err := s.CreateRun(context.Background(), completeRun("ethereum", 61, time.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "copy run metrics")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()
	summary := []byte(`{"gdi":61.2,"has_composite":true,"threshold_km":500,"resolution":9}`)
	report := []byte(`{"network":"ethereum"}`)

	mock.ExpectQuery(`SELECT id, label, network, node_count, status, summary, report, error, created_at, updated_at\s+FROM runs WHERE id = \$1`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows(runColumns).
			AddRow("run-1", "ethereum_10nodes", "ethereum", 10, "complete", &summary, &report, nil, now, now))

	run, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "ethereum_10nodes", run.Label)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	require.NotNil(t, run.Summary)
	assert.InDelta(t, 61.2, run.Summary.GDI, 1e-9)
	assert.Equal(t, 9, run.Summary.Resolution)
	assert.JSONEq(t, string(report), string(run.Report))
	assert.Nil(t, run.Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM runs WHERE id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "get run")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()
	after := now.Add(-24 * time.Hour)
	runErr := []byte(`{"kind":"validation","message":"bad"}`)

	mock.ExpectQuery(`AND network = \$1 AND status = \$2 AND created_at >= \$3 ORDER BY created_at DESC, id LIMIT \$4 OFFSET \$5`).
		WithArgs("ethereum", "failed", after, 10, 5).
		WillReturnRows(pgxmock.NewRows(runColumns).
			AddRow("run-2", "", "ethereum", 0, "failed", nil, nil, &runErr, now, now))

	runs, err := s.ListRuns(context.Background(), RunFilter{
		Network:      "ethereum",
		Status:       model.RunStatusFailed,
		CreatedAfter: after,
		Limit:        10,
		Offset:       5,
	})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.NotNil(t, runs[0].Error)
	assert.Equal(t, "validation", runs[0].Error.Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_DefaultLimit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`WHERE true ORDER BY created_at DESC, id LIMIT \$1$`).
		WithArgs(defaultListLimit).
		WillReturnRows(pgxmock.NewRows(runColumns))

	runs, err := s.ListRuns(context.Background(), RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListMetricHistory(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM run_metrics\s+WHERE network = \$1 AND metric = \$2 ORDER BY created_at DESC LIMIT \$3`).
		WithArgs("polygon", "gdi", 2).
		WillReturnRows(pgxmock.NewRows([]string{"run_id", "network", "metric", "value", "created_at"}).
			AddRow("r3", "polygon", "gdi", 52.0, t0.Add(48*time.Hour)).
			AddRow("r2", "polygon", "gdi", 45.0, t0.Add(24*time.Hour)))

	points, err := s.ListMetricHistory(context.Background(), "polygon", "gdi", 2)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, "r2", points[0].RunID)
	assert.Equal(t, "r3", points[1].RunID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LatestScores(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM network_scores ORDER BY network`).
		WillReturnRows(pgxmock.NewRows(networkScoreColumns).
			AddRow("celo", "r1", 48.0, 50.0, 40.0, 30.0, 300, now).
			AddRow("ethereum", "r2", 63.0, 66.0, 55.0, 42.0, 6958, now))

	scores, err := s.LatestScores(context.Background())
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Equal(t, 6958, scores[1].NodeCount)
	assert.InDelta(t, 63.0, scores[1].GDI, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LatestScores_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM network_scores`).WillReturnError(fmt.Errorf("connection reset"))

	_, err := s.LatestScores(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: latest scores")
	assert.NoError(t, mock.ExpectationsWereMet())
}
