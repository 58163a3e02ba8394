// Package store archives analysis runs and the metric series derived from
// them, in SQLite or PostgreSQL.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/geobeat/gdi-cli/internal/config"
	"github.com/geobeat/gdi-cli/internal/model"
)

// ErrNotFound is returned (wrapped) when a run does not exist.
var ErrNotFound = eris.New("store: not found")

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return eris.Is(err, ErrNotFound)
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Network      string          `json:"network,omitempty"`
	Status       model.RunStatus `json:"status,omitempty"`
	CreatedAfter time.Time       `json:"created_after,omitempty"`
	Limit        int             `json:"limit,omitempty"`
	Offset       int             `json:"offset,omitempty"`
}

// MetricPoint is one archived value of a per-network metric series.
type MetricPoint struct {
	RunID     string    `json:"run_id"`
	Network   string    `json:"network"`
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

// NetworkScore is the latest composite scoring of a network.
type NetworkScore struct {
	Network   string    `json:"network"`
	RunID     string    `json:"run_id"`
	GDI       float64   `json:"gdi"`
	PDI       float64   `json:"pdi"`
	JDI       float64   `json:"jdi"`
	IHI       float64   `json:"ihi"`
	NodeCount int       `json:"node_count"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store defines the persistence interface for the run archive.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run *model.Run) (*model.Run, error)
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Series
	ListMetricHistory(ctx context.Context, network, metric string, limit int) ([]MetricPoint, error)
	LatestScores(ctx context.Context) ([]NetworkScore, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

const (
	defaultListLimit    = 100
	defaultHistoryLimit = 100
)

// Open returns the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite", "":
		return NewSQLite(cfg.DatabaseURL)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, &PoolConfig{MaxConns: cfg.MaxConns, MinConns: cfg.MinConns})
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

// prepareRun copies run and fills in the ID, status and timestamps.
func prepareRun(run *model.Run) (*model.Run, error) {
	if run == nil {
		return nil, eris.New("store: nil run")
	}
	r := *run
	r.Network = strings.ToLower(strings.TrimSpace(r.Network))
	if r.Network == "" {
		return nil, eris.New("store: run network is required")
	}
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Status == "" {
		r.Status = model.RunStatusComplete
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.CreatedAt
	return &r, nil
}

type seriesValue struct {
	name  string
	value float64
}

// seriesOf returns the metric points recorded for a run. Failed runs and runs
// without a summary contribute nothing; composite indices are recorded only
// when the run was scored.
func seriesOf(r *model.Run) []MetricPoint {
	if r.Status != model.RunStatusComplete || r.Summary == nil {
		return nil
	}
	s := r.Summary
	values := []seriesValue{
		{model.MetricMoransI, s.MoransI},
		{model.MetricSpatialHHI, s.SpatialHHI},
		{model.MetricENL, s.ENL},
	}
	if s.HasComposite {
		values = append(values,
			seriesValue{model.IndexGDI, s.GDI},
			seriesValue{model.IndexPDI, s.PDI},
			seriesValue{model.IndexJDI, s.JDI},
			seriesValue{model.IndexIHI, s.IHI},
		)
	}
	out := make([]MetricPoint, len(values))
	for i, v := range values {
		out[i] = MetricPoint{RunID: r.ID, Network: r.Network, Metric: v.name, Value: v.value, CreatedAt: r.CreatedAt}
	}
	return out
}

// scoreOf returns the network score recorded for a run, or nil when the run
// carries no composite.
func scoreOf(r *model.Run) *NetworkScore {
	if r.Status != model.RunStatusComplete || r.Summary == nil || !r.Summary.HasComposite {
		return nil
	}
	return &NetworkScore{
		Network:   r.Network,
		RunID:     r.ID,
		GDI:       r.Summary.GDI,
		PDI:       r.Summary.PDI,
		JDI:       r.Summary.JDI,
		IHI:       r.Summary.IHI,
		NodeCount: r.NodeCount,
		UpdatedAt: r.CreatedAt,
	}
}

func listLimit(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}

// reverse puts a newest-first page of points into chronological order.
func reverse(points []MetricPoint) {
	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}
}
