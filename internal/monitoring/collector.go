// Package monitoring exposes engine metrics to Prometheus and checks the run
// archive for failing analyses and poorly decentralized networks.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/geobeat/gdi-cli/internal/model"
	"github.com/geobeat/gdi-cli/internal/store"
)

// MetricsSnapshot holds a point-in-time view of archive health.
type MetricsSnapshot struct {
	// Analysis runs within the lookback window.
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsFailed   int     `json:"runs_failed"`
	FailRate     float64 `json:"fail_rate"`
	AvgNodes     int     `json:"avg_nodes"`

	// Latest composite score per network, regardless of the window.
	Scores []store.NetworkScore `json:"scores"`
	// Networks whose latest GDI is below the configured floor.
	BelowFloor []string `json:"below_floor,omitempty"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	GDIFloor      float64   `json:"gdi_floor"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers metrics from the run archive.
type Collector struct {
	store    store.Store
	gdiFloor float64
}

// NewCollector creates a new metrics collector. Networks whose latest GDI is
// below gdiFloor are reported in the snapshot; a floor <= 0 disables it.
func NewCollector(st store.Store, gdiFloor float64) *Collector {
	return &Collector{store: st, gdiFloor: gdiFloor}
}

// Collect gathers a snapshot of archive metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := time.Now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		GDIFloor:      c.gdiFloor,
		CollectedAt:   now,
	}

	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.store.ListRuns(ctx, store.RunFilter{
		CreatedAfter: cutoff,
		Limit:        10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.RunsTotal = len(runs)
	var totalNodes int
	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusFailed:
			snap.RunsFailed++
		}
		totalNodes += r.NodeCount
	}
	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.FailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if snap.RunsTotal > 0 {
		snap.AvgNodes = totalNodes / snap.RunsTotal
	}

	scores, err := c.store.LatestScores(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: latest scores")
	}
	snap.Scores = scores
	if c.gdiFloor > 0 {
		for _, sc := range scores {
			if sc.GDI < c.gdiFloor {
				snap.BelowFloor = append(snap.BelowFloor, sc.Network)
			}
		}
	}

	return snap, nil
}
