// Package analysis runs the full decentralization pipeline over one point set:
// projection, grid binning, the four spatial metrics and the composite
// indices.
package analysis

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/geobeat/gdi-cli/internal/autocorr"
	"github.com/geobeat/gdi-cli/internal/composite"
	"github.com/geobeat/gdi-cli/internal/concentration"
	"github.com/geobeat/gdi-cli/internal/grid"
	"github.com/geobeat/gdi-cli/internal/model"
	"github.com/geobeat/gdi-cli/internal/pointpattern"
	"github.com/geobeat/gdi-cli/internal/projection"
)

// Report is the result of one analysis.
type Report struct {
	Network    string                        `json:"network"`
	TotalNodes int                           `json:"total_nodes"`
	CapturedAt time.Time                     `json:"captured_at"`
	Metrics    map[string]model.MetricResult `json:"metrics"`
	Composite  *composite.GDIScore           `json:"composite,omitempty"`
	Config     Options                       `json:"config"`
	DurationMs int64                         `json:"duration_ms"`

	// Frequency tables kept for exports; not part of the JSON document.
	Cells         model.Counts `json:"-"`
	Countries     model.Counts `json:"-"`
	Organizations model.Counts `json:"-"`
}

// Analyze computes every metric for ps. Any failing metric fails the whole
// analysis; there are no partial reports.
func Analyze(ctx context.Context, ps model.PointSet, opts Options) (*Report, error) {
	start := time.Now()
	log := zap.L().With(zap.String("network", ps.Network), zap.Int("nodes", ps.Len()))

	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := ps.Validate(); err != nil {
		return nil, err
	}
	log.Info("analysis: starting",
		zap.Float64("threshold_km", opts.ThresholdKm),
		zap.Int("resolution", opts.Resolution),
		zap.Int("permutations", opts.Permutations),
	)

	proj, err := projection.Project(ps)
	if err != nil {
		return nil, eris.Wrap(err, "analysis: project")
	}

	// Binned once; HHI and ENL share the same cell table.
	cells, err := grid.AssignCells(ps, opts.Resolution)
	if err != nil {
		return nil, eris.Wrap(err, "analysis: assign cells")
	}
	counts := grid.CellCounts(cells)

	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "analysis: cancelled")
	}

	moran, err := autocorr.MoransI(proj.Coords, nil, autocorr.Options{
		ThresholdKm:      opts.ThresholdKm,
		Permutations:     opts.Permutations,
		Seed:             opts.Seed,
		Workers:          opts.workers(),
		DensityK:         opts.DensityK,
		MaxNeighborLinks: opts.Limits.MaxNeighborLinks,
	})
	if err != nil {
		return nil, eris.Wrap(err, "analysis: morans i")
	}

	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "analysis: cancelled")
	}

	hhi, err := concentration.SpatialHHI(counts)
	if err != nil {
		return nil, eris.Wrap(err, "analysis: spatial hhi")
	}
	enl, err := concentration.EffectiveNumLocations(counts)
	if err != nil {
		return nil, eris.Wrap(err, "analysis: enl")
	}
	ann, err := pointpattern.AverageNearestNeighbor(proj.Coords)
	if err != nil {
		return nil, eris.Wrap(err, "analysis: average nearest neighbor")
	}

	rep := &Report{
		Network:    ps.Network,
		TotalNodes: ps.Len(),
		CapturedAt: ps.CapturedAt,
		Metrics: map[string]model.MetricResult{
			model.MetricMoransI:    moran.MetricResult(),
			model.MetricSpatialHHI: hhi.MetricResult(),
			model.MetricENL:        enl.MetricResult(),
			model.MetricANN:        ann.MetricResult(),
		},
		Config:        opts,
		Cells:         counts,
		Countries:     concentration.Distribution(ps.Countries()),
		Organizations: concentration.Distribution(ps.Organizations()),
	}

	if !opts.SkipComposite {
		gdi, err := scoreComposite(rep, moran, hhi, enl, opts.Composite)
		if err != nil {
			return nil, err
		}
		rep.Composite = gdi
	}

	rep.DurationMs = time.Since(start).Milliseconds()
	fields := []zap.Field{
		zap.Float64("morans_i", moran.I),
		zap.Float64("spatial_hhi", hhi.HHI),
		zap.Float64("enl", enl.ENL),
		zap.Int64("duration_ms", rep.DurationMs),
	}
	if rep.Composite != nil {
		fields = append(fields, zap.Float64("gdi", rep.Composite.GDI))
	}
	log.Info("analysis: complete", fields...)
	return rep, nil
}

func scoreComposite(rep *Report, moran *autocorr.Result, hhi *concentration.HHIResult,
	enl *concentration.ENLResult, cfg composite.Config) (*composite.GDIScore, error) {
	pdi, err := composite.PDI(composite.PDIInputs{
		MoransI:    moran.I,
		ENL:        enl.ENL,
		SpatialHHI: hhi.HHI,
	}, cfg.PDI)
	if err != nil {
		return nil, eris.Wrap(err, "analysis: pdi")
	}
	jdi, err := composite.JDI(rep.Countries, cfg.JDI)
	if err != nil {
		return nil, eris.Wrap(err, "analysis: jdi")
	}
	ihi, err := composite.IHI(rep.Organizations, cfg.IHI)
	if err != nil {
		return nil, eris.Wrap(err, "analysis: ihi")
	}
	gdi, err := composite.GDI(pdi, jdi, ihi, rep.TotalNodes, cfg.GDI)
	if err != nil {
		return nil, eris.Wrap(err, "analysis: gdi")
	}
	return gdi, nil
}

// Summary extracts the headline numbers of a report.
func (r *Report) Summary() *model.RunSummary {
	s := &model.RunSummary{
		MoransI:     r.Metrics[model.MetricMoransI].Value,
		SpatialHHI:  r.Metrics[model.MetricSpatialHHI].Value,
		ENL:         r.Metrics[model.MetricENL].Value,
		ThresholdKm: r.Config.ThresholdKm,
		Resolution:  r.Config.Resolution,
		DurationMs:  r.DurationMs,
	}
	if c := r.Composite; c != nil {
		s.GDI = c.GDI
		s.PDI = c.PDI.Score
		s.JDI = c.JDI.Score
		s.IHI = c.IHI.Score
		s.Interpretation = c.Interpretation
		s.HasComposite = true
	}
	return s
}
