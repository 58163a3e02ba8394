package analysis

import (
	"context"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geobeat/gdi-cli/internal/geoerr"
	"github.com/geobeat/gdi-cli/internal/model"
)

var countries = []string{"US", "DE", "FR", "JP", "SG", "BR", "CA", "GB", "AU", "NL"}

// scatteredSet builds n labelled points spread around a few metro areas.
func scatteredSet(t *testing.T, n int) model.PointSet {
	t.Helper()
	metros := [][2]float64{{40.7, -74.0}, {50.1, 8.7}, {48.9, 2.4}, {35.7, 139.7}, {1.35, 103.8}}
	rng := rand.New(rand.NewPCG(1, 2))
	pts := make([]model.Point, n)
	for i := range pts {
		m := metros[i%len(metros)]
		pts[i] = model.Point{
			ID:           fmt.Sprintf("node-%d", i),
			Latitude:     m[0] + rng.Float64()*4 - 2,
			Longitude:    m[1] + rng.Float64()*4 - 2,
			Country:      countries[i%len(countries)],
			Organization: fmt.Sprintf("org-%d", i%17),
		}
	}
	ps, err := model.NewPointSet("testnet", pts)
	require.NoError(t, err)
	return ps
}

func fastOptions() Options {
	opts := DefaultOptions()
	opts.Permutations = 99
	opts.Workers = 2
	return opts
}

func TestAnalyze(t *testing.T) {
	ps := scatteredSet(t, 200)

	rep, err := Analyze(context.Background(), ps, fastOptions())
	require.NoError(t, err)

	assert.Equal(t, "testnet", rep.Network)
	assert.Equal(t, 200, rep.TotalNodes)
	assert.Len(t, rep.Metrics, 4)
	for _, name := range []string{model.MetricMoransI, model.MetricSpatialHHI, model.MetricENL, model.MetricANN} {
		m, ok := rep.Metrics[name]
		require.True(t, ok, name)
		assert.NotEmpty(t, m.Interpretation, name)
	}

	require.NotNil(t, rep.Composite)
	assert.GreaterOrEqual(t, rep.Composite.GDI, 0.0)
	assert.LessOrEqual(t, rep.Composite.GDI, 100.0)
	assert.Equal(t, 10, rep.Composite.JDI.Categories)
	assert.Equal(t, 17, rep.Composite.IHI.Categories)
	assert.Equal(t, 200, rep.Cells.Total)
	assert.Equal(t, rep.Metrics[model.MetricSpatialHHI].Metadata["cells_occupied"], rep.Cells.Len())

	s := rep.Summary()
	assert.Equal(t, rep.Composite.GDI, s.GDI)
	assert.Equal(t, rep.Metrics[model.MetricMoransI].Value, s.MoransI)
	assert.Equal(t, 9, s.Resolution)
}

func TestAnalyze_Deterministic(t *testing.T) {
	ps := scatteredSet(t, 150)

	a, err := Analyze(context.Background(), ps, fastOptions())
	require.NoError(t, err)

	opts := fastOptions()
	opts.Workers = 5
	b, err := Analyze(context.Background(), ps, opts)
	require.NoError(t, err)

	assert.Equal(t, a.Metrics, b.Metrics)
	assert.Equal(t, a.Composite, b.Composite)
}

func TestAnalyze_SkipComposite(t *testing.T) {
	ps := scatteredSet(t, 50)
	for i := range ps.Points {
		ps.Points[i].Country = ""
		ps.Points[i].Organization = ""
	}

	opts := fastOptions()
	_, err := Analyze(context.Background(), ps, opts)
	require.Error(t, err)
	assert.True(t, geoerr.IsInsufficientData(err), "missing labels fail the composite")

	opts.SkipComposite = true
	rep, err := Analyze(context.Background(), ps, opts)
	require.NoError(t, err)
	assert.Nil(t, rep.Composite)
	assert.Len(t, rep.Metrics, 4)
	assert.Zero(t, rep.Summary().GDI)
}

func TestAnalyze_Errors(t *testing.T) {
	ps := scatteredSet(t, 20)

	opts := fastOptions()
	opts.ThresholdKm = 0
	_, err := Analyze(context.Background(), ps, opts)
	assert.True(t, geoerr.IsValidation(err))

	opts = fastOptions()
	opts.Composite.GDI.SizeWeight = 2
	_, err = Analyze(context.Background(), ps, opts)
	assert.True(t, geoerr.IsValidation(err))

	_, err = Analyze(context.Background(), model.PointSet{Network: "empty"}, fastOptions())
	assert.True(t, geoerr.IsValidation(err))

	// Points far apart have no neighbour pairs within 1 km.
	far, err := model.NewPointSet("far", []model.Point{
		{Latitude: 0, Longitude: 0, Country: "A", Organization: "x"},
		{Latitude: 10, Longitude: 10, Country: "B", Organization: "y"},
		{Latitude: -10, Longitude: 50, Country: "C", Organization: "z"},
	})
	require.NoError(t, err)
	opts = fastOptions()
	opts.ThresholdKm = 1
	_, err = Analyze(context.Background(), far, opts)
	assert.True(t, geoerr.IsInsufficientData(err))
}

func TestAnalyze_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Analyze(ctx, scatteredSet(t, 20), fastOptions())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOptionsValidate_LimitsAtBoundary(t *testing.T) {
	t.Parallel()
	o := DefaultOptions()
	o.Limits = Limits{MaxPermutations: 999, MaxThresholdKm: 500}
	assert.NoError(t, o.Validate())
}

func TestAnalyze_NeighborLinkBudget(t *testing.T) {
	t.Parallel()
	opts := DefaultOptions()
	opts.Permutations = 0
	opts.Limits.MaxNeighborLinks = 1

	_, err := Analyze(context.Background(), scatteredSet(t, 50), opts)
	require.Error(t, err)
	assert.True(t, geoerr.IsValidation(err))
}

func TestOptionsValidate(t *testing.T) {
	t.Parallel()
	require.NoError(t, DefaultOptions().Validate())

	tests := []struct {
		name   string
		mutate func(o *Options)
	}{
		{"negative permutations", func(o *Options) { o.Permutations = -1 }},
		{"resolution too high", func(o *Options) { o.Resolution = 31 }},
		{"zero density k", func(o *Options) { o.DensityK = 0 }},
		{"permutations over limit", func(o *Options) { o.Limits.MaxPermutations = 998 }},
		{"threshold over limit", func(o *Options) { o.Limits.MaxThresholdKm = 499.9 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			o := DefaultOptions()
			tt.mutate(&o)
			assert.True(t, geoerr.IsValidation(o.Validate()))
		})
	}
}
