package concentration

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geobeat/gdi-cli/internal/geoerr"
	"github.com/geobeat/gdi-cli/internal/model"
)

func uniform(cells, per int) model.Counts {
	m := make(map[string]int, cells)
	for i := range cells {
		m[fmt.Sprintf("cell-%02d", i)] = per
	}
	return model.NewCounts(m)
}

func TestSpatialHHI_HundredPointsTenCells(t *testing.T) {
	c := uniform(10, 10)

	hhi, err := SpatialHHI(c)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, hhi.HHI, 1e-12)
	assert.Equal(t, 10, hhi.Cells)
	assert.Equal(t, "Low concentration across 10 cells (HHI=0.100)", hhi.Interpretation)
	assert.Len(t, hhi.TopCells, 5)
	assert.InDelta(t, 0.01, hhi.MinTheoretical, 1e-12)
	assert.InDelta(t, 10, hhi.ConcentrationRatio, 1e-9)

	enl, err := EffectiveNumLocations(c)
	require.NoError(t, err)
	assert.InDelta(t, 10, enl.ENL, 1e-9)
	assert.InDelta(t, 1, enl.Evenness, 1e-9)
	assert.InDelta(t, 1, enl.NormalizedEntropy, 1e-9)
	assert.Contains(t, enl.Interpretation, "Very even distribution")
}

func TestSpatialHHI_SingleCell(t *testing.T) {
	c := model.NewCounts(map[string]int{"only": 42})

	hhi, err := SpatialHHI(c)
	require.NoError(t, err)
	assert.Equal(t, 1.0, hhi.HHI)
	assert.Equal(t, 1.0, hhi.MaxShare)
	assert.Contains(t, hhi.Interpretation, "High concentration across 1 cells")

	enl, err := EffectiveNumLocations(c)
	require.NoError(t, err)
	assert.Equal(t, 1.0, enl.ENL)
	assert.Equal(t, 0.0, enl.Entropy)
	assert.Equal(t, 0.0, enl.NormalizedEntropy)
}

func TestSpatialHHI_OnePerCell(t *testing.T) {
	for _, n := range []int{2, 7, 50} {
		c := uniform(n, 1)

		hhi, err := SpatialHHI(c)
		require.NoError(t, err)
		assert.InDelta(t, 1/float64(n), hhi.HHI, 1e-12)

		enl, err := EffectiveNumLocations(c)
		require.NoError(t, err)
		assert.InDelta(t, float64(n), enl.ENL, 1e-9)
	}
}

func TestBoundsAndDeterminism(t *testing.T) {
	c := model.NewCounts(map[string]int{"a": 70, "b": 20, "c": 5, "d": 3, "e": 1, "f": 1})

	h1, err := SpatialHHI(c)
	require.NoError(t, err)
	h2, err := SpatialHHI(c)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.GreaterOrEqual(t, h1.HHI, 1/float64(c.Len()))
	assert.LessOrEqual(t, h1.HHI, 1.0)
	assert.Equal(t, 0.7, h1.MaxShare)

	e1, err := EffectiveNumLocations(c)
	require.NoError(t, err)
	e2, err := EffectiveNumLocations(c)
	require.NoError(t, err)
	assert.Equal(t, e1, e2)
	assert.GreaterOrEqual(t, e1.ENL, 1.0)
	assert.LessOrEqual(t, e1.ENL, float64(c.Len()))
	assert.Contains(t, e1.Interpretation, "Uneven distribution")
}

func TestEmptyCounts(t *testing.T) {
	_, err := SpatialHHI(model.Counts{})
	assert.True(t, geoerr.IsInsufficientData(err))
	_, err = EffectiveNumLocations(model.Counts{})
	assert.True(t, geoerr.IsInsufficientData(err))
}

func TestDistribution(t *testing.T) {
	c := Distribution([]string{"US", " DE", "US", "", "  ", "FR", "DE "})
	assert.Equal(t, 5, c.Total)
	assert.Equal(t, map[string]int{"US": 2, "DE": 2, "FR": 1}, c.Map())
	assert.Equal(t, "DE", c.Items[0].Key)

	top := TopShares(c, 2)
	require.Len(t, top, 2)
	assert.Equal(t, Share{Key: "DE", Count: 2, Share: 0.4}, top[0])
	assert.Equal(t, "US", top[1].Key)
	assert.Len(t, TopShares(c, 10), 3)

	assert.InDelta(t, 0.36, HHI(c), 1e-12)
	assert.Equal(t, 0.0, HHI(model.Counts{}))
}

func TestInterpretHHI_Bands(t *testing.T) {
	assert.Contains(t, InterpretHHI(0.149, 20), "Low")
	assert.Contains(t, InterpretHHI(0.15, 20), "Moderate")
	assert.Contains(t, InterpretHHI(0.25, 20), "High")
}

func TestMetricResults(t *testing.T) {
	c := uniform(4, 3)
	hhi, err := SpatialHHI(c)
	require.NoError(t, err)
	mr := hhi.MetricResult()
	assert.Equal(t, model.MetricSpatialHHI, mr.Name)
	assert.Nil(t, mr.PValue)
	assert.Equal(t, 4, mr.Metadata["cells_occupied"])

	enl, err := EffectiveNumLocations(c)
	require.NoError(t, err)
	emr := enl.MetricResult()
	assert.Equal(t, model.MetricENL, emr.Name)
	assert.InDelta(t, 4, emr.Value, 1e-9)
}
