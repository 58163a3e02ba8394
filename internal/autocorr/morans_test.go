package autocorr

import (
	"math"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/geobeat/gdi-cli/internal/geoerr"
	"github.com/geobeat/gdi-cli/internal/model"
)

// twoClusters places 5 points within a meter of (0,0) and 5 within a meter
// of (50,50), with value 1 in the first cluster and 0 in the second.
func twoClusters() ([]geom.Coord, []float64) {
	offsets := []geom.Coord{{0, 0}, {0.5, 0}, {0, 0.5}, {-0.5, 0}, {0, -0.5}}
	var coords []geom.Coord
	var values []float64
	for _, o := range offsets {
		coords = append(coords, geom.Coord{o.X(), o.Y()})
		values = append(values, 1)
	}
	for _, o := range offsets {
		coords = append(coords, geom.Coord{50 + o.X(), 50 + o.Y()})
		values = append(values, 0)
	}
	return coords, values
}

// ring returns n points evenly spaced on a circle.
func ring(cx, cy, r float64, n int) []geom.Coord {
	out := make([]geom.Coord, n)
	for i := range n {
		a := 2 * math.Pi * float64(i) / float64(n)
		out[i] = geom.Coord{cx + r*math.Cos(a), cy + r*math.Sin(a)}
	}
	return out
}

func TestMoransI_TwoClustersAnalytic(t *testing.T) {
	coords, values := twoClusters()

	res, err := MoransI(coords, values, Options{ThresholdKm: 0.01})
	require.NoError(t, err)

	assert.InDelta(t, 1.0, res.I, 1e-12)
	assert.InDelta(t, -1.0/9, res.ExpectedI, 1e-12)
	assert.InDelta(t, 1.0/9, res.VarianceI, 1e-12)
	assert.InDelta(t, 10.0/3, res.ZScore, 1e-9)
	assert.InDelta(t, 0.000858, res.PValue, 1e-5)
	assert.Equal(t, MethodAnalytic, res.Method)
	assert.Equal(t, 20, res.Pairs)
	assert.Equal(t, 0, res.Islands)
	assert.Equal(t, 4.0, res.MeanNeighbors)
	assert.Equal(t, 0.0, res.StdNeighbors)
	assert.Contains(t, res.Interpretation, "clustering")
	assert.Contains(t, res.Interpretation, "Significant")
}

func TestMoransI_TwoClustersPermutation(t *testing.T) {
	coords, values := twoClusters()

	res, err := MoransI(coords, values, Options{ThresholdKm: 0.01, Permutations: 999, Seed: 42})
	require.NoError(t, err)

	assert.InDelta(t, 1.0, res.I, 1e-12)
	assert.Equal(t, MethodPermutation, res.Method)
	assert.Equal(t, 999, res.Permutations)
	assert.Less(t, res.PValue, 0.05)
	assert.GreaterOrEqual(t, res.PValue, 1.0/1000)
	assert.Greater(t, res.ZScore, 0.0)
	assert.Contains(t, res.Interpretation, "clustering")
}

func TestMoransI_DensityAttribute(t *testing.T) {
	coords := append(ring(0, 0, 0.5, 8), ring(500, 500, 10, 8)...)

	res, err := MoransI(coords, nil, Options{ThresholdKm: 0.1, Permutations: 999, Seed: 7})
	require.NoError(t, err)

	assert.Equal(t, "local_density", res.Attribute)
	assert.InDelta(t, 1.0, res.I, 1e-9)
	assert.Less(t, res.PValue, 0.01)
	assert.Contains(t, res.Interpretation, "Significant clustering")
}

// With five points per cluster and k=5 the fifth neighbour of every point
// lies in the other cluster. Both clusters then carry the same density values,
// each point's lag is -z/4 and I is exactly -1/4.
func TestMoransI_DensityAttributeFivePerCluster(t *testing.T) {
	coords, _ := twoClusters()

	analytic, err := MoransI(coords, nil, Options{ThresholdKm: 0.01, DensityK: 5})
	require.NoError(t, err)
	assert.Equal(t, "local_density", analytic.Attribute)
	assert.InDelta(t, -0.25, analytic.I, 1e-9)
	assert.InDelta(t, -5.0/12, analytic.ZScore, 1e-9)
	assert.InDelta(t, 0.676922, analytic.PValue, 1e-5)
	assert.Equal(t, 4.0, analytic.MeanNeighbors)
	assert.True(t, strings.HasPrefix(analytic.Interpretation, "Random distribution"), analytic.Interpretation)

	perm, err := MoransI(coords, nil, Options{ThresholdKm: 0.01, DensityK: 5, Permutations: 999, Seed: 7})
	require.NoError(t, err)
	assert.InDelta(t, -0.25, perm.I, 1e-9)
	assert.Greater(t, perm.PValue, 0.05)
	assert.True(t, strings.HasPrefix(perm.Interpretation, "Random distribution"), perm.Interpretation)
}

func TestMoransI_OrderInvariant(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 3))
	coords := make([]geom.Coord, 120)
	values := make([]float64, 120)
	for i := range coords {
		coords[i] = geom.Coord{rng.Float64() * 1e5, rng.Float64() * 1e5}
		values[i] = coords[i].X()/1e5 + rng.Float64()
	}
	opts := Options{ThresholdKm: 20, Permutations: 199, Seed: 11}

	base, err := MoransI(coords, values, opts)
	require.NoError(t, err)

	perm := rng.Perm(len(coords))
	pc := make([]geom.Coord, len(coords))
	pv := make([]float64, len(values))
	for i, j := range perm {
		pc[i] = coords[j]
		pv[i] = values[j]
	}
	shuffled, err := MoransI(pc, pv, opts)
	require.NoError(t, err)

	assert.Equal(t, base.I, shuffled.I)
	assert.Equal(t, base.PValue, shuffled.PValue)
	assert.Equal(t, base.ZScore, shuffled.ZScore)
}

func TestMoransI_DeterministicAcrossWorkers(t *testing.T) {
	coords := append(ring(0, 0, 30, 12), ring(200, 0, 30, 12)...)
	values := make([]float64, len(coords))
	for i := range values {
		values[i] = float64(i % 5)
	}

	one, err := MoransI(coords, values, Options{ThresholdKm: 0.1, Permutations: 500, Seed: 99, Workers: 1})
	require.NoError(t, err)
	many, err := MoransI(coords, values, Options{ThresholdKm: 0.1, Permutations: 500, Seed: 99, Workers: 8})
	require.NoError(t, err)
	again, err := MoransI(coords, values, Options{ThresholdKm: 0.1, Permutations: 500, Seed: 99})
	require.NoError(t, err)

	assert.Equal(t, one, many)
	assert.Equal(t, one, again)
}

func TestMoransI_ConstantAttribute(t *testing.T) {
	coords, _ := twoClusters()
	values := make([]float64, len(coords))
	for i := range values {
		values[i] = 0.3
	}

	res, err := MoransI(coords, values, Options{ThresholdKm: 0.01, Permutations: 99})
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.I)
	assert.Equal(t, 1.0, res.PValue)
	assert.Equal(t, 0.0, res.ZScore)
	assert.Contains(t, res.Interpretation, "Random distribution")
}

func TestMoransI_Errors(t *testing.T) {
	coords, values := twoClusters()

	_, err := MoransI(coords[:1], values[:1], Options{ThresholdKm: 1})
	assert.True(t, geoerr.IsInsufficientData(err))

	_, err = MoransI(coords, values, Options{ThresholdKm: 0.0001})
	assert.True(t, geoerr.IsInsufficientData(err), "no pairs within 10 cm")

	_, err = MoransI(coords, values[:3], Options{ThresholdKm: 1})
	assert.True(t, geoerr.IsValidation(err))

	_, err = MoransI(coords, values, Options{ThresholdKm: 0})
	assert.True(t, geoerr.IsValidation(err))

	bad := append([]float64(nil), values...)
	bad[2] = math.NaN()
	_, err = MoransI(coords, bad, Options{ThresholdKm: 1})
	assert.True(t, geoerr.IsValidation(err))
}

func TestMoransI_IslandsContributeZero(t *testing.T) {
	coords, values := twoClusters()
	coords = append(coords, geom.Coord{5000, 5000})
	values = append(values, 0.5)

	res, err := MoransI(coords, values, Options{ThresholdKm: 0.01})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Islands)
	assert.Greater(t, res.I, 0.8)
}

func TestInterpret(t *testing.T) {
	assert.Equal(t, "Significant clustering (I=0.420, p<0.01)", Interpret(0.42, 0.001))
	assert.Equal(t, "Moderate dispersion (I=-0.200, p<0.05)", Interpret(-0.2, 0.03))
	assert.Equal(t, "Random distribution (I=0.010, p=0.480)", Interpret(0.01, 0.48))
}

func TestResult_MetricResult(t *testing.T) {
	coords, values := twoClusters()
	res, err := MoransI(coords, values, Options{ThresholdKm: 0.01})
	require.NoError(t, err)

	mr := res.MetricResult()
	assert.Equal(t, model.MetricMoransI, mr.Name)
	require.NotNil(t, mr.PValue)
	assert.Equal(t, res.PValue, *mr.PValue)
	assert.Equal(t, "custom", mr.Metadata["attribute"])
	assert.Equal(t, 0.01, mr.Metadata["threshold_km"])
}

func TestLocalDensity(t *testing.T) {
	coords := []geom.Coord{{0, 0}, {1, 0}, {3, 0}}

	d, err := LocalDensity(coords, 1)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.5, 0.5, 1.0 / 3}, d, 1e-12)

	d, err = LocalDensity(coords, 5)
	require.NoError(t, err, "k is capped at N-1")
	assert.InDeltaSlice(t, []float64{0.25, 1.0 / 3, 0.25}, d, 1e-12)

	_, err = LocalDensity(coords[:1], 5)
	assert.True(t, geoerr.IsInsufficientData(err))
}
