// Package autocorr computes global spatial autocorrelation (Moran's I) over
// projected coordinates.
package autocorr

import (
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"sort"

	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/geobeat/gdi-cli/internal/geoerr"
	"github.com/geobeat/gdi-cli/internal/model"
	"github.com/geobeat/gdi-cli/internal/weights"
)

// Significance methods.
const (
	MethodPermutation = "permutation"
	MethodAnalytic    = "analytic"
)

// permChunk is the number of permutations evaluated per task.
const permChunk = 64

// Options configures MoransI. MaxNeighborLinks bounds the size of the
// distance-band weights; zero means unbounded.
type Options struct {
	ThresholdKm      float64
	Permutations     int
	Seed             uint64
	Workers          int
	DensityK         int
	MaxNeighborLinks int
}

// Result is the outcome of a Moran's I test.
type Result struct {
	I              float64 `json:"i"`
	PValue         float64 `json:"p_value"`
	ExpectedI      float64 `json:"expected_i"`
	VarianceI      float64 `json:"variance_i"`
	ZScore         float64 `json:"z_score"`
	Method         string  `json:"method"`
	Permutations   int     `json:"permutations"`
	N              int     `json:"n"`
	Pairs          int     `json:"neighbor_pairs"`
	Islands        int     `json:"islands"`
	MeanNeighbors  float64 `json:"mean_neighbors"`
	StdNeighbors   float64 `json:"std_neighbors"`
	ThresholdKm    float64 `json:"threshold_km"`
	Attribute      string  `json:"attribute"`
	Interpretation string  `json:"interpretation"`
}

// MoransI tests coords for global spatial autocorrelation of values using
// row-standardized distance-band weights. A nil values slice selects the
// local density attribute. Point order does not affect the result.
func MoransI(coords []geom.Coord, values []float64, opts Options) (*Result, error) {
	n := len(coords)
	if n < 2 {
		return nil, geoerr.InsufficientDataf("morans_i", "need at least 2 points, got %d", n)
	}
	if math.IsNaN(opts.ThresholdKm) || opts.ThresholdKm <= 0 {
		return nil, geoerr.Validationf("morans_i", "threshold_km must be positive, got %v", opts.ThresholdKm)
	}
	if opts.Permutations < 0 {
		return nil, geoerr.Validationf("morans_i", "permutations must be >= 0, got %d", opts.Permutations)
	}

	attribute := "custom"
	if values == nil {
		d, err := LocalDensity(coords, opts.DensityK)
		if err != nil {
			return nil, err
		}
		values = d
		attribute = "local_density"
	}
	if len(values) != n {
		return nil, geoerr.Validationf("morans_i", "got %d values for %d points", len(values), n)
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, geoerr.Validationf("morans_i", "non-finite attribute at index %d", i)
		}
	}

	coords, values = canonical(coords, values)

	w, err := weights.DistanceBandLimit(coords, opts.ThresholdKm*1000, opts.MaxNeighborLinks)
	if err != nil {
		return nil, err
	}
	pairs := w.Pairs()
	if pairs == 0 {
		return nil, geoerr.InsufficientDataf("morans_i",
			"no neighbour pairs within %.1f km among %d points", opts.ThresholdKm, n)
	}
	w = w.RowStandardize()

	card := make([]float64, n)
	for i, c := range w.Cardinalities() {
		card[i] = float64(c)
	}
	meanNb, stdNb := stat.PopMeanStdDev(card, nil)

	res := &Result{
		ExpectedI:     -1 / float64(n-1),
		N:             n,
		Pairs:         pairs,
		Islands:       len(w.Islands()),
		MeanNeighbors: meanNb,
		StdNeighbors:  stdNb,
		ThresholdKm:   opts.ThresholdKm,
		Attribute:     attribute,
		Method:        MethodAnalytic,
	}
	if opts.Permutations > 0 {
		res.Method = MethodPermutation
		res.Permutations = opts.Permutations
	}

	if isConstant(values) {
		res.PValue = 1
		res.Interpretation = Interpret(0, 1)
		return res, nil
	}

	z := deviations(values)
	s0 := w.S0()
	res.I = statistic(w, z, s0)

	if opts.Permutations > 0 {
		permutationTest(res, w, z, s0, opts)
	} else {
		res.VarianceI = 1 / float64(n-1)
		res.ZScore = (res.I - res.ExpectedI) / math.Sqrt(res.VarianceI)
		res.PValue = 2 * distuv.UnitNormal.Survival(math.Abs(res.ZScore))
	}
	res.Interpretation = Interpret(res.I, res.PValue)

	zap.L().Debug("autocorr: morans i",
		zap.Int("n", n),
		zap.Int("pairs", pairs),
		zap.Float64("i", res.I),
		zap.Float64("p", res.PValue),
		zap.String("method", res.Method),
	)
	return res, nil
}

// statistic computes I = (N/S0)·Σ z_i·lag(z)_i / Σ z_i².
func statistic(w *weights.Weights, z []float64, s0 float64) float64 {
	var num, den float64
	lag := w.Lag(z)
	for i, zi := range z {
		num += zi * lag[i]
		den += zi * zi
	}
	return float64(len(z)) / s0 * num / den
}

// permutationTest shuffles z with a per-permutation PCG stream so that the
// outcome depends only on the seed, never on scheduling.
func permutationTest(res *Result, w *weights.Weights, z []float64, s0 float64, opts Options) {
	perms := opts.Permutations
	sims := make([]float64, perms)

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for start := 0; start < perms; start += permChunk {
		end := min(start+permChunk, perms)
		g.Go(func() error {
			shuffled := make([]float64, len(z))
			for p := start; p < end; p++ {
				rng := rand.New(rand.NewPCG(opts.Seed, uint64(p)))
				for i, j := range rng.Perm(len(z)) {
					shuffled[i] = z[j]
				}
				sims[p] = statistic(w, shuffled, s0)
			}
			return nil
		})
	}
	_ = g.Wait()

	obs := math.Abs(res.I)
	var extreme int
	for _, s := range sims {
		if math.Abs(s) >= obs {
			extreme++
		}
	}
	res.PValue = float64(1+extreme) / float64(perms+1)

	mean, variance := stat.MeanVariance(sims, nil)
	res.VarianceI = variance
	if sd := math.Sqrt(variance); sd > 0 {
		res.ZScore = (res.I - mean) / sd
	}
}

// Interpret labels a Moran's I outcome by significance band and sign.
func Interpret(i, p float64) string {
	kind := "clustering"
	if i < 0 {
		kind = "dispersion"
	}
	switch {
	case p < 0.01:
		return fmt.Sprintf("Significant %s (I=%.3f, p<0.01)", kind, i)
	case p < 0.05:
		return fmt.Sprintf("Moderate %s (I=%.3f, p<0.05)", kind, i)
	default:
		return fmt.Sprintf("Random distribution (I=%.3f, p=%.3f)", i, p)
	}
}

// MetricResult converts the result to the serialized metric form.
func (r *Result) MetricResult() model.MetricResult {
	return model.MetricResult{
		Name:           model.MetricMoransI,
		Value:          r.I,
		PValue:         model.Float(r.PValue),
		ZScore:         model.Float(r.ZScore),
		Interpretation: r.Interpretation,
		Metadata: map[string]any{
			"expected_i":     r.ExpectedI,
			"variance_i":     r.VarianceI,
			"method":         r.Method,
			"permutations":   r.Permutations,
			"threshold_km":   r.ThresholdKm,
			"n":              r.N,
			"neighbor_pairs": r.Pairs,
			"islands":        r.Islands,
			"mean_neighbors": r.MeanNeighbors,
			"std_neighbors":  r.StdNeighbors,
			"attribute":      r.Attribute,
		},
	}
}

func deviations(x []float64) []float64 {
	mean := stat.Mean(x, nil)
	z := make([]float64, len(x))
	for i, v := range x {
		z[i] = v - mean
	}
	return z
}

func isConstant(x []float64) bool {
	for _, v := range x[1:] {
		if v != x[0] {
			return false
		}
	}
	return true
}

// canonical returns copies of coords and values sorted by (x, y, value).
func canonical(coords []geom.Coord, values []float64) ([]geom.Coord, []float64) {
	order := make([]int, len(coords))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ca, cb := coords[order[a]], coords[order[b]]
		if ca.X() != cb.X() {
			return ca.X() < cb.X()
		}
		if ca.Y() != cb.Y() {
			return ca.Y() < cb.Y()
		}
		return values[order[a]] < values[order[b]]
	})

	outC := make([]geom.Coord, len(coords))
	outV := make([]float64, len(values))
	for i, j := range order {
		outC[i] = coords[j]
		outV[i] = values[j]
	}
	return outC, outV
}
