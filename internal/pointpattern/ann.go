// Package pointpattern tests point sets against complete spatial randomness.
package pointpattern

import (
	"fmt"
	"math"

	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/geobeat/gdi-cli/internal/geoerr"
	"github.com/geobeat/gdi-cli/internal/model"
	"github.com/geobeat/gdi-cli/internal/spatialindex"
)

// seCoefficient is the Clark-Evans standard error constant.
const seCoefficient = 0.26136

// ANNResult is the outcome of an average nearest neighbour test. Distances
// are reported in kilometers.
type ANNResult struct {
	ObservedKm     float64 `json:"observed_distance_km"`
	ExpectedKm     float64 `json:"expected_distance_km"`
	Index          float64 `json:"nearest_neighbor_index"`
	ZScore         float64 `json:"z_score"`
	PValue         float64 `json:"p_value"`
	N              int     `json:"n_nodes"`
	AreaKm2        float64 `json:"study_area_km2"`
	DensityPerKm2  float64 `json:"density_per_km2"`
	Interpretation string  `json:"interpretation"`
}

// AverageNearestNeighbor compares the mean nearest-neighbour distance of
// coords (meters) with its expectation under complete spatial randomness in
// the bounding box.
func AverageNearestNeighbor(coords []geom.Coord) (*ANNResult, error) {
	n := len(coords)
	if n < 2 {
		return nil, geoerr.InsufficientDataf("average_nearest_neighbor", "need at least 2 points, got %d", n)
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, c := range coords {
		minX, maxX = math.Min(minX, c.X()), math.Max(maxX, c.X())
		minY, maxY = math.Min(minY, c.Y()), math.Max(maxY, c.Y())
	}
	area := (maxX - minX) * (maxY - minY)
	if !(area > 0) {
		return nil, geoerr.Degeneratef("average_nearest_neighbor",
			"bounding box has zero area (%.3f x %.3f m)", maxX-minX, maxY-minY)
	}

	tree := spatialindex.New(coords)
	var sum float64
	for i := range coords {
		sum += tree.Nearest(i, 1)[0].Dist
	}
	observed := sum / float64(n)

	density := float64(n) / area
	expected := 0.5 / math.Sqrt(density)
	se := seCoefficient / math.Sqrt(float64(n)*density)
	z := (observed - expected) / se
	p := 2 * distuv.UnitNormal.Survival(math.Abs(z))
	index := observed / expected

	res := &ANNResult{
		ObservedKm:     observed / 1000,
		ExpectedKm:     expected / 1000,
		Index:          index,
		ZScore:         z,
		PValue:         p,
		N:              n,
		AreaKm2:        area / 1e6,
		DensityPerKm2:  density * 1e6,
		Interpretation: Interpret(index, p),
	}

	zap.L().Debug("pointpattern: average nearest neighbor",
		zap.Int("n", n),
		zap.Float64("index", index),
		zap.Float64("p", p),
	)
	return res, nil
}

// Interpret labels an ANN outcome by significance band and direction.
func Interpret(index, p float64) string {
	kind := "clustering"
	if index >= 1 {
		kind = "dispersion"
	}
	switch {
	case p < 0.01:
		return fmt.Sprintf("Significant %s (ANN=%.3f, p<0.01)", kind, index)
	case p < 0.05:
		return fmt.Sprintf("Moderate %s (ANN=%.3f, p<0.05)", kind, index)
	default:
		return fmt.Sprintf("Random pattern (ANN=%.3f, p=%.3f)", index, p)
	}
}

// MetricResult converts the result to the serialized metric form.
func (r *ANNResult) MetricResult() model.MetricResult {
	return model.MetricResult{
		Name:           model.MetricANN,
		Value:          r.Index,
		PValue:         model.Float(r.PValue),
		ZScore:         model.Float(r.ZScore),
		Interpretation: r.Interpretation,
		Metadata: map[string]any{
			"observed_distance_km": r.ObservedKm,
			"expected_distance_km": r.ExpectedKm,
			"n_nodes":              r.N,
			"study_area_km2":       r.AreaKm2,
			"density_per_km2":      r.DensityPerKm2,
		},
	}
}
