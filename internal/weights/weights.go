// Package weights builds sparse spatial weights over planar coordinates.
package weights

import (
	"math"

	"github.com/twpayne/go-geom"

	"github.com/geobeat/gdi-cli/internal/geoerr"
	"github.com/geobeat/gdi-cli/internal/spatialindex"
)

// Weights is a sparse adjacency structure over point indexes. Neighbors[i]
// lists the neighbours of i in ascending order and Values[i] holds the
// matching weights. There are no self loops.
type Weights struct {
	Neighbors    [][]int
	Values       [][]float64
	Standardized bool
}

// DistanceBand links every pair of points whose planar distance is at most
// threshold with weight 1.
func DistanceBand(coords []geom.Coord, threshold float64) (*Weights, error) {
	return DistanceBandLimit(coords, threshold, 0)
}

// DistanceBandLimit is DistanceBand with a budget on directed neighbour links
// (twice the pair count). Construction stops with a validation error once the
// budget is exceeded. maxLinks <= 0 means no budget.
func DistanceBandLimit(coords []geom.Coord, threshold float64, maxLinks int) (*Weights, error) {
	if math.IsNaN(threshold) || threshold <= 0 {
		return nil, geoerr.Validationf("distance_band", "threshold must be positive, got %v", threshold)
	}
	return fromTree(spatialindex.New(coords), threshold, maxLinks)
}

func fromTree(tree *spatialindex.Tree, threshold float64, maxLinks int) (*Weights, error) {
	n := tree.Len()
	w := &Weights{
		Neighbors: make([][]int, n),
		Values:    make([][]float64, n),
	}
	var links int
	for i := range n {
		hits := tree.Within(i, threshold)
		links += len(hits)
		if maxLinks > 0 && links > maxLinks {
			return nil, geoerr.Validationf("distance_band",
				"more than %d neighbour links within the threshold; lower threshold_km", maxLinks)
		}
		nb := make([]int, len(hits))
		vals := make([]float64, len(hits))
		for k, h := range hits {
			nb[k] = h.Index
			vals[k] = 1
		}
		w.Neighbors[i] = nb
		w.Values[i] = vals
	}
	return w, nil
}

// N returns the number of points.
func (w *Weights) N() int { return len(w.Neighbors) }

// RowStandardize returns a copy whose rows sum to 1. Rows without neighbours
// stay all-zero and contribute nothing.
func (w *Weights) RowStandardize() *Weights {
	out := &Weights{
		Neighbors:    w.Neighbors,
		Values:       make([][]float64, len(w.Values)),
		Standardized: true,
	}
	for i, row := range w.Values {
		var sum float64
		for _, v := range row {
			sum += v
		}
		vals := make([]float64, len(row))
		if sum > 0 {
			for k, v := range row {
				vals[k] = v / sum
			}
		}
		out.Values[i] = vals
	}
	return out
}

// S0 returns the sum of all weights.
func (w *Weights) S0() float64 {
	var s float64
	for _, row := range w.Values {
		for _, v := range row {
			s += v
		}
	}
	return s
}

// Cardinalities returns the neighbour count of every point.
func (w *Weights) Cardinalities() []int {
	out := make([]int, len(w.Neighbors))
	for i, nb := range w.Neighbors {
		out[i] = len(nb)
	}
	return out
}

// Pairs returns the number of distinct unordered neighbour pairs.
func (w *Weights) Pairs() int {
	var links int
	for _, nb := range w.Neighbors {
		links += len(nb)
	}
	return links / 2
}

// Islands returns the indexes of points without neighbours.
func (w *Weights) Islands() []int {
	var out []int
	for i, nb := range w.Neighbors {
		if len(nb) == 0 {
			out = append(out, i)
		}
	}
	return out
}

// Weight returns w(i, j), zero when j is not a neighbour of i.
func (w *Weights) Weight(i, j int) float64 {
	for k, nb := range w.Neighbors[i] {
		if nb == j {
			return w.Values[i][k]
		}
		if nb > j {
			break
		}
	}
	return 0
}

// Lag returns the spatial lag Σ_j w(i,j)·x_j of every point.
func (w *Weights) Lag(x []float64) []float64 {
	out := make([]float64, len(w.Neighbors))
	for i, nb := range w.Neighbors {
		var s float64
		for k, j := range nb {
			s += w.Values[i][k] * x[j]
		}
		out[i] = s
	}
	return out
}
