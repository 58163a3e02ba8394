package autocorr

import (
	"github.com/twpayne/go-geom"

	"github.com/geobeat/gdi-cli/internal/geoerr"
	"github.com/geobeat/gdi-cli/internal/spatialindex"
)

// DefaultDensityK is the neighbour rank used for the local density attribute.
const DefaultDensityK = 5

// LocalDensity returns 1/(d_k + 1) for every point, where d_k is the planar
// distance to its k-th nearest other point. k is capped at N-1.
func LocalDensity(coords []geom.Coord, k int) ([]float64, error) {
	if len(coords) < 2 {
		return nil, geoerr.InsufficientDataf("local_density", "need at least 2 points, got %d", len(coords))
	}
	if k <= 0 {
		k = DefaultDensityK
	}
	if k > len(coords)-1 {
		k = len(coords) - 1
	}

	tree := spatialindex.New(coords)
	out := make([]float64, len(coords))
	for i := range coords {
		nn := tree.Nearest(i, k)
		out[i] = 1 / (nn[len(nn)-1].Dist + 1)
	}
	return out, nil
}
