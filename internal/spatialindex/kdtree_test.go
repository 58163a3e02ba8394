package spatialindex

import (
	"math"
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func randomCoords(n int, seed uint64) []geom.Coord {
	rng := rand.New(rand.NewPCG(seed, 0))
	coords := make([]geom.Coord, n)
	for i := range coords {
		coords[i] = geom.Coord{rng.Float64() * 1000, rng.Float64() * 1000}
	}
	return coords
}

func bruteDistances(coords []geom.Coord, i int) []Neighbor {
	var out []Neighbor
	for j, c := range coords {
		if j == i {
			continue
		}
		out = append(out, Neighbor{Index: j, Dist: math.Hypot(c.X()-coords[i].X(), c.Y()-coords[i].Y())})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Dist < out[b].Dist })
	return out
}

func TestTree_NearestMatchesBruteForce(t *testing.T) {
	coords := randomCoords(300, 7)
	tree := New(coords)
	require.Equal(t, 300, tree.Len())

	for i := 0; i < len(coords); i += 17 {
		want := bruteDistances(coords, i)[:5]
		got := tree.Nearest(i, 5)
		require.Len(t, got, 5)
		for k := range got {
			assert.InDelta(t, want[k].Dist, got[k].Dist, 1e-9)
			assert.NotEqual(t, i, got[k].Index)
		}
	}
}

func TestTree_WithinMatchesBruteForce(t *testing.T) {
	coords := randomCoords(400, 11)
	tree := New(coords)

	for i := 0; i < len(coords); i += 23 {
		var want []int
		for _, n := range bruteDistances(coords, i) {
			if n.Dist <= 80 {
				want = append(want, n.Index)
			}
		}
		sort.Ints(want)

		var got []int
		for _, n := range tree.Within(i, 80) {
			got = append(got, n.Index)
		}
		assert.Equal(t, want, got)
	}
}

func TestTree_CoincidentPoints(t *testing.T) {
	coords := make([]geom.Coord, 50)
	for i := range coords {
		coords[i] = geom.Coord{5, 5}
	}
	coords = append(coords, geom.Coord{100, 100})
	tree := New(coords)

	nn := tree.Nearest(0, 3)
	require.Len(t, nn, 3)
	for _, n := range nn {
		assert.Equal(t, 0.0, n.Dist)
		assert.NotEqual(t, 0, n.Index)
	}

	within := tree.Within(50, 10)
	assert.Empty(t, within)
	assert.Len(t, tree.Within(3, 0), 49)
}

func TestTree_SmallInputs(t *testing.T) {
	single := New([]geom.Coord{{1, 1}})
	assert.Nil(t, single.Nearest(0, 1))
	assert.Nil(t, single.Within(0, 10))

	pair := New([]geom.Coord{{0, 0}, {3, 4}})
	nn := pair.Nearest(0, 5)
	require.Len(t, nn, 1)
	assert.Equal(t, 1, nn[0].Index)
	assert.InDelta(t, 5.0, nn[0].Dist, 1e-12)

	w := pair.Within(1, 5)
	require.Len(t, w, 1)
	assert.Equal(t, 0, w[0].Index)
}
