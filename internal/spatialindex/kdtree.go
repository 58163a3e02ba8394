// Package spatialindex wraps the gonum k-d tree for planar neighbour queries
// over projected coordinates. All distances are in the units of the input
// coordinates (meters for projected points).
package spatialindex

import (
	"math"
	"sort"

	"github.com/twpayne/go-geom"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// Neighbor is a query hit: the index of the point in the input slice and its
// distance from the query point.
type Neighbor struct {
	Index int
	Dist  float64
}

// Tree is an immutable 2-D k-d tree over a coordinate slice.
type Tree struct {
	tree *kdtree.Tree
	pts  []point
}

// New builds a tree over coords. The input slice is not modified.
func New(coords []geom.Coord) *Tree {
	items := make([]point, len(coords))
	for i, c := range coords {
		items[i] = point{x: c.X(), y: c.Y(), idx: i}
	}
	build := make(points, len(items))
	copy(build, items)
	return &Tree{tree: kdtree.New(build, false), pts: items}
}

// Len returns the number of indexed points.
func (t *Tree) Len() int { return len(t.pts) }

// Nearest returns up to k nearest neighbours of point i, excluding i itself,
// ordered by ascending distance.
func (t *Tree) Nearest(i, k int) []Neighbor {
	if k <= 0 || len(t.pts) < 2 {
		return nil
	}
	if k > len(t.pts)-1 {
		k = len(t.pts) - 1
	}
	nk := kdtree.NewNKeeper(k)
	t.tree.NearestSet(&excludeKeeper{Keeper: nk, self: i}, t.pts[i])
	return collect(nk.Heap)
}

// Within returns every point other than i whose distance from point i is at
// most r, ordered by index.
func (t *Tree) Within(i int, r float64) []Neighbor {
	if len(t.pts) < 2 || r < 0 {
		return nil
	}
	dk := kdtree.NewDistKeeper(r * r)
	t.tree.NearestSet(&excludeKeeper{Keeper: dk, self: i}, t.pts[i])
	out := collect(dk.Heap)
	sort.Slice(out, func(a, b int) bool { return out[a].Index < out[b].Index })
	return out
}

func collect(h kdtree.Heap) []Neighbor {
	out := make([]Neighbor, 0, len(h))
	for _, cd := range h {
		if cd.Comparable == nil {
			continue
		}
		out = append(out, Neighbor{Index: cd.Comparable.(point).idx, Dist: math.Sqrt(cd.Dist)})
	}
	return out
}

// excludeKeeper drops the query point itself before it reaches the heap.
type excludeKeeper struct {
	kdtree.Keeper
	self int
}

func (k *excludeKeeper) Keep(c kdtree.ComparableDist) {
	if it, ok := c.Comparable.(point); ok && it.idx == k.self {
		return
	}
	k.Keeper.Keep(c)
}

type point struct {
	x, y float64
	idx  int
}

func (p point) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(point)
	if d == 0 {
		return p.x - q.x
	}
	return p.y - q.y
}

func (p point) Dims() int { return 2 }

func (p point) Distance(c kdtree.Comparable) float64 {
	q := c.(point)
	dx, dy := p.x-q.x, p.y-q.y
	return dx*dx + dy*dy
}

func (p point) coord(d kdtree.Dim) float64 {
	if d == 0 {
		return p.x
	}
	return p.y
}

type points []point

func (p points) Index(i int) kdtree.Comparable         { return p[i] }
func (p points) Len() int                              { return len(p) }
func (p points) Pivot(d kdtree.Dim) int                { return plane{items: p, dim: d}.Pivot() }
func (p points) Slice(start, end int) kdtree.Interface { return p[start:end] }

// plane orders items along one dimension. Ties break on index so that
// coincident points still split evenly.
type plane struct {
	items points
	dim   kdtree.Dim
}

func (p plane) Len() int { return len(p.items) }

func (p plane) Less(i, j int) bool {
	a, b := p.items[i].coord(p.dim), p.items[j].coord(p.dim)
	if a != b {
		return a < b
	}
	return p.items[i].idx < p.items[j].idx
}

func (p plane) Swap(i, j int) { p.items[i], p.items[j] = p.items[j], p.items[i] }

func (p plane) Slice(start, end int) kdtree.SortSlicer {
	p.items = p.items[start:end]
	return p
}

func (p plane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
