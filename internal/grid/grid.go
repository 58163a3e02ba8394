// Package grid bins points into discrete global cells. Keys are
// deterministic: the same coordinate and resolution always give the same key.
package grid

import (
	"github.com/golang/geo/s2"
	"github.com/twpayne/go-geom"

	"github.com/geobeat/gdi-cli/internal/geoerr"
	"github.com/geobeat/gdi-cli/internal/model"
)

// Resolution bounds and default. Resolution is the S2 cell level; level 9
// cells average roughly 300 km², comparable to a metropolitan area.
const (
	MinResolution     = 0
	MaxResolution     = s2.MaxLevel
	DefaultResolution = 9
)

// earthRadiusKm is the mean Earth radius used to convert steradians to km².
const earthRadiusKm = 6371.0088

// Indexer maps coordinates to cell keys and back to cell geometry.
type Indexer interface {
	CellKey(lat, lon float64) (string, error)
	Boundary(key string) (*geom.Polygon, error)
	Resolution() int
}

// S2Indexer implements Indexer on S2 cells at a fixed level.
type S2Indexer struct {
	level int
}

// NewS2Indexer returns an indexer for the given resolution (S2 level).
func NewS2Indexer(resolution int) (*S2Indexer, error) {
	if resolution < MinResolution || resolution > MaxResolution {
		return nil, geoerr.Validationf("grid", "resolution %d outside [%d, %d]",
			resolution, MinResolution, MaxResolution)
	}
	return &S2Indexer{level: resolution}, nil
}

// Resolution returns the S2 level of the indexer.
func (x *S2Indexer) Resolution() int { return x.level }

// CellKey returns the token of the cell containing (lat, lon).
func (x *S2Indexer) CellKey(lat, lon float64) (string, error) {
	p := model.Point{Latitude: lat, Longitude: lon}
	if err := p.Validate(); err != nil {
		return "", err
	}
	id := s2.CellIDFromLatLng(s2.LatLngFromDegrees(lat, lon)).Parent(x.level)
	return id.ToToken(), nil
}

// Boundary returns the closed lon/lat ring of the cell identified by key.
func (x *S2Indexer) Boundary(key string) (*geom.Polygon, error) {
	id, err := parseKey(key)
	if err != nil {
		return nil, err
	}
	cell := s2.CellFromCellID(id)
	ring := make([]geom.Coord, 0, 5)
	for k := range 4 {
		ll := s2.LatLngFromPoint(cell.Vertex(k))
		ring = append(ring, geom.Coord{ll.Lng.Degrees(), ll.Lat.Degrees()})
	}
	ring = append(ring, ring[0])

	poly, err := geom.NewPolygon(geom.XY).SetCoords([][]geom.Coord{ring})
	if err != nil {
		return nil, geoerr.Validationf("cell_boundary", "cell %s: %v", key, err)
	}
	return poly.SetSRID(4326), nil
}

// AreaKm2 returns the surface area of the cell identified by key.
func AreaKm2(key string) (float64, error) {
	id, err := parseKey(key)
	if err != nil {
		return 0, err
	}
	return s2.CellFromCellID(id).ApproxArea() * earthRadiusKm * earthRadiusKm, nil
}

func parseKey(key string) (s2.CellID, error) {
	id := s2.CellIDFromToken(key)
	if !id.IsValid() {
		return 0, geoerr.Validationf("cell_boundary", "invalid cell key %q", key)
	}
	return id, nil
}

// Assignment maps each point index to its cell key.
type Assignment struct {
	Resolution int      `json:"resolution"`
	Keys       []string `json:"keys"`
}

// AssignCells bins every point of ps into S2 cells at resolution.
func AssignCells(ps model.PointSet, resolution int) (Assignment, error) {
	idx, err := NewS2Indexer(resolution)
	if err != nil {
		return Assignment{}, err
	}
	return Assign(ps, idx)
}

// Assign bins every point of ps with the given indexer.
func Assign(ps model.PointSet, idx Indexer) (Assignment, error) {
	keys := make([]string, len(ps.Points))
	for i, p := range ps.Points {
		k, err := idx.CellKey(p.Latitude, p.Longitude)
		if err != nil {
			return Assignment{}, err
		}
		keys[i] = k
	}
	return Assignment{Resolution: idx.Resolution(), Keys: keys}, nil
}

// CellCounts tallies points per cell.
func CellCounts(a Assignment) model.Counts {
	m := make(map[string]int)
	for _, k := range a.Keys {
		m[k]++
	}
	return model.NewCounts(m)
}

// CellBoundary returns the polygon of an S2 cell key.
func CellBoundary(key string) (*geom.Polygon, error) {
	var x S2Indexer
	return x.Boundary(key)
}
