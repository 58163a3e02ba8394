// Package projection maps geographic coordinates onto the World Mollweide
// equal-area plane (ESRI:54009) so planar distances and areas are meaningful.
package projection

import (
	"math"

	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/geobeat/gdi-cli/internal/geoerr"
	"github.com/geobeat/gdi-cli/internal/model"
)

// SRID of the World Mollweide projection.
const SRID = 54009

// Radius is the sphere radius in meters used by ESRI:54009.
const Radius = 6378137.0

const (
	maxIter = 50
	tol     = 1e-12
)

var (
	cx = 2 * math.Sqrt2 / math.Pi
	cy = math.Sqrt2
)

// Projected holds planar coordinates aligned with the source PointSet.
type Projected struct {
	Coords []geom.Coord
}

// Len returns the number of projected coordinates.
func (p *Projected) Len() int { return len(p.Coords) }

// MultiPoint returns the coordinates as a go-geom MultiPoint tagged with SRID.
func (p *Projected) MultiPoint() *geom.MultiPoint {
	return geom.NewMultiPoint(geom.XY).MustSetCoords(p.Coords).SetSRID(SRID)
}

// Bounds returns the planar bounding box of all coordinates.
func (p *Projected) Bounds() *geom.Bounds {
	return p.MultiPoint().Bounds()
}

// Project projects every point of ps. Order and count are preserved; any
// failing point fails the whole call.
func Project(ps model.PointSet) (*Projected, error) {
	if len(ps.Points) == 0 {
		return nil, geoerr.Validationf("project", "no points for network %q", ps.Network)
	}

	coords := make([]geom.Coord, len(ps.Points))
	for i, p := range ps.Points {
		x, y, err := Forward(p.Latitude, p.Longitude)
		if err != nil {
			return nil, &geoerr.Error{
				Kind: geoerr.KindProjection,
				Op:   "project",
				Msg:  "point " + p.ID,
				Err:  err,
			}
		}
		coords[i] = geom.Coord{x, y}
	}

	zap.L().Debug("projection: projected points",
		zap.String("network", ps.Network),
		zap.Int("points", len(coords)),
	)
	return &Projected{Coords: coords}, nil
}

// Forward projects a single lat/lon pair in degrees to Mollweide meters.
func Forward(lat, lon float64) (x, y float64, err error) {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return 0, 0, geoerr.Projectionf("forward", "non-finite coordinate (%v, %v)", lat, lon)
	}
	if math.Abs(lat) > 90 || math.Abs(lon) > 180 {
		return 0, 0, geoerr.Projectionf("forward", "coordinate out of range (%v, %v)", lat, lon)
	}

	phi := lat * math.Pi / 180
	lam := lon * math.Pi / 180

	theta, err := auxiliaryAngle(phi)
	if err != nil {
		return 0, 0, err
	}

	x = Radius * cx * lam * math.Cos(theta)
	y = Radius * cy * math.Sin(theta)
	return x, y, nil
}

// auxiliaryAngle solves 2θ + sin 2θ = π sin φ for θ with Newton's method on
// t = 2θ.
func auxiliaryAngle(phi float64) (float64, error) {
	if math.Abs(math.Abs(phi)-math.Pi/2) < tol {
		return math.Copysign(math.Pi/2, phi), nil
	}

	k := math.Pi * math.Sin(phi)
	t := 2 * phi
	for range maxIter {
		d := (t + math.Sin(t) - k) / (1 + math.Cos(t))
		t -= d
		if math.Abs(d) < tol {
			return t / 2, nil
		}
	}

	// Convergence is only linear right next to the poles.
	if math.Abs(math.Sin(phi)) > 0.9999 {
		return math.Copysign(math.Pi/2, phi), nil
	}
	return 0, geoerr.Projectionf("forward", "auxiliary angle did not converge for phi=%v", phi)
}

// Inverse maps Mollweide meters back to lat/lon degrees.
func Inverse(x, y float64) (lat, lon float64, err error) {
	s := y / (Radius * cy)
	if math.IsNaN(s) || math.Abs(s) > 1+tol {
		return 0, 0, geoerr.Projectionf("inverse", "y=%v outside the projection", y)
	}
	s = math.Max(-1, math.Min(1, s))

	theta := math.Asin(s)
	phi := math.Asin(math.Max(-1, math.Min(1, (2*theta+math.Sin(2*theta))/math.Pi)))

	var lam float64
	if c := math.Cos(theta); c > tol {
		lam = x / (Radius * cx * c)
	}
	if math.Abs(lam) > math.Pi+1e-9 {
		return 0, 0, geoerr.Projectionf("inverse", "x=%v outside the projection", x)
	}
	return phi * 180 / math.Pi, lam * 180 / math.Pi, nil
}
