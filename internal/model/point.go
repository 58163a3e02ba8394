package model

import (
	"math"
	"time"

	"github.com/geobeat/gdi-cli/internal/geoerr"
)

// Point is a single geolocated network node.
type Point struct {
	ID           string            `json:"id,omitempty"`
	Latitude     float64           `json:"latitude"`
	Longitude    float64           `json:"longitude"`
	Country      string            `json:"country,omitempty"`
	Organization string            `json:"organization,omitempty"`
	Tags         map[string]string `json:"tags,omitempty"`
}

// Validate rejects non-finite or out-of-range coordinates.
func (p Point) Validate() error {
	if math.IsNaN(p.Latitude) || math.IsInf(p.Latitude, 0) ||
		math.IsNaN(p.Longitude) || math.IsInf(p.Longitude, 0) {
		return geoerr.Validationf("point", "non-finite coordinate for %q", p.ID)
	}
	if p.Latitude < -90 || p.Latitude > 90 {
		return geoerr.Validationf("point", "latitude %v out of range for %q", p.Latitude, p.ID)
	}
	if p.Longitude < -180 || p.Longitude > 180 {
		return geoerr.Validationf("point", "longitude %v out of range for %q", p.Longitude, p.ID)
	}
	return nil
}

// PointSet is the ordered collection of nodes of one network at one point in
// time. Indexes are stable: every derived slice is aligned with Points.
type PointSet struct {
	Network    string    `json:"network"`
	CapturedAt time.Time `json:"captured_at"`
	Points     []Point   `json:"points"`
}

// NewPointSet validates points and returns a PointSet. An empty set or any
// invalid point is a validation error.
func NewPointSet(network string, points []Point) (PointSet, error) {
	ps := PointSet{Network: network, CapturedAt: time.Now().UTC(), Points: points}
	if err := ps.Validate(); err != nil {
		return PointSet{}, err
	}
	return ps, nil
}

// Validate checks that the set is non-empty and every point is valid.
func (ps PointSet) Validate() error {
	if len(ps.Points) == 0 {
		return geoerr.Validationf("point_set", "no points for network %q", ps.Network)
	}
	for i, p := range ps.Points {
		if err := p.Validate(); err != nil {
			return geoerr.Validationf("point_set", "point %d: %v", i, err)
		}
	}
	return nil
}

// Len returns the number of points.
func (ps PointSet) Len() int { return len(ps.Points) }

// Countries returns the country label of every point in index order.
func (ps PointSet) Countries() []string {
	out := make([]string, len(ps.Points))
	for i, p := range ps.Points {
		out[i] = p.Country
	}
	return out
}

// Organizations returns the organization label of every point in index order.
func (ps PointSet) Organizations() []string {
	out := make([]string, len(ps.Points))
	for i, p := range ps.Points {
		out[i] = p.Organization
	}
	return out
}
