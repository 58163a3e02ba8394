package projection

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geobeat/gdi-cli/internal/geoerr"
	"github.com/geobeat/gdi-cli/internal/model"
)

func TestForward_KnownValues(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon float64
		x, y     float64
	}{
		{"origin", 0, 0, 0, 0},
		{"antimeridian on equator", 0, 180, 2 * math.Sqrt2 * Radius, 0},
		{"west edge", 0, -180, -2 * math.Sqrt2 * Radius, 0},
		{"north pole", 90, 0, 0, math.Sqrt2 * Radius},
		{"south pole", -90, 45, 0, -math.Sqrt2 * Radius},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y, err := Forward(tt.lat, tt.lon)
			require.NoError(t, err)
			assert.InDelta(t, tt.x, x, 1e-6)
			assert.InDelta(t, tt.y, y, 1e-6)
		})
	}
}

func TestForward_RoundTrip(t *testing.T) {
	for lat := -89.5; lat <= 89.5; lat += 7.25 {
		for lon := -179.0; lon <= 179; lon += 13.5 {
			x, y, err := Forward(lat, lon)
			require.NoError(t, err)

			gotLat, gotLon, err := Inverse(x, y)
			require.NoError(t, err)
			assert.InDelta(t, lat, gotLat, 1e-8)
			assert.InDelta(t, lon, gotLon, 1e-8)
		}
	}
}

func TestForward_NearPole(t *testing.T) {
	x, y, err := Forward(89.999999, 10)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(x))
	assert.InDelta(t, math.Sqrt2*Radius, y, 10)
}

func TestForward_Invalid(t *testing.T) {
	_, _, err := Forward(math.NaN(), 0)
	assert.True(t, geoerr.IsProjection(err))

	_, _, err = Forward(91, 0)
	assert.True(t, geoerr.IsProjection(err))
}

func TestForward_EqualArea(t *testing.T) {
	// A 1°x1° cell at the equator and one at 60°N cover areas proportional
	// to the difference of sin(lat) across the band.
	area := func(lat float64) float64 {
		x0, _, _ := Forward(lat+0.5, 0)
		x1, _, _ := Forward(lat+0.5, 1)
		_, y0, _ := Forward(lat, 0)
		_, y1, _ := Forward(lat+1, 0)
		return math.Abs(x1-x0) * math.Abs(y1-y0)
	}
	ratio := area(60) / area(0)
	want := (math.Sin(61*math.Pi/180) - math.Sin(60*math.Pi/180)) / math.Sin(1*math.Pi/180)
	assert.InDelta(t, want, ratio, 0.01)
}

func TestProject(t *testing.T) {
	ps := model.PointSet{Network: "test", Points: []model.Point{
		{ID: "a", Latitude: 0, Longitude: 0},
		{ID: "b", Latitude: 10, Longitude: 20},
		{ID: "c", Latitude: -30, Longitude: -60},
	}}

	proj, err := Project(ps)
	require.NoError(t, err)
	require.Equal(t, 3, proj.Len())
	assert.Equal(t, 0.0, proj.Coords[0].X())
	assert.Greater(t, proj.Coords[1].X(), 0.0)
	assert.Less(t, proj.Coords[2].Y(), 0.0)

	b := proj.Bounds()
	assert.Equal(t, proj.Coords[2].X(), b.Min(0))
	assert.Equal(t, proj.Coords[1].X(), b.Max(0))
	assert.Equal(t, SRID, proj.MultiPoint().SRID())
}

func TestProject_Errors(t *testing.T) {
	_, err := Project(model.PointSet{})
	assert.True(t, geoerr.IsValidation(err))

	_, err = Project(model.PointSet{Points: []model.Point{{ID: "x", Latitude: math.Inf(1)}}})
	require.Error(t, err)
	assert.True(t, geoerr.IsProjection(err))
	assert.Contains(t, err.Error(), "point x")
}
