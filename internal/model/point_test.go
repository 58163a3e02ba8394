package model

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geobeat/gdi-cli/internal/geoerr"
)

func TestPoint_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		point   Point
		wantErr bool
	}{
		{"valid", Point{Latitude: 48.85, Longitude: 2.35}, false},
		{"poles and antimeridian", Point{Latitude: -90, Longitude: 180}, false},
		{"lat too high", Point{Latitude: 90.1, Longitude: 0}, true},
		{"lon too low", Point{Latitude: 0, Longitude: -180.5}, true},
		{"nan", Point{Latitude: math.NaN(), Longitude: 0}, true},
		{"inf", Point{Latitude: 0, Longitude: math.Inf(1)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.point.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, geoerr.IsValidation(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNewPointSet(t *testing.T) {
	t.Parallel()

	ps, err := NewPointSet("ethereum", []Point{
		{ID: "a", Latitude: 1, Longitude: 2, Country: "DE", Organization: "Hetzner"},
		{ID: "b", Latitude: 3, Longitude: 4},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, ps.Len())
	assert.Equal(t, []string{"DE", ""}, ps.Countries())
	assert.Equal(t, []string{"Hetzner", ""}, ps.Organizations())
	assert.False(t, ps.CapturedAt.IsZero())

	_, err = NewPointSet("empty", nil)
	assert.True(t, geoerr.IsValidation(err))

	_, err = NewPointSet("bad", []Point{{Latitude: 100}})
	require.Error(t, err)
	assert.True(t, geoerr.IsValidation(err))
	assert.Contains(t, err.Error(), "point 0")
}

func TestMetricResult_JSON(t *testing.T) {
	t.Parallel()

	mr := MetricResult{
		Name:           MetricSpatialHHI,
		Value:          0.1,
		Interpretation: "Low concentration across 10 cells (HHI=0.100)",
	}
	data, err := json.Marshal(mr)
	require.NoError(t, err)
	assert.JSONEq(t, `{"metric":"spatial_hhi","value":0.1,"p_value":null,"z_score":null,
		"interpretation":"Low concentration across 10 cells (HHI=0.100)"}`, string(data))

	mr.PValue = Float(0.001)
	data, err = json.Marshal(mr)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"p_value":0.001`)
}

func TestRunStatusValues(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "complete", string(RunStatusComplete))
	assert.Equal(t, "failed", string(RunStatusFailed))
}
