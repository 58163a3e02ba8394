package ingest

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/geobeat/gdi-cli/internal/geoerr"
	"github.com/geobeat/gdi-cli/internal/model"
)

type metro struct {
	lat, lon float64
	country  string
}

var metros = []metro{
	{40.7128, -74.0060, "US"},  // New York
	{51.5074, -0.1278, "GB"},   // London
	{35.6762, 139.6503, "JP"},  // Tokyo
	{37.7749, -122.4194, "US"}, // San Francisco
	{52.5200, 13.4050, "DE"},   // Berlin
	{1.3521, 103.8198, "SG"},   // Singapore
	{48.8566, 2.3522, "FR"},    // Paris
	{-23.5505, -46.6333, "BR"}, // Sao Paulo
	{43.6532, -79.3832, "CA"},  // Toronto
	{-33.8688, 151.2093, "AU"}, // Sydney
}

var syntheticProviders = []string{
	ProviderAWS, ProviderHetzner, ProviderGoogle, ProviderOVH, ProviderHomeISP, ProviderDigitalOcean,
}

// GenerateClustered builds a synthetic point set of n nodes spread around
// the first `clusters` metro areas with a one-degree normal jitter. The same
// seed always yields the same set.
func GenerateClustered(network string, n, clusters int, seed uint64) (model.PointSet, error) {
	if n < 1 {
		return model.PointSet{}, geoerr.Validationf("generate", "n must be >= 1, got %d", n)
	}
	if clusters < 1 || clusters > len(metros) {
		return model.PointSet{}, geoerr.Validationf("generate", "clusters must be between 1 and %d, got %d",
			len(metros), clusters)
	}

	rng := rand.New(rand.NewPCG(seed, 0x9e3779b97f4a7c15))
	pts := make([]model.Point, n)
	for i := range pts {
		c := metros[i%clusters]
		lat := math.Max(-90, math.Min(90, c.lat+rng.NormFloat64()))
		lon := c.lon + rng.NormFloat64()
		if lon > 180 {
			lon -= 360
		} else if lon < -180 {
			lon += 360
		}
		pts[i] = model.Point{
			ID:           fmt.Sprintf("%s_node_%d_%d", network, i%clusters, i/clusters),
			Latitude:     lat,
			Longitude:    lon,
			Country:      c.country,
			Organization: syntheticProviders[rng.IntN(len(syntheticProviders))],
		}
	}
	return model.NewPointSet(network, pts)
}
