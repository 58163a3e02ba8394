// Package ingest loads node geolocation records from CSV files, point
// shapefiles and the Bitnodes API into model.PointSet values.
package ingest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/geobeat/gdi-cli/internal/model"
)

// Options controls how raw records become points.
type Options struct {
	// Network names the resulting point set.
	Network string
	// ProviderBuckets replaces the organization label with its
	// CategorizeProvider bucket.
	ProviderBuckets bool
	// Fetcher downloads http(s) sources. Nil selects a default fetcher.
	Fetcher *Fetcher
}

// Stats counts what happened to the input rows.
type Stats struct {
	Rows          int `json:"rows"`
	Loaded        int `json:"loaded"`
	MissingCoords int `json:"missing_coords"`
	InvalidCoords int `json:"invalid_coords"`
}

// Skipped returns the number of dropped rows.
func (s Stats) Skipped() int { return s.MissingCoords + s.InvalidCoords }

// Column aliases, lower-cased. The first alias present in a header wins.
var (
	latAliases     = []string{"lat", "latitude"}
	lonAliases     = []string{"lon", "lng", "long", "longitude"}
	countryAliases = []string{"country", "country_code", "countrycode"}
	orgAliases     = []string{"org", "organization", "organisation"}
	asnameAliases  = []string{"asname", "as_name"}
	ispAliases     = []string{"isp"}
	idAliases      = []string{"id", "node_id", "ip"}
	hostingAliases = []string{"hosting"}
	cityAliases    = []string{"city"}
)

// record is one raw input row, independent of the source format.
type record struct {
	id, lat, lon, country, org, asname, isp, city, hosting string
}

// recordBuilder accumulates raw records into points and stats.
type recordBuilder struct {
	opts   Options
	stats  Stats
	points []model.Point
}

func (b *recordBuilder) add(r record) {
	b.stats.Rows++
	row := b.stats.Rows

	if strings.TrimSpace(r.lat) == "" || strings.TrimSpace(r.lon) == "" {
		b.stats.MissingCoords++
		return
	}
	lat, errLat := strconv.ParseFloat(strings.TrimSpace(r.lat), 64)
	lon, errLon := strconv.ParseFloat(strings.TrimSpace(r.lon), 64)
	if errLat != nil || errLon != nil {
		b.stats.InvalidCoords++
		return
	}

	p := model.Point{
		ID:        strings.TrimSpace(r.id),
		Latitude:  lat,
		Longitude: lon,
		Country:   strings.TrimSpace(r.country),
	}
	if p.ID == "" {
		p.ID = fmt.Sprintf("%s_node_%d", b.opts.Network, row-1)
	}
	if err := p.Validate(); err != nil {
		b.stats.InvalidCoords++
		return
	}

	org, asname, isp := strings.TrimSpace(r.org), strings.TrimSpace(r.asname), strings.TrimSpace(r.isp)
	if b.opts.ProviderBuckets {
		p.Organization = CategorizeProvider(org, asname, isp, parseBool(r.hosting))
	} else {
		p.Organization = firstNonEmpty(org, asname, isp)
	}

	tags := map[string]string{}
	for k, v := range map[string]string{"asname": asname, "isp": isp, "city": strings.TrimSpace(r.city)} {
		if v != "" {
			tags[k] = v
		}
	}
	if len(tags) > 0 {
		p.Tags = tags
	}

	b.points = append(b.points, p)
	b.stats.Loaded++
}

func (b *recordBuilder) pointSet() (model.PointSet, *Stats, error) {
	ps, err := model.NewPointSet(b.opts.Network, b.points)
	if err != nil {
		return model.PointSet{}, &b.stats, err
	}
	return ps, &b.stats, nil
}

func parseBool(s string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && v
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// columnIndex maps each alias group to a header position, -1 when absent.
func columnIndex(header []string, aliases []string) int {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, ok := pos[key]; !ok {
			pos[key] = i
		}
	}
	for _, a := range aliases {
		if i, ok := pos[a]; ok {
			return i
		}
	}
	return -1
}
