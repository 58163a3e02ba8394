package ingest

import (
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/geobeat/gdi-cli/internal/model"
)

// LoadShapefile reads a point shapefile. Coordinates come from the point
// geometry (X = longitude, Y = latitude); labels come from the DBF attribute
// columns using the same aliases as CSV headers.
func LoadShapefile(path string, opts Options) (model.PointSet, *Stats, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return model.PointSet{}, nil, eris.Wrapf(err, "ingest: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.TrimRight(f.String(), "\x00")
	}
	cols := map[string]int{
		"id":      columnIndex(names, idAliases),
		"country": columnIndex(names, countryAliases),
		"org":     columnIndex(names, orgAliases),
		"asname":  columnIndex(names, asnameAliases),
		"isp":     columnIndex(names, ispAliases),
		"city":    columnIndex(names, cityAliases),
		"hosting": columnIndex(names, hostingAliases),
	}
	get := func(name string) string {
		i := cols[name]
		if i < 0 {
			return ""
		}
		return strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
	}

	b := &recordBuilder{opts: opts}
	var nonPoint int
	for reader.Next() {
		_, shape := reader.Shape()
		pt, ok := shape.(*shp.Point)
		if !ok {
			nonPoint++
			b.stats.Rows++
			b.stats.InvalidCoords++
			continue
		}
		b.add(record{
			id:      get("id"),
			lat:     formatCoord(pt.Y),
			lon:     formatCoord(pt.X),
			country: get("country"),
			org:     get("org"),
			asname:  get("asname"),
			isp:     get("isp"),
			city:    get("city"),
			hosting: get("hosting"),
		})
	}
	if err := reader.Err(); err != nil {
		return model.PointSet{}, &b.stats, eris.Wrapf(err, "ingest: read shapefile %s", path)
	}

	if nonPoint > 0 {
		zap.L().Debug("ingest: skipped non-point shapefile records",
			zap.String("path", path),
			zap.Int("skipped", nonPoint),
		)
	}
	return b.pointSet()
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
