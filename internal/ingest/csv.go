package ingest

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/geobeat/gdi-cli/internal/model"
)

// LoadCSV reads a node CSV from a local path or an http(s) URL.
func LoadCSV(ctx context.Context, src string, opts Options) (model.PointSet, *Stats, error) {
	rc, err := open(ctx, src, opts)
	if err != nil {
		return model.PointSet{}, nil, err
	}
	defer rc.Close() //nolint:errcheck

	ps, stats, err := ReadCSV(ctx, rc, opts)
	if err != nil {
		return ps, stats, eris.Wrapf(err, "ingest: load %s", src)
	}
	zap.L().Info("ingest: csv loaded",
		zap.String("source", src),
		zap.String("network", opts.Network),
		zap.Int("rows", stats.Rows),
		zap.Int("loaded", stats.Loaded),
		zap.Int("skipped", stats.Skipped()),
	)
	return ps, stats, nil
}

// ReadCSV parses a headed CSV of node records. Rows with missing or invalid
// coordinates are dropped and counted in Stats.
func ReadCSV(ctx context.Context, r io.Reader, opts Options) (model.PointSet, *Stats, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // allow ragged rows
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return model.PointSet{}, &Stats{}, eris.New("ingest: csv is empty")
	}
	if err != nil {
		return model.PointSet{}, &Stats{}, eris.Wrap(err, "ingest: read csv header")
	}

	cols := struct{ id, lat, lon, country, org, asname, isp, city, hosting int }{
		id:      columnIndex(header, idAliases),
		lat:     columnIndex(header, latAliases),
		lon:     columnIndex(header, lonAliases),
		country: columnIndex(header, countryAliases),
		org:     columnIndex(header, orgAliases),
		asname:  columnIndex(header, asnameAliases),
		isp:     columnIndex(header, ispAliases),
		city:    columnIndex(header, cityAliases),
		hosting: columnIndex(header, hostingAliases),
	}
	if cols.lat < 0 || cols.lon < 0 {
		return model.PointSet{}, &Stats{}, eris.Errorf("ingest: csv header has no latitude/longitude columns: %s",
			strings.Join(header, ","))
	}

	b := &recordBuilder{opts: opts}
	for {
		if err := ctx.Err(); err != nil {
			return model.PointSet{}, &b.stats, eris.Wrap(err, "ingest: csv cancelled")
		}
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return model.PointSet{}, &b.stats, eris.Wrap(err, "ingest: read csv row")
		}
		b.add(record{
			id:      field(row, cols.id),
			lat:     field(row, cols.lat),
			lon:     field(row, cols.lon),
			country: field(row, cols.country),
			org:     field(row, cols.org),
			asname:  field(row, cols.asname),
			isp:     field(row, cols.isp),
			city:    field(row, cols.city),
			hosting: field(row, cols.hosting),
		})
	}

	return b.pointSet()
}

func field(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func open(ctx context.Context, src string, opts Options) (io.ReadCloser, error) {
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		f := opts.Fetcher
		if f == nil {
			f = NewFetcher(FetchOptions{})
		}
		return f.Download(ctx, src)
	}
	file, err := os.Open(src)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open %s", src)
	}
	return file, nil
}
