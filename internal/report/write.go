package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/xuri/excelize/v2"

	"github.com/geobeat/gdi-cli/internal/analysis"
	"github.com/geobeat/gdi-cli/internal/grid"
	"github.com/geobeat/gdi-cli/internal/model"
)

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return eris.Wrap(err, "report: encode json")
	}
	return nil
}

var networkColumns = []string{
	"id", "name", "symbol", "type", "gdi", "pdi", "jdi", "ihi", "nodeCount",
	"moransI", "spatialHHI", "enl", "countryHHI", "numCountries", "orgHHI", "numOrgs",
}

// WriteXLSX writes a workbook with a Networks sheet (one row per report with
// composite scores) and a Metrics sheet (one row per network and metric).
func WriteXLSX(w io.Writer, reps []*analysis.Report) error {
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck

	if err := f.SetSheetName("Sheet1", "Networks"); err != nil {
		return eris.Wrap(err, "report: rename sheet")
	}
	if _, err := f.NewSheet("Metrics"); err != nil {
		return eris.Wrap(err, "report: create metrics sheet")
	}

	header := make([]any, len(networkColumns))
	for i, c := range networkColumns {
		header[i] = c
	}
	if err := setRow(f, "Networks", 1, header); err != nil {
		return err
	}
	if err := setRow(f, "Metrics", 1, []any{"network", "metric", "value", "p_value", "z_score", "interpretation"}); err != nil {
		return err
	}

	netRow, metricRow := 2, 2
	for _, r := range reps {
		if r.Composite != nil {
			rec, err := NewNetworkRecord(r, nil)
			if err != nil {
				return err
			}
			if err := setRow(f, "Networks", netRow, []any{
				rec.ID, rec.Name, rec.Symbol, rec.Type, rec.GDI, rec.PDI, rec.JDI, rec.IHI, rec.NodeCount,
				rec.MoransI, rec.SpatialHHI, rec.ENL, rec.CountryHHI, rec.NumCountries, rec.OrgHHI, rec.NumOrgs,
			}); err != nil {
				return err
			}
			netRow++
		}

		for _, name := range sortedMetricNames(r.Metrics) {
			m := r.Metrics[name]
			if err := setRow(f, "Metrics", metricRow, []any{
				r.Network, m.Name, m.Value, optional(m.PValue), optional(m.ZScore), m.Interpretation,
			}); err != nil {
				return err
			}
			metricRow++
		}
	}

	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return eris.Wrap(err, "report: header style")
	}
	for _, sheet := range []string{"Networks", "Metrics"} {
		if err := f.SetRowStyle(sheet, 1, 1, style); err != nil {
			return eris.Wrapf(err, "report: style %s header", sheet)
		}
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "report: write xlsx")
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, vals []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return eris.Wrap(err, "report: cell name")
	}
	if err := f.SetSheetRow(sheet, cell, &vals); err != nil {
		return eris.Wrapf(err, "report: write %s row %d", sheet, row)
	}
	return nil
}

func optional(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func sortedMetricNames(m map[string]model.MetricResult) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// WriteSummary writes a human-readable summary of one report.
func WriteSummary(w io.Writer, rep *analysis.Report) error {
	meta := Metadata(rep.Network)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "Network:\t%s (%s)\n", meta.Name, meta.Symbol)
	fmt.Fprintf(tw, "Nodes:\t%d\n", rep.TotalNodes)
	fmt.Fprintf(tw, "Threshold:\t%g km\n", rep.Config.ThresholdKm)
	fmt.Fprintf(tw, "Resolution:\tS2 level %d (%d cells occupied)\n", rep.Config.Resolution, rep.Cells.Len())
	fmt.Fprintf(tw, "Duration:\t%d ms\n", rep.DurationMs)

	if c := rep.Composite; c != nil {
		fmt.Fprintln(tw)
		fmt.Fprintf(tw, "GDI:\t%.1f\t%s\n", c.GDI, c.Interpretation)
		fmt.Fprintf(tw, "  PDI:\t%.1f\t%s\n", c.PDI.Score, c.PDI.Interpretation)
		fmt.Fprintf(tw, "  JDI:\t%.1f\t%s (%d countries, HHI %.3f)\n",
			c.JDI.Score, c.JDI.Interpretation, c.JDI.Categories, c.JDI.HHI)
		fmt.Fprintf(tw, "  IHI:\t%.1f\t%s (%d organizations, HHI %.3f)\n",
			c.IHI.Score, c.IHI.Interpretation, c.IHI.Categories, c.IHI.HHI)
		fmt.Fprintf(tw, "  Size:\t%.1f\t\n", c.NetworkSizeScore)
	}

	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "METRIC\tVALUE\tP\tINTERPRETATION")
	for _, name := range sortedMetricNames(rep.Metrics) {
		m := rep.Metrics[name]
		p := "-"
		if m.PValue != nil {
			p = fmt.Sprintf("%.4f", *m.PValue)
		}
		fmt.Fprintf(tw, "%s\t%.4f\t%s\t%s\n", m.Name, m.Value, p, m.Interpretation)
	}

	if err := tw.Flush(); err != nil {
		return eris.Wrap(err, "report: flush summary")
	}
	return nil
}

// WriteCellsGeoJSON writes the occupied cells as a GeoJSON FeatureCollection
// with count and share properties.
func WriteCellsGeoJSON(w io.Writer, counts model.Counts, idx grid.Indexer) error {
	shares := counts.Shares()
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, counts.Len())}
	for i, c := range counts.Items {
		poly, err := idx.Boundary(c.Key)
		if err != nil {
			return eris.Wrapf(err, "report: boundary of cell %s", c.Key)
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       c.Key,
			Geometry: poly,
			Properties: map[string]any{
				"cell":  c.Key,
				"count": c.Count,
				"share": shares[i],
			},
		})
	}

	data, err := json.Marshal(fc)
	if err != nil {
		return eris.Wrap(err, "report: encode geojson")
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return eris.Wrap(err, "report: write geojson")
	}
	return nil
}
