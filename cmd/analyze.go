package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/geobeat/gdi-cli/internal/analysis"
	"github.com/geobeat/gdi-cli/internal/composite"
	"github.com/geobeat/gdi-cli/internal/grid"
	"github.com/geobeat/gdi-cli/internal/ingest"
	"github.com/geobeat/gdi-cli/internal/model"
	"github.com/geobeat/gdi-cli/internal/report"
)

// Output formats accepted by --format.
const (
	formatSummary = "summary"
	formatJSON    = "json"
	formatRecords = "records"
	formatXLSX    = "xlsx"
)

// sourceFlags selects where the points of an analysis come from. Exactly one
// of Input, Bitnodes or Synthetic must be set.
type sourceFlags struct {
	Network         string
	Input           string
	Bitnodes        bool
	BitnodesURL     string
	BitnodesKey     string
	Synthetic       int
	Clusters        int
	Seed            uint64
	ProviderBuckets bool
}

var analyzeSrc sourceFlags

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Score the geographic decentralization of one network",
	Long: `Loads node locations from a CSV file or URL, a point shapefile, the Bitnodes
API or a synthetic generator, runs the full metric pipeline and writes the
report. Runs are archived to the configured store unless --no-archive is set.`,
	Example: `  gdi analyze --network ethereum --input nodes.csv
  gdi analyze --bitnodes --format records --output bitcoin.json
  gdi analyze --network demo --synthetic 2000 --clusters 6 --format xlsx --output demo.xlsx`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("analyze"); err != nil {
			return err
		}
		ctx := cmd.Context()

		opts, err := analyzeOptions(cmd)
		if err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")
		if err := checkOutput(format, output); err != nil {
			return err
		}

		ps, stats, err := loadPoints(ctx, analyzeSrc)
		if err != nil {
			return err
		}
		if stats != nil && stats.Skipped() > 0 {
			zap.L().Warn("analyze: dropped rows",
				zap.Int("rows", stats.Rows),
				zap.Int("missing_coords", stats.MissingCoords),
				zap.Int("invalid_coords", stats.InvalidCoords),
			)
		}

		rep, runErr := analysis.Analyze(ctx, ps, opts)

		noArchive, _ := cmd.Flags().GetBool("no-archive")
		if !noArchive {
			archiveRun(ctx, ps, opts, rep, runErr)
		}
		if runErr != nil {
			return runErr
		}

		if cellsPath, _ := cmd.Flags().GetString("cells-geojson"); cellsPath != "" {
			if err := writeCells(cellsPath, rep); err != nil {
				return err
			}
		}

		w := cmd.OutOrStdout()
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return eris.Wrapf(err, "create %s", output)
			}
			defer f.Close() //nolint:errcheck
			w = f
		}
		return writeReport(w, format, rep)
	},
}

func init() {
	f := analyzeCmd.Flags()
	f.StringVar(&analyzeSrc.Network, "network", "", "network name (default bitcoin for --bitnodes)")
	f.StringVar(&analyzeSrc.Input, "input", "", "CSV path or http(s) URL, or a .shp point shapefile")
	f.BoolVar(&analyzeSrc.Bitnodes, "bitnodes", false, "fetch the latest Bitnodes snapshot")
	f.StringVar(&analyzeSrc.BitnodesURL, "bitnodes-url", ingest.DefaultBitnodesURL, "Bitnodes API root")
	f.StringVar(&analyzeSrc.BitnodesKey, "bitnodes-key", os.Getenv("GDI_BITNODES_KEY"), "Bitnodes API key")
	f.IntVar(&analyzeSrc.Synthetic, "synthetic", 0, "generate this many clustered synthetic nodes")
	f.IntVar(&analyzeSrc.Clusters, "clusters", 5, "metro clusters for --synthetic")
	f.Uint64Var(&analyzeSrc.Seed, "synthetic-seed", 1, "seed for --synthetic")
	f.BoolVar(&analyzeSrc.ProviderBuckets, "provider-buckets", false, "bucket organizations into hosting providers")

	f.Float64("threshold-km", 0, "Moran's I distance band in km (default from config)")
	f.Int("resolution", 0, "S2 cell level (default from config)")
	f.Int("permutations", 0, "Moran's I permutations (default from config)")
	f.Uint64("seed", 0, "permutation seed (default from config)")
	f.Bool("skip-composite", false, "compute spatial metrics only")
	f.String("profile", "", "YAML scoring profile overriding the composite weights")

	f.String("format", formatSummary, "output format: summary, json, records, xlsx")
	f.String("output", "", "output file (default stdout)")
	f.String("cells-geojson", "", "also write occupied cells as GeoJSON to this path")
	f.Bool("no-archive", false, "do not archive the run")

	rootCmd.AddCommand(analyzeCmd)
}

// analyzeOptions starts from the configured defaults and applies the flags
// that were set explicitly.
func analyzeOptions(cmd *cobra.Command) (analysis.Options, error) {
	opts := analysis.OptionsFromConfig(cfg)
	f := cmd.Flags()
	if f.Changed("threshold-km") {
		opts.ThresholdKm, _ = f.GetFloat64("threshold-km")
	}
	if f.Changed("resolution") {
		opts.Resolution, _ = f.GetInt("resolution")
	}
	if f.Changed("permutations") {
		opts.Permutations, _ = f.GetInt("permutations")
	}
	if f.Changed("seed") {
		opts.Seed, _ = f.GetUint64("seed")
	}
	opts.SkipComposite, _ = f.GetBool("skip-composite")
	if path, _ := f.GetString("profile"); path != "" {
		profile, err := composite.LoadProfile(path)
		if err != nil {
			return analysis.Options{}, err
		}
		opts.Composite = profile
	}
	return opts, opts.Validate()
}

func checkOutput(format, output string) error {
	switch format {
	case formatSummary, formatJSON, formatRecords:
		return nil
	case formatXLSX:
		if output == "" {
			return eris.New("--format xlsx requires --output")
		}
		return nil
	default:
		return eris.Errorf("unknown format %q (want summary, json, records or xlsx)", format)
	}
}

// loadPoints reads the point set selected by src.
func loadPoints(ctx context.Context, src sourceFlags) (model.PointSet, *ingest.Stats, error) {
	selected := 0
	for _, on := range []bool{src.Input != "", src.Bitnodes, src.Synthetic > 0} {
		if on {
			selected++
		}
	}
	if selected != 1 {
		return model.PointSet{}, nil, eris.New("exactly one of --input, --bitnodes or --synthetic is required")
	}

	network := strings.ToLower(strings.TrimSpace(src.Network))
	opts := ingest.Options{Network: network, ProviderBuckets: src.ProviderBuckets}

	switch {
	case src.Bitnodes:
		client := ingest.NewBitnodesClient(nil, src.BitnodesURL, src.BitnodesKey)
		return client.LatestSnapshot(ctx, opts)
	case network == "":
		return model.PointSet{}, nil, eris.New("--network is required")
	case src.Synthetic > 0:
		ps, err := ingest.GenerateClustered(network, src.Synthetic, src.Clusters, src.Seed)
		return ps, nil, err
	case strings.EqualFold(filepath.Ext(src.Input), ".shp"):
		return ingest.LoadShapefile(src.Input, opts)
	default:
		return ingest.LoadCSV(ctx, src.Input, opts)
	}
}

// archiveRun stores the outcome of an analysis. Failures are logged only.
func archiveRun(ctx context.Context, ps model.PointSet, opts analysis.Options, rep *analysis.Report, runErr error) {
	run, err := report.NewRun(ps, opts, rep, runErr)
	if err != nil {
		zap.L().Warn("analyze: build run record", zap.Error(err))
		return
	}

	st, err := initStore(ctx)
	if err != nil {
		zap.L().Warn("analyze: open store, run not archived", zap.Error(err))
		return
	}
	defer st.Close() //nolint:errcheck

	saved, err := st.CreateRun(ctx, run)
	if err != nil {
		zap.L().Warn("analyze: archive run", zap.Error(err))
		return
	}
	zap.L().Info("analyze: run archived",
		zap.String("run_id", saved.ID),
		zap.String("label", saved.Label),
		zap.String("status", string(saved.Status)),
	)
}

func writeReport(w io.Writer, format string, rep *analysis.Report) error {
	switch format {
	case formatJSON:
		return report.WriteJSON(w, rep)
	case formatRecords:
		recs, err := report.ToNetworkRecords([]*analysis.Report{rep})
		if err != nil {
			return err
		}
		return report.WriteJSON(w, recs)
	case formatXLSX:
		return report.WriteXLSX(w, []*analysis.Report{rep})
	default:
		return report.WriteSummary(w, rep)
	}
}

func writeCells(path string, rep *analysis.Report) error {
	idx, err := grid.NewS2Indexer(rep.Config.Resolution)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}
	if err := report.WriteCellsGeoJSON(f, rep.Cells, idx); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "close %s", path)
	}
	zap.L().Info("analyze: wrote cells", zap.String("path", path), zap.Int("cells", len(rep.Cells.Items)))
	return nil
}
