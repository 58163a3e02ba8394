package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/geobeat/gdi-cli/internal/model"
	"github.com/geobeat/gdi-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect archived analysis runs",
	Long:  "Commands for listing, viewing, and summarizing archived analysis runs and metric history.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		network, _ := cmd.Flags().GetString("network")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.RunFilter{
			Network: strings.ToLower(network),
			Status:  model.RunStatus(status),
			Limit:   limit,
		}

		runs, err := st.ListRuns(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(cmd.OutOrStdout(), runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		since, _ := cmd.Flags().GetDuration("since")
		filter := store.RunFilter{}
		if since > 0 {
			filter.CreatedAfter = time.Now().Add(-since)
		}
		filter.Limit = 10000 // high limit for stats

		runs, err := st.ListRuns(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		stats := computeRunStats(runs)
		formatRunStats(cmd.OutOrStdout(), stats)
		return nil
	},
}

// -- runs history --

var runsHistoryCmd = &cobra.Command{
	Use:   "history <network>",
	Short: "Show the archived series of one metric for a network",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		metric, _ := cmd.Flags().GetString("metric")
		limit, _ := cmd.Flags().GetInt("limit")

		points, err := st.ListMetricHistory(ctx, strings.ToLower(args[0]), metric, limit)
		if err != nil {
			return eris.Wrap(err, "runs history")
		}
		if len(points) == 0 {
			fmt.Fprintln(os.Stderr, "No history found.")
			return nil
		}

		formatHistory(cmd.OutOrStdout(), points)
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("network", "", "filter by network")
	runsListCmd.Flags().String("status", "", "filter by run status (complete, failed)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsStatsCmd.Flags().Duration("since", 24*time.Hour, "time window for stats (e.g. 24h, 72h, 168h)")

	runsHistoryCmd.Flags().String("metric", model.IndexGDI, "metric or index name (gdi, pdi, jdi, ihi, morans_i, spatial_hhi, effective_num_locations)")
	runsHistoryCmd.Flags().Int("limit", 30, "max number of points")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	runsCmd.AddCommand(runsHistoryCmd)
	rootCmd.AddCommand(runsCmd)
}

// runStats holds aggregate statistics computed from a set of runs.
type runStats struct {
	Total     int
	Complete  int
	Failed    int
	ByKind    map[string]int
	AvgNodes  float64
	AvgDurMs  float64
	LatestGDI map[string]float64
}

// computeRunStats computes aggregate statistics from a list of runs, newest
// first as ListRuns returns them.
func computeRunStats(runs []model.Run) runStats {
	s := runStats{
		Total:     len(runs),
		ByKind:    map[string]int{},
		LatestGDI: map[string]float64{},
	}

	var nodes, dur int64
	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			s.Complete++
			nodes += int64(r.NodeCount)
			if r.Summary == nil {
				continue
			}
			dur += r.Summary.DurationMs
			if _, seen := s.LatestGDI[r.Network]; !seen && r.Summary.HasComposite {
				s.LatestGDI[r.Network] = r.Summary.GDI
			}
		case model.RunStatusFailed:
			s.Failed++
			kind := "unknown"
			if r.Error != nil && r.Error.Kind != "" {
				kind = r.Error.Kind
			}
			s.ByKind[kind]++
		}
	}

	if s.Complete > 0 {
		s.AvgNodes = float64(nodes) / float64(s.Complete)
		s.AvgDurMs = float64(dur) / float64(s.Complete)
	}
	return s
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNETWORK\tNODES\tSTATUS\tGDI\tCREATED\tLABEL")
	_, _ = fmt.Fprintln(w, "--\t-------\t-----\t------\t---\t-------\t-----")

	for _, r := range runs {
		gdi := "-"
		switch {
		case r.Status == model.RunStatusFailed && r.Error != nil:
			gdi = r.Error.Kind
		case r.Summary != nil && r.Summary.HasComposite:
			gdi = fmt.Sprintf("%.1f", r.Summary.GDI)
		}

		label := r.Label
		if len(label) > 48 {
			label = label[:45] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			r.Network,
			r.NodeCount,
			r.Status,
			gdi,
			r.CreatedAt.Format("2006-01-02 15:04"),
			label,
		)
	}
	_ = w.Flush()
}

// formatRunStats writes aggregate stats to w.
func formatRunStats(out io.Writer, s runStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Complete:\t%d\n", s.Complete)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.Failed)
	for _, kind := range sortedKeys(s.ByKind) {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", kind, s.ByKind[kind])
	}
	if s.Complete > 0 {
		_, _ = fmt.Fprintf(w, "Avg nodes:\t%.0f\n", s.AvgNodes)
		_, _ = fmt.Fprintf(w, "Avg duration:\t%s\n", (time.Duration(s.AvgDurMs) * time.Millisecond).String())
	}
	if len(s.LatestGDI) > 0 {
		_, _ = fmt.Fprintln(w, "Latest GDI:")
		for _, network := range sortedKeys(s.LatestGDI) {
			_, _ = fmt.Fprintf(w, "  %s:\t%.1f\n", network, s.LatestGDI[network])
		}
	}
	_ = w.Flush()
}

// formatHistory writes a metric series, oldest first.
func formatHistory(out io.Writer, points []store.MetricPoint) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CREATED\tRUN\tMETRIC\tVALUE")
	for _, p := range points {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%.4f\n",
			p.CreatedAt.Format("2006-01-02 15:04"),
			truncateID(p.RunID),
			p.Metric,
			p.Value,
		)
	}
	_ = w.Flush()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
