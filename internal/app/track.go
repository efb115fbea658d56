package app

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/cohortwatch/internal/output"
	"github.com/blackwell-systems/cohortwatch/internal/store"
	"github.com/blackwell-systems/cohortwatch/internal/track"
)

var (
	trackCohort  string
	trackCompare int
	trackHistory int
)

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Snapshot and compare cohort metrics over time",
	Long: `Analyze a cohort, store a new snapshot of its headline metrics and
flagged entities, and compare against an earlier snapshot of the same cohort
to show deltas with trend arrows.

Examples:
  cohortwatch track --cohort spring-2025
  cohortwatch track --cohort spring-2025 --compare 3
  cohortwatch track --cohort spring-2025 --history 5`,
	RunE: runTrack,
}

func init() {
	trackCmd.Flags().StringVar(&trackCohort, "cohort", "", "Cohort to snapshot (default: all sessions)")
	trackCmd.Flags().IntVar(&trackCompare, "compare", 1, "Compare against Nth previous snapshot (1 = most recent)")
	trackCmd.Flags().IntVar(&trackHistory, "history", 0, "Show metric trends across N most recent snapshots")
	rootCmd.AddCommand(trackCmd)
}

func runTrack(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()
	w := cmd.OutOrStdout()

	report := e.orch.AnalyzeCohort(cmd.Context(), trackCohort)
	if !report.Success {
		return fmt.Errorf("analyzing cohort: %s", report.Message)
	}

	current, err := track.Record(e.db, report, trackCohort, "track", appVersion, e.passThreshold())
	if err != nil {
		return err
	}

	// Handle --history mode: show trends across N snapshots.
	if trackHistory > 0 {
		entries, err := track.History(e.db, trackCohort, trackHistory)
		if err != nil {
			return err
		}
		if flagJSON {
			return output.WriteJSON(w, entries)
		}
		renderHistory(w, entries)
		return nil
	}

	diff, err := track.Compare(e.db, current, trackCompare)
	if err != nil {
		return err
	}

	if flagJSON {
		result := map[string]any{"snapshot": current}
		if diff != nil {
			result["diff"] = diff
		}
		return output.WriteJSON(w, result)
	}
	renderTrackOutput(w, current, diff)
	return nil
}

func renderTrackOutput(w io.Writer, current *store.Snapshot, diff *store.SnapshotDiff) {
	fmt.Fprintln(w, output.Section("Track: Snapshot Comparison"))
	fmt.Fprintln(w)
	fmt.Fprintf(w, " Snapshot #%d of %s taken at %s\n\n", current.ID, cohortName(current.CohortID),
		current.TakenAt.Format("2006-01-02 15:04:05"))

	if diff == nil {
		fmt.Fprintln(w, " First snapshot recorded. Run 'cohortwatch track' again later to see trends.")
		return
	}

	fmt.Fprintf(w, " Comparing against snapshot #%d (%s)\n\n",
		diff.Previous.ID, diff.Previous.TakenAt.Format("2006-01-02 15:04:05"))

	tbl := output.NewTable("Metric", "Previous", "Current", "Delta", "Trend")
	for _, d := range diff.Deltas {
		higherIsBetter, known := track.HigherIsBetter[d.Name]
		if !known {
			higherIsBetter = true
		}
		tbl.AddRow(
			track.ShortName(d.Name),
			fmt.Sprintf("%.2f", d.Previous),
			fmt.Sprintf("%.2f", d.Current),
			fmt.Sprintf("%+.2f", d.Delta),
			output.TrendArrow(d.Delta, higherIsBetter),
		)
	}
	tbl.WriteTo(w)
}

// renderHistory shows a multi-snapshot timeline table.
func renderHistory(w io.Writer, entries []track.Entry) {
	fmt.Fprintln(w, output.Section("Track: Metric History"))
	fmt.Fprintln(w)
	fmt.Fprintf(w, " Showing %d most recent snapshots\n\n", len(entries))

	// Metric | snap1 | snap2 | ... | Trend
	headers := []string{"Metric"}
	for _, en := range entries {
		headers = append(headers, fmt.Sprintf("#%d %s", en.Snapshot.ID, en.Snapshot.TakenAt.Format("Jan 02")))
	}
	headers = append(headers, "Trend")
	tbl := output.NewTable(headers...)

	for _, name := range track.DisplayOrder {
		row := []string{track.ShortName(name)}
		var vals []float64
		for _, en := range entries {
			v := en.Metrics[name]
			vals = append(vals, v)
			row = append(row, fmt.Sprintf("%.2f", v))
		}

		// Trend from first to last.
		trend := ""
		if len(vals) >= 2 {
			trend = output.TrendArrow(vals[len(vals)-1]-vals[0], track.HigherIsBetter[name])
		}
		row = append(row, trend)
		tbl.AddRow(row...)
	}
	tbl.WriteTo(w)
}
