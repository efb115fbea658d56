package app

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/cohortwatch/internal/output"
)

var (
	entityCohort string
	entityFormat string
)

var entityCmd = &cobra.Command{
	Use:   "entity <entity-id>",
	Short: "Show one entity's summary, exercises and progress",
	Args:  cobra.ExactArgs(1),
	RunE:  runEntity,
}

func init() {
	entityCmd.Flags().StringVar(&entityCohort, "cohort", "", "Restrict to one cohort")
	entityCmd.Flags().StringVar(&entityFormat, "format", "table", "Output format: table, json or yaml")
	rootCmd.AddCommand(entityCmd)
}

func runEntity(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	r := e.orch.AnalyzeEntity(cmd.Context(), args[0], entityCohort)
	w := cmd.OutOrStdout()
	if handled, err := output.Write(w, format(entityFormat), r); handled || err != nil {
		return err
	}

	label := r.EntityLabel
	if label == "" {
		label = r.EntityID
	}
	fmt.Fprintln(w, output.Section("Entity: "+label))
	fmt.Fprintln(w)
	if !r.Success {
		fmt.Fprintf(w, " %s\n", output.StyleError.Render(r.Message))
		return nil
	}
	if r.TotalSessions == 0 {
		fmt.Fprintf(w, " %s\n", output.StyleMuted.Render(r.Message))
		return nil
	}

	maxScore := e.cfg.Analytics.MaxScore
	s := r.Summary
	fmt.Fprintf(w, " %s %s\n", output.StyleLabel.Render("Sessions"), output.StyleValue.Render(fmt.Sprint(r.TotalSessions)))
	fmt.Fprintf(w, " %s %s\n", output.StyleLabel.Render("Mean score"), output.ScoreBar(s.MeanScore, maxScore, e.passThreshold(), 20))
	fmt.Fprintf(w, " %s %s\n", output.StyleLabel.Render("Range"), output.StyleValue.Render(fmt.Sprintf("%.1f - %.1f", s.MinScore, s.MaxScore)))
	fmt.Fprintf(w, " %s %s\n", output.StyleLabel.Render("Mean duration"), output.StyleValue.Render(fmt.Sprintf("%.1f min", s.MeanDurationMinutes)))
	fmt.Fprintln(w)

	tbl := output.NewTable("Exercise", "Sessions", "Mean", "Best", "Recent")
	for _, ex := range r.PerExercise {
		var recent string
		for _, p := range r.Progress[ex.Exercise] {
			recent += fmt.Sprintf("%.0f ", p.Score)
		}
		tbl.AddRow(ex.Exercise, fmt.Sprint(ex.Sessions), fmt.Sprintf("%.2f", ex.MeanScore),
			fmt.Sprintf("%.1f", ex.Best), recent)
	}
	tbl.WriteTo(w)
	fmt.Fprintln(w)

	for _, msg := range r.Insights {
		fmt.Fprintf(w, "  %s %s\n", output.StyleMuted.Render("·"), msg)
	}
	return nil
}

// sortedKeys returns the keys of m in lexical order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
