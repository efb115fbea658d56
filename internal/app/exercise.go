package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/cohortwatch/internal/output"
)

var (
	exerciseCohort string
	exerciseFormat string
)

var exerciseCmd = &cobra.Command{
	Use:   "exercise <label>",
	Short: "Show statistics for one exercise",
	Args:  cobra.ExactArgs(1),
	RunE:  runExercise,
}

func init() {
	exerciseCmd.Flags().StringVar(&exerciseCohort, "cohort", "", "Restrict to one cohort")
	exerciseCmd.Flags().StringVar(&exerciseFormat, "format", "table", "Output format: table, json or yaml")
	rootCmd.AddCommand(exerciseCmd)
}

func runExercise(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	r := e.orch.AnalyzeExercise(cmd.Context(), exerciseCohort, args[0])
	w := cmd.OutOrStdout()
	if handled, err := output.Write(w, format(exerciseFormat), r); handled || err != nil {
		return err
	}

	fmt.Fprintln(w, output.Section("Exercise: "+args[0]))
	fmt.Fprintln(w)
	if !r.Success {
		fmt.Fprintf(w, " %s\n", output.StyleWarning.Render(r.Message))
		return nil
	}

	g := r.Statistics.General
	q := r.Statistics.Quartiles
	fmt.Fprintf(w, " %s %s\n", output.StyleLabel.Render("Sessions"), output.StyleValue.Render(fmt.Sprint(r.TotalSessions)))
	fmt.Fprintf(w, " %s %s\n", output.StyleLabel.Render("Entities"), output.StyleValue.Render(fmt.Sprint(r.EntityCount)))
	fmt.Fprintf(w, " %s %s\n", output.StyleLabel.Render("Mean score"), output.ScoreBar(g.MeanScore, e.cfg.Analytics.MaxScore, e.passThreshold(), 20))
	fmt.Fprintf(w, " %s %s\n", output.StyleLabel.Render("Quartiles"), output.StyleValue.Render(fmt.Sprintf("%.1f / %.1f / %.1f", q.ScoreQ1, q.ScoreQ2, q.ScoreQ3)))
	fmt.Fprintf(w, " %s %s\n", output.StyleLabel.Render("Approval rate"), output.RateBar(g.ApprovalRate, 20))
	fmt.Fprintf(w, " %s %s\n", output.StyleLabel.Render("Mean duration"), output.StyleValue.Render(fmt.Sprintf("%.1f min", g.MeanDurationMinutes)))
	fmt.Fprintln(w)

	if len(r.Visualization.ScoreDistribution) > 0 {
		tbl := output.NewTable("Score", "Sessions")
		for _, b := range r.Visualization.ScoreDistribution {
			tbl.AddRow(fmt.Sprintf("%g", b.Score), fmt.Sprint(b.Count))
		}
		tbl.WriteTo(w)
	}
	return nil
}
