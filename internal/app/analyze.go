package app

import (
	"context"
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/blackwell-systems/cohortwatch/internal/output"
	"github.com/blackwell-systems/cohortwatch/internal/pipeline"
)

var (
	analyzeCohort string
	analyzeAll    bool
	analyzeFormat string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run the full analytics pipeline over a cohort",
	Long: `Analyze a cohort's sessions: descriptive statistics, per-exercise
breakdown, correlations, clustering, regression, classification, insights,
ranking and at-risk entities.

Examples:
  cohortwatch analyze --cohort spring-2025
  cohortwatch analyze                       # every stored session
  cohortwatch analyze --all --format yaml   # one report per cohort`,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeCohort, "cohort", "", "Cohort to analyze (default: all sessions)")
	analyzeCmd.Flags().BoolVar(&analyzeAll, "all", false, "Analyze every stored cohort separately")
	analyzeCmd.Flags().StringVar(&analyzeFormat, "format", "table", "Output format: table, json or yaml")
	rootCmd.AddCommand(analyzeCmd)
}

// cohortReport pairs a report with the cohort it covers.
type cohortReport struct {
	CohortID string          `json:"cohort_id"`
	Report   pipeline.Report `json:"report"`
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	cohorts := []string{analyzeCohort}
	if analyzeAll {
		summaries, err := e.db.ListCohorts(cmd.Context())
		if err != nil {
			return err
		}
		cohorts = cohorts[:0]
		for _, s := range summaries {
			cohorts = append(cohorts, s.CohortID)
		}
	}

	reports, err := analyzeCohorts(cmd.Context(), e.orch, cohorts)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	var payload any = reports
	if !analyzeAll {
		payload = reports[0].Report
	}
	if handled, err := output.Write(w, format(analyzeFormat), payload); handled || err != nil {
		return err
	}

	for i, cr := range reports {
		if i > 0 {
			fmt.Fprintln(w)
		}
		renderReport(w, cr.CohortID, cr.Report, e.passThreshold(), e.cfg.Analytics.MaxScore)
	}
	return nil
}

// analyzeCohorts runs one pipeline per cohort on a bounded pool, keeping
// input order in the result.
func analyzeCohorts(ctx context.Context, orch *pipeline.Orchestrator, cohorts []string) ([]cohortReport, error) {
	out := make([]cohortReport, len(cohorts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, c := range cohorts {
		g.Go(func() error {
			out[i] = cohortReport{CohortID: c, Report: orch.AnalyzeCohort(ctx, c)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// renderReport prints the styled cohort report.
func renderReport(w io.Writer, cohortID string, r pipeline.Report, pass, maxScore float64) {
	title := "Cohort Report"
	if cohortID != "" {
		title = fmt.Sprintf("Cohort Report: %s", cohortID)
	}
	fmt.Fprintln(w, output.Section(title))
	fmt.Fprintln(w)

	if !r.Success {
		fmt.Fprintf(w, " %s\n", output.StyleError.Render(r.Message))
		return
	}
	if r.TotalSessions == 0 {
		fmt.Fprintf(w, " %s\n", output.StyleMuted.Render(r.Message))
		return
	}

	g := r.Statistics.General
	fmt.Fprintf(w, " %s %s\n", output.StyleLabel.Render("Sessions"), output.StyleValue.Render(fmt.Sprint(g.TotalSessions)))
	fmt.Fprintf(w, " %s %s\n", output.StyleLabel.Render("Entities"), output.StyleValue.Render(fmt.Sprint(g.TotalEntities)))
	fmt.Fprintf(w, " %s %s\n", output.StyleLabel.Render("Mean score"), output.ScoreBar(g.MeanScore, maxScore, pass, 20))
	fmt.Fprintf(w, " %s %s\n", output.StyleLabel.Render("Score std"), output.StyleValue.Render(fmt.Sprintf("%.2f", g.StdScore)))
	fmt.Fprintf(w, " %s %s\n", output.StyleLabel.Render("Approval rate"), output.RateBar(g.ApprovalRate, 20))
	fmt.Fprintf(w, " %s %s\n", output.StyleLabel.Render("Mean duration"), output.StyleValue.Render(fmt.Sprintf("%.1f min", g.MeanDurationMinutes)))
	fmt.Fprintln(w)

	renderExercises(w, r, pass)
	renderInsights(w, r)
	renderAtRisk(w, r)
	renderRanking(w, r)
	renderModels(w, r)
}

func renderExercises(w io.Writer, r pipeline.Report, pass float64) {
	fmt.Fprintln(w, output.Section("Exercises"))
	fmt.Fprintln(w)
	tbl := output.NewTable("Exercise", "Sessions", "Mean", "Approval", "Duration", "Difficulty").AlignRight(1, 2, 3, 4)
	for _, name := range sortedKeys(r.PerExercise) {
		ex := r.PerExercise[name]
		mean := fmt.Sprintf("%.2f", ex.MeanScore)
		if ex.MeanScore < pass {
			mean = output.StyleError.Render(mean)
		}
		tbl.AddRow(name, fmt.Sprint(ex.Sessions), mean,
			fmt.Sprintf("%.0f%%", ex.ApprovalRate*100),
			fmt.Sprintf("%.1f min", ex.MeanDurationMinutes),
			string(ex.Difficulty))
	}
	tbl.WriteTo(w)
	fmt.Fprintln(w)
}

func renderInsights(w io.Writer, r pipeline.Report) {
	if len(r.Insights) == 0 {
		return
	}
	fmt.Fprintln(w, output.Section("Insights"))
	fmt.Fprintln(w)
	for _, in := range r.Insights {
		fmt.Fprintf(w, "  %s %s\n", output.Marker(string(in.Kind)), in.Message)
	}
	fmt.Fprintln(w)
}

func renderAtRisk(w io.Writer, r pipeline.Report) {
	fmt.Fprintln(w, output.Section("At Risk"))
	fmt.Fprintln(w)
	if len(r.AtRisk) == 0 {
		fmt.Fprintf(w, " %s\n\n", output.StyleSuccess.Render("No entities flagged"))
		return
	}
	tbl := output.NewTable("Entity", "Sessions", "Mean", "Duration", "Reason")
	for _, a := range r.AtRisk {
		tbl.AddRow(a.EntityLabel, fmt.Sprint(a.Sessions), fmt.Sprintf("%.2f", a.MeanScore),
			fmt.Sprintf("%.1f min", a.MeanDurationMinutes), a.Reason)
	}
	tbl.WriteTo(w)
	fmt.Fprintln(w)
}

func renderRanking(w io.Writer, r pipeline.Report) {
	if len(r.Ranking) == 0 {
		return
	}
	fmt.Fprintln(w, output.Section("Ranking"))
	fmt.Fprintln(w)
	tbl := output.NewTable("#", "Entity", "Sessions", "Mean", "Composite").AlignRight(0, 2, 3, 4)
	for _, e := range r.Ranking {
		tbl.AddRow(fmt.Sprint(e.Rank), e.EntityLabel, fmt.Sprint(e.Sessions),
			fmt.Sprintf("%.2f", e.MeanScore), fmt.Sprintf("%.3f", e.Composite))
	}
	tbl.WriteTo(w)
	fmt.Fprintln(w)
}

func renderModels(w io.Writer, r pipeline.Report) {
	fmt.Fprintln(w, output.Section("Models"))
	fmt.Fprintln(w)

	if c := r.Correlations; c.Available {
		fmt.Fprintf(w, " %s r=%+.3f (%s)\n", output.StyleLabel.Render("Duration vs score"), c.DurationScore.R, c.DurationScore.Strength)
		fmt.Fprintf(w, " %s r=%+.3f (%s)\n", output.StyleLabel.Render("Assistant vs score"), c.AssistantScore.R, c.AssistantScore.Strength)
	} else {
		fmt.Fprintf(w, " %s %s\n", output.StyleLabel.Render("Correlation"), output.StyleMuted.Render(c.Reason))
	}

	if c := r.Clustering; c.Available {
		fmt.Fprintf(w, " %s %d groups, silhouette %.3f (%s)\n", output.StyleLabel.Render("Clustering"), len(c.Groups), c.Silhouette, c.Quality)
	} else {
		fmt.Fprintf(w, " %s %s\n", output.StyleLabel.Render("Clustering"), output.StyleMuted.Render(c.Reason))
	}

	if p := r.Prediction; p.Available {
		fmt.Fprintf(w, " %s R²=%.3f (%s)\n", output.StyleLabel.Render("Regression"), p.R2, p.Precision)
	} else {
		fmt.Fprintf(w, " %s %s\n", output.StyleLabel.Render("Regression"), output.StyleMuted.Render(p.Reason))
	}

	if m := r.ClassificationModel; m.Available {
		fmt.Fprintf(w, " %s %s, accuracy %.2f\n", output.StyleLabel.Render("Classification"), m.BestModel, m.BestAccuracy)
	} else {
		fmt.Fprintf(w, " %s %s\n", output.StyleLabel.Render("Classification"), output.StyleMuted.Render(m.Reason))
	}
	fmt.Fprintln(w)
}

