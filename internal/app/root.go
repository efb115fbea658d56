// Package app contains the Cobra command tree for cohortwatch.
package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/cohortwatch/internal/output"
	"github.com/blackwell-systems/cohortwatch/internal/store"
)

var appVersion = "dev"

// SetVersion sets the application version (called from main with ldflags value).
func SetVersion(v string) {
	appVersion = v
	rootCmd.Version = v
}

var (
	flagNoColor bool
	flagJSON    bool
	flagVerbose bool
	flagConfig  string
)

var rootCmd = &cobra.Command{
	Use:   "cohortwatch",
	Short: "Analytics for training-session cohorts",
	Long: `cohortwatch analyzes training-session records: descriptive statistics,
correlations, clustering, predictive models, ranked insights and at-risk
detection, per cohort, entity or exercise. Records are imported into a local
SQLite store, snapshots track metrics over time, and a watcher alerts on
declines.

Run 'cohortwatch' with no arguments to list stored cohorts.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		output.Configure(flagNoColor)
	},
	RunE: runOverview,
}

// Execute is the entry point called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file path (default: ~/.config/cohortwatch/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Output as JSON")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "Enable verbose (debug) logging")
}

// runOverview lists the stored cohorts.
func runOverview(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	cohorts, err := e.db.ListCohorts(cmd.Context())
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if flagJSON {
		if cohorts == nil {
			cohorts = []store.CohortSummary{}
		}
		return output.WriteJSON(w, cohorts)
	}

	fmt.Fprintln(w, "cohortwatch", appVersion)
	fmt.Fprintln(w)
	if len(cohorts) == 0 {
		fmt.Fprintln(w, " No sessions stored yet. Import some with 'cohortwatch import <file>'.")
		return nil
	}
	fmt.Fprintln(w, output.Section("Cohorts"))
	fmt.Fprintln(w)
	tbl := output.NewTable("Cohort", "Sessions", "Entities", "Exercises", "Last Session")
	for _, c := range cohorts {
		last := "-"
		if !c.LastAt.IsZero() {
			last = c.LastAt.Format("2006-01-02 15:04")
		}
		tbl.AddRow(cohortName(c.CohortID), fmt.Sprint(c.Sessions), fmt.Sprint(c.Entities), fmt.Sprint(c.Exercises), last)
	}
	tbl.WriteTo(w)
	return nil
}

// cohortName renders the empty cohort as "(none)".
func cohortName(id string) string {
	if id == "" {
		return "(none)"
	}
	return id
}
