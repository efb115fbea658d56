package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/cohortwatch/internal/config"
	"github.com/blackwell-systems/cohortwatch/internal/output"
	"github.com/blackwell-systems/cohortwatch/internal/records"
	"github.com/blackwell-systems/cohortwatch/internal/store"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check whether the cohortwatch setup is healthy",
	Long: `Run a series of health checks against your cohortwatch configuration
and session store. Prints a pass/fail line for each check and a summary of
how many checks passed.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

// doctorCheck holds the result of a single health check.
type doctorCheck struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Message string `json:"message"`
}

// doctorOutput is the JSON-serializable result of the doctor command.
type doctorOutput struct {
	Checks      []doctorCheck `json:"checks"`
	PassedCount int           `json:"passed"`
	TotalCount  int           `json:"total"`
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	var checks []doctorCheck

	cfg, err := config.Load(flagConfig)
	if err != nil {
		checks = append(checks, doctorCheck{Name: "Configuration", Message: err.Error()})
	} else {
		checks = append(checks, doctorCheck{Name: "Configuration", Passed: true, Message: configSource()})
		checks = append(checks, checkThresholds(cfg))

		db, dbCheck := checkDatabase(cfg.DBPath)
		checks = append(checks, dbCheck)
		if db != nil {
			checks = append(checks, checkSessions(ctx, db)...)
			_ = db.Close()
		}
	}
	checks = append(checks, checkWatchDaemon())

	passed := 0
	for _, c := range checks {
		if c.Passed {
			passed++
		}
	}

	w := cmd.OutOrStdout()
	if flagJSON {
		return output.WriteJSON(w, doctorOutput{Checks: checks, PassedCount: passed, TotalCount: len(checks)})
	}

	fmt.Fprintln(w, output.Section("Doctor"))
	fmt.Fprintln(w)
	for _, c := range checks {
		renderDoctorCheck(w, c)
	}
	fmt.Fprintln(w)
	summary := fmt.Sprintf("%d/%d checks passed", passed, len(checks))
	if passed == len(checks) {
		fmt.Fprintf(w, " %s\n\n", output.StyleSuccess.Render(summary))
	} else {
		fmt.Fprintf(w, " %s\n\n", output.StyleWarning.Render(summary))
	}
	return nil
}

// renderDoctorCheck prints a single check result line.
func renderDoctorCheck(w io.Writer, c doctorCheck) {
	var indicator string
	if c.Passed {
		indicator = output.StyleSuccess.Render("✓")
	} else {
		indicator = output.StyleWarning.Render("✗")
	}
	label := output.StyleBold.Render(c.Name)
	detail := output.StyleMuted.Render(c.Message)
	fmt.Fprintf(w, "  %s  %-30s %s\n", indicator, label, detail)
}

// configSource names the config file in use.
func configSource() string {
	if flagConfig != "" {
		return flagConfig
	}
	path := filepath.Join(config.ConfigDir(), config.DefaultConfigFile)
	if _, err := os.Stat(path); err != nil {
		return "defaults (no config file)"
	}
	return path
}

// checkThresholds verifies the analytics thresholds are coherent.
func checkThresholds(cfg *config.Config) doctorCheck {
	a := cfg.Analytics
	switch {
	case a.MaxScore <= 0:
		return doctorCheck{Name: "Analytics thresholds", Message: fmt.Sprintf("max_score must be positive, got %v", a.MaxScore)}
	case a.PassThreshold <= 0 || a.PassThreshold > a.MaxScore:
		return doctorCheck{Name: "Analytics thresholds", Message: fmt.Sprintf("pass_threshold %v outside (0, %v]", a.PassThreshold, a.MaxScore)}
	case a.TestFraction <= 0 || a.TestFraction >= 1:
		return doctorCheck{Name: "Analytics thresholds", Message: fmt.Sprintf("test_fraction %v outside (0, 1)", a.TestFraction)}
	}
	return doctorCheck{
		Name:    "Analytics thresholds",
		Passed:  true,
		Message: fmt.Sprintf("pass %.1f of %.0f, at-risk below %.1f", a.PassThreshold, a.MaxScore, a.AtRiskThreshold),
	}
}

// checkDatabase opens the store and reports its schema version. The caller
// closes the returned DB.
func checkDatabase(path string) (*store.DB, doctorCheck) {
	db, err := store.Open(path)
	if err != nil {
		return nil, doctorCheck{Name: "SQLite database", Message: fmt.Sprintf("cannot open %s: %v", path, err)}
	}
	v, err := db.SchemaVersion()
	if err != nil {
		_ = db.Close()
		return nil, doctorCheck{Name: "SQLite database", Message: fmt.Sprintf("reading schema version: %v", err)}
	}
	return db, doctorCheck{Name: "SQLite database", Passed: true, Message: fmt.Sprintf("%s (schema v%d)", path, v)}
}

// checkSessions reports stored sessions, cohorts and invalid records.
func checkSessions(ctx context.Context, db *store.DB) []doctorCheck {
	rows, err := db.Fetch(ctx, records.Scope{})
	if err != nil {
		return []doctorCheck{{Name: "Session data", Message: fmt.Sprintf("error reading sessions: %v", err)}}
	}

	var checks []doctorCheck
	if len(rows) == 0 {
		checks = append(checks, doctorCheck{Name: "Session data", Message: "no sessions stored (run 'cohortwatch import')"})
	} else {
		imports, _ := db.CountImports(ctx)
		checks = append(checks, doctorCheck{Name: "Session data", Passed: true, Message: fmt.Sprintf("%d sessions stored from %d import(s)", len(rows), imports)})
	}

	var invalid []string
	for _, r := range rows {
		if err := r.Validate(); err != nil {
			invalid = append(invalid, err.Error())
		}
	}
	if len(invalid) > 0 {
		checks = append(checks, doctorCheck{
			Name:    "Record invariants",
			Message: fmt.Sprintf("%d invalid record(s), first: %s", len(invalid), invalid[0]),
		})
	} else {
		checks = append(checks, doctorCheck{Name: "Record invariants", Passed: true, Message: "all records valid"})
	}

	cohorts, err := db.ListCohorts(ctx)
	switch {
	case err != nil:
		checks = append(checks, doctorCheck{Name: "Cohorts", Message: err.Error()})
	case len(cohorts) == 0:
		checks = append(checks, doctorCheck{Name: "Cohorts", Message: "no cohorts stored"})
	default:
		checks = append(checks, doctorCheck{Name: "Cohorts", Passed: true, Message: fmt.Sprintf("%d cohort(s)", len(cohorts))})
	}
	return checks
}

// checkWatchDaemon checks whether the watch daemon PID file exists and the process is running.
func checkWatchDaemon() doctorCheck {
	data, err := os.ReadFile(pidFilePath())
	if err != nil {
		return doctorCheck{Name: "Watch daemon", Message: "not running (no PID file)"}
	}

	pidStr := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return doctorCheck{Name: "Watch daemon", Message: fmt.Sprintf("invalid PID in file: %q", pidStr)}
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return doctorCheck{Name: "Watch daemon", Message: fmt.Sprintf("PID %d not found", pid)}
	}

	// Signal 0 checks process existence without sending an actual signal.
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return doctorCheck{Name: "Watch daemon", Message: fmt.Sprintf("PID %d is not running (stale PID file)", pid)}
	}
	return doctorCheck{Name: "Watch daemon", Passed: true, Message: fmt.Sprintf("running (PID %d)", pid)}
}
