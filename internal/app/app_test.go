package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/cohortwatch/internal/pipeline"
)

// resetFlags restores every package-level flag variable, since cobra keeps
// flag state between executions of the same command tree.
func resetFlags() {
	flagNoColor, flagJSON, flagVerbose, flagConfig = false, false, false, ""
	importCohort, importReplace = "", false
	analyzeCohort, analyzeAll, analyzeFormat = "", false, "table"
	entityCohort, entityFormat = "", "table"
	exerciseCohort, exerciseFormat = "", "table"
	trackCohort, trackCompare, trackHistory = "", 1, 0
}

// setup writes a config file pointing at a fresh database and returns its
// path and a scratch directory.
func setup(t *testing.T) (cfgPath, dir string) {
	t.Helper()
	dir = t.TempDir()
	cfgPath = filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf("db_path: %s\nlog_level: error\n", filepath.Join(dir, "test.db"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o600))
	return cfgPath, dir
}

// run executes the command tree with args and returns stdout.
func run(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	t.Cleanup(resetFlags)

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(append([]string{"--config", cfgPath, "--no-color"}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

// writeCSV writes n sessions cycling through four entities and three
// exercises. Entity e0 always scores 1.
func writeCSV(t *testing.T, dir, name string, n int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("entity_id,entity_label,exercise_label,duration_seconds,score,assistant_interactions,occurred_at\n")
	exercises := []string{"Algebra", "Geometry", "Fractions"}
	for i := range n {
		fmt.Fprintf(&b, "e%d,Entity %d,%s,%d,%d,%d,2025-03-%02d\n",
			i%4, i%4, exercises[i%3], 60+i*15, 1+(i%4)*2, i%5, 1+i%28)
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
	return path
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"import", "analyze", "entity", "exercise", "track", "watch", "mcp", "doctor"}
	have := map[string]bool{}
	for _, cmd := range rootCmd.Commands() {
		have[cmd.Name()] = true
	}
	for _, name := range want {
		assert.True(t, have[name], "subcommand %q not registered", name)
	}
}

func TestImportAndAnalyze(t *testing.T) {
	cfg, dir := setup(t)
	csv := writeCSV(t, dir, "sessions.csv", 12)

	out, err := run(t, cfg, "import", csv, "--cohort", "c1")
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 12 session(s) from 1 file(s)")

	out, err = run(t, cfg, "analyze", "--cohort", "c1", "--format", "json")
	require.NoError(t, err)
	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Len(t, report, 17)
	assert.Equal(t, true, report["success"])
	assert.EqualValues(t, 12, report["total_sessions"])

	out, err = run(t, cfg, "analyze", "--cohort", "c1")
	require.NoError(t, err)
	assert.Contains(t, out, "Cohort Report: c1")
	assert.Contains(t, out, "Fractions")
	assert.Contains(t, out, "Entity 0")
}

func TestAnalyze_EmptyStore(t *testing.T) {
	cfg, _ := setup(t)
	out, err := run(t, cfg, "analyze", "--cohort", "nobody")
	require.NoError(t, err)
	assert.Contains(t, out, "no sessions recorded for this scope")
}

func TestAnalyze_UnknownFormat(t *testing.T) {
	cfg, _ := setup(t)
	_, err := run(t, cfg, "analyze", "--format", "xml")
	assert.ErrorContains(t, err, "unknown format")
}

func TestAnalyzeAll_YAML(t *testing.T) {
	cfg, dir := setup(t)
	csv := writeCSV(t, dir, "sessions.csv", 8)
	_, err := run(t, cfg, "import", csv, "--cohort", "a")
	require.NoError(t, err)
	_, err = run(t, cfg, "import", csv, "--cohort", "b")
	require.NoError(t, err)

	out, err := run(t, cfg, "analyze", "--all", "--format", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "cohort_id: a")
	assert.Contains(t, out, "cohort_id: b")
	assert.Less(t, strings.Index(out, "cohort_id: a"), strings.Index(out, "cohort_id: b"))
}

func TestImport_InvalidRecordRejected(t *testing.T) {
	cfg, dir := setup(t)
	path := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("entity_id,exercise_label,score\ne1,Algebra,5\ne2,Algebra,9\n"), 0o600))

	_, err := run(t, cfg, "import", path)
	require.Error(t, err)

	out, err := run(t, cfg, "--json")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)
}

func TestImport_ReplaceRequiresCohort(t *testing.T) {
	cfg, dir := setup(t)
	csv := writeCSV(t, dir, "s.csv", 4)
	_, err := run(t, cfg, "import", csv, "--replace")
	assert.ErrorContains(t, err, "--replace requires --cohort")
}

func TestImport_Replace(t *testing.T) {
	cfg, dir := setup(t)
	csv := writeCSV(t, dir, "s.csv", 4)
	_, err := run(t, cfg, "import", csv, "--cohort", "c1")
	require.NoError(t, err)

	out, err := run(t, cfg, "--json", "import", csv, "--cohort", "c1", "--replace")
	require.NoError(t, err)
	var res importResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.EqualValues(t, 4, res.Replaced)
	assert.Equal(t, 4, res.Inserted)
}

func TestEntityAndExercise(t *testing.T) {
	cfg, dir := setup(t)
	csv := writeCSV(t, dir, "sessions.csv", 12)
	_, err := run(t, cfg, "import", csv, "--cohort", "c1")
	require.NoError(t, err)

	out, err := run(t, cfg, "entity", "e1", "--cohort", "c1", "--format", "json")
	require.NoError(t, err)
	var er pipeline.EntityReport
	require.NoError(t, json.Unmarshal([]byte(out), &er))
	assert.Equal(t, "Entity 1", er.EntityLabel)
	assert.Equal(t, 3, er.TotalSessions)

	out, err = run(t, cfg, "entity", "e1")
	require.NoError(t, err)
	assert.Contains(t, out, "Entity: Entity 1")

	out, err = run(t, cfg, "exercise", "Algebra", "--cohort", "c1")
	require.NoError(t, err)
	assert.Contains(t, out, "Exercise: Algebra")
	assert.Contains(t, out, "Quartiles")

	out, err = run(t, cfg, "exercise", "Calculus")
	require.NoError(t, err)
	assert.Contains(t, out, `no sessions recorded for exercise "Calculus"`)
}

func TestTrack_CompareAndHistory(t *testing.T) {
	cfg, dir := setup(t)
	_, err := run(t, cfg, "import", writeCSV(t, dir, "a.csv", 8), "--cohort", "c1")
	require.NoError(t, err)

	out, err := run(t, cfg, "track", "--cohort", "c1")
	require.NoError(t, err)
	assert.Contains(t, out, "First snapshot recorded")

	_, err = run(t, cfg, "import", writeCSV(t, dir, "b.csv", 4), "--cohort", "c1")
	require.NoError(t, err)

	out, err = run(t, cfg, "--json", "track", "--cohort", "c1")
	require.NoError(t, err)
	var res struct {
		Diff struct {
			Deltas []struct {
				Name      string  `json:"name"`
				Delta     float64 `json:"delta"`
				Direction string  `json:"direction"`
			} `json:"deltas"`
		} `json:"diff"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	var found bool
	for _, d := range res.Diff.Deltas {
		if d.Name == "total_sessions" {
			found = true
			assert.Equal(t, 4.0, d.Delta)
			assert.Equal(t, "improved", d.Direction)
		}
	}
	assert.True(t, found, "total_sessions delta missing: %s", out)

	out, err = run(t, cfg, "track", "--cohort", "c1", "--history", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "Showing 3 most recent snapshots")
}

func TestDoctor(t *testing.T) {
	cfg, dir := setup(t)
	_, err := run(t, cfg, "import", writeCSV(t, dir, "a.csv", 4), "--cohort", "c1")
	require.NoError(t, err)

	out, err := run(t, cfg, "--json", "doctor")
	require.NoError(t, err)
	var res doctorOutput
	require.NoError(t, json.Unmarshal([]byte(out), &res))

	byName := map[string]doctorCheck{}
	for _, c := range res.Checks {
		byName[c.Name] = c
	}
	for _, name := range []string{"Configuration", "Analytics thresholds", "SQLite database", "Session data", "Record invariants", "Cohorts"} {
		assert.True(t, byName[name].Passed, "%s: %s", name, byName[name].Message)
	}
	assert.Equal(t, "4 sessions stored from 1 import(s)", byName["Session data"].Message)
}

func TestOverview(t *testing.T) {
	cfg, dir := setup(t)
	out, err := run(t, cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "No sessions stored yet")

	_, err = run(t, cfg, "import", writeCSV(t, dir, "a.csv", 4), "--cohort", "c1")
	require.NoError(t, err)
	out, err = run(t, cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "c1")
}

func TestWatch_RejectsShortInterval(t *testing.T) {
	cfg, dir := setup(t)
	_, err := run(t, cfg, "import", writeCSV(t, dir, "a.csv", 4), "--cohort", "c1")
	require.NoError(t, err)

	watchInterval = ""
	t.Cleanup(func() { watchInterval = "" })
	_, err = run(t, cfg, "watch", "--interval", "5s")
	assert.ErrorContains(t, err, "at least 30s")
}
