package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/blackwell-systems/cohortwatch/internal/analyzer"
	"github.com/blackwell-systems/cohortwatch/internal/pipeline"
	"github.com/blackwell-systems/cohortwatch/internal/records"
)

// mutableFetcher serves a record slice that tests can grow between checks.
type mutableFetcher struct {
	mu   sync.Mutex
	rows records.SliceFetcher
	err  error
}

func (f *mutableFetcher) Fetch(ctx context.Context, scope records.Scope) ([]records.SessionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.rows.Fetch(ctx, scope)
}

func (f *mutableFetcher) add(rows ...records.SessionRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, rows...)
}

func (f *mutableFetcher) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func session(entity, exercise string, score float64) records.SessionRecord {
	return records.SessionRecord{
		EntityID:              entity,
		EntityLabel:           "Entity " + entity,
		CohortID:              "c1",
		ExerciseLabel:         exercise,
		DurationSeconds:       60,
		Score:                 score,
		AssistantInteractions: 2,
		OccurredAt:            time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func newTestWatcher(t *testing.T, f *mutableFetcher) *Watcher {
	t.Helper()
	orch := pipeline.New(f, analyzer.DefaultConfig(), 4, pipeline.WithLogger(zaptest.NewLogger(t)))
	return New(orch, []string{"c1"}, time.Minute, nil,
		WithLogger(zaptest.NewLogger(t)),
		WithClock(func() time.Time { return testNow }),
	)
}

func TestSnapshot_FromReport(t *testing.T) {
	f := &mutableFetcher{}
	for i := range 4 {
		f.add(session(fmt.Sprintf("a%d", i), "Algebra", 5))
	}
	f.add(session("b0", "Fractions", 2))

	w := newTestWatcher(t, f)
	state, err := w.Snapshot(context.Background(), "c1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.TotalSessions != 5 {
		t.Errorf("TotalSessions = %d, want 5", state.TotalSessions)
	}
	if state.ApprovalPct != 80 {
		t.Errorf("ApprovalPct = %v, want 80", state.ApprovalPct)
	}
	if _, ok := state.LowExercises["Fractions"]; !ok || len(state.LowExercises) != 1 {
		t.Errorf("LowExercises = %v, want only Fractions", state.LowExercises)
	}
	if state.AtRisk["b0"] != "Entity b0" {
		t.Errorf("AtRisk = %v, want b0", state.AtRisk)
	}
}

func TestSnapshot_FetchError(t *testing.T) {
	f := &mutableFetcher{}
	f.fail(errors.New("disk gone"))
	w := newTestWatcher(t, f)
	if _, err := w.Snapshot(context.Background(), "c1"); err == nil {
		t.Error("expected error for failed analysis")
	}
}

func TestCheck_DetectsDecline(t *testing.T) {
	f := &mutableFetcher{}
	for i := range 4 {
		f.add(session(fmt.Sprintf("a%d", i), "Algebra", 5))
	}
	w := newTestWatcher(t, f)

	// First check only records the baseline.
	if alerts := w.Check(context.Background()); len(alerts) != 0 {
		t.Fatalf("baseline check should not alert, got %+v", alerts)
	}

	for i := range 5 {
		f.add(session(fmt.Sprintf("b%d", i), "Fractions", 1))
	}
	alerts := w.Check(context.Background())

	for _, want := range []struct{ level, title string }{
		{LevelCritical, "Approval rate below threshold"},
		{LevelCritical, "Exercise below pass: Fractions"},
		{LevelWarning, "Approval rate dropped"},
		{LevelWarning, "New at-risk entities"},
		{LevelInfo, "New sessions recorded"},
	} {
		if findAlert(alerts, want.level, want.title) == nil {
			t.Errorf("missing %s alert %q in %+v", want.level, want.title, alerts)
		}
	}

	// Nothing changed since the last check.
	if again := w.Check(context.Background()); len(again) != 0 {
		t.Errorf("expected no alerts without new data, got %+v", again)
	}
}

func TestCheck_SuppressesRepeatedFailures(t *testing.T) {
	f := &mutableFetcher{}
	f.add(session("a0", "Algebra", 5))
	w := newTestWatcher(t, f)
	w.Check(context.Background())

	f.fail(errors.New("disk gone"))
	first := w.Check(context.Background())
	if findAlert(first, LevelWarning, "Snapshot failed") == nil {
		t.Fatalf("expected failure alert, got %+v", first)
	}
	if second := w.Check(context.Background()); len(second) != 0 {
		t.Errorf("identical failure should be suppressed, got %+v", second)
	}
}

func TestRun_TriggerCausesCheck(t *testing.T) {
	f := &mutableFetcher{}
	f.add(session("a0", "Algebra", 5))
	orch := pipeline.New(f, analyzer.DefaultConfig(), 4)

	trigger := make(chan struct{}, 1)
	got := make(chan Alert, 8)
	w := New(orch, []string{"c1"}, time.Hour, func(a Alert) { got <- a },
		WithTrigger(trigger),
		WithLogger(zaptest.NewLogger(t)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Wait for the baseline snapshot to be taken before adding data.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := w.State("c1"); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("baseline snapshot not taken")
		}
		time.Sleep(5 * time.Millisecond)
	}

	f.add(session("a1", "Algebra", 6))
	trigger <- struct{}{}

	select {
	case a := <-got:
		if a.Title != "New sessions recorded" {
			t.Errorf("unexpected alert %+v", a)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("trigger did not produce an alert")
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}
}

func TestWatchFile_SignalsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cohortwatch.db")
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	trig, err := WatchFile(path, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("WatchFile: %v", err)
	}
	defer func() { _ = trig.Close() }()

	// Unrelated files are ignored.
	if err := os.WriteFile(filepath.Join(dir, "other.txt"), []byte("y"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path+"-wal", []byte("z"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case <-trig.C:
	case <-time.After(2 * time.Second):
		t.Fatal("no signal after write")
	}
}

func TestNew_SetsFields(t *testing.T) {
	w := New(nil, []string{"a", "b"}, 3*time.Minute, nil)
	if w.interval != 3*time.Minute {
		t.Errorf("interval = %v", w.interval)
	}
	if len(w.cohorts) != 2 {
		t.Errorf("cohorts = %v", w.cohorts)
	}
	if w.thresholds != DefaultThresholds() {
		t.Errorf("thresholds = %+v", w.thresholds)
	}
	if w.previous == nil || w.lastAlertKeys == nil {
		t.Error("maps should be initialized")
	}
}
