// Package watcher monitors cohort reports, detecting drops in performance
// and other notable changes and emitting alerts.
package watcher

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/blackwell-systems/cohortwatch/internal/pipeline"
)

// Alert levels.
const (
	LevelInfo     = "info"
	LevelWarning  = "warning"
	LevelCritical = "critical"
)

// Source produces cohort reports. Invalidate drops any cached report so the
// next call reflects current data.
type Source interface {
	AnalyzeCohort(ctx context.Context, cohortID string) pipeline.Report
	Invalidate(cohortID string)
}

// WatchState captures the parts of a cohort report the watcher compares.
type WatchState struct {
	Timestamp     time.Time
	CohortID      string
	ReportID      string
	TotalSessions int

	// ApprovalPct is the share of passing sessions, 0-100.
	ApprovalPct float64

	// LowExercises maps exercises whose mean is below the pass threshold
	// to that mean.
	LowExercises map[string]float64

	// AtRisk maps flagged entity IDs to their labels.
	AtRisk map[string]string
}

// StateFromReport extracts a WatchState from r.
func StateFromReport(cohortID string, r pipeline.Report, passThreshold float64) *WatchState {
	s := &WatchState{
		Timestamp:     r.GeneratedAt,
		CohortID:      cohortID,
		ReportID:      r.ReportID,
		TotalSessions: r.TotalSessions,
		ApprovalPct:   r.Statistics.General.ApprovalRate * 100,
		LowExercises:  make(map[string]float64),
		AtRisk:        make(map[string]string),
	}
	for name, ex := range r.PerExercise {
		if ex.MeanScore < passThreshold {
			s.LowExercises[name] = ex.MeanScore
		}
	}
	for _, a := range r.AtRisk {
		s.AtRisk[a.EntityID] = a.EntityLabel
	}
	return s
}

// Alert represents a notable event detected by the watcher.
type Alert struct {
	Level   string    `json:"level"` // "info", "warning", "critical"
	Cohort  string    `json:"cohort"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Thresholds tune alert sensitivity.
type Thresholds struct {
	// PassThreshold is the exercise mean below which an exercise is flagged.
	PassThreshold float64

	// CriticalApprovalPct raises a critical alert when approval falls below it.
	CriticalApprovalPct float64

	// ApprovalDropPoints raises a warning when approval falls by at least
	// this many percentage points between checks.
	ApprovalDropPoints float64
}

// DefaultThresholds returns the stock alert thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{PassThreshold: 4, CriticalApprovalPct: 50, ApprovalDropPoints: 10}
}

// Watcher polls cohort reports at a regular interval and emits alerts when
// notable changes are detected.
type Watcher struct {
	source        Source
	cohorts       []string
	interval      time.Duration
	thresholds    Thresholds
	trigger       <-chan struct{}
	mu            sync.Mutex
	previous      map[string]*WatchState
	alertFn       func(Alert)     // callback for emitting alerts
	lastAlertKeys map[string]bool // dedup: suppress repeated identical alerts
	logger        *zap.Logger
	now           func() time.Time
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithTrigger adds a channel whose sends cause an immediate check, in
// addition to the interval.
func WithTrigger(ch <-chan struct{}) Option {
	return func(w *Watcher) { w.trigger = ch }
}

// WithThresholds overrides the alert thresholds.
func WithThresholds(t Thresholds) Option {
	return func(w *Watcher) { w.thresholds = t }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithClock overrides the alert timestamp source.
func WithClock(now func() time.Time) Option {
	return func(w *Watcher) {
		if now != nil {
			w.now = now
		}
	}
}

// New creates a Watcher over the given cohorts.
func New(source Source, cohorts []string, interval time.Duration, alertFn func(Alert), opts ...Option) *Watcher {
	w := &Watcher{
		source:        source,
		cohorts:       cohorts,
		interval:      interval,
		thresholds:    DefaultThresholds(),
		previous:      make(map[string]*WatchState),
		alertFn:       alertFn,
		lastAlertKeys: make(map[string]bool),
		logger:        zap.NewNop(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run starts the watch loop. It takes an initial snapshot of every cohort,
// then checks at every interval and on every trigger. Blocks until ctx is
// cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	for _, c := range w.cohorts {
		state, err := w.Snapshot(ctx, c)
		if err != nil {
			return fmt.Errorf("initial snapshot of %s: %w", c, err)
		}
		w.setState(c, state)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-w.trigger:
			w.logger.Debug("data change detected")
		}
		for _, a := range w.Check(ctx) {
			if w.alertFn != nil {
				w.alertFn(a)
			}
		}
	}
}

// Snapshot analyzes a cohort afresh and returns its state.
func (w *Watcher) Snapshot(ctx context.Context, cohortID string) (*WatchState, error) {
	w.source.Invalidate(cohortID)
	r := w.source.AnalyzeCohort(ctx, cohortID)
	if !r.Success {
		return nil, fmt.Errorf("analyzing cohort: %s", r.Message)
	}
	return StateFromReport(cohortID, r, w.thresholds.PassThreshold), nil
}

// Check performs a single check cycle over every cohort: takes a new
// snapshot, compares against the previous state, updates the previous state,
// and returns any alerts. Identical alerts are suppressed until the
// underlying data changes.
func (w *Watcher) Check(ctx context.Context) []Alert {
	var raw []Alert
	for _, c := range w.cohorts {
		curr, err := w.Snapshot(ctx, c)
		if err != nil {
			w.logger.Warn("snapshot failed", zap.String("cohort", c), zap.Error(err))
			raw = append(raw, Alert{
				Level:   LevelWarning,
				Cohort:  c,
				Title:   "Snapshot failed",
				Message: fmt.Sprintf("Could not analyze cohort: %v", err),
				Time:    w.now(),
			})
			continue
		}
		if prev, ok := w.State(c); ok {
			raw = append(raw, Compare(prev, curr, w.thresholds, w.now())...)
		}
		w.setState(c, curr)
	}

	// Deduplicate: suppress alerts identical to the last cycle's.
	currentKeys := make(map[string]bool, len(raw))
	var alerts []Alert
	for _, a := range raw {
		key := a.Level + ":" + a.Cohort + ":" + a.Title + ":" + a.Message
		currentKeys[key] = true
		if !w.lastAlertKeys[key] {
			alerts = append(alerts, a)
		}
	}
	w.lastAlertKeys = currentKeys
	return alerts
}

// State returns the last recorded state of a cohort.
func (w *Watcher) State(cohortID string) (*WatchState, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.previous[cohortID]
	return s, ok
}

func (w *Watcher) setState(cohortID string, s *WatchState) {
	w.mu.Lock()
	w.previous[cohortID] = s
	w.mu.Unlock()
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
