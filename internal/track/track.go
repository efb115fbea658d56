// Package track snapshots cohort report metrics and compares them over time.
package track

import (
	"fmt"

	"github.com/blackwell-systems/cohortwatch/internal/pipeline"
	"github.com/blackwell-systems/cohortwatch/internal/store"
)

// Metric names stored with every snapshot.
const (
	MetricSessions         = "total_sessions"
	MetricEntities         = "total_entities"
	MetricMeanScore        = "mean_score"
	MetricScoreStd         = "score_std"
	MetricApprovalPct      = "approval_pct"
	MetricMeanDuration     = "mean_duration_minutes"
	MetricAtRisk           = "at_risk_count"
	MetricExercisesFlagged = "exercises_flagged"
	MetricSilhouette       = "silhouette"
	MetricBestAccuracy     = "best_accuracy"
	MetricR2               = "regression_r2"
)

// DisplayOrder is the order metrics are stored and rendered in.
var DisplayOrder = []string{
	MetricSessions,
	MetricEntities,
	MetricMeanScore,
	MetricScoreStd,
	MetricApprovalPct,
	MetricMeanDuration,
	MetricAtRisk,
	MetricExercisesFlagged,
	MetricSilhouette,
	MetricBestAccuracy,
	MetricR2,
}

// HigherIsBetter maps metric names to whether higher values are better.
var HigherIsBetter = map[string]bool{
	MetricSessions:         true,
	MetricEntities:         true,
	MetricMeanScore:        true,
	MetricScoreStd:         false,
	MetricApprovalPct:      true,
	MetricMeanDuration:     false,
	MetricAtRisk:           false,
	MetricExercisesFlagged: false,
	MetricSilhouette:       true,
	MetricBestAccuracy:     true,
	MetricR2:               true,
}

var shortNames = map[string]string{
	MetricSessions:         "Sessions",
	MetricEntities:         "Entities",
	MetricMeanScore:        "Mean Score",
	MetricScoreStd:         "Score Std",
	MetricApprovalPct:      "Approval %",
	MetricMeanDuration:     "Mean Duration (min)",
	MetricAtRisk:           "At Risk",
	MetricExercisesFlagged: "Exercises Below Pass",
	MetricSilhouette:       "Silhouette",
	MetricBestAccuracy:     "Best Accuracy",
	MetricR2:               "Regression R²",
}

// ShortName returns a compact display label for a metric.
func ShortName(name string) string {
	if s, ok := shortNames[name]; ok {
		return s
	}
	return name
}

// Metrics flattens a report into named values. Exercises are flagged when
// their mean score is below passThreshold.
func Metrics(r pipeline.Report, passThreshold float64) map[string]float64 {
	var flagged int
	for _, ex := range r.PerExercise {
		if ex.MeanScore < passThreshold {
			flagged++
		}
	}
	g := r.Statistics.General
	return map[string]float64{
		MetricSessions:         float64(g.TotalSessions),
		MetricEntities:         float64(g.TotalEntities),
		MetricMeanScore:        g.MeanScore,
		MetricScoreStd:         g.StdScore,
		MetricApprovalPct:      g.ApprovalRate * 100,
		MetricMeanDuration:     g.MeanDurationMinutes,
		MetricAtRisk:           float64(len(r.AtRisk)),
		MetricExercisesFlagged: float64(flagged),
		MetricSilhouette:       r.ClusteringModel.Silhouette,
		MetricBestAccuracy:     r.ClassificationModel.BestAccuracy,
		MetricR2:               r.Prediction.R2,
	}
}

// Record stores a snapshot of r for cohortID with its metrics and at-risk
// entities.
func Record(db *store.DB, r pipeline.Report, cohortID, command, version string, passThreshold float64) (*store.Snapshot, error) {
	id, err := db.CreateSnapshot(command, version, cohortID, r.ReportID)
	if err != nil {
		return nil, fmt.Errorf("creating snapshot: %w", err)
	}

	metrics := Metrics(r, passThreshold)
	for _, name := range DisplayOrder {
		if err := db.InsertAggregateMetric(id, name, metrics[name], ""); err != nil {
			return nil, fmt.Errorf("inserting metric %s: %w", name, err)
		}
	}

	rows := make([]store.AtRiskRow, 0, len(r.AtRisk))
	for _, a := range r.AtRisk {
		rows = append(rows, store.AtRiskRow{
			EntityID:            a.EntityID,
			EntityLabel:         a.EntityLabel,
			MeanScore:           a.MeanScore,
			Sessions:            a.Sessions,
			MeanDurationMinutes: a.MeanDurationMinutes,
			Reason:              a.Reason,
		})
	}
	if err := db.InsertAtRisk(id, rows); err != nil {
		return nil, fmt.Errorf("inserting at-risk entities: %w", err)
	}

	return db.GetSnapshot(id)
}

// Compare diffs current against the nth snapshot before it in the same
// cohort (1 = immediate predecessor). It returns nil when there is no such
// snapshot.
func Compare(db *store.DB, current *store.Snapshot, n int) (*store.SnapshotDiff, error) {
	if n < 1 {
		n = 1
	}
	prev, err := db.GetSnapshotN(current.CohortID, n+1)
	if err != nil {
		return nil, fmt.Errorf("loading previous snapshot: %w", err)
	}
	if prev == nil {
		return nil, nil
	}

	prevMetrics, err := db.GetAggregateMetrics(prev.ID)
	if err != nil {
		return nil, fmt.Errorf("loading previous metrics: %w", err)
	}
	currMetrics, err := db.GetAggregateMetrics(current.ID)
	if err != nil {
		return nil, fmt.Errorf("loading current metrics: %w", err)
	}

	return &store.SnapshotDiff{
		Previous: prev,
		Current:  current,
		Deltas:   ComputeDeltas(prevMetrics, currMetrics),
	}, nil
}

// ComputeDeltas compares two sets of aggregate metrics. Metrics missing
// from prev are compared against zero.
func ComputeDeltas(prev, curr []store.AggregateMetric) []store.MetricDelta {
	prevMap := make(map[string]float64)
	for _, m := range prev {
		prevMap[m.MetricName] = m.MetricValue
	}

	deltas := make([]store.MetricDelta, 0, len(curr))
	for _, m := range curr {
		prevVal := prevMap[m.MetricName]
		delta := m.MetricValue - prevVal
		deltas = append(deltas, store.MetricDelta{
			Name:      m.MetricName,
			Previous:  prevVal,
			Current:   m.MetricValue,
			Delta:     delta,
			Direction: Direction(m.MetricName, delta),
		})
	}
	return deltas
}

// Direction classifies a delta as "improved", "regressed" or "unchanged".
// Unknown metrics are treated as higher-is-better.
func Direction(name string, delta float64) string {
	if delta == 0 {
		return "unchanged"
	}
	higher, known := HigherIsBetter[name]
	if !known {
		higher = true
	}
	if (delta > 0) == higher {
		return "improved"
	}
	return "regressed"
}

// Entry is one snapshot with its metrics.
type Entry struct {
	Snapshot store.Snapshot     `json:"snapshot"`
	Metrics  map[string]float64 `json:"metrics"`
}

// History returns up to n snapshots of a cohort, oldest first.
func History(db *store.DB, cohortID string, n int) ([]Entry, error) {
	snapshots, err := db.ListSnapshots(cohortID, n)
	if err != nil {
		return nil, fmt.Errorf("loading snapshots: %w", err)
	}

	entries := make([]Entry, 0, len(snapshots))
	for i := len(snapshots) - 1; i >= 0; i-- {
		s := snapshots[i]
		metrics, err := db.GetAggregateMetrics(s.ID)
		if err != nil {
			return nil, fmt.Errorf("loading metrics for snapshot #%d: %w", s.ID, err)
		}
		m := make(map[string]float64, len(metrics))
		for _, am := range metrics {
			m[am.MetricName] = am.MetricValue
		}
		entries = append(entries, Entry{Snapshot: s, Metrics: m})
	}
	return entries, nil
}
