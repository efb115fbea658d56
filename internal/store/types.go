// Package store provides SQLite persistence for session records, report
// snapshots and their metrics.
package store

import "time"

// Snapshot is a point-in-time capture of one cohort report.
type Snapshot struct {
	ID       int64     `json:"id"`
	TakenAt  time.Time `json:"taken_at"`
	Command  string    `json:"command"`
	Version  string    `json:"version"`
	CohortID string    `json:"cohort_id"`
	ReportID string    `json:"report_id"`
}

// AggregateMetric represents a named metric value within a snapshot.
type AggregateMetric struct {
	ID          int64   `json:"id"`
	SnapshotID  int64   `json:"snapshot_id"`
	MetricName  string  `json:"metric_name"`
	MetricValue float64 `json:"metric_value"`
	Detail      string  `json:"detail,omitempty"`
}

// AtRiskRow is a flagged entity recorded with a snapshot.
type AtRiskRow struct {
	ID                  int64   `json:"id"`
	SnapshotID          int64   `json:"snapshot_id"`
	EntityID            string  `json:"entity_id"`
	EntityLabel         string  `json:"entity_label"`
	MeanScore           float64 `json:"mean_score"`
	Sessions            int     `json:"sessions"`
	MeanDurationMinutes float64 `json:"mean_duration_minutes"`
	Reason              string  `json:"reason"`
}

// CohortSummary counts the stored sessions of one cohort.
type CohortSummary struct {
	CohortID  string    `json:"cohort_id"`
	Sessions  int       `json:"sessions"`
	Entities  int       `json:"entities"`
	Exercises int       `json:"exercises"`
	LastAt    time.Time `json:"last_at"`
}

// SnapshotDiff represents the comparison between two snapshots.
type SnapshotDiff struct {
	Previous *Snapshot     `json:"previous"`
	Current  *Snapshot     `json:"current"`
	Deltas   []MetricDelta `json:"deltas"`
}

// MetricDelta represents the change in a single metric between snapshots.
type MetricDelta struct {
	Name      string  `json:"name"`
	Previous  float64 `json:"previous"`
	Current   float64 `json:"current"`
	Delta     float64 `json:"delta"`
	Direction string  `json:"direction"` // "improved", "regressed", "unchanged"
}
