package store

import (
	"database/sql"
	"errors"
	"time"
)

const snapshotColumns = "id, taken_at, command, version, cohort_id, report_id"

// CreateSnapshot inserts a new snapshot for a cohort and returns its ID.
func (db *DB) CreateSnapshot(command, version, cohortID, reportID string) (int64, error) {
	result, err := db.conn.Exec(
		"INSERT INTO snapshots (taken_at, command, version, cohort_id, report_id) VALUES (?, ?, ?, ?, ?)",
		time.Now().UTC().Format(time.RFC3339), command, version, cohortID, reportID,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetLatestSnapshot returns the most recent snapshot of a cohort, or nil if
// none exist.
func (db *DB) GetLatestSnapshot(cohortID string) (*Snapshot, error) {
	return db.GetSnapshotN(cohortID, 1)
}

// GetSnapshot returns a snapshot by ID.
func (db *DB) GetSnapshot(id int64) (*Snapshot, error) {
	row := db.conn.QueryRow("SELECT "+snapshotColumns+" FROM snapshots WHERE id = ?", id)
	return scanSnapshot(row)
}

// GetSnapshotN returns the Nth most recent snapshot of a cohort (1 = latest,
// 2 = previous, etc.).
func (db *DB) GetSnapshotN(cohortID string, n int) (*Snapshot, error) {
	row := db.conn.QueryRow(
		"SELECT "+snapshotColumns+" FROM snapshots WHERE cohort_id = ? ORDER BY id DESC LIMIT 1 OFFSET ?",
		cohortID, n-1,
	)
	return scanSnapshot(row)
}

// ListSnapshots returns up to limit snapshots of a cohort, newest first.
func (db *DB) ListSnapshots(cohortID string, limit int) ([]Snapshot, error) {
	rows, err := db.conn.Query(
		"SELECT "+snapshotColumns+" FROM snapshots WHERE cohort_id = ? ORDER BY id DESC LIMIT ?",
		cohortID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Snapshot
	for rows.Next() {
		s, err := scanSnapshotRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row *sql.Row) (*Snapshot, error) {
	s, err := scanSnapshotRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

func scanSnapshotRow(row scanner) (*Snapshot, error) {
	var s Snapshot
	var takenAt string
	if err := row.Scan(&s.ID, &takenAt, &s.Command, &s.Version, &s.CohortID, &s.ReportID); err != nil {
		return nil, err
	}
	s.TakenAt, _ = time.Parse(time.RFC3339, takenAt)
	return &s, nil
}

// InsertAggregateMetric inserts an aggregate metric for a snapshot.
func (db *DB) InsertAggregateMetric(snapshotID int64, name string, value float64, detail string) error {
	_, err := db.conn.Exec(
		"INSERT INTO aggregate_metrics (snapshot_id, metric_name, metric_value, detail) VALUES (?, ?, ?, ?)",
		snapshotID, name, value, detail,
	)
	return err
}

// GetAggregateMetrics returns all aggregate metrics for a snapshot.
func (db *DB) GetAggregateMetrics(snapshotID int64) ([]AggregateMetric, error) {
	rows, err := db.conn.Query(
		"SELECT id, snapshot_id, metric_name, metric_value, detail FROM aggregate_metrics WHERE snapshot_id = ? ORDER BY id",
		snapshotID,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var metrics []AggregateMetric
	for rows.Next() {
		var m AggregateMetric
		var detail sql.NullString
		if err := rows.Scan(&m.ID, &m.SnapshotID, &m.MetricName, &m.MetricValue, &detail); err != nil {
			return nil, err
		}
		m.Detail = detail.String
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// InsertAtRisk records flagged entities for a snapshot.
func (db *DB) InsertAtRisk(snapshotID int64, rows []AtRiskRow) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, r := range rows {
		if _, err := tx.Exec(
			`INSERT INTO at_risk_entities
			(snapshot_id, entity_id, entity_label, mean_score, sessions, mean_duration_minutes, reason)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			snapshotID, r.EntityID, r.EntityLabel, r.MeanScore, r.Sessions,
			r.MeanDurationMinutes, r.Reason,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetAtRisk returns the flagged entities recorded with a snapshot.
func (db *DB) GetAtRisk(snapshotID int64) ([]AtRiskRow, error) {
	rows, err := db.conn.Query(
		`SELECT id, snapshot_id, entity_id, entity_label, mean_score, sessions,
		 mean_duration_minutes, reason
		 FROM at_risk_entities WHERE snapshot_id = ? ORDER BY id`,
		snapshotID,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []AtRiskRow
	for rows.Next() {
		var r AtRiskRow
		if err := rows.Scan(&r.ID, &r.SnapshotID, &r.EntityID, &r.EntityLabel,
			&r.MeanScore, &r.Sessions, &r.MeanDurationMinutes, &r.Reason); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
