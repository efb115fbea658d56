package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/blackwell-systems/cohortwatch/internal/records"
)

// timeLayout is fixed-width so that stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t
}

// InsertSessions validates and inserts rows in a single transaction. Any
// invalid record aborts the whole import. cohortID, when non-empty,
// overrides the cohort of every row. Rows from one call share an import
// batch ID.
func (db *DB) InsertSessions(ctx context.Context, cohortID string, rows []records.SessionRecord) (int, error) {
	for i, r := range rows {
		if err := r.Validate(); err != nil {
			return 0, fmt.Errorf("record %d: %w", i, err)
		}
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO sessions
		(cohort_id, entity_id, entity_label, exercise_label, duration_seconds,
		 score, assistant_interactions, occurred_at, imported_at, import_batch)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer func() { _ = stmt.Close() }()

	now := formatTime(time.Now())
	batch := uuid.NewString()
	for _, r := range rows {
		cohort := r.CohortID
		if cohortID != "" {
			cohort = cohortID
		}
		if _, err := stmt.ExecContext(ctx,
			cohort, r.EntityID, r.EntityLabel, r.ExerciseLabel, r.DurationSeconds,
			r.Score, r.AssistantInteractions, formatTime(r.OccurredAt), now, batch,
		); err != nil {
			return 0, fmt.Errorf("inserting session for %s: %w", r.EntityID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// scopeWhere renders the WHERE clause for a scope.
func scopeWhere(scope records.Scope) (string, []any) {
	var conds []string
	var args []any
	if scope.CohortID != "" {
		conds = append(conds, "cohort_id = ?")
		args = append(args, scope.CohortID)
	}
	if scope.EntityID != "" {
		conds = append(conds, "entity_id = ?")
		args = append(args, scope.EntityID)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Fetch returns the sessions in scope ordered by occurred_at then insertion
// order. DB satisfies records.Fetcher.
func (db *DB) Fetch(ctx context.Context, scope records.Scope) ([]records.SessionRecord, error) {
	where, args := scopeWhere(scope)
	rows, err := db.conn.QueryContext(ctx,
		`SELECT cohort_id, entity_id, entity_label, exercise_label, duration_seconds,
		 score, assistant_interactions, occurred_at
		 FROM sessions`+where+` ORDER BY occurred_at, id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []records.SessionRecord
	for rows.Next() {
		var r records.SessionRecord
		var occurred string
		if err := rows.Scan(&r.CohortID, &r.EntityID, &r.EntityLabel, &r.ExerciseLabel,
			&r.DurationSeconds, &r.Score, &r.AssistantInteractions, &occurred); err != nil {
			return nil, err
		}
		r.OccurredAt = parseTime(occurred)
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountSessions returns the number of sessions in scope.
func (db *DB) CountSessions(ctx context.Context, scope records.Scope) (int, error) {
	where, args := scopeWhere(scope)
	var n int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions"+where, args...).Scan(&n)
	return n, err
}

// ListCohorts summarizes every cohort with stored sessions, by cohort ID.
func (db *DB) ListCohorts(ctx context.Context) ([]CohortSummary, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT cohort_id, COUNT(*), COUNT(DISTINCT entity_id), COUNT(DISTINCT exercise_label),
		 MAX(occurred_at)
		 FROM sessions GROUP BY cohort_id ORDER BY cohort_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing cohorts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []CohortSummary
	for rows.Next() {
		var c CohortSummary
		var last sql.NullString
		if err := rows.Scan(&c.CohortID, &c.Sessions, &c.Entities, &c.Exercises, &last); err != nil {
			return nil, err
		}
		c.LastAt = parseTime(last.String)
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteCohort removes every session of a cohort and returns the count.
func (db *DB) DeleteCohort(ctx context.Context, cohortID string) (int64, error) {
	res, err := db.conn.ExecContext(ctx, "DELETE FROM sessions WHERE cohort_id = ?", cohortID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountImports returns the number of distinct import batches stored.
func (db *DB) CountImports(ctx context.Context) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(DISTINCT import_batch) FROM sessions WHERE import_batch != ''").Scan(&n)
	return n, err
}
