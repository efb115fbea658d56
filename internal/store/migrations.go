package store

import (
	"database/sql"
	"errors"
	"fmt"
)

type migration struct {
	version    int
	statements []string
}

// migrations run in order; each one is applied in its own transaction.
var migrations = []migration{
	{1, []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id                     INTEGER PRIMARY KEY AUTOINCREMENT,
			cohort_id              TEXT NOT NULL DEFAULT '',
			entity_id              TEXT NOT NULL,
			entity_label           TEXT NOT NULL DEFAULT '',
			exercise_label         TEXT NOT NULL,
			duration_seconds       INTEGER NOT NULL CHECK (duration_seconds >= 0),
			score                  REAL NOT NULL CHECK (score >= 0 AND score <= 7),
			assistant_interactions INTEGER NOT NULL CHECK (assistant_interactions >= 0),
			occurred_at            TEXT NOT NULL DEFAULT '',
			imported_at            TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			taken_at    TEXT NOT NULL,
			command     TEXT NOT NULL,
			version     TEXT NOT NULL,
			cohort_id   TEXT NOT NULL DEFAULT '',
			report_id   TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS aggregate_metrics (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			snapshot_id  INTEGER NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
			metric_name  TEXT NOT NULL,
			metric_value REAL NOT NULL,
			detail       TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS at_risk_entities (
			id                    INTEGER PRIMARY KEY AUTOINCREMENT,
			snapshot_id           INTEGER NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
			entity_id             TEXT NOT NULL,
			entity_label          TEXT NOT NULL,
			mean_score            REAL NOT NULL,
			sessions              INTEGER NOT NULL,
			mean_duration_minutes REAL NOT NULL,
			reason                TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_cohort ON sessions(cohort_id, occurred_at)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_entity ON sessions(entity_id)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_cohort ON snapshots(cohort_id)`,
		`CREATE INDEX IF NOT EXISTS idx_aggregate_snapshot ON aggregate_metrics(snapshot_id)`,
		`CREATE INDEX IF NOT EXISTS idx_at_risk_snapshot ON at_risk_entities(snapshot_id)`,
	}},
	{2, []string{
		`ALTER TABLE sessions ADD COLUMN import_batch TEXT NOT NULL DEFAULT ''`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_batch ON sessions(import_batch)`,
	}},
}

// currentSchemaVersion is the version of the last migration.
var currentSchemaVersion = migrations[len(migrations)-1].version

// Migrate applies every migration newer than the stored schema version.
func (db *DB) Migrate() error {
	if _, err := db.conn.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	version, err := db.SchemaVersion()
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= version {
			continue
		}
		if err := db.apply(m); err != nil {
			return fmt.Errorf("migration v%d: %w", m.version, err)
		}
	}
	return nil
}

// SchemaVersion returns the applied schema version. A fresh database
// returns sql.ErrNoRows.
func (db *DB) SchemaVersion() (int, error) {
	var v int
	if err := db.conn.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}

func (db *DB) apply(m migration) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range m.statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("executing %.40q: %w", stmt, err)
		}
	}
	if _, err := tx.Exec("DELETE FROM schema_version"); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
		return err
	}
	return tx.Commit()
}
