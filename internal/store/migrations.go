package store

import (
	"context"
	"database/sql"
)

// schema contains the DDL for all capsim tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS simulators (
		id          TEXT PRIMARY KEY,
		capstone    TEXT NOT NULL DEFAULT '',
		name        TEXT NOT NULL,
		endpoint    TEXT NOT NULL,
		status      TEXT NOT NULL DEFAULT 'stopped',
		starts      TEXT,
		ends        TEXT,
		interval_ns INTEGER NOT NULL DEFAULT 0,
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS datapoints (
		id           TEXT PRIMARY KEY,
		simulator_id TEXT NOT NULL REFERENCES simulators(id) ON DELETE CASCADE,
		seq          INTEGER NOT NULL,
		data         TEXT NOT NULL DEFAULT '',
		created_at   TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS student_apps (
		id           TEXT PRIMARY KEY,
		simulator_id TEXT NOT NULL REFERENCES simulators(id) ON DELETE CASCADE,
		student      TEXT NOT NULL,
		app_name     TEXT NOT NULL DEFAULT '',
		created_at   TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS due_datapoints (
		id                 TEXT PRIMARY KEY,
		simulator_id       TEXT NOT NULL REFERENCES simulators(id) ON DELETE CASCADE,
		datapoint_id       TEXT NOT NULL,
		student_app_id     TEXT NOT NULL,
		url                TEXT NOT NULL,
		state              TEXT NOT NULL DEFAULT 'due',
		due                TEXT NOT NULL,
		response_content   TEXT NOT NULL DEFAULT '',
		response_exception TEXT NOT NULL DEFAULT '',
		response_traceback TEXT NOT NULL DEFAULT '',
		response_elapsed   REAL NOT NULL DEFAULT 0,
		response_status    INTEGER NOT NULL DEFAULT 0,
		response_timeout   INTEGER NOT NULL DEFAULT 0,
		created_at         TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_simulators_status ON simulators(status)`,
	`CREATE INDEX IF NOT EXISTS idx_datapoints_simulator_seq ON datapoints(simulator_id, seq)`,
	`CREATE INDEX IF NOT EXISTS idx_student_apps_simulator ON student_apps(simulator_id)`,
	`CREATE INDEX IF NOT EXISTS idx_due_simulator ON due_datapoints(simulator_id)`,
	// Compound index for the producer claim query (state + due time)
	`CREATE INDEX IF NOT EXISTS idx_due_state_due ON due_datapoints(state, due)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_due_app_datapoint ON due_datapoints(student_app_id, datapoint_id)`,
}

// migrate executes all schema DDL statements.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
