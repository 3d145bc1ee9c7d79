package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/capsim/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- Simulator CRUD ---

func (s *SQLiteStore) CreateSimulator(ctx context.Context, sim *model.Simulator) error {
	s.logger.Debug("sql", "op", "insert", "table", "simulators", "id", sim.ID)

	status := sim.Status
	if status == "" {
		status = model.StatusStopped
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO simulators (id, capstone, name, endpoint, status, starts, ends, interval_ns, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sim.ID, sim.Capstone, sim.Name, sim.Endpoint, string(status),
		formatTimePtr(sim.Starts), formatTimePtr(sim.Ends), int64(sim.Interval),
		sim.CreatedAt.Format(time.RFC3339Nano), sim.UpdatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteStore) GetSimulator(ctx context.Context, id string) (*model.Simulator, error) {
	s.logger.Debug("sql", "op", "select", "table", "simulators", "id", id)
	return scanSimulator(s.db.QueryRowContext(ctx,
		`SELECT id, capstone, name, endpoint, status, starts, ends, interval_ns, created_at, updated_at
		 FROM simulators WHERE id = ?`, id))
}

func (s *SQLiteStore) ListSimulators(ctx context.Context, opts model.ListOptions) ([]*model.Simulator, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "simulators", "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	whereSQL := ""
	var countArgs []any
	if opts.State != "" {
		whereSQL = " WHERE status = ?"
		countArgs = append(countArgs, opts.State)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM simulators`+whereSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listArgs := append(countArgs, opts.Limit, opts.Offset)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, capstone, name, endpoint, status, starts, ends, interval_ns, created_at, updated_at
		 FROM simulators`+whereSQL+` ORDER BY created_at DESC LIMIT ? OFFSET ?`, listArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var sims []*model.Simulator
	for rows.Next() {
		sim, err := scanSimulator(rows)
		if err != nil {
			return nil, 0, err
		}
		sims = append(sims, sim)
	}
	return sims, total, rows.Err()
}

func (s *SQLiteStore) GetSimulatorsByStatus(ctx context.Context, status model.SimulatorStatus) ([]*model.Simulator, error) {
	s.logger.Debug("sql", "op", "list_by_status", "table", "simulators", "status", status)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, capstone, name, endpoint, status, starts, ends, interval_ns, created_at, updated_at
		 FROM simulators WHERE status = ? ORDER BY created_at`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sims []*model.Simulator
	for rows.Next() {
		sim, err := scanSimulator(rows)
		if err != nil {
			return nil, err
		}
		sims = append(sims, sim)
	}
	return sims, rows.Err()
}

func (s *SQLiteStore) UpdateSimulator(ctx context.Context, sim *model.Simulator) error {
	s.logger.Debug("sql", "op", "update", "table", "simulators", "id", sim.ID)

	result, err := s.db.ExecContext(ctx,
		`UPDATE simulators SET capstone=?, name=?, endpoint=?, status=?, starts=?, ends=?, interval_ns=?, updated_at=?
		 WHERE id=?`,
		sim.Capstone, sim.Name, sim.Endpoint, string(sim.Status),
		formatTimePtr(sim.Starts), formatTimePtr(sim.Ends), int64(sim.Interval),
		time.Now().UTC().Format(time.RFC3339Nano), sim.ID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("simulator %s: %w", sim.ID, model.ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) DeleteSimulator(ctx context.Context, id string) error {
	s.logger.Debug("sql", "op", "delete", "table", "simulators", "id", id)

	// Datapoints, student apps, and due datapoints cascade.
	result, err := s.db.ExecContext(ctx, `DELETE FROM simulators WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("simulator %s: %w", id, model.ErrNotFound)
	}
	return nil
}

// SetSimulatorStatus applies a compare-and-swap status update. The WHERE
// guard on the current status is what serializes concurrent transitions.
func (s *SQLiteStore) SetSimulatorStatus(ctx context.Context, id string, from, to model.SimulatorStatus) (bool, error) {
	s.logger.Debug("sql", "op", "cas_status", "table", "simulators", "id", id, "from", from, "to", to)

	result, err := s.db.ExecContext(ctx,
		`UPDATE simulators SET status=?, updated_at=? WHERE id=? AND status=?`,
		string(to), time.Now().UTC().Format(time.RFC3339Nano), id, string(from))
	if err != nil {
		return false, err
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// StartSimulator settles a start request in a single transaction: the
// status CAS, the starts/interval stamp, and the bulk schedule insert either
// all land or all roll back.
func (s *SQLiteStore) StartSimulator(ctx context.Context, id string, starts time.Time, interval time.Duration, batch []model.DueDatapoint) (bool, error) {
	s.logger.Debug("sql", "op", "start_simulator", "id", id, "batch", len(batch))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE simulators SET status=?, starts=?, interval_ns=?, updated_at=?
		 WHERE id=? AND status=?`,
		string(model.StatusStarted), starts.Format(time.RFC3339Nano), int64(interval),
		time.Now().UTC().Format(time.RFC3339Nano), id, string(model.StatusStart))
	if err != nil {
		return false, err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		// Lost the race or the simulator left "start"; nothing written.
		return false, nil
	}

	if err := insertDueDatapoints(ctx, tx, batch); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// ResetSimulator settles a reset request in a single transaction: due
// datapoints are deleted wholesale and the simulator returns to stopped with
// its computed schedule parameters cleared.
func (s *SQLiteStore) ResetSimulator(ctx context.Context, id string) (bool, error) {
	s.logger.Debug("sql", "op", "reset_simulator", "id", id)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE simulators SET status=?, starts=NULL, interval_ns=0, updated_at=?
		 WHERE id=? AND status=?`,
		string(model.StatusStopped), time.Now().UTC().Format(time.RFC3339Nano),
		id, string(model.StatusReset))
	if err != nil {
		return false, err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM due_datapoints WHERE simulator_id = ?`, id); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// --- Datapoint operations ---

func (s *SQLiteStore) CreateDatapoints(ctx context.Context, dps []model.Datapoint) error {
	s.logger.Debug("sql", "op", "insert_batch", "table", "datapoints", "count", len(dps))
	if len(dps) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO datapoints (id, simulator_id, seq, data, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, dp := range dps {
		if _, err := stmt.ExecContext(ctx, dp.ID, dp.SimulatorID, dp.Seq, dp.Data,
			dp.CreatedAt.Format(time.RFC3339Nano)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetDatapoint(ctx context.Context, id string) (*model.Datapoint, error) {
	s.logger.Debug("sql", "op", "select", "table", "datapoints", "id", id)

	var dp model.Datapoint
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, simulator_id, seq, data, created_at FROM datapoints WHERE id = ?`, id,
	).Scan(&dp.ID, &dp.SimulatorID, &dp.Seq, &dp.Data, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	dp.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &dp, nil
}

func (s *SQLiteStore) ListDatapoints(ctx context.Context, simulatorID string) ([]model.Datapoint, error) {
	s.logger.Debug("sql", "op", "list", "table", "datapoints", "simulator_id", simulatorID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, simulator_id, seq, data, created_at
		 FROM datapoints WHERE simulator_id = ? ORDER BY seq`, simulatorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dps []model.Datapoint
	for rows.Next() {
		var dp model.Datapoint
		var createdAt string
		if err := rows.Scan(&dp.ID, &dp.SimulatorID, &dp.Seq, &dp.Data, &createdAt); err != nil {
			return nil, err
		}
		dp.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		dps = append(dps, dp)
	}
	return dps, rows.Err()
}

// --- StudentApp operations ---

func (s *SQLiteStore) CreateStudentApp(ctx context.Context, app *model.StudentApp) error {
	s.logger.Debug("sql", "op", "insert", "table", "student_apps", "id", app.ID)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO student_apps (id, simulator_id, student, app_name, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		app.ID, app.SimulatorID, app.Student, app.AppName,
		app.CreatedAt.Format(time.RFC3339Nano))
	return err
}

func (s *SQLiteStore) GetStudentApp(ctx context.Context, id string) (*model.StudentApp, error) {
	s.logger.Debug("sql", "op", "select", "table", "student_apps", "id", id)

	var app model.StudentApp
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, simulator_id, student, app_name, created_at
		 FROM student_apps WHERE id = ?`, id,
	).Scan(&app.ID, &app.SimulatorID, &app.Student, &app.AppName, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	app.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &app, nil
}

func (s *SQLiteStore) ListStudentApps(ctx context.Context, simulatorID string) ([]model.StudentApp, error) {
	s.logger.Debug("sql", "op", "list", "table", "student_apps", "simulator_id", simulatorID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, simulator_id, student, app_name, created_at
		 FROM student_apps WHERE simulator_id = ? ORDER BY created_at`, simulatorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var apps []model.StudentApp
	for rows.Next() {
		var app model.StudentApp
		var createdAt string
		if err := rows.Scan(&app.ID, &app.SimulatorID, &app.Student, &app.AppName, &createdAt); err != nil {
			return nil, err
		}
		app.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

// --- Due datapoint operations ---

// CreateDueDatapoints bulk-inserts a schedule batch in one transaction.
// Used for late-joining students; run starts go through StartSimulator.
func (s *SQLiteStore) CreateDueDatapoints(ctx context.Context, batch []model.DueDatapoint) error {
	s.logger.Debug("sql", "op", "insert_batch", "table", "due_datapoints", "count", len(batch))
	if len(batch) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := insertDueDatapoints(ctx, tx, batch); err != nil {
		return err
	}
	return tx.Commit()
}

func insertDueDatapoints(ctx context.Context, tx *sql.Tx, batch []model.DueDatapoint) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO due_datapoints (id, simulator_id, datapoint_id, student_app_id, url, state, due, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, d := range batch {
		state := d.State
		if state == "" {
			state = model.DueStateDue
		}
		if _, err := stmt.ExecContext(ctx,
			d.ID, d.SimulatorID, d.DatapointID, d.StudentAppID, d.URL, string(state),
			d.Due.UTC().Format(dueTimeLayout), d.CreatedAt.Format(time.RFC3339Nano)); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) GetDueDatapoint(ctx context.Context, id string) (*model.DueDatapoint, error) {
	s.logger.Debug("sql", "op", "select", "table", "due_datapoints", "id", id)
	d, err := scanDueDatapoint(s.db.QueryRowContext(ctx, dueSelect+` WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (s *SQLiteStore) ListDueBySimulator(ctx context.Context, simulatorID string) ([]model.DueDatapoint, error) {
	s.logger.Debug("sql", "op", "list", "table", "due_datapoints", "simulator_id", simulatorID)

	rows, err := s.db.QueryContext(ctx, dueSelect+` WHERE simulator_id = ? ORDER BY due, student_app_id`, simulatorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.DueDatapoint
	for rows.Next() {
		d, err := scanDueDatapoint(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *d)
	}
	return items, rows.Err()
}

// ClaimDue atomically finds up to limit due items whose due time has passed
// and transitions them to queued. A claimed item is never handed out twice.
func (s *SQLiteStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]model.DueDatapoint, error) {
	s.logger.Debug("sql", "op", "claim_due", "now", now, "limit", limit)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		dueSelect+` WHERE state = 'due' AND due <= ? ORDER BY due LIMIT ?`,
		now.UTC().Format(dueTimeLayout), limit)
	if err != nil {
		return nil, err
	}

	var claimed []model.DueDatapoint
	for rows.Next() {
		d, err := scanDueDatapoint(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		claimed = append(claimed, *d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(claimed) == 0 {
		return nil, nil
	}

	for i := range claimed {
		if _, err := tx.ExecContext(ctx,
			`UPDATE due_datapoints SET state = 'queued' WHERE id = ? AND state = 'due'`,
			claimed[i].ID); err != nil {
			return nil, fmt.Errorf("queue due datapoint %s: %w", claimed[i].ID, err)
		}
		claimed[i].State = model.DueStateQueued
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return claimed, nil
}

// ReportResult writes the response record exactly once and settles the
// item. A report for an item deleted by a reset is the expected race and
// surfaces as model.ErrNotFound for the caller to absorb.
func (s *SQLiteStore) ReportResult(ctx context.Context, id string, outcome model.Outcome) error {
	s.logger.Debug("sql", "op", "report_result", "table", "due_datapoints", "id", id, "state", outcome.State)

	if outcome.State != model.DueStateSuccess && outcome.State != model.DueStateFail {
		return fmt.Errorf("outcome state must be success or fail, got %q", outcome.State)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE due_datapoints SET state=?, response_content=?, response_exception=?,
		 response_traceback=?, response_elapsed=?, response_status=?, response_timeout=?
		 WHERE id=? AND state IN ('due', 'queued')`,
		string(outcome.State), outcome.Content, outcome.Exception, outcome.Traceback,
		outcome.Elapsed, outcome.Status, boolToInt(outcome.Timeout), id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		return nil
	}

	// Distinguish a deleted item (post-reset straggler) from a double report.
	existing, err := s.GetDueDatapoint(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("due datapoint %s: %w", id, model.ErrNotFound)
	}
	return fmt.Errorf("due datapoint %s already settled as %s", id, existing.State)
}

// --- scan helpers ---

type scanner interface {
	Scan(dest ...any) error
}

// dueTimeLayout keeps a fixed-width fraction so the due column stays
// lexically ordered even for sub-second due times. RFC3339Nano would drop
// trailing zeros and sort "10.5Z" before "10Z".
const dueTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const dueSelect = `SELECT id, simulator_id, datapoint_id, student_app_id, url, state, due,
	response_content, response_exception, response_traceback, response_elapsed,
	response_status, response_timeout, created_at
	FROM due_datapoints`

func scanDueDatapoint(row scanner) (*model.DueDatapoint, error) {
	var d model.DueDatapoint
	var state, due, createdAt string
	var timeout int

	err := row.Scan(
		&d.ID, &d.SimulatorID, &d.DatapointID, &d.StudentAppID, &d.URL, &state, &due,
		&d.ResponseContent, &d.ResponseException, &d.ResponseTraceback, &d.ResponseElapsed,
		&d.ResponseStatus, &timeout, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	d.State = model.DueState(state)
	d.ResponseTimeout = timeout != 0
	d.Due, _ = time.Parse(time.RFC3339Nano, due)
	d.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &d, nil
}

func scanSimulator(row scanner) (*model.Simulator, error) {
	var sim model.Simulator
	var status, createdAt, updatedAt string
	var starts, ends *string
	var intervalNs int64

	err := row.Scan(&sim.ID, &sim.Capstone, &sim.Name, &sim.Endpoint, &status,
		&starts, &ends, &intervalNs, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	sim.Status = model.SimulatorStatus(status)
	sim.Interval = time.Duration(intervalNs)
	sim.Starts = parseTimePtr(starts)
	sim.Ends = parseTimePtr(ends)
	sim.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	sim.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &sim, nil
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339Nano)
	return &s
}

func parseTimePtr(s *string) *time.Time {
	if s == nil {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, *s)
	if err != nil {
		return nil
	}
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
