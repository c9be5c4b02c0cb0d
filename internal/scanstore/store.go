// Package scanstore persists completed scan runs in SQLite. Each run keeps
// its metadata in scan_runs and the flat result grid, one row per point in
// enumeration order, in scan_values.
package scanstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/gridscan/internal/scan"
)

// Run is a persisted scan run. Values is the flat result grid in
// enumeration order; it is empty for runs loaded via ListRuns.
type Run struct {
	RunID       string             `json:"run_id"`
	Label       string             `json:"label,omitempty"`
	Metric      string             `json:"metric,omitempty"`
	Status      string             `json:"status"`
	Axes        []scan.AxisSummary `json:"axes"`
	Shape       []int              `json:"shape"`
	TotalPoints int                `json:"total_points"`
	Error       string             `json:"error,omitempty"`
	StartedAt   *time.Time         `json:"started_at,omitempty"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
	CreatedAt   int64              `json:"created_at"`
	Values      []float64          `json:"values,omitempty"`
}

// Store provides persistence for scan runs.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and runs
// pending schema migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening scan store %s: %w", path, err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun persists a run and its values in one transaction. If RunID is
// empty, a UUID is generated.
func (s *Store) SaveRun(run *Run) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = time.Now().UnixNano()
	}

	axesJSON, err := json.Marshal(run.Axes)
	if err != nil {
		return fmt.Errorf("encoding axes for run %s: %w", run.RunID, err)
	}
	shapeJSON, err := json.Marshal(run.Shape)
	if err != nil {
		return fmt.Errorf("encoding shape for run %s: %w", run.RunID, err)
	}

	err = retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		_, err = tx.Exec(`
			INSERT INTO scan_runs (
				run_id, label, metric, status, axes_json, shape_json,
				total_points, error, started_at, completed_at, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			run.RunID,
			run.Label,
			run.Metric,
			run.Status,
			string(axesJSON),
			string(shapeJSON),
			run.TotalPoints,
			nullStr(run.Error),
			nullTime(run.StartedAt),
			nullTime(run.CompletedAt),
			run.CreatedAt,
		)
		if err != nil {
			return err
		}

		if len(run.Values) > 0 {
			stmt, err := tx.Prepare(`INSERT INTO scan_values (run_id, idx, value) VALUES (?, ?, ?)`)
			if err != nil {
				return err
			}
			defer stmt.Close()
			for i, v := range run.Values {
				if _, err := stmt.Exec(run.RunID, i, v); err != nil {
					return err
				}
			}
		}

		return tx.Commit()
	})
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.RunID, err)
	}
	return nil
}

// GetRun loads a run, including its values, by ID.
func (s *Store) GetRun(runID string) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT run_id, label, metric, status, axes_json, shape_json,
		       total_points, error, started_at, completed_at, created_at
		FROM scan_runs WHERE run_id = ?
	`, runID)

	run, err := scanRunRow(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", runID, err)
	}

	rows, err := s.db.Query(`SELECT value FROM scan_values WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("loading values for run %s: %w", runID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning value for run %s: %w", runID, err)
		}
		run.Values = append(run.Values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading values for run %s: %w", runID, err)
	}
	return run, nil
}

// ListRuns returns up to limit runs, newest first, without values. A
// non-positive limit defaults to 50.
func (s *Store) ListRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT run_id, label, metric, status, axes_json, shape_json,
		       total_points, error, started_at, completed_at, created_at
		FROM scan_runs ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRunRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// RecordRun implements scan.Recorder: it persists a completed run and its
// result grid.
func (s *Store) RecordRun(state scan.RunState, result *scan.Result) error {
	run := &Run{
		RunID:       state.RunID,
		Label:       state.Label,
		Metric:      state.Metric,
		Status:      string(state.Status),
		Axes:        state.Axes,
		TotalPoints: state.TotalPoints,
		Error:       state.Error,
		StartedAt:   state.StartedAt,
		CompletedAt: state.CompletedAt,
	}
	if result != nil {
		run.Shape = result.Shape()
		run.Values = result.Flat()
	}
	return s.SaveRun(run)
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRunRow(row rowScanner) (*Run, error) {
	var run Run
	var axesJSON, shapeJSON string
	var errStr, startedAt, completedAt sql.NullString
	if err := row.Scan(
		&run.RunID, &run.Label, &run.Metric, &run.Status,
		&axesJSON, &shapeJSON, &run.TotalPoints,
		&errStr, &startedAt, &completedAt, &run.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(axesJSON), &run.Axes); err != nil {
		return nil, fmt.Errorf("decoding axes: %w", err)
	}
	if err := json.Unmarshal([]byte(shapeJSON), &run.Shape); err != nil {
		return nil, fmt.Errorf("decoding shape: %w", err)
	}
	run.Error = errStr.String
	if t, ok := parseTime(startedAt); ok {
		run.StartedAt = &t
	}
	if t, ok := parseTime(completedAt); ok {
		run.CompletedAt = &t
	}
	return &run, nil
}

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s sql.NullString) (time.Time, bool) {
	if !s.Valid || s.String == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// isSQLiteBusy reports whether err is a transient SQLITE_BUSY failure.
func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// retryOnBusy runs fn, retrying a few times with backoff while the
// database reports SQLITE_BUSY. Other errors return immediately.
func retryOnBusy(fn func() error) error {
	const maxAttempts = 5
	backoff := 10 * time.Millisecond
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = fn()
		if !isSQLiteBusy(err) {
			return err
		}
		time.Sleep(backoff)
		backoff *= 2
	}
	return err
}
