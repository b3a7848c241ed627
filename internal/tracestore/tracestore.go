// Package tracestore persists sweep runs, their traces, and the detection
// results derived from them in a single SQLite database. The schema is
// created idempotently on open; migrations cover evolution from older
// databases.
package tracestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/resonance.report/internal/detect"
	"github.com/banshee-data/resonance.report/internal/monitoring"
	"github.com/banshee-data/resonance.report/internal/sweep"
)

var logf = monitoring.Prefixed("tracestore")

// ErrRunNotFound is returned when an operation references a run id that is
// not in the database.
var ErrRunNotFound = errors.New("run not found")

// RunStatus is the lifecycle state of a stored sweep run.
type RunStatus string

const (
	// RunRunning marks a run that has been created but not finalized.
	RunRunning RunStatus = "running"
	// RunCompleted marks a run whose sweep finished every step.
	RunCompleted RunStatus = "completed"
	// RunAborted marks a run cancelled before completion.
	RunAborted RunStatus = "aborted"
	// RunFailed marks a run terminated by an unrecoverable error.
	RunFailed RunStatus = "failed"
)

// SweepRun is the stored record of one acquisition: the parameters it was
// started with and its lifecycle state. Samples and detections are stored
// separately, keyed by the run id.
type SweepRun struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Band         sweep.Band    `json:"band"`
	ResolutionHz float64       `json:"resolution_hz"`
	PowerDB      float64       `json:"power_db"`
	SettleDelay  time.Duration `json:"settle_delay"`
	Averages     int           `json:"averages"`
	Status       RunStatus     `json:"status"`
	ErrorNote    string        `json:"error_note,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
}

// Detection is one stored per-method detection outcome for a run. Fit is
// populated only for the method that produced fitted parameters.
type Detection struct {
	RunID         string            `json:"run_id"`
	Method        string            `json:"method"`
	Found         bool              `json:"found"`
	FrequencyHz   *float64          `json:"frequency_hz,omitempty"`
	Diagnostic    string            `json:"diagnostic,omitempty"`
	PlotSuggested bool              `json:"plot_suggested"`
	Fit           *detect.FitParams `json:"fit,omitempty"`
}

type DB struct {
	*sql.DB
	path string
}

// Path returns the filesystem path the database was opened with.
func (db *DB) Path() string {
	return db.path
}

// NewDB opens (creating if necessary) the trace database at path and
// ensures the baseline schema exists. The same DDL is migration 000001, so
// databases created here are baselined rather than re-created when
// migrations run.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sweep_runs (
			id            TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			start_hz      DOUBLE NOT NULL,
			stop_hz       DOUBLE NOT NULL,
			step_hz       DOUBLE NOT NULL,
			resolution_hz DOUBLE NOT NULL,
			power_db      DOUBLE NOT NULL,
			settle_ms     BIGINT NOT NULL,
			averages      BIGINT NOT NULL,
			status        TEXT NOT NULL,
			error_note    TEXT NOT NULL DEFAULT '',
			started_at    DOUBLE NOT NULL,
			completed_at  DOUBLE
		);
		CREATE TABLE IF NOT EXISTS sweep_samples (
			run_id        TEXT NOT NULL,
			step_index    BIGINT NOT NULL,
			frequency_hz  DOUBLE NOT NULL,
			amplitude     DOUBLE NOT NULL,
			status        TEXT NOT NULL,
			PRIMARY KEY (run_id, step_index),
			FOREIGN KEY (run_id) REFERENCES sweep_runs(id)
		);
		CREATE TABLE IF NOT EXISTS detections (
			run_id          TEXT NOT NULL,
			method          TEXT NOT NULL,
			found           BIGINT NOT NULL,
			frequency_hz    DOUBLE,
			diagnostic      TEXT NOT NULL DEFAULT '',
			plot_suggested  BIGINT NOT NULL DEFAULT 0,
			fit_baseline    DOUBLE,
			fit_depth       DOUBLE,
			fit_center_hz   DOUBLE,
			fit_sigma_hz    DOUBLE,
			fit_residual    DOUBLE,
			fit_evaluations BIGINT,
			created_at      TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (run_id, method),
			FOREIGN KEY (run_id) REFERENCES sweep_runs(id)
		);
	`)
	if err != nil {
		return nil, err
	}

	return &DB{DB: db, path: path}, nil
}

// CreateRun inserts a new run record. A missing id is generated, a missing
// status defaults to running, and a zero start time is set to now; the
// struct is updated with the values actually stored.
func (db *DB) CreateRun(run *SweepRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = RunRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	_, err := db.Exec(`
		INSERT INTO sweep_runs (
			id, name, start_hz, stop_hz, step_hz, resolution_hz,
			power_db, settle_ms, averages, status, error_note, started_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.Name,
		run.Band.StartHz,
		run.Band.StopHz,
		run.Band.StepHz,
		run.ResolutionHz,
		run.PowerDB,
		run.SettleDelay.Milliseconds(),
		run.Averages,
		string(run.Status),
		run.ErrorNote,
		timeToUnix(run.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// FinalizeRun marks a run with its terminal status and completion time.
// The error note is stored verbatim; pass "" for a clean completion.
func (db *DB) FinalizeRun(id string, status RunStatus, errorNote string) error {
	switch status {
	case RunCompleted, RunAborted, RunFailed:
	default:
		return fmt.Errorf("status %q is not a terminal run status", status)
	}

	result, err := db.Exec(`
		UPDATE sweep_runs
		SET status = ?, error_note = ?, completed_at = ?
		WHERE id = ?`,
		string(status), errorNote, timeToUnix(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize run: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to finalize run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finalize run %q: %w", id, ErrRunNotFound)
	}
	return nil
}

// GetRun retrieves a run by id.
func (db *DB) GetRun(id string) (*SweepRun, error) {
	row := db.QueryRow(`
		SELECT id, name, start_hz, stop_hz, step_hz, resolution_hz,
			power_db, settle_ms, averages, status, error_note,
			started_at, completed_at
		FROM sweep_runs
		WHERE id = ?`, id)

	run, err := scanRun(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %q: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recently started runs, newest first. A limit
// of zero or below lists the default 100.
func (db *DB) ListRuns(limit int) ([]SweepRun, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := db.Query(`
		SELECT id, name, start_hz, stop_hz, step_hz, resolution_hz,
			power_db, settle_ms, averages, status, error_note,
			started_at, completed_at
		FROM sweep_runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []SweepRun
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// InsertSamples stores a trace for a run in one transaction, step indices
// following trace order. Re-inserting for the same run fails on the
// primary key; traces are written once, after the sweep finalizes.
func (db *DB) InsertSamples(ctx context.Context, runID string, trace sweep.Trace) error {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			// ErrTxDone means the transaction was already committed.
			logf("WARNING: failed to rollback transaction: %v", err)
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sweep_samples (run_id, step_index, frequency_hz, amplitude, status)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare sample insert: %w", err)
	}
	defer stmt.Close()

	for i, s := range trace {
		if _, err := stmt.ExecContext(ctx, runID, i, s.FrequencyHz, s.Amplitude, string(s.Status)); err != nil {
			return fmt.Errorf("failed to insert sample %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit samples: %w", err)
	}
	return nil
}

// LoadTrace returns the stored trace for a run in step order. The run must
// exist; a run with no stored samples yields an empty trace.
func (db *DB) LoadTrace(runID string) (sweep.Trace, error) {
	if _, err := db.GetRun(runID); err != nil {
		return nil, err
	}

	rows, err := db.Query(`
		SELECT frequency_hz, amplitude, status
		FROM sweep_samples
		WHERE run_id = ?
		ORDER BY step_index ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var trace sweep.Trace
	for rows.Next() {
		var s sweep.SweepSample
		var status string
		if err := rows.Scan(&s.FrequencyHz, &s.Amplitude, &status); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		s.Status = sweep.SampleStatus(status)
		trace = append(trace, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return trace, nil
}

// RecordDetections stores the per-method outcomes of a detection report,
// replacing any detections previously recorded for the run. Fitted
// parameters ride on the row of the method that produced them.
func (db *DB) RecordDetections(ctx context.Context, runID string, report *detect.Report) error {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			logf("WARNING: failed to rollback transaction: %v", err)
		}
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM detections WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to clear prior detections: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO detections (
			run_id, method, found, frequency_hz, diagnostic, plot_suggested,
			fit_baseline, fit_depth, fit_center_hz, fit_sigma_hz,
			fit_residual, fit_evaluations
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare detection insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range report.Results {
		foundInt := 0
		var freq *float64
		if r.Found {
			foundInt = 1
			f := r.FrequencyHz
			freq = &f
		}
		plotInt := 0
		if report.PlotSuggested {
			plotInt = 1
		}

		var fitBaseline, fitDepth, fitCenter, fitSigma, fitResidual *float64
		var fitEvals *int
		if r.Method == detect.MethodGaussianFit && report.Fit != nil {
			fit := *report.Fit
			fitBaseline = &fit.Baseline
			fitDepth = &fit.Depth
			fitCenter = &fit.CenterHz
			fitSigma = &fit.SigmaHz
			fitResidual = &fit.Residual
			fitEvals = &fit.Evaluations
		}

		if _, err := stmt.ExecContext(ctx,
			runID, r.Method, foundInt, freq, r.Diagnostic, plotInt,
			fitBaseline, fitDepth, fitCenter, fitSigma, fitResidual, fitEvals,
		); err != nil {
			return fmt.Errorf("failed to insert detection %q: %w", r.Method, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit detections: %w", err)
	}
	return nil
}

// LoadDetections returns the stored detections for a run in the order they
// were recorded.
func (db *DB) LoadDetections(runID string) ([]Detection, error) {
	rows, err := db.Query(`
		SELECT run_id, method, found, frequency_hz, diagnostic, plot_suggested,
			fit_baseline, fit_depth, fit_center_hz, fit_sigma_hz,
			fit_residual, fit_evaluations
		FROM detections
		WHERE run_id = ?
		ORDER BY rowid ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query detections: %w", err)
	}
	defer rows.Close()

	var detections []Detection
	for rows.Next() {
		var d Detection
		var foundInt, plotInt int
		var fitBaseline, fitDepth, fitCenter, fitSigma, fitResidual sql.NullFloat64
		var fitEvals sql.NullInt64

		if err := rows.Scan(
			&d.RunID, &d.Method, &foundInt, &d.FrequencyHz, &d.Diagnostic, &plotInt,
			&fitBaseline, &fitDepth, &fitCenter, &fitSigma, &fitResidual, &fitEvals,
		); err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}

		d.Found = foundInt == 1
		d.PlotSuggested = plotInt == 1
		if fitBaseline.Valid {
			d.Fit = &detect.FitParams{
				Baseline:    fitBaseline.Float64,
				Depth:       fitDepth.Float64,
				CenterHz:    fitCenter.Float64,
				SigmaHz:     fitSigma.Float64,
				Residual:    fitResidual.Float64,
				Evaluations: int(fitEvals.Int64),
			}
		}
		detections = append(detections, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return detections, nil
}

type rowScanner func(dest ...interface{}) error

func scanRun(scan rowScanner) (*SweepRun, error) {
	var run SweepRun
	var status string
	var settleMs int64
	var startedAt float64
	var completedAt sql.NullFloat64

	err := scan(
		&run.ID,
		&run.Name,
		&run.Band.StartHz,
		&run.Band.StopHz,
		&run.Band.StepHz,
		&run.ResolutionHz,
		&run.PowerDB,
		&settleMs,
		&run.Averages,
		&status,
		&run.ErrorNote,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	run.Status = RunStatus(status)
	run.SettleDelay = time.Duration(settleMs) * time.Millisecond
	run.StartedAt = unixToTime(startedAt)
	if completedAt.Valid {
		t := unixToTime(completedAt.Float64)
		run.CompletedAt = &t
	}
	return &run, nil
}

func timeToUnix(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func unixToTime(f float64) time.Time {
	return time.Unix(0, int64(f*float64(time.Second)))
}
