// Package history records completed runs in a SQLite database.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/harrison/taskrunner/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// ErrRunNotFound is returned by GetRun for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// Run is one recorded run.
type Run struct {
	ID         string         `db:"id"`
	StartedAt  time.Time      `db:"started_at"`
	FinishedAt sql.NullTime   `db:"finished_at"`
	DurationMS int64          `db:"duration_ms"`
	Succeeded  int            `db:"succeeded"`
	Failed     int            `db:"failed"`
	Total      int            `db:"total"`
	FailureLog sql.NullString `db:"failure_log"`
	Tasks      []TaskRecord   `db:"-"`
}

// Duration returns the run's wall-clock time.
func (r Run) Duration() time.Duration {
	return time.Duration(r.DurationMS) * time.Millisecond
}

// TaskRecord is one task outcome within a recorded run.
type TaskRecord struct {
	ID           int64          `db:"id"`
	RunID        string         `db:"run_id"`
	Position     int            `db:"position"`
	TaskName     string         `db:"task_name"`
	Status       string         `db:"status"`
	Attempts     int            `db:"attempts"`
	StartedAt    sql.NullTime   `db:"started_at"`
	DurationMS   int64          `db:"duration_ms"`
	ErrorMessage sql.NullString `db:"error_message"`
	Trace        sql.NullString `db:"trace"`
}

// Duration returns the task's wall-clock time across all attempts.
func (t TaskRecord) Duration() time.Duration {
	return time.Duration(t.DurationMS) * time.Millisecond
}

// Store manages the run history database
type Store struct {
	db     *sqlx.DB
	dbPath string
}

// NewStore opens (creating if needed) the history database at dbPath.
// ":memory:" opens a private in-memory database.
func NewStore(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Each connection to :memory: is its own database.
		db.SetMaxOpenConns(1)
	}

	// busy_timeout first so the rest wait on locks held by a concurrent run.
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if err := execWithRetry(db, pragma, 5, 10*time.Millisecond); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if err := execWithRetry(db, schemaSQL, 5, 10*time.Millisecond); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db, dbPath: dbPath}, nil
}

// execWithRetry executes a statement, backing off exponentially while the
// database is locked by another process.
func execWithRetry(db *sqlx.DB, stmt string, maxRetries int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := db.Exec(stmt)
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "database is locked") {
			return err
		}
		lastErr = err
		time.Sleep(baseDelay * time.Duration(1<<attempt))
	}
	return lastErr
}

// Path returns the database path.
func (s *Store) Path() string {
	return s.dbPath
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RecordRun stores report and its task results in one transaction.
// failureLog is the path of the run's failure log, or empty.
func (s *Store) RecordRun(ctx context.Context, report *models.RunReport, failureLog string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	run := Run{
		ID:         report.RunID,
		StartedAt:  report.StartedAt.UTC(),
		DurationMS: report.Duration().Milliseconds(),
		Succeeded:  report.Succeeded(),
		Failed:     report.Failed(),
		Total:      len(report.Results),
		FailureLog: nullString(failureLog),
	}
	if !report.FinishedAt.IsZero() {
		run.FinishedAt = sql.NullTime{Time: report.FinishedAt.UTC(), Valid: true}
	}

	_, err = tx.NamedExecContext(ctx, `
	INSERT INTO runs (id, started_at, finished_at, duration_ms, succeeded, failed, total, failure_log)
	VALUES (:id, :started_at, :finished_at, :duration_ms, :succeeded, :failed, :total, :failure_log)
	`, run)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", report.RunID, err)
	}

	for i, res := range report.Results {
		rec := TaskRecord{
			RunID:      report.RunID,
			Position:   i,
			TaskName:   res.TaskName,
			Status:     res.Status,
			Attempts:   res.Attempts,
			DurationMS: res.Duration.Milliseconds(),
			Trace:      nullString(res.Trace),
		}
		if !res.StartedAt.IsZero() {
			rec.StartedAt = sql.NullTime{Time: res.StartedAt.UTC(), Valid: true}
		}
		if res.Error != nil {
			rec.ErrorMessage = nullString(res.Error.Error())
		}

		_, err = tx.NamedExecContext(ctx, `
		INSERT INTO task_results (run_id, position, task_name, status, attempts, started_at, duration_ms, error_message, trace)
		VALUES (:run_id, :position, :task_name, :status, :attempts, :started_at, :duration_ms, :error_message, :trace)
		`, rec)
		if err != nil {
			return fmt.Errorf("insert result for task %s: %w", res.TaskName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run %s: %w", report.RunID, err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first, without task records.
// A limit <= 0 returns all runs.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `
	SELECT id, started_at, finished_at, duration_ms, succeeded, failed, total, failure_log
	FROM runs ORDER BY started_at DESC, rowid DESC`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	runs := []Run{}
	if err := s.db.SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// GetRun returns a run with its task records in run order. A unique prefix
// of the run ID is accepted.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	var runs []Run
	err := s.db.SelectContext(ctx, &runs, `
	SELECT id, started_at, finished_at, duration_ms, succeeded, failed, total, failure_log
	FROM runs WHERE id = ? OR id LIKE ? ESCAPE '\' ORDER BY id = ? DESC LIMIT 2`, id, escapeLike(id)+"%", id)
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	switch {
	case len(runs) == 0:
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	case len(runs) > 1 && runs[0].ID != id:
		return nil, fmt.Errorf("run ID prefix %q is ambiguous", id)
	}

	run := runs[0]
	err = s.db.SelectContext(ctx, &run.Tasks, `
	SELECT id, run_id, position, task_name, status, attempts, started_at, duration_ms, error_message, trace
	FROM task_results WHERE run_id = ? ORDER BY position`, run.ID)
	if err != nil {
		return nil, fmt.Errorf("get results for run %s: %w", run.ID, err)
	}
	return &run, nil
}

// TaskHistory returns the most recent records for a task across runs, newest first.
func (s *Store) TaskHistory(ctx context.Context, taskName string, limit int) ([]TaskRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	records := []TaskRecord{}
	err := s.db.SelectContext(ctx, &records, `
	SELECT t.id, t.run_id, t.position, t.task_name, t.status, t.attempts, t.started_at, t.duration_ms, t.error_message, t.trace
	FROM task_results t JOIN runs r ON r.id = t.run_id
	WHERE t.task_name = ?
	ORDER BY r.started_at DESC, t.id DESC
	LIMIT ?`, taskName, limit)
	if err != nil {
		return nil, fmt.Errorf("task history for %s: %w", taskName, err)
	}
	return records, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
