package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"hoard/internal/database/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Run is a single recorded CLI run: which operation ran, with what
// parameters, and what it did.
type Run struct {
	ID         int64
	Operation  string
	Parameters string
	Status     string // "running", "success" or "error"
	StartedAt  time.Time
	FinishedAt *time.Time
	Processed  int64
	Succeeded  int64
	Failed     int64
	Duplicates int64
	Skipped    int64
}

// RunCounts carries the final counters for a finished run.
type RunCounts struct {
	Processed  int64
	Succeeded  int64
	Failed     int64
	Duplicates int64
	Skipped    int64
}

// Journal records runs in a SQLite database so past activity survives
// restarts and can be listed from the CLI.
type Journal struct {
	db   *sql.DB
	path string
}

// NewJournal opens (and migrates) a journal database at path.
// path can be a file path or ":memory:" for an in-memory database.
func NewJournal(path string) (*Journal, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating journal database: %w", err)
	}

	return &Journal{db: db, path: path}, nil
}

// OpenConnection opens and configures a SQLite database connection with
// appropriate PRAGMAs. This is exported for tools and tests that need a
// properly configured SQLite connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign key constraints (SQLite default is OFF for backward compatibility)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// StartRun inserts a new run row in "running" state and returns its ID.
func (j *Journal) StartRun(ctx context.Context, operation, parameters string, startedAt time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (operation, parameters, status, started_at) VALUES (?, ?, 'running', ?)`,
		operation, parameters, startedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("recording run start: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading run id: %w", err)
	}
	return id, nil
}

// FinishRun marks a run as finished with the given status and counters.
func (j *Journal) FinishRun(ctx context.Context, id int64, status string, finishedAt time.Time, counts RunCounts) error {
	_, err := j.db.ExecContext(ctx,
		`UPDATE runs
		 SET status = ?, finished_at = ?, processed = ?, succeeded = ?, failed = ?, duplicates = ?, skipped = ?
		 WHERE id = ?`,
		status, finishedAt.UTC(),
		counts.Processed, counts.Succeeded, counts.Failed, counts.Duplicates, counts.Skipped,
		id)
	if err != nil {
		return fmt.Errorf("finishing run %d: %w", id, err)
	}
	return nil
}

// RecentRuns returns the most recent runs, newest first.
func (j *Journal) RecentRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, operation, parameters, status, started_at, finished_at,
		        processed, succeeded, failed, duplicates, skipped
		 FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var (
			r        Run
			finished sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.Operation, &r.Parameters, &r.Status, &r.StartedAt, &finished,
			&r.Processed, &r.Succeeded, &r.Failed, &r.Duplicates, &r.Skipped); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		runs = append(runs, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating run rows: %w", err)
	}
	return runs, nil
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}
