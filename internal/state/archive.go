package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteArchive keeps every saved run, beyond the history cap.
type SQLiteArchive struct {
	db *sql.DB
}

// OpenSQLiteArchive opens or creates the archive database.
func OpenSQLiteArchive(path string) (*SQLiteArchive, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a := &SQLiteArchive{db: db}
	if err := a.init(); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

// Close closes the database connection.
func (a *SQLiteArchive) Close() error {
	return a.db.Close()
}

func (a *SQLiteArchive) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		model TEXT,
		backend_url TEXT,
		apply INTEGER NOT NULL,
		allow_destructive INTEGER NOT NULL,
		status TEXT NOT NULL,
		pipeline TEXT,
		steps INTEGER,
		task TEXT,
		result_excerpt TEXT,
		verification_commands TEXT,
		touched TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_timestamp ON runs(timestamp);
	`
	if _, err := a.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Archive upserts a record.
func (a *SQLiteArchive) Archive(rec RunRecord) error {
	verify, _ := json.Marshal(rec.VerificationCommands)
	touched, _ := json.Marshal(rec.Touched)
	_, err := a.db.Exec(`
		INSERT INTO runs (id, timestamp, model, backend_url, apply, allow_destructive, status, pipeline, steps, task, result_excerpt, verification_commands, touched)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			result_excerpt = excluded.result_excerpt,
			touched = excluded.touched
	`, rec.ID, rec.Timestamp.UTC().Format(time.RFC3339Nano), rec.Model, rec.BackendURL, rec.Apply, rec.AllowDestructive,
		rec.Status, rec.Pipeline, rec.Steps, rec.Task, rec.ResultExcerpt, string(verify), string(touched))
	if err != nil {
		return fmt.Errorf("failed to archive run %s: %w", rec.ID, err)
	}
	return nil
}

// Recent returns up to limit archived runs, newest first.
func (a *SQLiteArchive) Recent(limit int) ([]RunRecord, error) {
	rows, err := a.db.Query(`
		SELECT id, timestamp, model, backend_url, apply, allow_destructive, status, pipeline, steps, task, result_excerpt, verification_commands, touched
		FROM runs ORDER BY timestamp DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var rec RunRecord
		var ts, verify, touched string
		var model, backend, pipeline, task, excerpt sql.NullString
		var steps sql.NullInt64
		if err := rows.Scan(&rec.ID, &ts, &model, &backend, &rec.Apply, &rec.AllowDestructive, &rec.Status,
			&pipeline, &steps, &task, &excerpt, &verify, &touched); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		rec.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		rec.Model = model.String
		rec.BackendURL = backend.String
		rec.Pipeline = pipeline.String
		rec.Task = task.String
		rec.ResultExcerpt = excerpt.String
		rec.Steps = int(steps.Int64)
		json.Unmarshal([]byte(verify), &rec.VerificationCommands)
		json.Unmarshal([]byte(touched), &rec.Touched)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Count returns the number of archived runs.
func (a *SQLiteArchive) Count() (int, error) {
	var n int
	if err := a.db.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return n, nil
}
