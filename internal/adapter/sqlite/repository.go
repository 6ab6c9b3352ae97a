package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/skorper/harmony/internal/domain"
	_ "modernc.org/sqlite"
)

// ErrNoRuns is returned when the store holds no recorded run.
var ErrNoRuns = errors.New("no recorded runs")

const schema = `
CREATE TABLE IF NOT EXISTS requests (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id      TEXT NOT NULL,
    name        TEXT NOT NULL,
    method      TEXT NOT NULL,
    url         TEXT NOT NULL,
    status_code INTEGER NOT NULL DEFAULT 0,
    elapsed_ms  REAL NOT NULL,
    length      INTEGER NOT NULL DEFAULT 0,
    error       TEXT,
    created_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_requests_run ON requests(run_id, name);

CREATE TABLE IF NOT EXISTS jobs (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id      TEXT NOT NULL,
    scenario    TEXT NOT NULL,
    job_id      TEXT,
    status      TEXT,
    polls       INTEGER NOT NULL DEFAULT 0,
    elapsed_ms  REAL NOT NULL,
    error       TEXT,
    finished_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_run ON jobs(run_id, scenario);
`

// Repository implements domain.Recorder using SQLite.
type Repository struct {
	db *sql.DB
}

// New creates a new SQLite repository, initializing the schema if needed.
func New(dbPath string) (*Repository, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// Concurrent users write through one connection to avoid SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &Repository{db: db}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// RecordRequest stores one named request.
func (r *Repository) RecordRequest(ctx context.Context, rec domain.RequestRecord) error {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO requests (run_id, name, method, url, status_code, elapsed_ms, length, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Name, rec.Method, rec.URL, rec.StatusCode,
		millis(rec.Elapsed), rec.Length, nullString(rec.Error), ts,
	)
	return err
}

// RecordJob stores one asynchronous job outcome.
func (r *Repository) RecordJob(ctx context.Context, out domain.JobOutcome) error {
	ts := out.Finished
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO jobs (run_id, scenario, job_id, status, polls, elapsed_ms, error, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		out.RunID, out.Scenario, nullString(out.JobID), nullString(string(out.Status)),
		out.Polls, millis(out.Elapsed), nullString(out.Error), ts,
	)
	return err
}

// LatestRun returns the run ID of the most recently recorded request.
func (r *Repository) LatestRun(ctx context.Context) (string, error) {
	var runID string
	err := r.db.QueryRowContext(ctx,
		`SELECT run_id FROM requests ORDER BY id DESC LIMIT 1`,
	).Scan(&runID)
	if err == sql.ErrNoRows {
		return "", ErrNoRuns
	}
	return runID, err
}

// RequestTiming is the elapsed time series of one request name.
type RequestTiming struct {
	Name     string
	Elapsed  []float64
	Failures int
}

// RequestTimings returns elapsed milliseconds per request name for a run,
// ordered by name.
func (r *Repository) RequestTimings(ctx context.Context, runID string) ([]RequestTiming, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT name, elapsed_ms, status_code, COALESCE(error, '')
		 FROM requests WHERE run_id = ? ORDER BY name ASC, id ASC`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var timings []RequestTiming
	for rows.Next() {
		var (
			name    string
			elapsed float64
			code    int
			errText string
		)
		if err := rows.Scan(&name, &elapsed, &code, &errText); err != nil {
			return nil, err
		}
		if len(timings) == 0 || timings[len(timings)-1].Name != name {
			timings = append(timings, RequestTiming{Name: name})
		}
		t := &timings[len(timings)-1]
		t.Elapsed = append(t.Elapsed, elapsed)
		if errText != "" || code >= 400 {
			t.Failures++
		}
	}
	return timings, rows.Err()
}

// JobCount is the number of jobs of a scenario that ended with a status.
// Status is empty for waits that ended in an error.
type JobCount struct {
	Scenario string
	Status   domain.JobStatus
	Count    int
}

// JobCounts groups the job outcomes of a run by scenario and status.
func (r *Repository) JobCounts(ctx context.Context, runID string) ([]JobCount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT scenario, COALESCE(status, ''), COUNT(*)
		 FROM jobs WHERE run_id = ?
		 GROUP BY scenario, COALESCE(status, '')
		 ORDER BY scenario ASC, 2 ASC`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []JobCount
	for rows.Next() {
		var c JobCount
		var status string
		if err := rows.Scan(&c.Scenario, &status, &c.Count); err != nil {
			return nil, err
		}
		c.Status = domain.JobStatus(status)
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
