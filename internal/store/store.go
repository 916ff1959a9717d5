// Package store persists completed analysis runs in a local SQLite
// database so the CLI can show history and compare runs without keeping
// anything in memory between invocations.
//
// Each run is one row: indexed columns for listing and filtering, plus the
// full RunResult as a JSON payload for faithful retrieval. The schema is
// created on open; there are no migrations to manage.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/alpsla/codequal/internal/adaptive"
)

// DefaultPath is the run history location relative to the working
// directory when no path is configured.
const DefaultPath = ".codequal/history.db"

// Store is a handle to the run history database. Safe for concurrent use;
// database/sql serializes access to the underlying connection pool.
type Store struct {
	db *sql.DB
}

// RunSummary is the listing row for one stored run. It carries enough to
// render a history table without unmarshaling full payloads.
type RunSummary struct {
	RunID         string    `json:"run_id"`
	RepositoryURL string    `json:"repository_url"`
	Branch        string    `json:"branch"`
	CreatedAt     time.Time `json:"created_at"`
	Completeness  float64   `json:"completeness"`
	Converged     bool      `json:"converged"`
	Degraded      bool      `json:"degraded"`
	StopReason    string    `json:"stop_reason"`
	IssueCount    int       `json:"issue_count"`
	Iterations    int       `json:"iterations"`
}

// Open opens (creating if necessary) the run history database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			repository_url TEXT NOT NULL,
			branch TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			completeness REAL NOT NULL,
			converged INTEGER NOT NULL,
			degraded INTEGER NOT NULL,
			stop_reason TEXT NOT NULL,
			issue_count INTEGER NOT NULL,
			iteration_count INTEGER NOT NULL,
			payload TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create runs table: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_runs_repository
		ON runs(repository_url, created_at)
	`)
	if err != nil {
		return fmt.Errorf("failed to create runs index: %w", err)
	}

	return nil
}

// SaveRun stores a completed run. Saving the same run ID again replaces
// the earlier row.
func (s *Store) SaveRun(ctx context.Context, run *adaptive.RunResult) error {
	if run == nil {
		return fmt.Errorf("run cannot be nil")
	}
	if run.RunID == "" {
		return fmt.Errorf("run ID cannot be empty")
	}

	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run %s: %w", run.RunID, err)
	}

	issueCount := 0
	if run.Result != nil {
		issueCount = len(run.Result.Issues)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
			(id, repository_url, branch, created_at, completeness,
			 converged, degraded, stop_reason, issue_count, iteration_count, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.RunID,
		run.RepositoryURL,
		run.Branch,
		time.Now().UTC(),
		run.Completeness,
		run.Converged,
		run.Degraded,
		string(run.StopReason),
		issueCount,
		len(run.Iterations),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.RunID, err)
	}

	return nil
}

// GetRun retrieves a stored run by ID. Returns (nil, nil) if no run with
// that ID exists.
func (s *Store) GetRun(ctx context.Context, runID string) (*adaptive.RunResult, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM runs WHERE id = ?`, runID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}

	var run adaptive.RunResult
	if err := json.Unmarshal([]byte(payload), &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run %s: %w", runID, err)
	}
	return &run, nil
}

// ListRuns returns summaries of stored runs, newest first. An empty
// repositoryURL lists runs for all repositories. limit <= 0 means no
// limit.
func (s *Store) ListRuns(ctx context.Context, repositoryURL string, limit int) ([]RunSummary, error) {
	whereSQL := ""
	args := []interface{}{}
	if repositoryURL != "" {
		whereSQL = "WHERE repository_url = ?"
		args = append(args, repositoryURL)
	}

	limitSQL := ""
	if limit > 0 {
		limitSQL = fmt.Sprintf(" LIMIT %d", limit)
	}

	querySQL := fmt.Sprintf(`
		SELECT id, repository_url, branch, created_at, completeness,
		       converged, degraded, stop_reason, issue_count, iteration_count
		FROM runs
		%s
		ORDER BY created_at DESC%s
	`, whereSQL, limitSQL)

	rows, err := s.db.QueryContext(ctx, querySQL, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var summaries []RunSummary
	for rows.Next() {
		var sum RunSummary
		if err := rows.Scan(
			&sum.RunID,
			&sum.RepositoryURL,
			&sum.Branch,
			&sum.CreatedAt,
			&sum.Completeness,
			&sum.Converged,
			&sum.Degraded,
			&sum.StopReason,
			&sum.IssueCount,
			&sum.Iterations,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read run rows: %w", err)
	}

	return summaries, nil
}

// LatestRun returns the most recent run for a repository branch, or
// (nil, nil) when none is stored.
func (s *Store) LatestRun(ctx context.Context, repositoryURL, branch string) (*adaptive.RunResult, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `
		SELECT payload FROM runs
		WHERE repository_url = ? AND branch = ?
		ORDER BY created_at DESC
		LIMIT 1
	`, repositoryURL, branch).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest run for %s@%s: %w", repositoryURL, branch, err)
	}

	var run adaptive.RunResult
	if err := json.Unmarshal([]byte(payload), &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal latest run for %s@%s: %w", repositoryURL, branch, err)
	}
	return &run, nil
}

// DeleteRun removes a stored run. Deleting a missing run is not an error.
func (s *Store) DeleteRun(ctx context.Context, runID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, runID); err != nil {
		return fmt.Errorf("failed to delete run %s: %w", runID, err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
