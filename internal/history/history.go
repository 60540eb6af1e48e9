// File: internal/history/history.go
// Brief: SQLite journal of convergence engine runs.

// Package history keeps a local journal of engine runs so `brewctl status
// --runs` can show what migrated when, and with what outcome. The journal
// is diagnostic only: the engine never reads it back for decisions.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const relPath = ".brewctl/history.sqlite"

// ServiceOutcome is one per-service reconciliation result.
type ServiceOutcome struct {
	Service string `json:"service"`
	Action  string `json:"action"`
	Error   string `json:"error,omitempty"`
}

// RunRecord is one engine run as journaled.
type RunRecord struct {
	RunID        string
	FromVersion  string
	ToVersion    string
	Phase        string
	AppliedSteps []int
	SkippedSteps []int
	FailedStep   *int
	Services     []ServiceOutcome
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Store wraps the sqlite journal.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the journal under a brewctl directory.
func Open(dir string) (*Store, error) {
	path := filepath.Join(dir, relPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &Store{db: db, path: path}
	if err := s.initSchema(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA busy_timeout=5000;`,
		`
CREATE TABLE IF NOT EXISTS brewctl_runs (
  run_id TEXT PRIMARY KEY,
  from_version TEXT NOT NULL,
  to_version TEXT NOT NULL,
  phase TEXT NOT NULL,
  applied_json TEXT NOT NULL,
  skipped_json TEXT NOT NULL,
  failed_step INTEGER,
  services_json TEXT NOT NULL,
  started_at_ns INTEGER NOT NULL,
  finished_at_ns INTEGER NOT NULL
);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init history schema: %w", err)
		}
	}
	return nil
}

// Record journals one run. Assigns a run id when the caller left it empty.
func (s *Store) Record(ctx context.Context, rec RunRecord) (string, error) {
	if rec.RunID == "" {
		rec.RunID = uuid.NewString()
	}
	applied, err := json.Marshal(orEmpty(rec.AppliedSteps))
	if err != nil {
		return "", err
	}
	skipped, err := json.Marshal(orEmpty(rec.SkippedSteps))
	if err != nil {
		return "", err
	}
	services, err := json.Marshal(rec.Services)
	if err != nil {
		return "", err
	}
	var failed any
	if rec.FailedStep != nil {
		failed = *rec.FailedStep
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO brewctl_runs
  (run_id, from_version, to_version, phase, applied_json, skipped_json, failed_step, services_json, started_at_ns, finished_at_ns)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.FromVersion, rec.ToVersion, rec.Phase,
		string(applied), string(skipped), failed, string(services),
		rec.StartedAt.UnixNano(), rec.FinishedAt.UnixNano())
	if err != nil {
		return "", fmt.Errorf("journal run: %w", err)
	}
	return rec.RunID, nil
}

// List returns the most recent runs, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT run_id, from_version, to_version, phase, applied_json, skipped_json, failed_step, services_json, started_at_ns, finished_at_ns
FROM brewctl_runs ORDER BY started_at_ns DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			rec                       RunRecord
			applied, skipped, svcJSON string
			failed                    sql.NullInt64
			startNS, finishNS         int64
		)
		if err := rows.Scan(&rec.RunID, &rec.FromVersion, &rec.ToVersion, &rec.Phase,
			&applied, &skipped, &failed, &svcJSON, &startNS, &finishNS); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(applied), &rec.AppliedSteps); err != nil {
			return nil, fmt.Errorf("parse applied steps: %w", err)
		}
		if err := json.Unmarshal([]byte(skipped), &rec.SkippedSteps); err != nil {
			return nil, fmt.Errorf("parse skipped steps: %w", err)
		}
		if err := json.Unmarshal([]byte(svcJSON), &rec.Services); err != nil {
			return nil, fmt.Errorf("parse service outcomes: %w", err)
		}
		if failed.Valid {
			v := int(failed.Int64)
			rec.FailedStep = &v
		}
		rec.StartedAt = time.Unix(0, startNS)
		rec.FinishedAt = time.Unix(0, finishNS)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func orEmpty(in []int) []int {
	if in == nil {
		return []int{}
	}
	return in
}
