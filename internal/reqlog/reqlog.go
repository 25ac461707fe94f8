// Package reqlog records request outcomes and token usage in a local
// SQLite database. Recording is best-effort and opt-in: the CLI wires
// it through client hooks, the SDK itself never touches it.
package reqlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS requests (
    id TEXT PRIMARY KEY,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    method TEXT NOT NULL,
    path TEXT NOT NULL,
    status INTEGER,
    model TEXT,
    input_tokens INTEGER DEFAULT 0,
    output_tokens INTEGER DEFAULT 0,
    cached_tokens INTEGER DEFAULT 0,
    duration_ms INTEGER DEFAULT 0,
    error TEXT
);

CREATE INDEX IF NOT EXISTS idx_requests_created_at ON requests(created_at DESC);
`

// Entry is one recorded request.
type Entry struct {
	ID           string
	CreatedAt    time.Time
	Method       string
	Path         string
	Status       int
	Model        string
	InputTokens  int
	OutputTokens int
	CachedTokens int
	Duration     time.Duration
	Error        string
}

// Totals aggregates recorded usage.
type Totals struct {
	Requests     int
	InputTokens  int
	OutputTokens int
	CachedTokens int
}

// Store is a SQLite-backed request log.
type Store struct {
	db *sql.DB
}

// DefaultPath returns the log location under the data directory:
// $XDG_DATA_HOME/oauth-codex or ~/.local/share/oauth-codex.
func DefaultPath() (string, error) {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "oauth-codex", "requests.db"), nil
}

// Open opens (and if needed creates) the log at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Record inserts or updates an entry. Re-recording the same request id
// (after usage arrives) overwrites the earlier row.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO requests (id, created_at, method, path, status, model, input_tokens, output_tokens, cached_tokens, duration_ms, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			input_tokens = excluded.input_tokens,
			output_tokens = excluded.output_tokens,
			cached_tokens = excluded.cached_tokens,
			duration_ms = excluded.duration_ms,
			error = excluded.error`,
		e.ID, e.CreatedAt, e.Method, e.Path, e.Status, e.Model,
		e.InputTokens, e.OutputTokens, e.CachedTokens, e.Duration.Milliseconds(), e.Error)
	if err != nil {
		return fmt.Errorf("record request: %w", err)
	}
	return nil
}

// List returns the most recent entries, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, method, path, status, model, input_tokens, output_tokens, cached_tokens, duration_ms, COALESCE(error, '')
		FROM requests ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var durationMS int64
		if err := rows.Scan(&e.ID, &e.CreatedAt, &e.Method, &e.Path, &e.Status, &e.Model,
			&e.InputTokens, &e.OutputTokens, &e.CachedTokens, &durationMS, &e.Error); err != nil {
			return nil, fmt.Errorf("scan request row: %w", err)
		}
		e.Duration = time.Duration(durationMS) * time.Millisecond
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// UsageTotals aggregates usage over the last days days; days <= 0
// means everything.
func (s *Store) UsageTotals(ctx context.Context, days int) (*Totals, error) {
	query := `SELECT COUNT(*), COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0), COALESCE(SUM(cached_tokens), 0) FROM requests`
	var args []any
	if days > 0 {
		query += ` WHERE created_at >= ?`
		args = append(args, time.Now().AddDate(0, 0, -days))
	}
	var t Totals
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&t.Requests, &t.InputTokens, &t.OutputTokens, &t.CachedTokens); err != nil {
		return nil, fmt.Errorf("aggregate usage: %w", err)
	}
	return &t, nil
}
