// Package history keeps an append-only log of job status transitions in a
// local SQLite database, so "when did this job stop queueing" survives the
// cache's last-writer-wins overwrites.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SchemaVersion is the history database schema version.
const SchemaVersion = 1

// Config configures a history store.
type Config struct {
	// Path is a local filesystem path to the history database.
	// ":memory:" opens an in-memory database (tests).
	Path string
}

// Store is a SQLite-backed transition log.
type Store struct {
	db *sql.DB
}

// Transition is one recorded status change.
type Transition struct {
	ID        int64     `json:"id"`
	Hostname  string    `json:"hostname"`
	JobID     string    `json:"job_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	ChangedAt time.Time `json:"changed_at"`

	// RunID groups the transitions recorded by one update/daemon cycle.
	RunID string `json:"run_id,omitempty"`
}

// Open opens (and creates if needed) the history database.
//
// For local files, WAL and busy_timeout are applied for predictable CLI
// behavior, and the schema is created in-place.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	dsn, err := buildDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping history store: %w", err)
	}
	if dsn != ":memory:" {
		for _, pragma := range []string{
			"PRAGMA journal_mode=WAL;",
			"PRAGMA busy_timeout=5000;",
		} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("configure history store: %w", err)
			}
		}
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func buildDSN(cfg Config) (string, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return "", errors.New("history store path is required")
	}
	if path == ":memory:" {
		return path, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create history store dir: %w", err)
	}
	return "file:" + filepath.Clean(path), nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schema_meta (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			schema_version INTEGER NOT NULL
		);`,
		`INSERT INTO schema_meta (id, schema_version)
			VALUES (1, ` + fmt.Sprint(SchemaVersion) + `)
			ON CONFLICT(id) DO NOTHING;`,
		`CREATE TABLE IF NOT EXISTS transitions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			hostname TEXT NOT NULL,
			job_id TEXT NOT NULL,
			from_status TEXT NOT NULL,
			to_status TEXT NOT NULL,
			changed_at TEXT NOT NULL,
			run_id TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_transitions_job ON transitions(hostname, job_id);`,
		`CREATE INDEX IF NOT EXISTS idx_transitions_changed ON transitions(changed_at);`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply history schema: %w", err)
		}
	}

	var version int
	if err := tx.QueryRowContext(ctx, `SELECT schema_version FROM schema_meta WHERE id = 1`).Scan(&version); err != nil {
		return fmt.Errorf("read history schema version: %w", err)
	}
	if version > SchemaVersion {
		return fmt.Errorf("history schema version %d is newer than supported version %d", version, SchemaVersion)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit history schema: %w", err)
	}
	return nil
}

// Append records a batch of transitions in one transaction.
func (s *Store) Append(ctx context.Context, transitions []Transition) error {
	if len(transitions) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO transitions
		(hostname, job_id, from_status, to_status, changed_at, run_id)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, tr := range transitions {
		changedAt := tr.ChangedAt
		if changedAt.IsZero() {
			changedAt = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx,
			tr.Hostname, tr.JobID, tr.From, tr.To,
			changedAt.UTC().Format(time.RFC3339), tr.RunID,
		); err != nil {
			return fmt.Errorf("insert transition: %w", err)
		}
	}
	return tx.Commit()
}

// Query filters a transition listing. Zero values mean "no filter".
type Query struct {
	Hostname string
	JobID    string
	Since    time.Time
	Limit    int
}

// List returns transitions newest first.
func (s *Store) List(ctx context.Context, q Query) ([]Transition, error) {
	var (
		where []string
		args  []any
	)
	if q.Hostname != "" {
		where = append(where, "hostname = ?")
		args = append(args, q.Hostname)
	}
	if q.JobID != "" {
		where = append(where, "job_id = ?")
		args = append(args, q.JobID)
	}
	if !q.Since.IsZero() {
		where = append(where, "changed_at >= ?")
		args = append(args, q.Since.UTC().Format(time.RFC3339))
	}

	query := `SELECT id, hostname, job_id, from_status, to_status, changed_at, run_id FROM transitions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Transition
	for rows.Next() {
		var (
			tr        Transition
			changedAt string
			runID     sql.NullString
		)
		if err := rows.Scan(&tr.ID, &tr.Hostname, &tr.JobID, &tr.From, &tr.To, &changedAt, &runID); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		ts, err := time.Parse(time.RFC3339, changedAt)
		if err != nil {
			return nil, fmt.Errorf("parse changed_at %q: %w", changedAt, err)
		}
		tr.ChangedAt = ts
		tr.RunID = runID.String
		out = append(out, tr)
	}
	return out, rows.Err()
}
