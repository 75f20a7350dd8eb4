// Package history keeps a local record of sync runs in SQLite so operators
// can see what recent syncs did without digging through CI logs.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Run is one recorded sync, including no-ops.
type Run struct {
	ID            string
	StartedAt     time.Time
	Duration      time.Duration
	SyncMode      string
	Changed       bool
	ContentHash   string
	TotalModels   int
	Added         int
	Updated       int
	Unchanged     int
	Aliased       int
	AutoFilled    int
	CustomApplied int
}

// NewRun allocates a run with a fresh id and start time.
func NewRun(syncMode string) Run {
	return Run{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
		SyncMode:  syncMode,
	}
}

// Store wraps the SQLite connection.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database and ensures the
// schema exists.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating history dir: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}

	// WAL lets a concurrent `pricesync history` read while a sync writes.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at TIMESTAMP NOT NULL,
		duration_ms INTEGER NOT NULL,
		sync_mode TEXT NOT NULL,
		changed INTEGER NOT NULL,
		content_hash TEXT NOT NULL,
		total_models INTEGER NOT NULL,
		added INTEGER NOT NULL,
		updated INTEGER NOT NULL,
		unchanged INTEGER NOT NULL,
		aliased INTEGER NOT NULL,
		auto_filled INTEGER NOT NULL,
		custom_applied INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrating history schema: %w", err)
	}
	return nil
}

// Record persists a completed run.
func (s *Store) Record(r Run) error {
	_, err := s.db.Exec(
		`INSERT INTO runs
		 (id, started_at, duration_ms, sync_mode, changed, content_hash,
		  total_models, added, updated, unchanged, aliased, auto_filled, custom_applied)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.StartedAt, r.Duration.Milliseconds(), r.SyncMode, r.Changed, r.ContentHash,
		r.TotalModels, r.Added, r.Updated, r.Unchanged, r.Aliased, r.AutoFilled, r.CustomApplied,
	)
	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(limit int) ([]Run, error) {
	rows, err := s.db.Query(
		`SELECT id, started_at, duration_ms, sync_mode, changed, content_hash,
		        total_models, added, updated, unchanged, aliased, auto_filled, custom_applied
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var durationMS int64
		if err := rows.Scan(&r.ID, &r.StartedAt, &durationMS, &r.SyncMode, &r.Changed, &r.ContentHash,
			&r.TotalModels, &r.Added, &r.Updated, &r.Unchanged, &r.Aliased, &r.AutoFilled, &r.CustomApplied); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
