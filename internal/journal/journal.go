// Package journal records every session mutation in a small SQLite
// database so `tabdeck history` can show what happened and when. Appends
// are best-effort: a journal failure must never abort the operation that
// triggered it.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/asheshgoplani/tabdeck/internal/wm"
)

// Entry is one recorded operation.
type Entry struct {
	ID     int64
	At     time.Time
	Op     string
	Window wm.WindowID
	Tabs   int
}

// Journal wraps the SQLite operations log.
type Journal struct {
	db *sql.DB
}

// Open opens (creating if needed) the journal database at dbPath.
func Open(dbPath string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("journal: mkdir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}

	// WAL: readers (history) don't block a writer mid-operation.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: wal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: busy timeout: %w", err)
	}

	return &Journal{db: db}, nil
}

// Migrate creates the schema if it does not exist.
func (j *Journal) Migrate() error {
	_, err := j.db.Exec(`
		CREATE TABLE IF NOT EXISTS ops (
			id     INTEGER PRIMARY KEY AUTOINCREMENT,
			at     INTEGER NOT NULL,
			op     TEXT    NOT NULL,
			window INTEGER NOT NULL,
			tabs   INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_ops_at ON ops(at);
	`)
	if err != nil {
		return fmt.Errorf("journal: migrate: %w", err)
	}
	return nil
}

// Append records one operation.
func (j *Journal) Append(e Entry) error {
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := j.db.Exec(
		"INSERT INTO ops (at, op, window, tabs) VALUES (?, ?, ?, ?)",
		at.UnixNano(), e.Op, int64(e.Window), e.Tabs,
	)
	if err != nil {
		return fmt.Errorf("journal: append: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.Query(
		"SELECT id, at, op, window, tabs FROM ops ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var at, window int64
		if err := rows.Scan(&e.ID, &at, &e.Op, &window, &e.Tabs); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		e.At = time.Unix(0, at)
		e.Window = wm.WindowID(window)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close checkpoints WAL and closes the database.
func (j *Journal) Close() error {
	_, _ = j.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return j.db.Close()
}
