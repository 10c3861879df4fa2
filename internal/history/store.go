// Package history persists finished command blocks to SQLite so the client
// can offer recall and fuzzy autocomplete across sessions. The store is
// optional: a nil *Store disables recording without any caller changes.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/devpocket/termcore/internal/logging"
)

var log = logging.ForComponent(logging.CompHistory)

// SchemaVersion tracks the current database schema version.
// Bump this when adding migrations.
const SchemaVersion = 1

// Entry is one recorded command execution.
type Entry struct {
	ID        int64
	SessionID string
	Command   string
	Category  string
	Status    string
	StartedAt time.Time
	Duration  time.Duration
}

// Store wraps a SQLite database of command history. Thread-safe for
// concurrent use within one process; WAL mode plus a busy timeout keeps
// cross-process access safe too.
type Store struct {
	db *sql.DB
}

// Open creates or opens the history database at dbPath.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("history: mkdir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS commands (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id  TEXT NOT NULL,
			command     TEXT NOT NULL,
			category    TEXT NOT NULL,
			status      TEXT NOT NULL,
			started_at  INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_commands_started_at ON commands(started_at DESC);
		CREATE INDEX IF NOT EXISTS idx_commands_session ON commands(session_id);
	`)
	if err != nil {
		return fmt.Errorf("history: migrate: %w", err)
	}

	var version int
	err = s.db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	switch {
	case err == sql.ErrNoRows:
		if _, err := s.db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, SchemaVersion); err != nil {
			return fmt.Errorf("history: set version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("history: read version: %w", err)
	case version > SchemaVersion:
		return fmt.Errorf("history: database version %d newer than supported %d", version, SchemaVersion)
	}
	return nil
}

// Record inserts one finished command. Nil-safe.
func (s *Store) Record(e Entry) error {
	if s == nil {
		return nil
	}
	_, err := s.db.Exec(
		`INSERT INTO commands (session_id, command, category, status, started_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.Command, e.Category, e.Status,
		e.StartedAt.UnixMilli(), e.Duration.Milliseconds(),
	)
	if err != nil {
		log.Warn("record_failed", "error", err)
		return fmt.Errorf("history: record: %w", err)
	}
	return nil
}

// Recent returns the most recent entries, newest first.
func (s *Store) Recent(limit int) ([]Entry, error) {
	if s == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT id, session_id, command, category, status, started_at, duration_ms
		 FROM commands ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var startedMs, durMs int64
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Command, &e.Category, &e.Status, &startedMs, &durMs); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		e.StartedAt = time.UnixMilli(startedMs)
		e.Duration = time.Duration(durMs) * time.Millisecond
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}
