// Package store provides the SQLite-backed chat record log for Recap.
// One recap.db file holds every persisted message, keyed by
// (session_id, message_id) so that redelivered events overwrite rather
// than duplicate.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver.
)

// schema is the DDL executed on every startup (idempotent via IF NOT EXISTS).
const schema = `
CREATE TABLE IF NOT EXISTS chat_records (
    session_id TEXT    NOT NULL,
    message_id INTEGER NOT NULL,
    user       TEXT    DEFAULT '',
    content    TEXT    DEFAULT '',
    kind       TEXT    DEFAULT 'text',
    timestamp  INTEGER NOT NULL,
    triggered  INTEGER DEFAULT 0,
    PRIMARY KEY (session_id, message_id)
);
CREATE INDEX IF NOT EXISTS idx_chat_records_ts ON chat_records(session_id, timestamp);
`

// ChatRecord is one persisted chat message.
type ChatRecord struct {
	// SessionID is the conversation identity (group name or nickname).
	SessionID string

	// MessageID is the source-provided identifier, unique within a session.
	MessageID int64

	// User is the sender display name (raw id when no nickname is known).
	User string

	// Content is the normalized message text.
	Content string

	// Kind is the coarse message type tag ("text", "image", "voice", ...).
	Kind string

	// Timestamp is the sender-side epoch seconds.
	Timestamp int64

	// Triggered is true when the message was classified as a direct
	// bot invocation.
	Triggered bool
}

// Store is the durable chat record log. A single shared connection with
// a write mutex serializes concurrent writers; SQLite handles the rest.
type Store struct {
	db *sql.DB

	// writeMu serializes Upsert calls from concurrently ingesting sessions.
	writeMu sync.Mutex
}

// Open opens (or creates) the record database at the given path, creates
// the schema and runs pending migrations. Safe to call on every startup.
func Open(path string) (*Store, error) {
	if path == "" {
		path = "./data/recap.db"
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory %q: %w", dir, err)
	}

	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", path, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	if err := migrateTriggeredColumn(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert inserts a record, overwriting any prior row with the same
// (session_id, message_id). Duplicate keys never fail the caller.
func (s *Store) Upsert(ctx context.Context, rec ChatRecord) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO chat_records
		 (session_id, message_id, user, content, kind, timestamp, triggered)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.MessageID, rec.User, rec.Content, rec.Kind,
		rec.Timestamp, boolToInt(rec.Triggered),
	)
	if err != nil {
		return fmt.Errorf("upsert record %s/%d: %w", rec.SessionID, rec.MessageID, err)
	}
	return nil
}

// Query returns records for the session with timestamp strictly greater
// than startTS, newest first, truncated to limit. An empty window yields
// an empty slice, not an error.
func (s *Store) Query(ctx context.Context, sessionID string, startTS int64, limit int) ([]ChatRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, message_id, user, content, kind, timestamp, triggered
		 FROM chat_records
		 WHERE session_id = ? AND timestamp > ?
		 ORDER BY timestamp DESC
		 LIMIT ?`,
		sessionID, startTS, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query records for %q: %w", sessionID, err)
	}
	defer rows.Close()

	var records []ChatRecord
	for rows.Next() {
		var rec ChatRecord
		var triggered int
		if err := rows.Scan(&rec.SessionID, &rec.MessageID, &rec.User,
			&rec.Content, &rec.Kind, &rec.Timestamp, &triggered); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.Triggered = triggered != 0
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}

	return records, nil
}

// DistinctSessions returns every session id ever stored, in a stable
// order. Used by the fuzzy session matcher.
func (s *Store) DistinctSessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT session_id FROM chat_records ORDER BY session_id`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		sessions = append(sessions, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

// migrateTriggeredColumn adds the triggered column to databases created
// before the flag existed, defaulting existing rows to 0. Idempotent:
// safe to run on every startup.
func migrateTriggeredColumn(db *sql.DB) error {
	rows, err := db.Query(`PRAGMA table_info(chat_records)`)
	if err != nil {
		return fmt.Errorf("inspect chat_records: %w", err)
	}
	defer rows.Close()

	exists := false
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return fmt.Errorf("scan column info: %w", err)
		}
		if name == "triggered" {
			exists = true
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if exists {
		return nil
	}

	if _, err := db.Exec(`ALTER TABLE chat_records ADD COLUMN triggered INTEGER DEFAULT 0`); err != nil {
		return fmt.Errorf("add triggered column: %w", err)
	}
	if _, err := db.Exec(`UPDATE chat_records SET triggered = 0`); err != nil {
		return fmt.Errorf("backfill triggered column: %w", err)
	}
	return nil
}

// LocalTime formats the record timestamp for chunk rendering.
func (r ChatRecord) LocalTime() string {
	return time.Unix(r.Timestamp, 0).Format("2006-01-02 15:04:05")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
