// Package store is the sole owner of persistent state: conversations,
// messages, facts, tasks, outcomes, lessons, project sessions, and the
// audit log, all backed by a single modernc.org/sqlite database.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/omegacortex/omega/pkg/omegaerr"
)

// Store wraps the single *sql.DB the whole gateway shares. The connection
// pool is capped at 4, matching the concurrency model's resource bound;
// every mutation is single-statement or wrapped in an explicit *sql.Tx.
type Store struct {
	db *sql.DB
}

// Open creates (or reuses) the sqlite database at path, applies the
// forward-only migrations, and returns a ready Store.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, omegaerr.Memoryf(err, "create database directory for %q", path)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, omegaerr.Memoryf(err, "open database %q", path)
	}
	db.SetMaxOpenConns(4)

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle for components (dashboard /api/health) that
// only need to report size/liveness, not mutate rows.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return omegaerr.Memoryf(err, "begin transaction")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return omegaerr.Memoryf(err, "commit transaction")
	}
	return nil
}

var migrations = []struct {
	version int
	sql     string
}{
	{1, `
CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	channel TEXT NOT NULL,
	sender_id TEXT NOT NULL,
	project TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'active',
	last_activity DATETIME NOT NULL,
	summary TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_active
	ON conversations(channel, sender_id, project, status);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	metadata_json TEXT,
	timestamp DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, timestamp);

CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
	content, content='messages', content_rowid='rowid'
);

CREATE TABLE IF NOT EXISTS facts (
	sender_id TEXT NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (sender_id, key)
);

CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	channel TEXT NOT NULL,
	sender_id TEXT NOT NULL,
	reply_target TEXT NOT NULL,
	description TEXT NOT NULL,
	due_at DATETIME NOT NULL,
	repeat TEXT NOT NULL DEFAULT 'once',
	task_type TEXT NOT NULL DEFAULT 'reminder',
	project TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'pending',
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_due ON tasks(status, due_at, id);
CREATE INDEX IF NOT EXISTS idx_tasks_sender ON tasks(sender_id, status);

CREATE TABLE IF NOT EXISTS outcomes (
	id TEXT PRIMARY KEY,
	sender_id TEXT NOT NULL,
	domain TEXT NOT NULL,
	score INTEGER NOT NULL,
	lesson TEXT,
	source TEXT NOT NULL,
	project TEXT NOT NULL DEFAULT '',
	timestamp DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_outcomes_sender ON outcomes(sender_id, domain, timestamp);

CREATE TABLE IF NOT EXISTS lessons (
	id TEXT PRIMARY KEY,
	sender_id TEXT NOT NULL,
	domain TEXT NOT NULL,
	rule TEXT NOT NULL,
	project TEXT NOT NULL DEFAULT '',
	occurrences INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	UNIQUE(sender_id, domain, project, rule)
);

CREATE TABLE IF NOT EXISTS project_sessions (
	channel TEXT NOT NULL,
	sender_id TEXT NOT NULL,
	project TEXT NOT NULL,
	session_id TEXT NOT NULL,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (channel, sender_id, project)
);

CREATE TABLE IF NOT EXISTS audit_log (
	id TEXT PRIMARY KEY,
	channel TEXT NOT NULL,
	sender_id TEXT NOT NULL,
	sender_name TEXT,
	input_text TEXT NOT NULL,
	output_text TEXT,
	provider_used TEXT,
	model TEXT,
	processing_ms INTEGER,
	status TEXT NOT NULL,
	denial_reason TEXT,
	timestamp DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_sender ON audit_log(sender_id, timestamp);
`},
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return omegaerr.Memoryf(err, "create schema_version table")
	}

	var current int
	row := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	if err := row.Scan(&current); err != nil {
		return omegaerr.Memoryf(err, "read schema version")
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		err := s.withTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.sql); err != nil {
				return fmt.Errorf("migration %d: %w", m.version, err)
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_version(version) VALUES (?)`, m.version)
			return err
		})
		if err != nil {
			return omegaerr.Memoryf(err, "apply migration %d", m.version)
		}
	}
	return nil
}


