package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("record not found")

// StorageError wraps a persistence failure. Callers log it and degrade to a
// no-op; it never becomes a hard failure at the session boundary.
type StorageError struct {
	Op    string
	Cause error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error in %s: %v", e.Op, e.Cause)
}

func (e *StorageError) Unwrap() error {
	return e.Cause
}

func storageErr(op string, cause error) error {
	return &StorageError{Op: op, Cause: cause}
}

// Store wraps the SQLite database connection. When created disabled, every
// operation is a no-op returning empty/default values and a nil error.
type Store struct {
	conn    *sql.DB
	enabled bool
}

// New creates a new store. With enabled=false no file is opened and all
// operations silently do nothing.
func New(dbPath string, enabled bool) (*Store, error) {
	if !enabled {
		return &Store{enabled: false}, nil
	}

	// Ensure the directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single connection
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	s := &Store{conn: conn, enabled: true}

	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// Enabled reports whether persistence is active
func (s *Store) Enabled() bool {
	return s.enabled
}

// Close closes the database connection
func (s *Store) Close() error {
	if !s.enabled {
		return nil
	}
	return s.conn.Close()
}

// migrate runs database migrations
func (s *Store) migrate() error {
	migrations := []string{
		// Conversations table
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			model TEXT DEFAULT '',
			total_tokens INTEGER DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Messages table
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			seq INTEGER NOT NULL DEFAULT 0,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			model TEXT DEFAULT '',
			prompt_tokens INTEGER DEFAULT 0,
			completion_tokens INTEGER DEFAULT 0,
			total_tokens INTEGER DEFAULT 0,
			attachments TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
		)`,

		// Prompt templates table
		`CREATE TABLE IF NOT EXISTS prompt_templates (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			body TEXT NOT NULL,
			category TEXT DEFAULT '',
			tags TEXT DEFAULT '',
			usage_count INTEGER DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Settings table
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Indexes for better performance
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation_id ON messages(conversation_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation_seq ON messages(conversation_id, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_updated_at ON conversations(updated_at DESC)`,
	}

	for _, migration := range migrations {
		if _, err := s.conn.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, migration)
		}
	}

	return nil
}

// Stats represents store statistics
type Stats struct {
	ConversationCount int64
	MessageCount      int64
	TemplateCount     int64
	SizeBytes         int64
}

// GetStats returns store statistics
func (s *Store) GetStats() (*Stats, error) {
	if !s.enabled {
		return &Stats{}, nil
	}

	stats := &Stats{}

	if err := s.conn.QueryRow("SELECT COUNT(*) FROM conversations").Scan(&stats.ConversationCount); err != nil {
		return nil, storageErr("stats", err)
	}
	if err := s.conn.QueryRow("SELECT COUNT(*) FROM messages").Scan(&stats.MessageCount); err != nil {
		return nil, storageErr("stats", err)
	}
	if err := s.conn.QueryRow("SELECT COUNT(*) FROM prompt_templates").Scan(&stats.TemplateCount); err != nil {
		return nil, storageErr("stats", err)
	}

	// Database size (page_count * page_size)
	var pageCount, pageSize int64
	if err := s.conn.QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
		return nil, storageErr("stats", err)
	}
	if err := s.conn.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return nil, storageErr("stats", err)
	}
	stats.SizeBytes = pageCount * pageSize

	return stats, nil
}

// Wipe removes every record from the store
func (s *Store) Wipe() error {
	if !s.enabled {
		return nil
	}

	for _, table := range []string{"messages", "conversations", "prompt_templates", "settings"} {
		if _, err := s.conn.Exec("DELETE FROM " + table); err != nil {
			return storageErr("wipe", err)
		}
	}
	return s.Vacuum()
}

// Vacuum optimizes the database file
func (s *Store) Vacuum() error {
	if !s.enabled {
		return nil
	}
	if _, err := s.conn.Exec("VACUUM"); err != nil {
		return storageErr("vacuum", err)
	}
	return nil
}
