// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides scope/member/binding/message persistence with automatic schema creation

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS scopes (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			slug TEXT NOT NULL UNIQUE,
			owner_id TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS members (
			id TEXT PRIMARY KEY,
			scope_id TEXT NOT NULL,
			archetype_name TEXT NOT NULL DEFAULT 'member',
			display_name TEXT NOT NULL,
			canonical_identity TEXT NOT NULL,
			platform_handles TEXT NOT NULL DEFAULT '{}',
			is_agent INTEGER NOT NULL DEFAULT 0,
			joined_at TEXT NOT NULL,
			FOREIGN KEY (scope_id) REFERENCES scopes(id)
		);

		CREATE INDEX IF NOT EXISTS idx_members_scope
			ON members(scope_id);

		CREATE TABLE IF NOT EXISTS identity_claims (
			member_id TEXT NOT NULL,
			platform TEXT NOT NULL,
			handle TEXT NOT NULL,
			verification_code TEXT,
			verified INTEGER NOT NULL DEFAULT 0,
			claimed_at TEXT NOT NULL,
			PRIMARY KEY (member_id, platform),
			FOREIGN KEY (member_id) REFERENCES members(id)
		);

		CREATE INDEX IF NOT EXISTS idx_claims_platform_handle
			ON identity_claims(platform, handle);

		CREATE TABLE IF NOT EXISTS connectors (
			id TEXT PRIMARY KEY,
			scope_id TEXT NOT NULL,
			platform TEXT NOT NULL,
			config TEXT NOT NULL DEFAULT '{}',
			active INTEGER NOT NULL DEFAULT 1,
			UNIQUE (scope_id, platform)
		);

		CREATE TABLE IF NOT EXISTS bindings (
			id TEXT PRIMARY KEY,
			scope_id TEXT NOT NULL,
			platform TEXT NOT NULL,
			config TEXT NOT NULL DEFAULT '{}',
			active INTEGER NOT NULL DEFAULT 1,
			UNIQUE (scope_id, platform)
		);

		CREATE TABLE IF NOT EXISTS relay_messages (
			id TEXT PRIMARY KEY,
			scope_id TEXT NOT NULL,
			provenance_id TEXT NOT NULL,
			content TEXT NOT NULL,
			source_platform TEXT NOT NULL,
			source_channel TEXT NOT NULL,
			source_message_id TEXT NOT NULL,
			author_handle TEXT NOT NULL,
			resolved_member_id TEXT,
			is_summary INTEGER NOT NULL DEFAULT 0,
			relay_count INTEGER NOT NULL DEFAULT 0,
			received_at TEXT NOT NULL,
			UNIQUE (scope_id, source_platform, source_message_id)
		);

		CREATE TABLE IF NOT EXISTS provenance (
			id TEXT PRIMARY KEY,
			scope_id TEXT NOT NULL,
			action TEXT NOT NULL,
			source_platform TEXT,
			source_identity TEXT,
			subject_id TEXT,
			detail TEXT NOT NULL DEFAULT '{}',
			ts TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_provenance_scope_ts
			ON provenance(scope_id, ts);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
