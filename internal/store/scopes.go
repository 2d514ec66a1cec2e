// ABOUTME: Scope entity store methods
// ABOUTME: Scopes are the community identities that own all other records

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CreateScope creates a new scope. Generates ID and CreatedAt if not set.
// Returns ErrDuplicateSlug when the slug is already taken.
func (s *SQLiteStore) CreateScope(ctx context.Context, scope *Scope) error {
	if scope.ID == "" {
		scope.ID = uuid.New().String()
	}
	if scope.CreatedAt.IsZero() {
		scope.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO scopes (id, name, slug, owner_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		scope.ID,
		scope.Name,
		scope.Slug,
		scope.OwnerID,
		scope.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateSlug
		}
		return fmt.Errorf("inserting scope: %w", err)
	}

	s.logger.Debug("created scope", "id", scope.ID, "slug", scope.Slug)
	return nil
}

// GetScope retrieves a scope by its ID.
func (s *SQLiteStore) GetScope(ctx context.Context, id string) (*Scope, error) {
	query := `SELECT id, name, slug, owner_id, created_at FROM scopes WHERE id = ?`
	return s.scanScope(s.db.QueryRowContext(ctx, query, id))
}

// GetScopeBySlug retrieves a scope by its slug.
func (s *SQLiteStore) GetScopeBySlug(ctx context.Context, slug string) (*Scope, error) {
	query := `SELECT id, name, slug, owner_id, created_at FROM scopes WHERE slug = ?`
	return s.scanScope(s.db.QueryRowContext(ctx, query, slug))
}

// scanScope scans a single scope row.
func (s *SQLiteStore) scanScope(row *sql.Row) (*Scope, error) {
	var scope Scope
	var createdAtStr string

	err := row.Scan(
		&scope.ID,
		&scope.Name,
		&scope.Slug,
		&scope.OwnerID,
		&createdAtStr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrScopeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning scope: %w", err)
	}

	scope.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &scope, nil
}
