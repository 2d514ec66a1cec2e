// ABOUTME: Shared test setup and scope store tests
// ABOUTME: Uses a temp-dir SQLite file per test, cleaned up automatically

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

// createTestScope creates a scope for use by other entity tests.
func createTestScope(t *testing.T, store *SQLiteStore, slug string) *Scope {
	t.Helper()
	scope := &Scope{
		Name:    "Test Community " + slug,
		Slug:    slug,
		OwnerID: "owner@example.com",
	}
	require.NoError(t, store.CreateScope(context.Background(), scope))
	return scope
}

func TestScopeStore_CreateAndGet(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	scope := &Scope{
		Name:    "Cobra Chicken",
		Slug:    "cobrachicken",
		OwnerID: "james@example.com",
	}
	require.NoError(t, store.CreateScope(ctx, scope))
	assert.NotEmpty(t, scope.ID, "ID should be generated")
	assert.False(t, scope.CreatedAt.IsZero(), "CreatedAt should be generated")

	byID, err := store.GetScope(ctx, scope.ID)
	require.NoError(t, err)
	assert.Equal(t, "Cobra Chicken", byID.Name)
	assert.Equal(t, "cobrachicken", byID.Slug)
	assert.Equal(t, "james@example.com", byID.OwnerID)

	bySlug, err := store.GetScopeBySlug(ctx, "cobrachicken")
	require.NoError(t, err)
	assert.Equal(t, scope.ID, bySlug.ID)
}

func TestScopeStore_DuplicateSlug(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	createTestScope(t, store, "taken")

	dupe := &Scope{
		Name:    "Another",
		Slug:    "taken",
		OwnerID: "other@example.com",
	}
	err := store.CreateScope(ctx, dupe)
	assert.ErrorIs(t, err, ErrDuplicateSlug)
}

func TestScopeStore_NotFound(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.GetScope(ctx, "no-such-id")
	assert.ErrorIs(t, err, ErrScopeNotFound)

	_, err = store.GetScopeBySlug(ctx, "no-such-slug")
	assert.ErrorIs(t, err, ErrScopeNotFound)
}

func TestScopeStore_TimestampRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	created := time.Date(2026, 2, 14, 9, 30, 0, 0, time.UTC)
	scope := &Scope{
		Name:      "Pinned Time",
		Slug:      "pinned",
		OwnerID:   "owner@example.com",
		CreatedAt: created,
	}
	require.NoError(t, store.CreateScope(ctx, scope))

	got, err := store.GetScope(ctx, scope.ID)
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.Equal(created))
}
