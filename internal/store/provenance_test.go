// ABOUTME: Tests for the append-only provenance log
// ABOUTME: Covers append defaults, scope filtering, ordering and limit capping

package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvenanceStore_AppendAndList(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	scope := createTestScope(t, store, "prov")

	platform := "discord"
	identity := "alice"
	subject := "m1"
	p := &Provenance{
		ScopeID:        scope.ID,
		Action:         ActionMessageReceived,
		SourcePlatform: &platform,
		SourceIdentity: &identity,
		SubjectID:      &subject,
		Detail: map[string]any{
			"channel":        "D1",
			"content_length": float64(72),
		},
	}
	require.NoError(t, store.AppendProvenance(ctx, p))
	assert.NotEmpty(t, p.ID)
	assert.False(t, p.Timestamp.IsZero())

	records, err := store.ListProvenance(ctx, scope.ID, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, ActionMessageReceived, records[0].Action)
	require.NotNil(t, records[0].SourcePlatform)
	assert.Equal(t, "discord", *records[0].SourcePlatform)
	assert.Equal(t, "D1", records[0].Detail["channel"])
	assert.Equal(t, float64(72), records[0].Detail["content_length"])
}

func TestProvenanceStore_OptionalFieldsNil(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	scope := createTestScope(t, store, "prov-nil")

	// Not every action has a platform origin
	require.NoError(t, store.AppendProvenance(ctx, &Provenance{
		ScopeID: scope.ID,
		Action:  ActionScopeCreated,
	}))

	records, err := store.ListProvenance(ctx, scope.ID, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Nil(t, records[0].SourcePlatform)
	assert.Nil(t, records[0].SourceIdentity)
	assert.Nil(t, records[0].SubjectID)
	assert.NotNil(t, records[0].Detail)
}

func TestProvenanceStore_NewestFirst(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	scope := createTestScope(t, store, "prov-order")

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, store.AppendProvenance(ctx, &Provenance{
			ScopeID:   scope.ID,
			Action:    ActionMessageReceived,
			Detail:    map[string]any{"seq": float64(i)},
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	records, err := store.ListProvenance(ctx, scope.ID, 10)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, float64(2), records[0].Detail["seq"])
	assert.Equal(t, float64(0), records[2].Detail["seq"])
}

func TestProvenanceStore_LimitAndScope(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	scopeA := createTestScope(t, store, "prov-a")
	scopeB := createTestScope(t, store, "prov-b")

	for i := 0; i < 5; i++ {
		require.NoError(t, store.AppendProvenance(ctx, &Provenance{
			ScopeID: scopeA.ID,
			Action:  ActionMessageReceived,
			Detail:  map[string]any{"n": fmt.Sprintf("%d", i)},
		}))
	}
	require.NoError(t, store.AppendProvenance(ctx, &Provenance{
		ScopeID: scopeB.ID,
		Action:  ActionMessageReceived,
	}))

	records, err := store.ListProvenance(ctx, scopeA.ID, 3)
	require.NoError(t, err)
	assert.Len(t, records, 3)

	records, err = store.ListProvenance(ctx, scopeB.ID, 0)
	require.NoError(t, err)
	assert.Len(t, records, 1, "default limit applies, scoped to scope B")

	records, err = store.ListProvenance(ctx, "no-such-scope", 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}
