package history

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zots0127/marketadmin/internal/domain/entities"
	"github.com/zots0127/marketadmin/internal/domain/repository"
)

func TestRingNewestFirstAndEviction(t *testing.T) {
	ctx := context.Background()
	r := NewRing(3)

	for i := 1; i <= 5; i++ {
		require.NoError(t, r.Add(ctx, &entities.HistoryEntry{ID: fmt.Sprintf("h%d", i)}))
	}

	entries, err := r.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "h5", entries[0].ID)
	assert.Equal(t, "h4", entries[1].ID)
	assert.Equal(t, "h3", entries[2].ID)

	_, err = r.Get(ctx, "h1")
	assert.ErrorIs(t, err, repository.ErrHistoryNotFound)

	got, err := r.Get(ctx, "h4")
	require.NoError(t, err)
	assert.Equal(t, "h4", got.ID)
}

func TestRingLimit(t *testing.T) {
	ctx := context.Background()
	r := NewRing(0)
	require.NoError(t, r.Add(ctx, &entities.HistoryEntry{ID: "a"}))
	require.NoError(t, r.Add(ctx, &entities.HistoryEntry{ID: "b"}))

	entries, err := r.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b", entries[0].ID)

	empty, err := NewRing(2).List(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRingKeepsOwnCopies(t *testing.T) {
	ctx := context.Background()
	r := NewRing(2)

	entry := &entities.HistoryEntry{
		ID:       "h1",
		Metadata: map[string]int{"total_profiles": 3},
		Errors:   []string{"first"},
	}
	require.NoError(t, r.Add(ctx, entry))
	entry.Metadata["total_profiles"] = 99
	entry.Errors[0] = "changed"

	got, err := r.Get(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"total_profiles": 3}, got.Metadata)
	assert.Equal(t, []string{"first"}, got.Errors)

	got.Metadata["total_profiles"] = 7
	listed, err := r.List(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, listed[0].Metadata["total_profiles"])
}
