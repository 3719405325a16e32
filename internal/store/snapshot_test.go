package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.SaveSnapshot(ctx, "main", 1, map[string]any{"count": 1})
	require.NoError(t, err)
	saved, err := s.SaveSnapshot(ctx, "main", 3, map[string]any{
		"count": 2,
		"name":  "x",
		"tags":  []any{"a", "b"},
	})
	require.NoError(t, err)

	got, err := s.LoadSnapshot(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Seq)
	assert.Equal(t, saved.Digest, got.Digest)
	assert.Equal(t, map[string]any{
		"count": int64(2),
		"name":  "x",
		"tags":  []any{"a", "b"},
	}, got.Values)
}

func TestSnapshotReplacesSameSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	_, err := s.SaveSnapshot(ctx, "main", 1, map[string]any{"v": 1})
	require.NoError(t, err)
	_, err = s.SaveSnapshot(ctx, "main", 1, map[string]any{"v": 2})
	require.NoError(t, err)

	got, err := s.LoadSnapshot(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Values["v"])
}

func TestSnapshotRejectsFloats(t *testing.T) {
	s := createTestStore(t)
	_, err := s.SaveSnapshot(context.Background(), "main", 1, map[string]any{"ratio": 0.5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"ratio"`)
}

func TestLoadSnapshotMissing(t *testing.T) {
	s := createTestStore(t)
	_, err := s.LoadSnapshot(context.Background(), "main")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}
