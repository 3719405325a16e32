package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recompose/internal/changes"
	"github.com/roach88/recompose/internal/compose"
)

func TestWriteReadPassRoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	rec := testPass("p1", 1)
	require.NoError(t, s.WritePass(ctx, rec))

	got, err := s.ReadPass(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, rec.Digest, got.Digest)
	assert.Equal(t, rec.Executed, got.Executed)

	// Integers come back as int64; cleared attributes as nil.
	want := testChanges()
	want[3].Value = int64(3)
	assert.Equal(t, want, got.Changes)

	digest, err := Digest(got.Changes)
	require.NoError(t, err)
	assert.Equal(t, rec.Digest, digest, "digest survives storage")
}

func TestWritePassIsIdempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.WritePass(ctx, testPass("p1", 1)))

	again := testPass("p1", 1)
	again.Changes = again.Changes[:1]
	require.NoError(t, s.WritePass(ctx, again))

	got, err := s.ReadChanges(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, got, len(testChanges()))
}

func TestReadPassNotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.ReadPass(context.Background(), "missing")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestListPassesOrdering(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	for _, p := range []PassRecord{testPass("b", 2), testPass("c", 1), testPass("a", 2)} {
		require.NoError(t, s.WritePass(ctx, p))
	}
	other := testPass("z", 0)
	other.Composition = "other"
	require.NoError(t, s.WritePass(ctx, other))

	passes, err := s.ListPasses(ctx, "main")
	require.NoError(t, err)
	var ids []string
	for _, p := range passes {
		ids = append(ids, p.ID)
		assert.Nil(t, p.Changes)
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)

	all, err := s.ListPasses(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, "z", all[0].ID)

	none, err := s.ListPasses(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestMaxSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	seq, err := s.MaxSeq(ctx)
	require.NoError(t, err)
	assert.Zero(t, seq)

	require.NoError(t, s.WritePass(ctx, testPass("p1", 7)))
	require.NoError(t, s.WritePass(ctx, testPass("p2", 3)))
	seq, err = s.MaxSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), seq)
}

func TestSinkStoresResults(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	res := &compose.Result{
		Composition: "main",
		PassID:      "pass-1",
		Seq:         4,
		Kind:        compose.PassRecompose,
		Changes:     changes.List{changes.SetAttribute(3, "text", "hi")},
		Reentered:   1,
		Pending:     true,
		Err:         errors.New("CYCLE_DETECTED: scope 2"),
	}
	require.NoError(t, s.Sink().WritePass(ctx, res))

	got, err := s.ReadPass(ctx, "pass-1")
	require.NoError(t, err)
	assert.Equal(t, "recompose", got.Kind)
	assert.True(t, got.Pending)
	assert.Equal(t, 1, got.Reentered)
	assert.Equal(t, "CYCLE_DETECTED: scope 2", got.Error)
	assert.Equal(t, res.Changes, got.Changes)
}

func TestDigestIgnoresUnusedFields(t *testing.T) {
	a := changes.List{changes.Remove(1, 2)}
	b := changes.List{{Op: changes.OpRemove, Parent: 1, Child: 2, Type: "ignored", Index: 9}}
	da, err := Digest(a)
	require.NoError(t, err)
	db, err := Digest(b)
	require.NoError(t, err)
	assert.Equal(t, da, db)

	dc, err := Digest(changes.List{changes.Remove(1, 3)})
	require.NoError(t, err)
	assert.NotEqual(t, da, dc)
}
