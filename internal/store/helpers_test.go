package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/recompose/internal/changes"
)

// createTestStore opens a fresh store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testChanges() changes.List {
	return changes.List{
		changes.Insert(changes.Root, 1, 0, "list"),
		changes.Insert(1, 2, 0, "item"),
		changes.SetAttribute(2, "label", "a"),
		changes.SetAttribute(2, "count", 3),
		changes.Move(1, 2, 1, 0),
		changes.SetAttribute(2, "label", nil),
		changes.Remove(changes.Root, 1),
	}
}

func testPass(id string, seq int64) PassRecord {
	list := testChanges()
	digest, err := Digest(list)
	if err != nil {
		panic(err)
	}
	return PassRecord{
		ID:          id,
		Composition: "main",
		Seq:         seq,
		Kind:        "compose",
		Executed:    2,
		Skipped:     1,
		Digest:      digest,
		Changes:     list,
	}
}
