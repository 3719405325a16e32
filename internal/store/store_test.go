package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requirePragma(t *testing.T, s *Store, name, want string) {
	t.Helper()
	got, err := s.pragma(name)
	require.NoError(t, err)
	assert.Equal(t, want, got, "PRAGMA %s", name)
}

func TestOpenConfiguresConnection(t *testing.T) {
	s := createTestStore(t)

	requirePragma(t, s, "journal_mode", "wal")
	requirePragma(t, s, "foreign_keys", "1")
	requirePragma(t, s, "busy_timeout", "5000")
	requirePragma(t, s, "synchronous", "1")
	requirePragma(t, s, "user_version", "1")
}

func TestOpenOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opts.db")
	s, err := Open(path, WithBusyTimeout(250*time.Millisecond), WithSynchronous("full"))
	require.NoError(t, err)
	defer s.Close()

	requirePragma(t, s, "busy_timeout", "250")
	requirePragma(t, s, "synchronous", "2")
}

func TestOpenInMemory(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	requirePragma(t, s, "journal_mode", "memory")
	requirePragma(t, s, "user_version", "1")
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.db")
	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
	requirePragma(t, s2, "user_version", "1")
}

func TestOpenRejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "future.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.DB().Exec("PRAGMA user_version = 99")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer than supported")
}

func TestCloseNilDB(t *testing.T) {
	var s Store
	assert.NoError(t, s.Close())
}
