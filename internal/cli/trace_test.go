package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedPasses composes the groceries tree twice into a fresh database.
func seedPasses(t *testing.T) string {
	t.Helper()
	path := writeTree(t, "groceries", groceriesCUE)
	db := filepath.Join(t.TempDir(), "passes.db")

	_, _, err := execute(NewComposeCommand(&RootOptions{Format: "text"}), path, "--db", db)
	require.NoError(t, err)
	_, _, err = execute(NewComposeCommand(&RootOptions{Format: "text"}), path, "--db", db, "--name", "other", "--set", "showFooter=true")
	require.NoError(t, err)
	return db
}

func TestTraceMissingDatabaseFlag(t *testing.T) {
	_, _, err := execute(NewTraceCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
	assert.Contains(t, err.Error(), "db")
}

func TestTraceEmptyDatabase(t *testing.T) {
	db := filepath.Join(t.TempDir(), "empty.db")

	out, _, err := execute(NewTraceCommand(&RootOptions{Format: "text"}), "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "No passes found.")

	out, _, err = execute(NewTraceCommand(&RootOptions{Format: "text"}), "--db", db, "--composition", "ghost")
	require.NoError(t, err)
	assert.Contains(t, out, "No passes found for composition: ghost")
}

func TestTraceText(t *testing.T) {
	db := seedPasses(t)

	out, _, err := execute(NewTraceCommand(&RootOptions{Format: "text"}), "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "[1] groceries compose: 4 executed, 0 skipped, 0 reentered")
	assert.Contains(t, out, "[2] other compose: 5 executed")
	assert.Contains(t, out, "insert 0/1@0 app")
	assert.Contains(t, out, "=== Stats ===")
	assert.Contains(t, out, "Passes:  2")
}

func TestTraceJSON(t *testing.T) {
	db := seedPasses(t)

	out, _, err := execute(NewTraceCommand(&RootOptions{Format: "json"}), "--db", db, "--composition", "other")
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Passes, 1)

	p := resp.Data.Passes[0]
	assert.Equal(t, "other", p.Composition)
	assert.Equal(t, int64(2), p.Seq)
	assert.Equal(t, "compose", p.Kind)
	assert.Len(t, p.Digest, 64)
	assert.Equal(t, 1, resp.Data.Stats.Passes)
	assert.Equal(t, 5, resp.Data.Stats.Inserts, "app, list, two items and the footer")
	assert.Equal(t, len(p.Changes), resp.Data.Stats.Changes)
	assert.Zero(t, resp.Data.Stats.Failed)
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "short", truncateID("short"))
	assert.Equal(t, "01234567...89abcdef", truncateID("0123456789abcdef0123456789abcdef"))
}
