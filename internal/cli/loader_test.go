package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTree_File(t *testing.T) {
	path := writeTree(t, "groceries", groceriesCUE)

	loaded, err := LoadTree(path)
	require.NoError(t, err)
	assert.Equal(t, "groceries", loaded.Name)
	assert.Equal(t, 1, loaded.FileCount)
	assert.Equal(t, 4, loaded.Program.Nodes())
	assert.Equal(t, []string{"title", "items", "showFooter"}, loaded.Program.StateNames)
}

func TestLoadTree_Directory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "shop")
	require.NoError(t, os.MkdirAll(dir, 0755))

	// State and tree may be split across the files of one package.
	state := `
package shop

state: count: 2
`
	tree := `
package shop

tree: {
	type: "counter"
	attrs: value: "${state.count}"
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "state.cue"), []byte(state), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tree.cue"), []byte(tree), 0644))

	loaded, err := LoadTree(dir)
	require.NoError(t, err)
	assert.Equal(t, "shop", loaded.Name)
	assert.Equal(t, 2, loaded.FileCount)
	assert.Equal(t, 1, loaded.Program.Nodes())
}

func TestLoadTree_Errors(t *testing.T) {
	empty := t.TempDir()

	tests := []struct {
		name string
		path string
		code string
	}{
		{
			name: "missing path",
			path: filepath.Join(empty, "nope.cue"),
			code: ErrCodeNotFound,
		},
		{
			name: "empty directory",
			path: empty,
			code: ErrCodeNoFiles,
		},
		{
			name: "no tree",
			path: writeTree(t, "notree", "state: a: 1\n"),
			code: ErrCodeInvalidTree,
		},
		{
			name: "syntax error",
			path: writeTree(t, "broken", "tree: {type: \n"),
			code: ErrCodeBuildFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadTree(tt.path)
			require.Error(t, err)

			var loadErr *LoadError
			require.ErrorAs(t, err, &loadErr)
			assert.Equal(t, tt.code, loadErr.Code)
		})
	}
}

func TestLoadTree_CompileErrorPosition(t *testing.T) {
	src := `
tree: {
	type: "app"
	children: [{type: "row", size: 3}]
}
`
	path := writeTree(t, "unknown", src)

	_, err := LoadTree(path)
	require.Error(t, err)

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, ErrCodeInvalidTree, loadErr.Code)
	require.True(t, loadErr.Pos.IsValid())
	assert.Contains(t, err.Error(), "unknown.cue:")
}

func TestFindCUEFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.cue"), []byte("a: 1"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("b"), 0644))

	files, err := FindCUEFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.cue")}, files)
}
