package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const groceriesCUE = `
package groceries

state: {
	title: "Groceries"
	items: [{id: "a", text: "milk"}, {id: "b", text: "eggs"}]
	showFooter: false
}

tree: {
	type: "app"
	attrs: title: "${state.title}"
	children: [{
		type: "list"
		children: [{
			each: "${state.items}"
			key:  "${item.id}"
			type: "item"
			attrs: text: "${item.text}"
		}]
	}, {
		type: "footer"
		when: "${state.showFooter}"
	}]
}
`

const duplicateCUE = `
package dup

state: rows: [{id: "x"}, {id: "x"}]

tree: {
	type: "list"
	children: [{
		each: "${state.rows}"
		key:  "${item.id}"
		type: "row"
	}]
}
`

// writeTree writes src as name.cue in a fresh directory and returns its path.
func writeTree(t *testing.T, name, src string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name+".cue")
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))
	return path
}

// execute runs cmd with args and returns stdout and stderr.
func execute(cmd *cobra.Command, args ...string) (string, string, error) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}
