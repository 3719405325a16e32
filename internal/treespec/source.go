package treespec

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// CompileString compiles CUE source. filename is used in error positions.
func CompileString(src, filename string) (*Program, error) {
	ctx := cuecontext.New()
	return Compile(ctx.CompileString(src, cue.Filename(filename)))
}

// CompileBytes compiles CUE source held in memory.
func CompileBytes(src []byte, filename string) (*Program, error) {
	ctx := cuecontext.New()
	return Compile(ctx.CompileBytes(src, cue.Filename(filename)))
}

// CompileFile compiles a single CUE file.
func CompileFile(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tree file: %w", err)
	}
	return CompileBytes(data, path)
}
