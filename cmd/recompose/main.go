// Command recompose composes CUE-declared trees and keeps them up to date
// as their state changes.
package main

import (
	"os"

	"github.com/roach88/recompose/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
