// Command lfbench drives pkg/bwtree and pkg/skiplist under concurrent
// load, the Go-native counterpart to the source repository's main.cpp
// and test/ drivers (spec.md section 6: "no CLI surface is part of the
// core", so this binary lives outside the importable packages).
package main

import (
	"fmt"
	"os"

	"lfindex/cmd/lfbench/internal/runner"
)

func main() {
	if err := runner.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
