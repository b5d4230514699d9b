// Package main provides the corebench load-generator CLI: a driver that
// spins up a runtime.Runtime and fans concurrent workers out against it to
// exercise both timestamp protocols under contention.
package main

import (
	"fmt"
	"os"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes the CLI and returns an exit code. Separated from main so it
// can be driven from tests without an os.Exit.
func run(args []string) int {
	cfg, err := parseFlags(args)
	if err != nil {
		if err == errHelpRequested {
			return 0
		}
		fmt.Fprintln(os.Stderr, "corebench:", err)
		return 1
	}

	report, err := runBenchmark(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "corebench:", err)
		return 1
	}

	report.WriteTo(os.Stdout)
	return 0
}
