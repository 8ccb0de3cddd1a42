// box is a single-process ptrace syscall-filtering sandbox.
//
// It runs an untrusted program under a syscall whitelist, a path-access
// policy, and CPU/wall-clock/memory limits, and reports the outcome as a
// structured meta file. It is meant to be invoked once per test case by a
// contest-grading evaluator.
package main

import (
	"fmt"
	"os"

	"box/cmd"
	"box/sandbox"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == sandbox.InsideArgvToken {
		sandbox.RunInside()
		return
	}

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "box: %v\n", err)
		os.Exit(2)
	}
}
