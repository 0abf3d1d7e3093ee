// Package main is the entry point for the hivemind agent.
package main

import (
	"fmt"
	"os"

	"github.com/bargom/hivemind/cmd/hivemind/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
