// Package main provides the entry point for the replicator application
package main

import (
	"fmt"
	"os"

	"github.com/BrianMcGrathOtised/Replicator-sub001/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
