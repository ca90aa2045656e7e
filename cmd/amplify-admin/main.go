// Package main is the entry point for the Amplify storage admin CLI.
// It provides operator commands for users, ledger maintenance and provider status.
package main

import (
	"fmt"
	"os"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
