// Command capresearch serves the telco capability research API and offers
// maintenance subcommands against the configured store.
package main

import (
	"fmt"
	"os"
)

// Build information, set with -ldflags.
var (
	Version = "dev"
	Commit  = "none"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
