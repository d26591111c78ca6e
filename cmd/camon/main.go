// Package main is the entry point for camon.
package main

import (
	"os"

	"github.com/nsg/camon/cmd/camon/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
