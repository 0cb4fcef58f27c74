// Package main is the entry point for the nimbus client.
package main

import (
	"os"

	"github.com/jmylchreest/nimbus/cmd/nimbus/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
