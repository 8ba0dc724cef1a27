// Package main is the entry point for the ineqmx CLI.
package main

import (
	"os"

	"ineqmx/cmd/ineqmx/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
