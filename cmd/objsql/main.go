// Package main is the entry point for the objsql CLI.
package main

import (
	"os"

	"github.com/leapstack-labs/objsql/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
