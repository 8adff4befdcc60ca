// Package main is the entry point for gatectl, the gate device agent and
// operator CLI.
package main

import (
	"os"

	"zlot-parking/cmd/gatectl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
