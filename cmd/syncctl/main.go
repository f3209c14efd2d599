// Package main is the entry point for syncctl, the operator CLI for the
// inventory synchronizer.
package main

import (
	"invsync/cmd/syncctl/cmd"
	"os"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
