// Package main is the entry point for the robotvd application.
package main

import (
	"os"

	"github.com/pipelka/robotv-go/cmd/robotvd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
