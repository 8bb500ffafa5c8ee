// Package main is the entry point for the voxsub application.
package main

import (
	"os"

	"github.com/voxsub/voxsub/cmd/voxsub/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
