// Package main is the entry point for the videovoice application.
package main

import (
	"os"

	"github.com/videovoice/videovoice/cmd/videovoice/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
