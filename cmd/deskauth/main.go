// Package main is the entry point for the deskauth CLI.
package main

import (
	"os"

	"github.com/stacklok/deskauth/cmd/deskauth/app"
	"github.com/stacklok/deskauth/pkg/logger"
)

func main() {
	// Initialize the logger
	logger.Initialize()

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
