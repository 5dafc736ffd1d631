package main

import (
	"fmt"
	"os"

	"github.com/mkallio/herbid-go/cmd"
	"github.com/mkallio/herbid-go/internal/conf"
	"github.com/mkallio/herbid-go/internal/logging"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	logging.Init()

	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}
	settings.Version = version

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "command error: %v\n", err)
		os.Exit(1)
	}
}
