package main

import (
	"fmt"
	"os"

	"github.com/tphakala/foresight-go/cmd"
	"github.com/tphakala/foresight-go/internal/conf"
	"github.com/tphakala/foresight-go/internal/logging"
)

func main() {
	logging.Init()

	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
