package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/datallboy/modfetch/internal/infra/config"
	"github.com/datallboy/modfetch/internal/infra/logger"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "modfetch",
		Short:         "Resumable, rate-limit aware downloader for mod hosting sites",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default config.yaml)")

	root.AddCommand(
		newServeCmd(),
		newFetchCmd(),
		newAddCmd(),
		newListCmd(),
		newPauseCmd(),
		newResumeCmd(),
		newRemoveCmd(),
		newClearCmd(),
		newQuotaCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads config and opens the log file. Client commands keep the
// log off stdout so their output stays clean.
func setup(includeStdout bool) (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("config error: %w", err)
	}

	log, err := logger.New(cfg.Log.Path, logger.ParseLevel(cfg.Log.Level), includeStdout && cfg.Log.IncludeStdout)
	if err != nil {
		return nil, nil, fmt.Errorf("could not open log file: %w", err)
	}

	return cfg, log, nil
}
