// Package cmd defines the CLI commands for the cnr-fetcher executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/config"
	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/logging"
)

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "cnr-fetcher",
		Short: "Acquires eCourts case records and order documents by CNR.",
		Long: `cnr-fetcher drives the eCourts portal with a real browser, solves the
CAPTCHA, extracts the case record and stores every listed order PDF.
Run "serve" for the HTTP API and worker pool, or "fetch" for a single CNR.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")

	load := func() (config.Config, *zap.Logger, error) {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return config.Config{}, nil, fmt.Errorf("load config: %w", err)
		}
		logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
		if err != nil {
			return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
		}
		zap.ReplaceGlobals(logger)
		return cfg, logger, nil
	}

	cmd.AddCommand(newServeCmd(load))
	cmd.AddCommand(newFetchCmd(load))
	return cmd
}

type loader func() (config.Config, *zap.Logger, error)

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
