package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/cnr"
	"github.com/JakeFAU/ecourts-cnr-fetcher/internal/server"
)

func newFetchCmd(load loader) *cobra.Command {
	var rawCutoff string

	cmd := &cobra.Command{
		Use:   "fetch <CNR>",
		Short: "Acquires one case record and prints it as JSON",
		Example: `  cnr-fetcher fetch ABCD1234567890EF
  cnr-fetcher fetch ABCD1234567890EF --cutoff "30th January 2025"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := parseRequest(args[0], rawCutoff)
			if err != nil {
				return err
			}
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck // best-effort flush

			app, err := server.Build(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("build application: %w", err)
			}

			rec, err := fetchOne(cmd.Context(), app, req)
			if closeErr := app.Close(); closeErr != nil {
				logger.Warn("close application", zap.Error(closeErr))
			}
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		},
	}
	cmd.Flags().StringVar(&rawCutoff, "cutoff", "", `keep history and orders on or after this date, e.g. "30th January 2025"`)
	return cmd
}

func parseRequest(rawRef, rawCutoff string) (cnr.Request, error) {
	ref, err := cnr.ParseReference(rawRef)
	if err != nil {
		return cnr.Request{}, err
	}
	cutoff, err := cnr.ParseCutoff(rawCutoff)
	if err != nil {
		return cnr.Request{}, err
	}
	return cnr.Request{Reference: ref, Cutoff: cutoff}, nil
}

// fetchOne runs the worker pool just long enough to serve req.
func fetchOne(ctx context.Context, app *server.App, req cnr.Request) (cnr.CaseRecord, error) {
	poolCtx, stopPool := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(poolCtx)
	g.Go(func() error {
		app.Serve(gctx)
		return nil
	})

	rec, err := app.Acquirer().Acquire(ctx, req)
	stopPool()
	if waitErr := g.Wait(); waitErr != nil {
		err = errors.Join(err, waitErr)
	}
	if err != nil {
		return cnr.CaseRecord{}, fmt.Errorf("fetch %s: %w", req.Reference, err)
	}
	return rec, nil
}
