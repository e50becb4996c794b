package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/toolshots/internal/app"
	"github.com/JakeFAU/toolshots/internal/config"
	"github.com/JakeFAU/toolshots/internal/screenshot"
)

// runner is the slice of *app.App the sync command uses.
type runner interface {
	Run(ctx context.Context) (screenshot.Summary, error)
	Close() error
}

// newRunner is the application factory. It's a variable so tests can replace it.
var newRunner = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (runner, error) {
	return app.New(ctx, cfg, logger)
}

// newSyncCmd creates the 'sync' subcommand, one full screenshot synchronization.
func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Capture, upload and record screenshots for every catalogued tool",
		Long: `Fetches the tool catalogs, captures stale or missing screenshots,
uploads them to the configured CDN and merges the results into the manifest.
Exits non-zero before any network activity when upload credentials are missing.`,
		Args: cobra.NoArgs,

		PreRunE: func(cmd *cobra.Command, _ []string) error {
			st, err := resolveState(cmd.Context())
			if err != nil {
				return err
			}
			return st.cfg.Validate()
		},
		RunE: runSyncCommand,
	}
}

func runSyncCommand(cmd *cobra.Command, _ []string) error {
	st, err := resolveState(cmd.Context())
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r, err := newRunner(ctx, st.cfg, st.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer func() {
		if cerr := r.Close(); cerr != nil {
			st.logger.Warn("failed to close services", zap.Error(cerr))
		}
	}()

	summary, err := r.Run(ctx)
	if err != nil {
		var fetchErr *screenshot.FetchError
		if errors.As(err, &fetchErr) {
			return fmt.Errorf("catalog unavailable, nothing captured: %w", err)
		}
		return fmt.Errorf("sync: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(),
		"run %s: %d captured, %d fresh, %d failed, %d uploaded, %d upload failures\n",
		summary.RunID, summary.Captured, summary.Skipped, summary.Failed,
		summary.Uploaded, summary.UploadFailed,
	)
	return nil
}
