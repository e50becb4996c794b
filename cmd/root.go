// Package cmd defines and implements the CLI commands for the toolshots executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/toolshots/internal/config"
	"github.com/JakeFAU/toolshots/internal/logging"
)

// stateKeyType is the key for storing loaded settings in the command context.
type stateKeyType string

const stateKey stateKeyType = "state"

// state is what PersistentPreRunE hands to subcommands.
type state struct {
	cfg    config.Config
	logger *zap.Logger
}

type rootFlags struct {
	cfgFile string
	dev     bool
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var flags rootFlags
	cmd := &cobra.Command{
		Use:   "toolshots",
		Short: "Keeps screenshots of every catalogued analysis tool fresh on the CDN.",
		Long: `toolshots downloads the static and dynamic analysis tool catalogs,
captures a screenshot of each tool's homepage, repository and linked resources,
publishes the images to a CDN and records them in screenshots.json.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Loads configuration and the logger before any subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.cfgFile)
			if err != nil {
				return err
			}
			if flags.dev {
				cfg.Logging.Development = true
			}
			logger, err := logging.New(logging.Options{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(context.WithValue(ctx, stateKey, &state{cfg: cfg, logger: logger}))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flags.cfgFile, "config", "", "config file (YAML, TOML or JSON)")
	cmd.PersistentFlags().BoolVar(&flags.dev, "dev", false, "human-readable development logging")

	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newClassifyCmd())
	return cmd
}

func resolveState(ctx context.Context) (*state, error) {
	st, ok := ctx.Value(stateKey).(*state)
	if !ok || st == nil {
		return nil, errors.New("configuration not loaded")
	}
	return st, nil
}

// Execute is the main entry point. Any command error is logged and exits non-zero.
func Execute() {
	executed, err := newRootCmd().ExecuteC()
	if err == nil {
		return
	}
	logger := fallbackLogger()
	if executed != nil && executed.Context() != nil {
		if st, stErr := resolveState(executed.Context()); stErr == nil {
			logger = st.logger
		}
	}
	logger.Error("command failed", zap.Error(err))
	_ = logger.Sync()
	os.Exit(1)
}

// fallbackLogger is used when configuration never loaded.
func fallbackLogger() *zap.Logger {
	logger, err := logging.New(logging.Options{})
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
