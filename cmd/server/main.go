// Package main is the entry point for discordlitesync. It serves the entity resolution and sync
// engine, runs migrations, and resolves single entities from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/discordlitesync/internal/config"
	"github.com/parsascontentcorner/discordlitesync/pkg/logger"
)

// rootOptions holds global flags and the state every subcommand shares
type rootOptions struct {
	configFile string

	cfg *config.Config
	log *zap.Logger
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "discordlitesync",
		Short:         "Tiered Discord entity resolution and sync engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if opts.configFile != "" {
				if err := os.Setenv("CONFIG_FILE", opts.configFile); err != nil {
					return fmt.Errorf("failed to set CONFIG_FILE: %w", err)
				}
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			log, err := logger.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}

			opts.cfg = cfg
			opts.log = log
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if opts.log != nil {
				// Sync errors on stdout/stderr are expected for non-syncable descriptors
				_ = opts.log.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "YAML configuration file (overrides CONFIG_FILE)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newResolveCommand(opts))

	return cmd
}
