// Copyright 2024-2026 Aiku AI

// Command chatbox relays conversations between browser clients and threads
// in a Mattermost channel.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

type rootOptions struct {
	ConfigPath     string
	SaveConfig     bool
	GenerateConfig bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "chatbox",
		Short:         "Two-sided chat bridge between web clients and Mattermost",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", Tag, Commit, BuildTime),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.GenerateConfig {
				if err := writeExampleConfig(opts.ConfigPath); err != nil {
					return fmt.Errorf("failed to write example config: %w", err)
				}
				cmd.Printf("Wrote example config to %s\n", opts.ConfigPath)
				return nil
			}
			cfg, err := loadConfig(opts.ConfigPath, opts.SaveConfig)
			if err != nil {
				return err
			}
			log, err := cfg.Logging.Compile()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			log.Info().Str("version", Tag).Str("commit", Commit).Msg("Starting chatbox")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, *log)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "config.yaml", "path to the config file")
	cmd.Flags().BoolVar(&opts.SaveConfig, "save-config", false, "write the upgraded config back to the file")
	cmd.Flags().BoolVarP(&opts.GenerateConfig, "generate-example-config", "e", false, "save the example config to the config path and quit")

	return cmd
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
