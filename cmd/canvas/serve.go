// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/holomush/canvas/internal/config"
	"github.com/holomush/canvas/internal/host"
	"github.com/holomush/canvas/internal/logging"
)

// serveConfig holds flags of the serve command that are not part of the
// host configuration.
type serveConfig struct {
	draw  bool
	color bool
}

func newServeCmd() *cobra.Command {
	sc := &serveConfig{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the canvas host",
		Long: `Run the canvas host. It listens for plugin connections on a Unix
socket, keeps the latest view of every plugin, and serves the control
socket used by the status, views, press, render, and stop commands.

Settings come from defaults, then the config file, then flags.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, sc)
		},
	}

	config.RegisterFlags(cmd.Flags())
	cmd.Flags().BoolVar(&sc.draw, "draw", false, "redraw the composed surface to stdout after every change")
	cmd.Flags().BoolVar(&sc.color, "color", false, "draw with ANSI colors")

	return cmd
}

func runServe(cmd *cobra.Command, sc *serveConfig) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.SetDefault("canvas", version, cfg.LogFormat, logging.ParseLevel(cfg.LogLevel))

	var opts []host.Option
	if sc.draw {
		opts = append(opts, host.WithDrawWriter(cmd.OutOrStdout(), sc.color))
	}
	h, err := host.New(cfg, opts...)
	if err != nil {
		return fmt.Errorf("create host: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := h.Run(ctx); err != nil {
		return fmt.Errorf("host: %w", err)
	}
	return nil
}
