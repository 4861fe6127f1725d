// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var (
	configFile    string
	controlSocket string
)

// NewRootCmd creates the root command for the canvas CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "canvas",
		Short: "canvas - a host for out-of-process UI plugins",
		Long: `canvas hosts UI plugins that run as separate processes and talk to
the host over a Unix socket. The host composes the view trees they
produce into one surface and routes button presses back to them.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newViewsCmd())
	cmd.AddCommand(newPressCmd())
	cmd.AddCommand(newRenderCmd())
	cmd.AddCommand(newStopCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// addControlFlag registers the --control-socket flag on client commands.
func addControlFlag(cmd *cobra.Command) {
	cmd.Flags().StringVar(&controlSocket, "control-socket", "", "control socket path (default from config)")
}
