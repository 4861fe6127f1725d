// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/holomush/canvas/internal/config"
	"github.com/holomush/canvas/internal/control"
	"github.com/holomush/canvas/internal/surface"
)

// clientTimeout bounds every control socket request.
const clientTimeout = 5 * time.Second

// controlClient returns a client for the control socket named by
// --control-socket, or by the configuration when the flag is unset.
func controlClient() (*control.Client, error) {
	path := controlSocket
	if path == "" {
		cfg, err := config.Load(configFile, nil)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		path = cfg.ControlSocket
	}
	return control.NewClient(path), nil
}

func withClient(cmd *cobra.Command, fn func(ctx context.Context, c *control.Client) error) error {
	client, err := controlClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), clientTimeout)
	defer cancel()
	return fn(ctx, client)
}

func printMessage(cmd *cobra.Command, resp control.MessageResponse) {
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
	if resp.Error != "" {
		cmd.PrintErrln("warning:", resp.Error)
	}
}

type viewsConfig struct {
	paths bool
	color bool
}

func newViewsCmd() *cobra.Command {
	vc := &viewsConfig{}
	cmd := &cobra.Command{
		Use:   "views",
		Short: "Print the composed surface of a running host",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, func(ctx context.Context, c *control.Client) error {
				out, err := c.Views(ctx, vc.paths, vc.color)
				if err != nil {
					return fmt.Errorf("fetch views: %w", err)
				}
				_, _ = fmt.Fprint(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
	addControlFlag(cmd)
	cmd.Flags().BoolVar(&vc.paths, "paths", false, "label buttons with the path to pass to press")
	cmd.Flags().BoolVar(&vc.color, "color", false, "render with ANSI colors")
	return cmd
}

func newPressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "press <plugin-id> <path>",
		Short: "Press a button in a plugin's view",
		Long: `Press the button at path in the view of the given plugin. The path
is a dotted list of child indexes from the root of the plugin's view,
as printed by "canvas views --paths".`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid plugin id %q", args[0])
			}
			path, err := surface.ParsePath(args[1])
			if err != nil {
				return fmt.Errorf("invalid path: %w", err)
			}
			return withClient(cmd, func(ctx context.Context, c *control.Client) error {
				resp, err := c.Press(ctx, id, path)
				if err != nil {
					return fmt.Errorf("press: %w", err)
				}
				printMessage(cmd, resp)
				return nil
			})
		},
	}
	addControlFlag(cmd)
	return cmd
}

func newRenderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Ask every plugin for a fresh view",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, func(ctx context.Context, c *control.Client) error {
				resp, err := c.Render(ctx)
				if err != nil {
					return fmt.Errorf("render: %w", err)
				}
				printMessage(cmd, resp)
				return nil
			})
		},
	}
	addControlFlag(cmd)
	return cmd
}

func newStopCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Shut down a running host",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, func(ctx context.Context, c *control.Client) error {
				resp, err := c.Shutdown(ctx)
				if err != nil {
					return fmt.Errorf("shutdown: %w", err)
				}
				printMessage(cmd, resp)
				return nil
			})
		},
	}
	addControlFlag(cmd)
	return cmd
}
