// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/holomush/canvas/internal/control"
	"github.com/holomush/canvas/internal/plugin"
)

// HostStatus holds the status information for a host process.
type HostStatus struct {
	Running       bool                `json:"running"`
	Health        string              `json:"health,omitempty"`
	InstanceID    string              `json:"instance_id,omitempty"`
	PID           int                 `json:"pid,omitempty"`
	UptimeSeconds int64               `json:"uptime_seconds,omitempty"`
	Theme         string              `json:"theme,omitempty"`
	Plugins       []plugin.PluginInfo `json:"plugins,omitempty"`
	Error         string              `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	jsonOutput bool
}

func newStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show status of a running canvas host",
		Long:  `Show the health of a running canvas host and the plugins connected to it.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg)
		},
	}

	addControlFlag(cmd)
	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")

	return cmd
}

func runStatus(cmd *cobra.Command, cfg *statusConfig) error {
	client, err := controlClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), clientTimeout)
	defer cancel()

	status := queryHostStatus(ctx, client)

	var output string
	if cfg.jsonOutput {
		output, err = formatStatusJSON(status)
		if err != nil {
			return fmt.Errorf("failed to format JSON: %w", err)
		}
	} else {
		output = formatStatusTable(status, time.Now())
	}

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), output)
	return nil
}

// queryHostStatus asks the control socket for health and status. A host
// that answers health but not status is still reported as running.
func queryHostStatus(ctx context.Context, client *control.Client) HostStatus {
	var status HostStatus

	health, err := client.Health(ctx)
	if err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}
	status.Running = true
	status.Health = health.Status

	resp, err := client.Status(ctx)
	if err != nil {
		return status
	}
	status.Running = resp.Running
	status.InstanceID = resp.InstanceID
	status.PID = resp.PID
	status.UptimeSeconds = resp.UptimeSeconds
	status.Theme = resp.Theme
	status.Plugins = resp.Plugins
	return status
}

// formatStatusTable formats the status as a human-readable table.
func formatStatusTable(status HostStatus, now time.Time) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "HOST\tSTATUS\tHEALTH\tPID\tUPTIME\tTHEME")
	_, _ = fmt.Fprintln(w, "----\t------\t------\t---\t------\t-----")
	if !status.Running {
		reason := "not running"
		if status.Error != "" {
			reason = status.Error
		}
		_, _ = fmt.Fprintf(w, "canvas\tstopped\t-\t-\t-\t%s\n", reason)
		_ = w.Flush()
		return buf.String()
	}
	_, _ = fmt.Fprintf(w, "canvas\trunning\t%s\t%d\t%s\t%s\n",
		status.Health, status.PID, formatUptime(status.UptimeSeconds), status.Theme)

	_, _ = fmt.Fprintln(w)
	if len(status.Plugins) == 0 {
		_, _ = fmt.Fprintln(w, "no plugins connected")
		_ = w.Flush()
		return buf.String()
	}
	_, _ = fmt.Fprintln(w, "PLUGIN\tPID\tCONNECTED\tVIEW")
	_, _ = fmt.Fprintln(w, "------\t---\t---------\t----")
	for _, p := range status.Plugins {
		pid := "-"
		if p.PID > 0 {
			pid = fmt.Sprint(p.PID)
		}
		hasView := "no"
		if p.HasView {
			hasView = "yes"
		}
		connected := formatUptime(int64(now.Sub(p.ConnectedAt).Seconds()))
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s ago\t%s\n", p.ID, pid, connected, hasView)
	}

	_ = w.Flush()
	return buf.String()
}

// formatStatusJSON formats the status as JSON.
func formatStatusJSON(status HostStatus) (string, error) {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal status: %w", err)
	}
	return string(data), nil
}

// formatUptime formats seconds into a human-readable duration.
func formatUptime(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	if seconds < 3600 {
		return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}
