// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/holomush/canvas/internal/plugin"
)

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		seconds int64
		want    string
	}{
		{-3, "0s"},
		{0, "0s"},
		{59, "59s"},
		{60, "1m 0s"},
		{3599, "59m 59s"},
		{3600, "1h 0m"},
		{90061, "25h 1m"},
	}
	for _, tt := range tests {
		if got := formatUptime(tt.seconds); got != tt.want {
			t.Errorf("formatUptime(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestFormatStatusTable_Stopped(t *testing.T) {
	out := formatStatusTable(HostStatus{Error: "failed to connect: refused"}, time.Now())

	if !strings.Contains(out, "stopped") {
		t.Errorf("table missing stopped state:\n%s", out)
	}
	if !strings.Contains(out, "failed to connect") {
		t.Errorf("table missing error reason:\n%s", out)
	}
}

func TestFormatStatusTable_RunningWithPlugins(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	status := HostStatus{
		Running:       true,
		Health:        "healthy",
		PID:           4242,
		UptimeSeconds: 125,
		Theme:         "dark",
		Plugins: []plugin.PluginInfo{
			{ID: 0, PID: 100, ConnectedAt: now.Add(-90 * time.Second), HasView: true},
			{ID: 1, ConnectedAt: now.Add(-5 * time.Second)},
		},
	}

	out := formatStatusTable(status, now)
	for _, want := range []string{"running", "healthy", "4242", "2m 5s", "dark", "PLUGIN", "1m 30s ago", "5s ago", "yes", "no"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestFormatStatusTable_NoPlugins(t *testing.T) {
	out := formatStatusTable(HostStatus{Running: true, Health: "healthy"}, time.Now())
	if !strings.Contains(out, "no plugins connected") {
		t.Errorf("table missing empty plugin notice:\n%s", out)
	}
}

func TestFormatStatusJSON(t *testing.T) {
	out, err := formatStatusJSON(HostStatus{Running: true, PID: 7, Theme: "light"})
	if err != nil {
		t.Fatalf("formatStatusJSON() error = %v", err)
	}

	var decoded HostStatus
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if !decoded.Running || decoded.PID != 7 || decoded.Theme != "light" {
		t.Errorf("decoded = %+v", decoded)
	}
}
