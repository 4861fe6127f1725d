// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/canvas/internal/config"
	"github.com/holomush/canvas/internal/host"
	"github.com/holomush/canvas/pkg/pluginsdk"
	"github.com/holomush/canvas/pkg/view"
)

type toggle struct{ on bool }

func (a *toggle) Update(msg []byte) ([]byte, error) {
	if string(msg) == "flip" {
		a.on = !a.on
	}
	return nil, nil
}

func (a *toggle) View(view.Theme) view.Node {
	state := "off"
	if a.on {
		state = "on"
	}
	return view.Row(1, view.Text("light is "+state), view.Button(view.Text("flip"), []byte("flip")))
}

// startTestHost runs a host with one connected toggle plugin and returns
// its control socket path.
func startTestHost(t *testing.T) (string, <-chan struct{}) {
	t.Helper()
	dir, err := os.MkdirTemp("", "cli")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	cfg := config.Default()
	cfg.SocketPath = filepath.Join(dir, "canvas.sock")
	cfg.ControlSocket = filepath.Join(dir, "control.sock")
	cfg.PollInterval = 10 * time.Millisecond
	cfg.MetricsAddr = ""

	h, err := host.New(&cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = h.Run(ctx)
	}()
	pluginDone := make(chan struct{})
	go func() {
		defer close(pluginDone)
		_ = pluginsdk.Run(ctx, &toggle{}, pluginsdk.WithSocketPath(cfg.SocketPath))
	}()
	t.Cleanup(func() {
		cancel()
		<-pluginDone
		<-stopped
	})

	require.Eventually(t, func() bool { return h.Registry().Len() == 1 && len(h.Registry().Views()) == 1 },
		2*time.Second, 10*time.Millisecond)
	return cfg.ControlSocket, stopped
}

func TestCLI_StatusAgainstRunningHost(t *testing.T) {
	sock, _ := startTestHost(t)

	out, err := execute(t, "status", "--control-socket", sock)
	require.NoError(t, err)
	assert.Contains(t, out, "running")
	assert.Contains(t, out, "light")

	out, err = execute(t, "status", "--json", "--control-socket", sock)
	require.NoError(t, err)
	var status HostStatus
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.True(t, status.Running)
	require.Len(t, status.Plugins, 1)
	assert.True(t, status.Plugins[0].HasView)
}

func TestCLI_StatusWithoutHost(t *testing.T) {
	out, err := execute(t, "status", "--control-socket", filepath.Join(t.TempDir(), "none.sock"))
	require.NoError(t, err)
	assert.Contains(t, out, "stopped")
}

func TestCLI_ViewsAndPress(t *testing.T) {
	sock, _ := startTestHost(t)

	out, err := execute(t, "views", "--paths", "--control-socket", sock)
	require.NoError(t, err)
	assert.Contains(t, out, "light is off")
	assert.Contains(t, out, "(1)", "button labelled with its path")

	out, err = execute(t, "press", "0", "1", "--control-socket", sock)
	require.NoError(t, err)
	assert.Contains(t, out, "pressed")

	assert.Eventually(t, func() bool {
		out, err := execute(t, "views", "--control-socket", sock)
		return err == nil && strings.Contains(out, "light is on")
	}, 2*time.Second, 10*time.Millisecond)

	_, err = execute(t, "press", "0", "0", "--control-socket", sock)
	assert.Error(t, err, "text node is not pressable")

	_, err = execute(t, "press", "9", "1", "--control-socket", sock)
	assert.Error(t, err, "unknown plugin")
}

func TestCLI_RenderAndStop(t *testing.T) {
	sock, stopped := startTestHost(t)

	out, err := execute(t, "render", "--control-socket", sock)
	require.NoError(t, err)
	assert.Contains(t, out, "render requested")

	out, err = execute(t, "stop", "--control-socket", sock)
	require.NoError(t, err)
	assert.Contains(t, out, "shutdown initiated")

	select {
	case <-stopped:
	case <-time.After(3 * time.Second):
		t.Fatal("host did not stop")
	}
}
