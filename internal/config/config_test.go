// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/canvas/internal/config"
	"github.com/holomush/canvas/pkg/errutil"
)

// isolate points every XDG directory at a fresh temporary tree.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_RUNTIME_DIR", filepath.Join(dir, "run"))
	return dir
}

func writeFile(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "canvas.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func flags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	dir := isolate(t)

	cfg, err := config.Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 5*time.Second, cfg.ReplyTimeout)
	assert.Equal(t, 64, cfg.OutboundQueueSize)
	assert.Equal(t, "light", cfg.Theme)
	assert.Equal(t, filepath.Join(dir, "run", "canvas", "canvas.sock"), cfg.SocketPath)
	assert.Equal(t, filepath.Join(dir, "run", "canvas", "control.sock"), cfg.ControlSocket)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := isolate(t)
	path := writeFile(t, dir, `
socket_path: /tmp/c.sock
poll_interval: 100ms
outbound_queue_size: 8
theme: dark
`)

	cfg, err := config.Load(path, flags(t))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/c.sock", cfg.SocketPath)
	assert.Equal(t, 100*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 8, cfg.OutboundQueueSize)
	assert.Equal(t, "dark", cfg.Theme)
	assert.Equal(t, 5*time.Second, cfg.ReplyTimeout, "unset keys keep defaults")
}

func TestLoad_FlagsOverrideFile(t *testing.T) {
	dir := isolate(t)
	path := writeFile(t, dir, "theme: dark\npoll_interval: 100ms\n")

	cfg, err := config.Load(path, flags(t, "--theme=light", "--reply-timeout=2s"))
	require.NoError(t, err)

	assert.Equal(t, "light", cfg.Theme)
	assert.Equal(t, 2*time.Second, cfg.ReplyTimeout)
	assert.Equal(t, 100*time.Millisecond, cfg.PollInterval, "unchanged flags do not clobber the file")
}

func TestLoad_DefaultFileLocation(t *testing.T) {
	dir := isolate(t)
	confDir := filepath.Join(dir, "config", "canvas")
	require.NoError(t, os.MkdirAll(confDir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(confDir, "config.yaml"), []byte("theme: dark\n"), 0o600))

	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "dark", cfg.Theme)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	dir := isolate(t)

	_, err := config.Load(filepath.Join(dir, "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestLoad_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "unknown key", body: "sockets: 3\n"},
		{name: "bad duration", body: "poll_interval: soon\n"},
		{name: "unknown theme", body: "theme: neon\n"},
		{name: "queue too small", body: "outbound_queue_size: 0\n"},
		{name: "wrong type", body: "max_frame_size: big\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := isolate(t)
			_, err := config.Load(writeFile(t, dir, tt.body), nil)
			errutil.AssertErrorCode(t, err, "INVALID_CONFIG")
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		field  string
	}{
		{name: "poll interval", mutate: func(c *config.Config) { c.PollInterval = 0 }, field: "poll_interval"},
		{name: "reply timeout", mutate: func(c *config.Config) { c.ReplyTimeout = -time.Second }, field: "reply_timeout"},
		{name: "queue size", mutate: func(c *config.Config) { c.OutboundQueueSize = 0 }, field: "outbound_queue_size"},
		{name: "frame size", mutate: func(c *config.Config) { c.MaxFrameSize = 0 }, field: "max_frame_size"},
		{name: "render interval", mutate: func(c *config.Config) { c.RenderInterval = -1 }, field: "render_interval"},
		{name: "theme", mutate: func(c *config.Config) { c.Theme = "neon" }, field: "theme"},
		{name: "log format", mutate: func(c *config.Config) { c.LogFormat = "xml" }, field: "log_format"},
		{name: "log level", mutate: func(c *config.Config) { c.LogLevel = "loud" }, field: "log_level"},
		{name: "same sockets", mutate: func(c *config.Config) {
			c.SocketPath = "/tmp/x.sock"
			c.ControlSocket = "/tmp/x.sock"
		}, field: "control_socket"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			errutil.AssertErrorCode(t, err, "INVALID_CONFIG")
			errutil.AssertErrorContext(t, err, "field", tt.field)
		})
	}

	cfg := config.Default()
	assert.NoError(t, cfg.Validate())
}

func TestExchangeConfig(t *testing.T) {
	cfg := config.Default()
	cfg.OutboundQueueSize = 3

	xc := cfg.ExchangeConfig()
	assert.Equal(t, 3, xc.QueueSize)
	assert.Equal(t, cfg.PollInterval, xc.PollInterval)
	assert.Equal(t, cfg.ReplyTimeout, xc.ReplyTimeout)
}

func TestGenerateSchema(t *testing.T) {
	data, err := config.GenerateSchema()
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(data, &schema))
	assert.Equal(t, config.SchemaID, schema["$id"])

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	for _, key := range []string{"socket_path", "poll_interval", "reply_timeout", "outbound_queue_size", "theme"} {
		assert.Contains(t, props, key)
	}
	poll, ok := props["poll_interval"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "string", poll["type"])
}

func TestValidateSchema_EmptyDocument(t *testing.T) {
	assert.NoError(t, config.ValidateSchema(nil))
	assert.NoError(t, config.ValidateSchema([]byte("# nothing\n")))
}

func TestFormatSchemaError(t *testing.T) {
	err := config.ValidateSchema([]byte("theme: neon\n"))
	require.Error(t, err)
	msg := config.FormatSchemaError(err)
	assert.True(t, strings.HasPrefix(msg, "at '/theme': "), "got %q", msg)
	assert.NotContains(t, msg, "validation failed")
	assert.NotContains(t, msg, "file://")
	assert.Empty(t, config.FormatSchemaError(nil))
}

func TestFormatSchemaError_ListsEveryViolation(t *testing.T) {
	err := config.ValidateSchema([]byte("theme: neon\npoll_interval: soon\n"))
	require.Error(t, err)
	msg := config.FormatSchemaError(err)
	assert.Contains(t, msg, "at '/theme'")
	assert.Contains(t, msg, "at '/poll_interval'")
}

func TestFormatSchemaError_PassesOtherErrorsThrough(t *testing.T) {
	err := config.ValidateSchema([]byte("theme: [unterminated\n"))
	require.Error(t, err)
	assert.Equal(t, err.Error(), config.FormatSchemaError(err))
}
