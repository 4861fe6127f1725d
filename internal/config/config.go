// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads canvas host configuration from defaults, an
// optional YAML file, and command-line flags, in that order of precedence.
package config

import (
	"os"
	"slices"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/canvas/internal/plugin"
	"github.com/holomush/canvas/internal/xdg"
	"github.com/holomush/canvas/pkg/view"
	"github.com/holomush/canvas/pkg/wire"
)

// Config is the host configuration.
type Config struct {
	SocketPath        string        `koanf:"socket_path" json:"socket_path,omitempty" jsonschema:"description=Plugin socket path; defaults to the XDG runtime directory"`
	ControlSocket     string        `koanf:"control_socket" json:"control_socket,omitempty" jsonschema:"description=Control socket path; defaults to the XDG runtime directory"`
	PollInterval      time.Duration `koanf:"poll_interval" json:"poll_interval,omitempty" jsonschema:"description=Longest wait for an outbound event between liveness probes"`
	ReplyTimeout      time.Duration `koanf:"reply_timeout" json:"reply_timeout,omitempty" jsonschema:"description=Bound on every probe and event round trip"`
	OutboundQueueSize int           `koanf:"outbound_queue_size" json:"outbound_queue_size,omitempty" jsonschema:"minimum=1,description=Capacity of each plugin's outbound event queue"`
	MaxFrameSize      int           `koanf:"max_frame_size" json:"max_frame_size,omitempty" jsonschema:"minimum=1,description=Largest accepted frame payload in bytes"`
	RenderInterval    time.Duration `koanf:"render_interval" json:"render_interval,omitempty" jsonschema:"description=Period of render requests broadcast to every plugin; zero disables"`
	Theme             string        `koanf:"theme" json:"theme,omitempty" jsonschema:"enum=light,enum=dark,description=Host theme pushed to plugins"`
	MetricsAddr       string        `koanf:"metrics_addr" json:"metrics_addr,omitempty" jsonschema:"description=Address of the metrics and health HTTP server; empty disables"`
	LogFormat         string        `koanf:"log_format" json:"log_format,omitempty" jsonschema:"enum=json,enum=text"`
	LogLevel          string        `koanf:"log_level" json:"log_level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// Default returns the built-in configuration. Socket paths are left empty
// and resolved by Resolve.
func Default() Config {
	return Config{
		PollInterval:      plugin.DefaultPollInterval,
		ReplyTimeout:      plugin.DefaultReplyTimeout,
		OutboundQueueSize: plugin.DefaultQueueSize,
		MaxFrameSize:      wire.DefaultMaxFrameSize,
		Theme:             view.DefaultTheme,
		MetricsAddr:       "127.0.0.1:9464",
		LogFormat:         "json",
		LogLevel:          "info",
	}
}

// RegisterFlags adds a flag for every field to fs, with defaults from
// Default.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("socket-path", d.SocketPath, "plugin socket path")
	fs.String("control-socket", d.ControlSocket, "control socket path")
	fs.Duration("poll-interval", d.PollInterval, "wait for outbound events between liveness probes")
	fs.Duration("reply-timeout", d.ReplyTimeout, "timeout for each probe, write, and reply read")
	fs.Int("outbound-queue-size", d.OutboundQueueSize, "per-plugin outbound queue capacity")
	fs.Int("max-frame-size", d.MaxFrameSize, "largest accepted frame payload in bytes")
	fs.Duration("render-interval", d.RenderInterval, "period of render broadcasts (0 disables)")
	fs.String("theme", d.Theme, "host theme ("+strings.Join(view.ThemeNames(), ", ")+")")
	fs.String("metrics-addr", d.MetricsAddr, "metrics server address (empty disables)")
	fs.String("log-format", d.LogFormat, "log format (json, text)")
	fs.String("log-level", d.LogLevel, "log level (debug, info, warn, error)")
}

// Load builds a Config. path names a YAML file and may be empty; a missing
// file at the default location is not an error. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		if p, err := xdg.ConfigFile(); err == nil {
			path = p
		}
	}
	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
		switch {
		case err == nil:
			if err := ValidateSchema(data); err != nil {
				return nil, oops.In("config").Code("INVALID_CONFIG").With("path", path).Wrap(err)
			}
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, oops.In("config").Code("INVALID_CONFIG").With("path", path).Wrapf(err, "load config file")
			}
		case explicit || !os.IsNotExist(err):
			return nil, oops.In("config").With("path", path).Wrapf(err, "read config file")
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.In("config").Wrapf(err, "load flags")
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.In("config").Code("INVALID_CONFIG").Wrapf(err, "decode config")
	}
	if err := cfg.Resolve(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Resolve fills empty socket paths with their XDG defaults.
func (c *Config) Resolve() error {
	if c.SocketPath == "" {
		p, err := xdg.SocketPath()
		if err != nil {
			return oops.In("config").Wrapf(err, "resolve plugin socket path")
		}
		c.SocketPath = p
	}
	if c.ControlSocket == "" {
		p, err := xdg.ControlSocketPath()
		if err != nil {
			return oops.In("config").Wrapf(err, "resolve control socket path")
		}
		c.ControlSocket = p
	}
	return nil
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	errb := oops.In("config").Code("INVALID_CONFIG")
	switch {
	case c.PollInterval <= 0:
		return errb.With("field", "poll_interval").Errorf("poll_interval must be positive, got %s", c.PollInterval)
	case c.ReplyTimeout <= 0:
		return errb.With("field", "reply_timeout").Errorf("reply_timeout must be positive, got %s", c.ReplyTimeout)
	case c.OutboundQueueSize < 1:
		return errb.With("field", "outbound_queue_size").Errorf("outbound_queue_size must be at least 1, got %d", c.OutboundQueueSize)
	case c.MaxFrameSize < 1:
		return errb.With("field", "max_frame_size").Errorf("max_frame_size must be at least 1, got %d", c.MaxFrameSize)
	case c.RenderInterval < 0:
		return errb.With("field", "render_interval").Errorf("render_interval must not be negative, got %s", c.RenderInterval)
	case !slices.Contains(view.ThemeNames(), c.Theme):
		return errb.With("field", "theme").Errorf("unknown theme %q", c.Theme)
	case c.LogFormat != "json" && c.LogFormat != "text":
		return errb.With("field", "log_format").Errorf("log_format must be json or text, got %q", c.LogFormat)
	case !slices.Contains([]string{"debug", "info", "warn", "error"}, c.LogLevel):
		return errb.With("field", "log_level").Errorf("unknown log_level %q", c.LogLevel)
	case c.SocketPath != "" && c.SocketPath == c.ControlSocket:
		return errb.With("field", "control_socket").Errorf("control_socket must differ from socket_path")
	}
	return nil
}

// ExchangeConfig returns the per-connection settings for the plugin
// runtime.
func (c *Config) ExchangeConfig() plugin.ExchangeConfig {
	return plugin.ExchangeConfig{
		PollInterval: c.PollInterval,
		ReplyTimeout: c.ReplyTimeout,
		QueueSize:    c.OutboundQueueSize,
		MaxFrameSize: c.MaxFrameSize,
	}
}
