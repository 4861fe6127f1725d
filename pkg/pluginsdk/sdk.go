// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package pluginsdk provides the runtime for canvas plugin processes.
//
// A plugin is an ordinary program that connects to the host's Unix socket,
// receives events, and answers each one with exactly one request: either a
// follow-up message for itself or a fresh view. This package hides the
// framing and the event loop behind the Application interface.
//
// Example usage:
//
//	package main
//
//	import (
//		"github.com/holomush/canvas/pkg/pluginsdk"
//		"github.com/holomush/canvas/pkg/view"
//	)
//
//	type Hello struct{}
//
//	func (Hello) Update([]byte) ([]byte, error) { return nil, nil }
//
//	func (Hello) View(view.Theme) view.Node { return view.Text("hello") }
//
//	func main() {
//		pluginsdk.Serve(Hello{})
//	}
package pluginsdk

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/holomush/canvas/internal/xdg"
	"github.com/holomush/canvas/pkg/view"
	"github.com/holomush/canvas/pkg/wire"
)

// SocketEnv names the environment variable Serve reads the socket path
// from. When unset the default runtime socket path is used.
const SocketEnv = "CANVAS_SOCKET"

// DefaultDialTimeout bounds how long Run keeps retrying the initial dial.
const DefaultDialTimeout = 10 * time.Second

// Application is implemented by plugins.
type Application interface {
	// Update handles an application message. Returning non-empty bytes
	// sends them back to the host, which delivers them to Update again;
	// returning nil asks the runtime to send a fresh view instead.
	Update(msg []byte) ([]byte, error)
	// View builds the plugin's UI for the given theme.
	View(theme view.Theme) view.Node
}

type config struct {
	socketPath   string
	dialTimeout  time.Duration
	maxFrameSize int
	logger       *slog.Logger
}

// Option configures Run.
type Option func(*config)

// WithSocketPath sets the host socket path.
func WithSocketPath(path string) Option {
	return func(c *config) {
		c.socketPath = path
	}
}

// WithDialTimeout overrides DefaultDialTimeout.
func WithDialTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.dialTimeout = d
		}
	}
}

// WithMaxFrameSize bounds frames in both directions.
func WithMaxFrameSize(n int) Option {
	return func(c *config) {
		c.maxFrameSize = n
	}
}

// WithLogger overrides slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Run connects to the host and serves app until the host closes the
// connection or ctx is cancelled, both of which return nil.
func Run(ctx context.Context, app Application, opts ...Option) error {
	if app == nil {
		return oops.In("pluginsdk").Errorf("application is nil")
	}
	cfg := config{
		dialTimeout:  DefaultDialTimeout,
		maxFrameSize: wire.DefaultMaxFrameSize,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.socketPath == "" {
		path, err := xdg.SocketPath()
		if err != nil {
			return oops.In("pluginsdk").Wrapf(err, "resolve socket path")
		}
		cfg.socketPath = path
	}

	raw, err := dial(ctx, cfg.socketPath, cfg.dialTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	conn := wire.NewConn(raw, wire.WithMaxFrameSize(cfg.maxFrameSize))
	defer func() { _ = conn.Close() }()

	cfg.logger.DebugContext(ctx, "connected to host", "path", cfg.socketPath)
	err = (&runtime{app: app, conn: conn, logger: cfg.logger}).loop(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func dial(ctx context.Context, path string, timeout time.Duration) (net.Conn, error) {
	backoff := retry.WithMaxDuration(timeout,
		retry.WithCappedDuration(500*time.Millisecond, retry.NewExponential(20*time.Millisecond)))

	var d net.Dialer
	var conn net.Conn
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		c, err := d.DialContext(ctx, "unix", path)
		if err != nil {
			return retry.RetryableError(err)
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, oops.In("pluginsdk").With("path", path).With("timeout", timeout).Wrapf(err, "dial host")
	}
	return conn, nil
}

type runtime struct {
	app    Application
	conn   *wire.Conn
	logger *slog.Logger
	theme  view.Theme
}

func (r *runtime) loop(ctx context.Context) error {
	theme, err := view.ThemeByName(view.DefaultTheme)
	if err != nil {
		return err
	}
	r.theme = theme

	for {
		var ev wire.Event
		ok, err := r.conn.ReadFrame(ctx, &ev)
		if err != nil {
			return err
		}
		if !ok {
			if r.conn.PeerClosed() {
				r.logger.DebugContext(ctx, "host closed connection")
				return nil
			}
			continue
		}

		req, err := r.respond(ctx, ev)
		if err != nil {
			return err
		}
		if err := r.conn.WriteFrame(ctx, req); err != nil {
			return err
		}
	}
}

// respond computes the single request that answers ev.
func (r *runtime) respond(ctx context.Context, ev wire.Event) (wire.Request, error) {
	switch ev.Kind {
	case wire.EventThemeChanged:
		r.theme = *ev.Theme
	case wire.EventInputDelivered:
		out, err := r.app.Update(ev.Input)
		if err != nil {
			r.logger.WarnContext(ctx, "update failed", "error", err)
		} else if len(out) > 0 {
			return wire.InputEmitted(out), nil
		}
	case wire.EventRenderRequested:
	}

	root := r.app.View(r.theme)
	if err := root.Validate(); err != nil {
		return wire.Request{}, oops.In("pluginsdk").Wrapf(err, "application produced an invalid view")
	}
	return wire.ViewProduced(root), nil
}

// Serve runs app until the host goes away or the process is interrupted.
// The socket path comes from CANVAS_SOCKET when set. It is meant to be the
// whole body of a plugin's main function and exits the process on error.
func Serve(app Application, opts ...Option) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if path := os.Getenv(SocketEnv); path != "" {
		opts = append([]Option{WithSocketPath(path)}, opts...)
	}
	if err := Run(ctx, app, opts...); err != nil {
		slog.Error("plugin stopped", "error", err)
		stop()
		os.Exit(1) //nolint:gocritic // stop already called
	}
}
