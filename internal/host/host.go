// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package host assembles the canvas host process: the plugin acceptor, the
// registry bridge, the control socket, and the metrics server.
package host

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"

	"github.com/holomush/canvas/internal/config"
	"github.com/holomush/canvas/internal/control"
	"github.com/holomush/canvas/internal/observability"
	"github.com/holomush/canvas/internal/plugin"
	"github.com/holomush/canvas/internal/surface"
	"github.com/holomush/canvas/pkg/errutil"
	"github.com/holomush/canvas/pkg/view"
	"github.com/holomush/canvas/pkg/wire"
)

// ShutdownTimeout bounds graceful shutdown of the host servers.
const ShutdownTimeout = 5 * time.Second

// SurfacePath is the metrics server route that serves the composed
// surface as plain text.
const SurfacePath = "/surface"

// Host owns every long-running component of a canvas host.
type Host struct {
	cfg    *config.Config
	logger *slog.Logger

	promReg  *prometheus.Registry
	metrics  *observability.Metrics
	registry *plugin.Registry
	bridge   *plugin.Bridge
	acceptor *plugin.Acceptor

	drawTo    io.Writer
	drawColor bool

	ready   atomic.Bool
	mu      sync.Mutex
	started bool
	obs     *observability.Server
}

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the logger used by the host and its components.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Host) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithDrawWriter makes the host redraw the composed surface to w after
// every registry change.
func WithDrawWriter(w io.Writer, color bool) Option {
	return func(h *Host) {
		h.drawTo = w
		h.drawColor = color
	}
}

// New builds a host from cfg. Nothing listens until Run.
func New(cfg *config.Config, opts ...Option) (*Host, error) {
	if cfg == nil {
		return nil, oops.In("host").Errorf("config is required")
	}
	theme, err := view.ThemeByName(cfg.Theme)
	if err != nil {
		return nil, oops.In("host").With("theme", cfg.Theme).Wrap(err)
	}

	h := &Host{
		cfg:     cfg,
		logger:  slog.Default(),
		promReg: observability.NewRegistry(),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.metrics = observability.NewMetrics(h.promReg)
	h.registry = plugin.NewRegistry(theme, plugin.WithRegistryMetrics(h.metrics))
	h.bridge = plugin.NewBridge(h.registry,
		plugin.WithBridgeMetrics(h.metrics),
		plugin.WithBridgeLogger(h.logger))
	h.acceptor = plugin.NewAcceptor(cfg.SocketPath, plugin.NewIDAllocator(0), h.bridge,
		plugin.WithExchangeConfig(cfg.ExchangeConfig()),
		plugin.WithAcceptorMetrics(h.metrics),
		plugin.WithAcceptorLogger(h.logger))
	return h, nil
}

// Registry returns the plugin registry.
func (h *Host) Registry() *plugin.Registry {
	return h.registry
}

// Bridge returns the registry bridge.
func (h *Host) Bridge() *plugin.Bridge {
	return h.bridge
}

// Ready reports whether Run has finished starting up and not yet begun
// shutting down.
func (h *Host) Ready() bool {
	return h.ready.Load()
}

// PluginSocket returns the address plugins connect to.
func (h *Host) PluginSocket() string {
	return h.acceptor.Addr()
}

// MetricsAddr returns the address of the running metrics server, or the
// empty string when it is disabled or not started.
func (h *Host) MetricsAddr() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.obs == nil {
		return ""
	}
	return h.obs.Addr()
}

// Run starts every component and blocks until ctx is cancelled, a control
// client requests shutdown, or a server fails. It then stops the
// components in dependency order: connections first, then the bridge that
// their final unregistrations flow through.
func (h *Host) Run(ctx context.Context) error {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return oops.In("host").Errorf("host already started")
	}
	h.started = true
	h.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The bridge outlives runCtx so that closing exchanges can still
	// submit their unregistration.
	bridgeCtx, stopBridge := context.WithCancel(context.WithoutCancel(ctx))
	defer stopBridge()
	h.bridge.Start(bridgeCtx)

	if err := h.acceptor.Listen(); err != nil {
		stopBridge()
		h.bridge.Stop()
		return err
	}

	ctl := control.NewServer(h.registry, h.bridge, control.ShutdownFunc(cancel))
	if err := ctl.Start(h.cfg.ControlSocket); err != nil {
		_ = h.acceptor.Close()
		stopBridge()
		h.bridge.Stop()
		return oops.In("host").Wrapf(err, "start control socket")
	}
	var obs *observability.Server
	if h.cfg.MetricsAddr != "" {
		obs = observability.NewServer(h.cfg.MetricsAddr, h.promReg, h.Ready,
			observability.WithRoute(SurfacePath, http.HandlerFunc(h.serveSurface)))
		errCh, err := obs.Start()
		if err != nil {
			h.shutdown(ctl, nil, stopBridge)
			return oops.In("host").Wrapf(err, "start observability server")
		}
		go monitorServerErrors(runCtx, cancel, errCh, "observability", h.logger)
		h.mu.Lock()
		h.obs = obs
		h.mu.Unlock()
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- h.acceptor.Serve(runCtx)
	}()

	var loops sync.WaitGroup
	loops.Add(2)
	go func() {
		defer loops.Done()
		h.renderLoop(runCtx)
	}()
	go func() {
		defer loops.Done()
		h.drawLoop(runCtx)
	}()

	h.ready.Store(true)
	h.logger.InfoContext(ctx, "canvas host started",
		"plugin_socket", h.acceptor.Addr(),
		"control_socket", h.cfg.ControlSocket,
		"metrics_addr", h.cfg.MetricsAddr,
		"theme", h.cfg.Theme)

	var runErr error
	select {
	case <-runCtx.Done():
	case err := <-serveErr:
		runErr = err
	}
	h.ready.Store(false)
	cancel()
	loops.Wait()

	h.logger.InfoContext(ctx, "canvas host stopping", "plugins", h.registry.Len())
	h.shutdown(ctl, obs, stopBridge)
	return runErr
}

func (h *Host) shutdown(ctl *control.Server, obs *observability.Server, stopBridge context.CancelFunc) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if err := h.acceptor.Close(); err != nil {
		errutil.LogWarn(shutdownCtx, h.logger, "close plugin listener", err)
	}
	h.acceptor.Wait()
	stopBridge()
	h.bridge.Stop()

	if err := ctl.Stop(shutdownCtx); err != nil {
		errutil.LogWarn(shutdownCtx, h.logger, "stop control socket", err)
	}
	if obs != nil {
		if err := obs.Stop(shutdownCtx); err != nil {
			errutil.LogWarn(shutdownCtx, h.logger, "stop observability server", err)
		}
	}
}

// renderLoop broadcasts RenderRequested on the configured interval.
func (h *Host) renderLoop(ctx context.Context) {
	if h.cfg.RenderInterval <= 0 {
		return
	}
	ticker := time.NewTicker(h.cfg.RenderInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.registry.Broadcast(wire.RenderRequested()); err != nil {
				errutil.LogWarn(ctx, h.logger, "render broadcast incomplete", err)
			}
		}
	}
}

// drawLoop redraws the surface after registry changes. Without a draw
// writer it only drains the update signal.
func (h *Host) drawLoop(ctx context.Context) {
	var opts []surface.Option
	if h.drawColor {
		opts = append(opts, surface.WithColor())
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.bridge.Updates():
			if h.drawTo == nil {
				continue
			}
			r := surface.New(h.registry.Theme(), opts...)
			if _, err := io.WriteString(h.drawTo, r.Render(h.registry.Views())+"\n"); err != nil {
				errutil.LogWarn(ctx, h.logger, "draw surface", err)
			}
		}
	}
}

func (h *Host) serveSurface(w http.ResponseWriter, _ *http.Request) {
	out := surface.New(h.registry.Theme()).Render(h.registry.Views())
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, out+"\n")
}

// monitorServerErrors cancels the host when a server reports a failure.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}
