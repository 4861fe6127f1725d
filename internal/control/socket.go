// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package control provides the HTTP control socket used by the canvas CLI
// to inspect and drive a running host.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/canvas/internal/plugin"
	"github.com/holomush/canvas/internal/surface"
	"github.com/holomush/canvas/internal/xdg"
	"github.com/holomush/canvas/pkg/errutil"
	"github.com/holomush/canvas/pkg/view"
	"github.com/holomush/canvas/pkg/wire"
)

// HealthResponse is returned by the /health endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// StatusResponse is returned by the /status endpoint.
type StatusResponse struct {
	Running       bool                `json:"running"`
	InstanceID    string              `json:"instance_id"`
	PID           int                 `json:"pid"`
	UptimeSeconds int64               `json:"uptime_seconds"`
	Theme         string              `json:"theme"`
	Plugins       []plugin.PluginInfo `json:"plugins"`
}

// MessageResponse is returned by endpoints that only acknowledge.
type MessageResponse struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// ShutdownFunc is called when shutdown is requested.
type ShutdownFunc func()

// Runtime is the host state the control socket reads and drives.
type Runtime interface {
	Plugins() []plugin.PluginInfo
	Views() map[plugin.ID]view.Node
	Theme() view.Theme
	Broadcast(ev wire.Event) error
}

// Injector routes a request to a plugin through the runtime's ordered
// ingress.
type Injector interface {
	Inject(ctx context.Context, id plugin.ID, req wire.Request) error
}

// Server runs HTTP over a Unix socket for process management.
type Server struct {
	instanceID   ulid.ULID
	startTime    time.Time
	runtime      Runtime
	injector     Injector
	listener     net.Listener
	httpServer   *http.Server
	socketPath   string
	shutdownFunc ShutdownFunc
	running      atomic.Bool
}

// NewServer creates a control socket server for rt.
func NewServer(rt Runtime, injector Injector, shutdownFunc ShutdownFunc) *Server {
	s := &Server{
		instanceID:   ulid.Make(),
		startTime:    time.Now(),
		runtime:      rt,
		injector:     injector,
		shutdownFunc: shutdownFunc,
	}
	s.running.Store(true)
	return s
}

// InstanceID identifies this host process run.
func (s *Server) InstanceID() ulid.ULID {
	return s.instanceID
}

// SocketPath returns the path the server listens on once started.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// Handler returns the control routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /views", s.handleViews)
	mux.HandleFunc("POST /render", s.handleRender)
	mux.HandleFunc("POST /press", s.handlePress)
	mux.HandleFunc("POST /shutdown", s.handleShutdown)
	return mux
}

// Start begins listening on the Unix socket at socketPath.
func (s *Server) Start(socketPath string) error {
	errb := oops.In("control").With("path", socketPath)
	s.socketPath = socketPath

	if err := xdg.EnsureDir(filepath.Dir(socketPath)); err != nil {
		return errb.Wrapf(err, "create runtime directory")
	}

	// Remove existing socket file if present
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return errb.Wrapf(err, "remove existing socket")
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return errb.Wrapf(err, "listen on socket")
	}
	s.listener = listener

	if err := os.Chmod(socketPath, 0o600); err != nil {
		_ = listener.Close()
		return errb.Wrapf(err, "set socket permissions")
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("control socket server error", "error", err)
		}
	}()

	slog.Info("control socket listening", "path", socketPath, "instance_id", s.instanceID.String())
	return nil
}

// Stop gracefully shuts down the control socket server.
func (s *Server) Stop(ctx context.Context) error {
	s.running.Store(false)

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return oops.In("control").Wrapf(err, "shutdown http server")
		}
	}

	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			slog.Warn("failed to close control socket listener", "error", err)
		}
	}

	if s.socketPath != "" {
		if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove control socket file", "path", s.socketPath, "error", err)
		}
	}

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	plugins := s.runtime.Plugins()
	if plugins == nil {
		plugins = []plugin.PluginInfo{}
	}
	writeJSON(w, http.StatusOK, StatusResponse{
		Running:       s.running.Load(),
		InstanceID:    s.instanceID.String(),
		PID:           os.Getpid(),
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Theme:         s.runtime.Theme().Name,
		Plugins:       plugins,
	})
}

// handleViews renders the aggregated surface as text. The paths and color
// query flags map to the renderer options.
func (s *Server) handleViews(w http.ResponseWriter, r *http.Request) {
	var opts []surface.Option
	if flag(r, "paths") {
		opts = append(opts, surface.WithButtonPaths())
	}
	if flag(r, "color") {
		opts = append(opts, surface.WithColor())
	}
	out := surface.New(s.runtime.Theme(), opts...).Render(s.runtime.Views())

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(out + "\n")); err != nil {
		slog.Error("failed to write views response", "error", err)
	}
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	resp := MessageResponse{Message: "render requested"}
	if err := s.runtime.Broadcast(wire.RenderRequested()); err != nil {
		errutil.LogWarn(r.Context(), slog.Default(), "render broadcast incomplete", err)
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handlePress resolves the button at ?path= in the view of ?plugin= and
// injects its message back to that plugin.
func (s *Server) handlePress(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id, err := strconv.ParseUint(q.Get("plugin"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, MessageResponse{Error: "plugin must be a numeric id"})
		return
	}
	path, err := surface.ParsePath(q.Get("path"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, MessageResponse{Error: err.Error()})
		return
	}

	msg, err := surface.Press(s.runtime.Views(), plugin.ID(id), path)
	switch {
	case errors.Is(err, plugin.ErrUnknownPlugin):
		writeJSON(w, http.StatusNotFound, MessageResponse{Error: err.Error()})
		return
	case errors.Is(err, surface.ErrNotPressable):
		writeJSON(w, http.StatusConflict, MessageResponse{Error: err.Error()})
		return
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, MessageResponse{Error: err.Error()})
		return
	}

	if err := s.injector.Inject(r.Context(), plugin.ID(id), wire.InputEmitted(msg)); err != nil {
		errutil.LogWarn(r.Context(), slog.Default(), "press not delivered", err, "plugin_id", id)
		writeJSON(w, http.StatusServiceUnavailable, MessageResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "pressed"})
}

func (s *Server) handleShutdown(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, MessageResponse{Message: "shutdown initiated"})

	// Trigger shutdown asynchronously
	if s.shutdownFunc != nil {
		go s.shutdownFunc()
	}
}

func flag(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}
