// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package observability provides plugin runtime metrics and the HTTP endpoints
// that expose them with health checks.
package observability

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// Routes served by every observability server.
const (
	MetricsPath   = "/metrics"
	LivenessPath  = "/healthz/liveness"
	ReadinessPath = "/healthz/readiness"
)

// ReadinessChecker reports whether the host accepts plugin connections.
type ReadinessChecker func() bool

type route struct {
	pattern string
	handler http.Handler
}

// Server serves metrics, health probes, and any extra routes mounted with
// WithRoute on a TCP address.
type Server struct {
	addr     string
	registry *prometheus.Registry
	isReady  ReadinessChecker
	extra    []route

	mu         sync.Mutex
	listener   net.Listener
	httpServer *http.Server
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithRoute mounts h at pattern next to the built-in routes.
func WithRoute(pattern string, h http.Handler) ServerOption {
	return func(s *Server) {
		s.extra = append(s.extra, route{pattern: pattern, handler: h})
	}
}

// NewServer creates a server for registry listening on addr ("host:port";
// port 0 picks a free port). A nil readiness checker always reports ready.
func NewServer(addr string, registry *prometheus.Registry, ready ReadinessChecker, opts ...ServerOption) *Server {
	s := &Server{
		addr:     addr,
		registry: registry,
		isReady:  ready,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(MetricsPath, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc(LivenessPath, func(w http.ResponseWriter, _ *http.Request) {
		writeProbe(w, true)
	})
	mux.HandleFunc(ReadinessPath, func(w http.ResponseWriter, _ *http.Request) {
		writeProbe(w, s.isReady == nil || s.isReady())
	})
	for _, r := range s.extra {
		mux.Handle(r.pattern, r.handler)
	}
	return mux
}

// Start listens and serves in the background. The returned channel
// receives a serve failure, if one happens, and is closed when serving
// ends.
func (s *Server) Start() (<-chan error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	errb := oops.In("observability").With("addr", s.addr)
	if s.httpServer != nil {
		return nil, errb.Errorf("observability server already running")
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, errb.Wrapf(err, "listen")
	}
	srv := &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.listener = ln
	s.httpServer = srv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("observability server error", "addr", ln.Addr().String(), "error", err)
			errCh <- errb.Wrapf(err, "serve")
		}
	}()

	slog.Info("observability server started", "addr", ln.Addr().String())
	return errCh, nil
}

// Stop shuts the server down. Stopping a server that is not running is a
// no-op.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.httpServer = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	if err := srv.Shutdown(ctx); err != nil {
		return oops.In("observability").With("addr", s.addr).Wrapf(err, "shutdown")
	}
	slog.Info("observability server stopped")
	return nil
}

// Addr returns the bound address once started, or the empty string.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func writeProbe(w http.ResponseWriter, ok bool) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if !ok {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, "not ready\n")
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "ok\n")
}
