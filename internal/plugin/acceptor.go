// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package plugin runs the host side of the out-of-process plugin protocol:
// it accepts plugin connections on a Unix socket, drives one exchange loop
// per connection, and keeps the registry of connected plugins and their
// views.
package plugin

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/holomush/canvas/internal/observability"
	"github.com/holomush/canvas/internal/xdg"
	"github.com/holomush/canvas/pkg/errutil"
	"github.com/holomush/canvas/pkg/wire"
)

// Accept backoff bounds.
const (
	acceptBackoffBase = 5 * time.Millisecond
	acceptBackoffMax  = time.Second
)

// Acceptor listens on a Unix socket and starts an exchange loop for every
// plugin that connects.
type Acceptor struct {
	path    string
	ids     *IDAllocator
	ingress Ingress
	cfg     ExchangeConfig
	metrics *observability.Metrics
	logger  *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// AcceptorOption configures an Acceptor.
type AcceptorOption func(*Acceptor)

// WithExchangeConfig sets the settings used for every connection.
func WithExchangeConfig(cfg ExchangeConfig) AcceptorOption {
	return func(a *Acceptor) {
		a.cfg = cfg.withDefaults()
	}
}

// WithAcceptorMetrics records accept failures, connections, and frames.
func WithAcceptorMetrics(m *observability.Metrics) AcceptorOption {
	return func(a *Acceptor) {
		a.metrics = m
	}
}

// WithAcceptorLogger overrides slog.Default.
func WithAcceptorLogger(logger *slog.Logger) AcceptorOption {
	return func(a *Acceptor) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAcceptor creates an acceptor for the socket at path. Connection ids
// come from ids; registry events go to ingress.
func NewAcceptor(path string, ids *IDAllocator, ingress Ingress, opts ...AcceptorOption) *Acceptor {
	a := &Acceptor{
		path:    path,
		ids:     ids,
		ingress: ingress,
		cfg:     DefaultExchangeConfig(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Listen binds the socket. A stale socket file left by an earlier process
// is removed first, and the parent directory is created if missing.
func (a *Acceptor) Listen() error {
	errb := oops.In("acceptor").With("path", a.path)

	if err := xdg.EnsureDir(filepath.Dir(a.path)); err != nil {
		return errb.Wrapf(err, "create socket directory")
	}
	if err := os.Remove(a.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errb.Wrapf(err, "remove stale socket")
	}

	ln, err := net.Listen("unix", a.path)
	if err != nil {
		return errb.Wrapf(err, "listen")
	}
	if err := os.Chmod(a.path, 0o600); err != nil {
		_ = ln.Close()
		return errb.Wrapf(err, "set socket permissions")
	}

	a.mu.Lock()
	a.listener = ln
	a.mu.Unlock()

	a.logger.Info("plugin socket listening", "path", a.path)
	return nil
}

// Addr returns the socket path.
func (a *Acceptor) Addr() string {
	return a.path
}

// Serve accepts connections until ctx is cancelled or Close is called.
// Accept failures are logged and retried with backoff; they never end the
// loop. Serve returns after the listener is closed; exchange loops it
// started keep running until ctx ends, see Wait.
func (a *Acceptor) Serve(ctx context.Context) error {
	a.mu.Lock()
	ln := a.listener
	a.mu.Unlock()
	if ln == nil {
		return oops.In("acceptor").With("path", a.path).Errorf("serve called before listen")
	}

	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})
	defer stop()

	for {
		conn, err := a.accept(ctx, ln)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return oops.In("acceptor").With("path", a.path).Wrapf(err, "accept")
		}
		a.handle(ctx, conn)
	}
}

func (a *Acceptor) accept(ctx context.Context, ln net.Listener) (net.Conn, error) {
	backoff := retry.WithCappedDuration(acceptBackoffMax, retry.NewExponential(acceptBackoffBase))

	var conn net.Conn
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		c, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			a.metrics.AcceptFailed()
			a.logger.WarnContext(ctx, "accept failed", "error", err)
			return retry.RetryableError(err)
		}
		conn = c
		return nil
	})
	return conn, err
}

func (a *Acceptor) handle(ctx context.Context, conn net.Conn) {
	id := a.ids.Next()
	p, outbound := NewPlugin(id, peerPID(conn), a.cfg.QueueSize)

	x := newExchange(p, outbound, wire.NewConn(conn, wire.WithMaxFrameSize(a.cfg.MaxFrameSize)), a.ingress, a.cfg)
	x.metrics = a.metrics
	x.logger = a.logger

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		x.run(ctx)
	}()
}

// Wait blocks until every exchange loop started by Serve has ended.
func (a *Acceptor) Wait() {
	a.wg.Wait()
}

// Close closes the listener and removes the socket file.
func (a *Acceptor) Close() error {
	a.mu.Lock()
	ln := a.listener
	a.mu.Unlock()
	if ln == nil {
		return nil
	}

	err := ln.Close()
	if err != nil && errors.Is(err, net.ErrClosed) {
		err = nil
	}
	if rmErr := os.Remove(a.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		errutil.LogWarn(context.Background(), a.logger, "remove plugin socket", rmErr, "path", a.path)
	}
	if err != nil {
		return oops.In("acceptor").With("path", a.path).Wrapf(err, "close listener")
	}
	return nil
}
