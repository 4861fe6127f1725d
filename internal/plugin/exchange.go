// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/canvas/internal/logging"
	"github.com/holomush/canvas/internal/observability"
	"github.com/holomush/canvas/pkg/errutil"
	"github.com/holomush/canvas/pkg/wire"
)

// TracerName is the OpenTelemetry instrumentation name for the runtime.
const TracerName = "canvas/plugin"

// Default exchange settings.
const (
	DefaultPollInterval = 250 * time.Millisecond
	DefaultReplyTimeout = 5 * time.Second
	DefaultQueueSize    = 64
)

// Disconnect reasons reported in logs and metrics.
const (
	ReasonProbeFailed     = "probe_failed"
	ReasonPeerClosed      = "peer_closed"
	ReasonConnectionReset = "connection_reset"
	ReasonFraming         = "framing"
	ReasonDecode          = "decode"
	ReasonTimeout         = "timeout"
	ReasonIO              = "io"
	ReasonShutdown        = "shutdown"
)

// ExchangeConfig tunes the per-connection exchange loop.
type ExchangeConfig struct {
	// PollInterval bounds the wait for an outbound event between liveness
	// probes.
	PollInterval time.Duration
	// ReplyTimeout bounds each probe, event write, and reply read.
	ReplyTimeout time.Duration
	// QueueSize is the capacity of each plugin's outbound queue.
	QueueSize int
	// MaxFrameSize bounds frames in both directions. Zero means
	// wire.DefaultMaxFrameSize.
	MaxFrameSize int
}

// DefaultExchangeConfig returns the default settings.
func DefaultExchangeConfig() ExchangeConfig {
	return ExchangeConfig{
		PollInterval: DefaultPollInterval,
		ReplyTimeout: DefaultReplyTimeout,
		QueueSize:    DefaultQueueSize,
		MaxFrameSize: wire.DefaultMaxFrameSize,
	}
}

func (c ExchangeConfig) withDefaults() ExchangeConfig {
	d := DefaultExchangeConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.ReplyTimeout <= 0 {
		c.ReplyTimeout = d.ReplyTimeout
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.MaxFrameSize <= 0 {
		c.MaxFrameSize = d.MaxFrameSize
	}
	return c
}

var errPeerClosed = errors.New("peer closed connection")

// exchange drives one plugin connection. It is the only reader of the
// connection and the only receiver on the plugin's outbound queue, so
// events for one plugin are handled strictly one round at a time.
type exchange struct {
	plugin   *Plugin
	outbound <-chan wire.Event
	conn     *wire.Conn
	ingress  Ingress
	cfg      ExchangeConfig
	metrics  *observability.Metrics
	tracer   trace.Tracer
	logger   *slog.Logger
}

func newExchange(p *Plugin, outbound <-chan wire.Event, conn *wire.Conn, ingress Ingress, cfg ExchangeConfig) *exchange {
	return &exchange{
		plugin:   p,
		outbound: outbound,
		conn:     conn,
		ingress:  ingress,
		cfg:      cfg.withDefaults(),
		tracer:   otel.Tracer(TracerName),
		logger:   slog.Default(),
	}
}

// run registers the plugin, exchanges events until the connection fails
// or ctx ends, then unregisters it and closes the connection.
func (x *exchange) run(ctx context.Context) {
	ctx = logging.WithPluginID(ctx, uint64(x.plugin.ID))

	if err := x.ingress.Submit(ctx, Registered(x.plugin)); err != nil {
		errutil.LogWarn(ctx, x.logger, "plugin registration failed", err)
		_ = x.conn.Close()
		return
	}
	x.metrics.Connected()
	x.logger.InfoContext(ctx, "plugin connected", "pid", x.plugin.PID)

	err := x.active(ctx)
	x.closing(ctx, err)
}

func (x *exchange) active(ctx context.Context) error {
	timer := time.NewTimer(x.cfg.PollInterval)
	defer timer.Stop()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !x.probe(ctx) {
			return errProbeFailed
		}

		timer.Reset(x.cfg.PollInterval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		case ev := <-x.outbound:
			if err := x.round(ctx, ev); err != nil {
				return err
			}
		}
	}
}

var errProbeFailed = errors.New("liveness probe failed")

func (x *exchange) probe(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, x.cfg.ReplyTimeout)
	defer cancel()
	return x.conn.IsOpen(pctx)
}

// round writes one event and reads the plugin's reply.
func (x *exchange) round(ctx context.Context, ev wire.Event) error {
	ctx, span := x.tracer.Start(ctx, "plugin.exchange", trace.WithAttributes(
		attribute.Int64("plugin.id", int64(x.plugin.ID)), //nolint:gosec // ids stay far below 2^63
		attribute.String("event.kind", ev.Kind.String()),
	))
	defer span.End()

	err := x.exchangeFrames(ctx, span, ev)
	if err != nil && !errors.Is(err, errPeerClosed) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (x *exchange) exchangeFrames(ctx context.Context, span trace.Span, ev wire.Event) error {
	rctx, cancel := context.WithTimeout(ctx, x.cfg.ReplyTimeout)
	defer cancel()

	if err := x.conn.WriteFrame(rctx, ev); err != nil {
		return err
	}
	x.metrics.Frame(observability.DirectionOutbound, ev.Kind.String())

	var req wire.Request
	ok, err := x.conn.ReadFrame(rctx, &req)
	if err != nil {
		return err
	}
	if !ok {
		if x.conn.PeerClosed() {
			return errPeerClosed
		}
		return nil
	}
	x.metrics.Frame(observability.DirectionInbound, req.Kind.String())
	span.SetAttributes(attribute.String("request.kind", req.Kind.String()))

	if err := x.ingress.Submit(ctx, RequestReceived(x.plugin.ID, req)); err != nil {
		return oops.In("exchange").With("request", req.Kind.String()).Wrapf(err, "forward request")
	}
	return nil
}

func (x *exchange) closing(ctx context.Context, cause error) {
	reason := disconnectReason(cause)
	switch reason {
	case ReasonShutdown, ReasonPeerClosed, ReasonProbeFailed:
		x.logger.InfoContext(ctx, "plugin disconnected", "reason", reason)
	default:
		errutil.LogWarn(ctx, x.logger, "plugin connection failed", cause, "reason", reason)
	}

	uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), x.cfg.ReplyTimeout)
	defer cancel()
	if err := x.ingress.Submit(uctx, Unregistered(x.plugin.ID)); err != nil {
		x.logger.DebugContext(ctx, "unregister not delivered", "error", err)
	}

	if err := x.conn.Close(); err != nil {
		x.logger.DebugContext(ctx, "close plugin connection", "error", err)
	}
	x.metrics.Disconnected(reason)
}

func disconnectReason(err error) string {
	switch {
	case err == nil:
		return ReasonShutdown
	case errors.Is(err, errProbeFailed):
		return ReasonProbeFailed
	case errors.Is(err, errPeerClosed):
		return ReasonPeerClosed
	case errors.Is(err, wire.ErrConnectionReset):
		return ReasonConnectionReset
	case errors.Is(err, wire.ErrFraming):
		return ReasonFraming
	case errors.Is(err, wire.ErrDecode):
		return ReasonDecode
	case errors.Is(err, context.Canceled), errors.Is(err, ErrBridgeStopped):
		return ReasonShutdown
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	default:
		return ReasonIO
	}
}
