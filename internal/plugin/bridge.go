// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/samber/oops"

	"github.com/holomush/canvas/internal/logging"
	"github.com/holomush/canvas/internal/observability"
	"github.com/holomush/canvas/pkg/errutil"
	"github.com/holomush/canvas/pkg/wire"
)

// DefaultIngressSize is the capacity of the bridge's ingress channel.
const DefaultIngressSize = 256

// ErrBridgeStopped is returned by Submit once the bridge has stopped.
var ErrBridgeStopped = errors.New("bridge stopped")

// Applier consumes registry events in order.
type Applier interface {
	Apply(ctx context.Context, ev RegistryEvent) error
}

// Ingress accepts registry events from exchange loops.
type Ingress interface {
	Submit(ctx context.Context, ev RegistryEvent) error
}

// Bridge funnels events from every exchange loop into the registry through
// a single consumer, so registry mutations happen in arrival order on one
// goroutine.
type Bridge struct {
	registry Applier
	ingress  chan RegistryEvent
	updates  chan struct{}
	metrics  *observability.Metrics
	logger   *slog.Logger

	startOnce sync.Once
	wg        sync.WaitGroup

	// mu guards closed. Submits that pass the closed check are counted in
	// inflight; the consumer keeps draining until they have all landed.
	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithBridgeMetrics counts dropped events.
func WithBridgeMetrics(m *observability.Metrics) BridgeOption {
	return func(b *Bridge) {
		b.metrics = m
	}
}

// WithBridgeLogger overrides slog.Default.
func WithBridgeLogger(logger *slog.Logger) BridgeOption {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithIngressSize overrides DefaultIngressSize.
func WithIngressSize(n int) BridgeOption {
	return func(b *Bridge) {
		if n > 0 {
			b.ingress = make(chan RegistryEvent, n)
		}
	}
}

// NewBridge creates a bridge feeding registry. Call Start to begin
// consuming.
func NewBridge(registry Applier, opts ...BridgeOption) *Bridge {
	b := &Bridge{
		registry: registry,
		ingress:  make(chan RegistryEvent, DefaultIngressSize),
		updates:  make(chan struct{}, 1),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Submit enqueues ev. It blocks while the ingress channel is full and
// fails when ctx ends or the bridge has stopped. An event Submit accepts
// is always applied, even when the bridge stops concurrently.
func (b *Bridge) Submit(ctx context.Context, ev RegistryEvent) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return oops.In("bridge").With("event", ev.Kind.String()).Wrap(ErrBridgeStopped)
	}
	b.inflight.Add(1)
	b.mu.Unlock()
	defer b.inflight.Done()

	select {
	case b.ingress <- ev:
		return nil
	case <-ctx.Done():
		return oops.In("bridge").With("event", ev.Kind.String()).Wrapf(ctx.Err(), "submit registry event")
	}
}

// Inject submits a request on behalf of the plugin with the given id, as if
// the plugin had sent it. The host surface uses it to route a button
// press back to the plugin that drew the button.
func (b *Bridge) Inject(ctx context.Context, id ID, req wire.Request) error {
	return b.Submit(ctx, RequestReceived(id, req))
}

// Updates signals after events have been applied. Signals are coalesced:
// a receiver that falls behind sees one pending signal, not one per event.
func (b *Bridge) Updates() <-chan struct{} {
	return b.updates
}

// Start begins consuming events until ctx is cancelled.
func (b *Bridge) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			for {
				select {
				case <-ctx.Done():
					b.drain(context.WithoutCancel(ctx))
					return
				case ev := <-b.ingress:
					b.apply(ctx, ev)
				}
			}
		}()
	})
}

// drain rejects new submissions and applies everything already accepted.
func (b *Bridge) drain(ctx context.Context) {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	landed := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(landed)
	}()
	for {
		select {
		case ev := <-b.ingress:
			b.apply(ctx, ev)
		case <-landed:
			for {
				select {
				case ev := <-b.ingress:
					b.apply(ctx, ev)
				default:
					return
				}
			}
		}
	}
}

// Stop waits for the consumer to finish.
func (b *Bridge) Stop() {
	b.wg.Wait()
}

func (b *Bridge) apply(ctx context.Context, ev RegistryEvent) {
	ctx = logging.WithPluginID(ctx, uint64(ev.ID))
	if err := b.registry.Apply(ctx, ev); err != nil {
		reason := dropReason(err)
		b.metrics.Dropped(reason)
		errutil.LogWarn(ctx, b.logger, "registry event dropped", err,
			"event", ev.Kind.String(),
			"reason", reason)
	}

	select {
	case b.updates <- struct{}{}:
	default:
	}
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, ErrUnknownPlugin):
		return strings.ToLower(CodeUnknownPlugin)
	case errors.Is(err, ErrQueueFull):
		return strings.ToLower(CodeQueueFull)
	case errors.Is(err, ErrRegistryInvariant):
		return strings.ToLower(CodeRegistryInvariant)
	default:
		return "error"
	}
}
