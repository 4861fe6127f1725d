// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/samber/oops"

	"github.com/holomush/canvas/internal/observability"
	"github.com/holomush/canvas/pkg/view"
	"github.com/holomush/canvas/pkg/wire"
)

type entry struct {
	plugin *Plugin
	view   *view.Node
}

// Registry tracks connected plugins, their latest views, and the host theme.
//
// Apply is called only from the bridge goroutine. Views, Plugins, Send,
// Broadcast and SetTheme may be called from any goroutine.
type Registry struct {
	mu      sync.RWMutex
	plugins map[ID]*entry
	theme   view.Theme
	metrics *observability.Metrics
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryMetrics records the connected plugin count.
func WithRegistryMetrics(m *observability.Metrics) RegistryOption {
	return func(r *Registry) {
		r.metrics = m
	}
}

// NewRegistry creates an empty registry using theme until SetTheme is called.
func NewRegistry(theme view.Theme, opts ...RegistryOption) *Registry {
	r := &Registry{
		plugins: make(map[ID]*entry),
		theme:   theme,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Apply updates the registry for one event.
//
// Events naming an id that is not registered return ErrUnknownPlugin and
// change nothing. A registration for a live id returns ErrRegistryInvariant
// and keeps the existing entry.
func (r *Registry) Apply(_ context.Context, ev RegistryEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Kind {
	case EventRegistered:
		return r.register(ev.Plugin)
	case EventRequestReceived:
		e, ok := r.plugins[ev.ID]
		if !ok {
			return unknownPlugin(ev.ID, ev.Kind)
		}
		return r.handleRequest(e, ev.Request)
	case EventUnregistered:
		if _, ok := r.plugins[ev.ID]; !ok {
			return unknownPlugin(ev.ID, ev.Kind)
		}
		delete(r.plugins, ev.ID)
		r.metrics.SetPlugins(len(r.plugins))
		return nil
	default:
		return oops.In("registry").Code(CodeRegistryInvariant).With("kind", ev.Kind.String()).
			Wrapf(ErrRegistryInvariant, "unknown registry event kind %d", ev.Kind)
	}
}

func (r *Registry) register(p *Plugin) error {
	if p == nil {
		return oops.In("registry").Code(CodeRegistryInvariant).
			Wrapf(ErrRegistryInvariant, "registration without plugin")
	}
	if _, exists := r.plugins[p.ID]; exists {
		return oops.In("registry").Code(CodeRegistryInvariant).With("plugin_id", uint64(p.ID)).
			Wrapf(ErrRegistryInvariant, "plugin %d is already registered", p.ID)
	}

	r.plugins[p.ID] = &entry{plugin: p}
	r.metrics.SetPlugins(len(r.plugins))
	return p.deliver(wire.ThemeChanged(r.theme))
}

func (r *Registry) handleRequest(e *entry, req wire.Request) error {
	switch req.Kind {
	case wire.RequestViewProduced:
		e.view = req.View
		return nil
	case wire.RequestInputEmitted:
		return e.plugin.deliver(wire.InputDelivered(req.Input))
	default:
		return oops.In("registry").Code(CodeRegistryInvariant).
			With("plugin_id", uint64(e.plugin.ID)).With("request", req.Kind.String()).
			Wrapf(ErrRegistryInvariant, "unknown request kind %d", req.Kind)
	}
}

func unknownPlugin(id ID, kind EventKind) error {
	return oops.In("registry").Code(CodeUnknownPlugin).
		With("plugin_id", uint64(id)).With("event", kind.String()).
		Wrapf(ErrUnknownPlugin, "plugin %d is not registered", id)
}

// Views returns the latest view of every plugin that has produced one.
func (r *Registry) Views() map[ID]view.Node {
	r.mu.RLock()
	defer r.mu.RUnlock()

	views := make(map[ID]view.Node, len(r.plugins))
	for id, e := range r.plugins {
		if e.view != nil {
			views[id] = *e.view
		}
	}
	return views
}

// Plugins returns all registered plugins ordered by id.
func (r *Registry) Plugins() []PluginInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]PluginInfo, 0, len(r.plugins))
	for _, e := range r.plugins {
		infos = append(infos, PluginInfo{
			ID:          e.plugin.ID,
			PID:         e.plugin.PID,
			ConnectedAt: e.plugin.ConnectedAt,
			HasView:     e.view != nil,
		})
	}
	slices.SortFunc(infos, func(a, b PluginInfo) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return infos
}

// Len returns the number of registered plugins.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// Theme returns the current host theme.
func (r *Registry) Theme() view.Theme {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.theme
}

// SetTheme stores theme and pushes it to every registered plugin. Plugins
// whose queue is full are skipped and reported in the joined error.
func (r *Registry) SetTheme(theme view.Theme) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.theme = theme
	return r.broadcastLocked(wire.ThemeChanged(theme))
}

// Send queues ev for the plugin with the given id.
func (r *Registry) Send(id ID, ev wire.Event) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.plugins[id]
	if !ok {
		return oops.In("registry").Code(CodeUnknownPlugin).
			With("plugin_id", uint64(id)).With("event", ev.Kind.String()).
			Wrapf(ErrUnknownPlugin, "plugin %d is not registered", id)
	}
	return e.plugin.deliver(ev)
}

// Broadcast queues ev for every registered plugin.
func (r *Registry) Broadcast(ev wire.Event) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.broadcastLocked(ev)
}

func (r *Registry) broadcastLocked(ev wire.Event) error {
	var errs []error
	for _, e := range r.plugins {
		if err := e.plugin.deliver(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
