// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Frame directions.
const (
	DirectionOutbound = "outbound"
	DirectionInbound  = "inbound"
)

// Metrics contains the Prometheus metrics for the plugin runtime.
//
// All recording methods are safe to call on a nil *Metrics, so components
// can run without metrics wired in.
type Metrics struct {
	PluginsConnected prometheus.Gauge
	ConnectionsTotal prometheus.Counter
	DisconnectsTotal *prometheus.CounterVec
	FramesTotal      *prometheus.CounterVec
	RegistryDrops    *prometheus.CounterVec
	AcceptErrors     prometheus.Counter
}

// NewRegistry returns a Prometheus registry with the standard Go and
// process collectors registered.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return registry
}

// NewMetrics creates and registers the canvas metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PluginsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "canvas_plugins_connected",
			Help: "Number of plugins currently registered",
		}),
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "canvas_plugin_connections_total",
			Help: "Total number of accepted plugin connections",
		}),
		DisconnectsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canvas_plugin_disconnects_total",
				Help: "Total number of plugin connections closed, by reason",
			},
			[]string{"reason"},
		),
		FramesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canvas_frames_total",
				Help: "Total number of frames exchanged with plugins, by direction and message kind",
			},
			[]string{"direction", "kind"},
		),
		RegistryDrops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canvas_registry_dropped_events_total",
				Help: "Total number of registry events dropped, by reason",
			},
			[]string{"reason"},
		),
		AcceptErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "canvas_accept_errors_total",
			Help: "Total number of failed accepts on the plugin socket",
		}),
	}

	reg.MustRegister(
		m.PluginsConnected,
		m.ConnectionsTotal,
		m.DisconnectsTotal,
		m.FramesTotal,
		m.RegistryDrops,
		m.AcceptErrors,
	)
	return m
}

// SetPlugins records the number of registered plugins.
func (m *Metrics) SetPlugins(n int) {
	if m == nil {
		return
	}
	m.PluginsConnected.Set(float64(n))
}

// Connected records an accepted plugin connection.
func (m *Metrics) Connected() {
	if m == nil {
		return
	}
	m.ConnectionsTotal.Inc()
}

// Disconnected records a closed plugin connection.
func (m *Metrics) Disconnected(reason string) {
	if m == nil {
		return
	}
	m.DisconnectsTotal.WithLabelValues(reason).Inc()
}

// Frame records one frame in the given direction.
func (m *Metrics) Frame(direction, kind string) {
	if m == nil {
		return
	}
	m.FramesTotal.WithLabelValues(direction, kind).Inc()
}

// Dropped records a registry event that could not be applied.
func (m *Metrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.RegistryDrops.WithLabelValues(reason).Inc()
}

// AcceptFailed records a failed accept.
func (m *Metrics) AcceptFailed() {
	if m == nil {
		return
	}
	m.AcceptErrors.Inc()
}
