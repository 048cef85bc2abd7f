// Package metrics holds the Prometheus collectors for the OpenWebNet engine.
//
// Collectors are registered on the default registry the first time the
// package is imported; internal/server exposes them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "myhome"

var (
	// FramesTotal counts frames per connection mode and direction ("in", "out").
	FramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_total",
		Help:      "OpenWebNet frames exchanged with the gateway",
	}, []string{"mode", "direction"})

	// MalformedFrames counts frames dropped by the handshake or a decoder.
	MalformedFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "malformed_frames_total",
		Help:      "Frames that were logged and dropped",
	}, []string{"mode", "state"})

	// Handshakes counts connections reaching a lifecycle state.
	Handshakes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "handshake_transitions_total",
		Help:      "Handshake state transitions per connection mode",
	}, []string{"mode", "state"})

	// CommandSessionsActive is the number of open command sessions.
	CommandSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "command_sessions_active",
		Help:      "Command sessions currently holding a socket",
	})

	// CommandResults counts finished command sessions by outcome
	// ("complete", "error", "closed").
	CommandResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "command_sessions_total",
		Help:      "Finished command sessions by outcome",
	}, []string{"outcome"})

	// BridgeDropped counts monitor publishes dropped because the MQTT queue
	// was full.
	BridgeDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bridge_dropped_total",
		Help:      "Monitor events not published to MQTT because the queue was full",
	})

	// MonitorConnected is 1 while the monitor connection is authenticated.
	MonitorConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "monitor_connected",
		Help:      "1 while the monitor connection is in the connected state",
	})
)
