package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the chat backend.
//
// Naming convention: namespace_subsystem_name
// - namespace: multichat (application-level grouping)
// - subsystem: websocket, room, delivery, identity (feature-level grouping)
// - name: specific metric (connections_active, frames_total, etc.)

var (
	// ActiveSessions tracks the current number of live socket sessions (Gauge - current state)
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "multichat",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket sessions",
	})

	// ActiveRooms tracks the current number of rooms with at least one subscriber (Gauge - current state)
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "multichat",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of rooms with live subscribers",
	})

	// RoomSubscribers tracks the number of live subscribers per room (GaugeVec with room_id label)
	RoomSubscribers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "multichat",
		Subsystem: "room",
		Name:      "subscribers_count",
		Help:      "Number of live subscribers in each room",
	}, []string{"room_id"})

	// InboundFrames tracks frames received from clients by head and outcome (CounterVec - cumulative)
	InboundFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "multichat",
		Subsystem: "websocket",
		Name:      "frames_total",
		Help:      "Total inbound frames processed, by head and status",
	}, []string{"head", "status"})

	// MessagesSent counts messages accepted and persisted (Counter - cumulative)
	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "multichat",
		Subsystem: "delivery",
		Name:      "messages_sent_total",
		Help:      "Total chat messages persisted and broadcast",
	})

	// StateUpdatesApplied counts delivered/seen appends applied to the store (CounterVec - cumulative)
	StateUpdatesApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "multichat",
		Subsystem: "delivery",
		Name:      "state_updates_total",
		Help:      "Total delivered/seen updates applied, by kind",
	}, []string{"kind"})

	// UpdateQueueDepth tracks per-message update entries waiting for the store (Gauge - current state)
	UpdateQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "multichat",
		Subsystem: "delivery",
		Name:      "update_queue_depth",
		Help:      "Pending delivered/seen updates queued behind a store write",
	})

	// CircuitBreakerState reports breaker state for external dependencies (GaugeVec: 0=closed, 1=open, 2=half-open)
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "multichat",
		Subsystem: "identity",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state per dependency (0=closed, 1=open, 2=half-open)",
	}, []string{"dependency"})
)
