// Package metrics defines the Prometheus instrumentation for the relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Relay Metrics
var (
	// ActiveSessions tracks the number of live broadcast sessions
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_active_sessions",
			Help: "Number of live broadcast sessions",
		},
	)

	// ConnectedClients tracks the number of open WebSocket connections
	ConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_connected_clients",
			Help: "Number of open WebSocket connections across all sessions",
		},
	)

	// MessagesTotal tracks inbound messages by normalized type
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_messages_total",
			Help: "Inbound messages by normalized type",
		},
		[]string{"type"},
	)

	// MalformedMessagesTotal tracks frames that failed to parse
	MalformedMessagesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_malformed_messages_total",
			Help: "Inbound frames that failed to parse",
		},
	)

	// TallyBroadcastsTotal tracks applied tally updates
	TallyBroadcastsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_tally_broadcasts_total",
			Help: "Tally updates applied and fanned out",
		},
	)

	// PrunedMembersTotal tracks members dropped on failed delivery
	PrunedMembersTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_pruned_members_total",
			Help: "Session members dropped because delivery failed",
		},
	)

	// AuthFailuresTotal tracks rejected credentials by reason
	AuthFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_auth_failures_total",
			Help: "Rejected credentials by reason",
		},
		[]string{"reason"},
	)
)

// WebSocket Writer Metrics
var (
	// MessageSendDuration tracks WebSocket message send latency in seconds
	MessageSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_message_send_duration_seconds",
			Help:    "WebSocket message send duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	// IdleDisconnects tracks connections dropped for inactivity
	IdleDisconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_idle_disconnects_total",
			Help: "Connections dropped after the idle timeout",
		},
	)

	// PingFailures tracks failed keepalive pings
	PingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_ping_failures_total",
			Help: "Keepalive pings that failed to send",
		},
	)

	// ConnectionsRejectedTotal tracks connections refused at the upgrade gate
	ConnectionsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_connections_rejected_total",
			Help: "Connections refused at the upgrade gate by reason",
		},
		[]string{"reason"},
	)
)
