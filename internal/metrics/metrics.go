// Package metrics holds the prometheus collectors shared by the transport
// and the room coordinator.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Connections counts live WebSocket connections.
	Connections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatroom_connections",
		Help: "Number of live WebSocket connections.",
	})
	// Rooms counts rooms whose event loop is running.
	Rooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatroom_rooms",
		Help: "Number of running rooms.",
	})
	// MessagesAccepted counts chat messages stored in a room history.
	MessagesAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatroom_messages_accepted_total",
		Help: "Chat messages accepted into room history.",
	})
	// MessagesRejected counts rejected inbound frames by error kind.
	MessagesRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatroom_messages_rejected_total",
		Help: "Inbound frames rejected, by error category.",
	}, []string{"reason"})
	// FramesDropped counts outbound frames a connection could not take.
	FramesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatroom_frames_dropped_total",
		Help: "Outbound frames dropped because a connection could not take them.",
	})
	// SnapshotWrites counts snapshot saves by result, ok or error.
	SnapshotWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatroom_snapshot_writes_total",
		Help: "Snapshot writes, by result.",
	}, []string{"result"})
	// OriginRejections counts WebSocket handshakes refused by the origin
	// check, by reason.
	OriginRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatroom_origin_rejections_total",
		Help: "WebSocket handshakes refused by the origin check, by reason.",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(Connections)
	prometheus.MustRegister(Rooms)
	prometheus.MustRegister(MessagesAccepted)
	prometheus.MustRegister(MessagesRejected)
	prometheus.MustRegister(FramesDropped)
	prometheus.MustRegister(SnapshotWrites)
	prometheus.MustRegister(OriginRejections)
}

// Handler returns an http.Handler for Prometheus scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
